package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/coordinator"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 64 << 10

// MaxZoomRatio is the largest zoom ratio accepted from clients.
const MaxZoomRatio = 100

// Controller is the part of the coordinator the web surface drives.
type Controller interface {
	Snapshot(ctx context.Context) (coordinator.State, error)
	ShutterPressed()
	RemoteShutter()
	CancelCountdown()
	FocusTap(x, y float64)
	SwitchCamera(f camera.Facing)
	SetHDR(on bool)
	SetZoom(ratio float64)
	Pause()
	Resume()
}

// FocusRequest is the body of POST /focus, in view coordinates.
type FocusRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// CameraRequest is the body of POST /camera.
type CameraRequest struct {
	Facing string `json:"facing"`
}

// HDRRequest is the body of POST /hdr.
type HDRRequest struct {
	Enabled *bool `json:"enabled"`
}

// ZoomRequest is the body of POST /zoom.
type ZoomRequest struct {
	Ratio float64 `json:"ratio"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Control     Controller
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If control is nil, every control route returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, control Controller, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Control:     control,
		staticFS:    staticFS,
	}
}

// ValidateFocus rejects tap coordinates that are not finite and non-negative.
func ValidateFocus(x, y float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return fmt.Errorf("x must be a finite, non-negative number, got %g", x)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) || y < 0 {
		return fmt.Errorf("y must be a finite, non-negative number, got %g", y)
	}
	return nil
}

// ValidateZoom rejects ratios outside (0, MaxZoomRatio]. Values below 1 are
// accepted and clamped by the coordinator.
func ValidateZoom(ratio float64) error {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 || ratio > MaxZoomRatio {
		return fmt.Errorf("ratio must be between 0 and %d, got %g", MaxZoomRatio, ratio)
	}
	return nil
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	if h.staticFS == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns the coordinator state as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := h.Control.Snapshot(ctx)
	if err != nil {
		http.Error(w, "state unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleShutter handles POST /shutter.
func (h *Handlers) HandleShutter(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Control.ShutterPressed()
	accepted(w)
}

// HandleRemoteShutter handles POST /shutter/remote: capture now, no countdown.
func (h *Handlers) HandleRemoteShutter(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Control.RemoteShutter()
	accepted(w)
}

// HandleCancelCountdown handles POST /shutter/cancel.
func (h *Handlers) HandleCancelCountdown(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Control.CancelCountdown()
	accepted(w)
}

// HandleFocus handles POST /focus.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req FocusRequest
	if !decode(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		http.Error(w, "x and y are required", http.StatusBadRequest)
		return
	}
	if err := ValidateFocus(*req.X, *req.Y); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Control.FocusTap(*req.X, *req.Y)
	accepted(w)
}

// HandleCamera handles POST /camera.
func (h *Handlers) HandleCamera(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CameraRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := camera.ParseFacing(req.Facing)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Control.SwitchCamera(f)
	accepted(w)
}

// HandleHDR handles POST /hdr.
func (h *Handlers) HandleHDR(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req HDRRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	h.Control.SetHDR(*req.Enabled)
	accepted(w)
}

// HandleZoom handles POST /zoom.
func (h *Handlers) HandleZoom(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ZoomRequest
	if !decode(w, r, &req) {
		return
	}
	if err := ValidateZoom(req.Ratio); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Control.SetZoom(req.Ratio)
	accepted(w)
}

// HandlePause handles POST /pause.
func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Control.Pause()
	accepted(w)
}

// HandleResume handles POST /resume.
func (h *Handlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.Control.Resume()
	accepted(w)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) ready(w http.ResponseWriter) bool {
	if h.Control == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// decode reads a bounded JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusBadRequest)
			return false
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
