package coordinator

import (
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// State is a point-in-time view of the coordinator, safe to share.
type State struct {
	Paused          bool               `json:"paused"`
	Device          string             `json:"device"`
	Lifecycle       string             `json:"lifecycle"`
	Facing          camera.Facing      `json:"-"`
	FacingName      string             `json:"facing"`
	HDR             bool               `json:"hdr"`
	Zoom            float64            `json:"zoom"`
	MaxZoom         float64            `json:"max_zoom"`
	ShutterEnabled  bool               `json:"shutter_enabled"`
	Countdown       int                `json:"countdown"`
	CountdownActive bool               `json:"countdown_active"`
	HasSurface      bool               `json:"has_surface"`
	View            geometry.View      `json:"view"`
	Buffer          geometry.Size      `json:"buffer"`
	Transform       geometry.Transform `json:"transform"`
	ActiveSessions  int                `json:"active_sessions"`
	LastError       string             `json:"last_error,omitempty"`
}

func (c *Coordinator) state() State {
	s := State{
		Paused:          c.paused,
		Device:          c.ctrl.State().String(),
		Lifecycle:       c.ctrl.Lifecycle().String(),
		Facing:          c.facing,
		FacingName:      c.facing.String(),
		HDR:             c.hdr,
		Zoom:            c.zoom,
		MaxZoom:         c.maxZoom,
		ShutterEnabled:  c.shutter,
		CountdownActive: c.timer.Active(),
		HasSurface:      c.surface != nil,
		View:            c.view,
		Buffer:          c.ctrl.Buffer(),
		Transform:       c.transform,
		ActiveSessions:  c.orch.Active(),
	}
	if s.CountdownActive {
		s.Countdown = c.timer.Remaining()
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
