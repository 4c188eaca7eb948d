package coordinator

import (
	"math"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/metrics"
)

// deviceHooks adapts controller notifications; they run on the control goroutine.
type deviceHooks struct{ c *Coordinator }

func (h deviceHooks) Opened(geometry.Size) {
	h.c.updateTransform(false)
}

func (h deviceHooks) PreviewStarted(dev camera.Device) {
	c := h.c
	c.maxZoom = dev.MaxZoom()
	if c.maxZoom < 1 {
		c.maxZoom = 1
	}
	c.zoom = math.Min(c.wantZoom, c.maxZoom)
	dev.SetZoom(c.zoom)
	c.lastErr = nil
	c.setShutter(true)
	if c.opts.Preview != nil {
		c.opts.Preview.PreviewStarted()
	}
}

func (h deviceHooks) ForceTransform() {
	h.c.updateTransform(true)
}

func (h deviceHooks) FocusChanged(state camera.FocusState, frame int64) {
	h.c.onFocusState(state, frame)
}

func (h deviceHooks) ReadyChanged(ready bool) {
	h.c.setShutter(ready)
}

func (h deviceHooks) Failed(err error) {
	h.c.focus = focusScan{}
	h.c.reportError(err)
}

func (h deviceHooks) Closed() {
	h.c.focus = focusScan{}
	h.c.setShutter(false)
}

// focusScan tracks the autofocus scan in progress, if any.
type focusScan struct {
	scanning bool
	active   bool
	start    int64
}

func (c *Coordinator) onFocusState(state camera.FocusState, frame int64) {
	if state.Scanning() {
		if c.focus.scanning {
			return
		}
		c.focus = focusScan{scanning: true, active: state.Active(), start: frame}
		if !state.Active() {
			x, y := c.transform.PreviewArea.Center()
			c.setFocusIndicator(FocusIndicator{Mode: FocusPassive, X: x, Y: y})
		}
		return
	}

	if c.focus.scanning {
		mode := "passive"
		if c.focus.active {
			mode = "active"
		}
		metrics.FocusScanFrames.WithLabelValues(mode).Observe(float64(frame - c.focus.start))
	}
	c.focus = focusScan{}
	c.setFocusIndicator(FocusIndicator{Mode: FocusNone})
}
