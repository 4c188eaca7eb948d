package web

import (
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/coordinator"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Notifier turns coordinator notifications into status stream events. It
// is called on the control goroutine and never blocks.
type Notifier struct {
	b *StatusBroadcaster
}

// NewNotifier publishes on b.
func NewNotifier(b *StatusBroadcaster) *Notifier {
	return &Notifier{b: b}
}

func (n *Notifier) PreviewStarted() {
	n.b.Publish(KindState, map[string]any{"preview": true})
}

func (n *Notifier) TransformChanged(t geometry.Transform) {
	n.b.Publish(KindTransform, t)
}

func (n *Notifier) ShutterEnabled(enabled bool) {
	n.b.Publish(KindState, map[string]any{"shutter_enabled": enabled})
}

func (n *Notifier) FocusIndicator(ind coordinator.FocusIndicator) {
	n.b.Publish(KindFocus, map[string]any{"mode": ind.Mode.String(), "x": ind.X, "y": ind.Y})
}

func (n *Notifier) DeviceError(err error) {
	n.b.Broadcast("error", err.Error())
	n.b.Publish(KindError, map[string]string{"error": err.Error()})
}

func (n *Notifier) CountdownChanged(remaining int, active bool) {
	n.b.Publish(KindCountdown, map[string]any{"remaining": remaining, "active": active})
}

func (n *Notifier) SessionUpdated(s capture.Snapshot) {
	n.b.Publish(KindSession, s)
}
