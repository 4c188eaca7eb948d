package device

import "fmt"

// State is the device controller state.
type State int

const (
	Closed State = iota
	Opening
	PreviewStarting
	ReadyForCapture
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case PreviewStarting:
		return "preview_starting"
	case ReadyForCapture:
		return "ready_for_capture"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle tracks the preview transform refresh around preview start.
type Lifecycle int

const (
	Idle Lifecycle = iota
	// AwaitingFirstFrame: the device opened, preview is being set up.
	AwaitingFirstFrame
	// PendingTransformUpdate: preview started; the next frame forces a transform update.
	PendingTransformUpdate
)

func (l Lifecycle) String() string {
	switch l {
	case Idle:
		return "idle"
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case PendingTransformUpdate:
		return "pending_transform_update"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}
