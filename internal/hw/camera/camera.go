// Package camera abstracts the physical capture device. The rest of the
// application talks to a Manager and the Device it opens, regardless of how
// the device is driven (simulated, GPIO remote trigger, vendor driver).
//
// Every callback in this package is invoked on a driver goroutine. Callers
// must hand results back to their own goroutine before touching shared state.
package camera

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

var (
	// ErrUnavailable is returned when no device exists for the requested facing.
	ErrUnavailable = errors.New("camera: device unavailable")
	// ErrClosed is reported for work aborted because the device was closed.
	ErrClosed = errors.New("camera: device closed")
)

// Facing selects which physical camera to open.
type Facing int

const (
	Back Facing = iota
	Front
)

func (f Facing) String() string {
	switch f {
	case Back:
		return "back"
	case Front:
		return "front"
	default:
		return fmt.Sprintf("facing(%d)", int(f))
	}
}

// Other returns the opposite facing.
func (f Facing) Other() Facing {
	if f == Front {
		return Back
	}
	return Front
}

// ParseFacing accepts "back" or "front" (case-insensitive).
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back":
		return Back, nil
	case "front":
		return Front, nil
	default:
		return Back, fmt.Errorf("unknown camera facing %q (expected back or front)", s)
	}
}

// Characteristics are the static properties of one camera.
type Characteristics struct {
	FlashSupported    bool
	SensorOrientation int
	MaxZoom           float64
}

// Surface identifies the preview output the device renders into.
type Surface struct {
	Name string
}

// Location is a geotag attached to a capture.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Parameters describe a single capture.
type Parameters struct {
	Title       string
	Orientation int
	Location    *Location
	Heading     float64
	HasHeading  bool
	Zoom        float64
	CacheDir    string
	Flash       bool
}

// FocusState is reported by the device while it scans for focus.
type FocusState int

const (
	PassiveScan FocusState = iota
	ActiveScan
	PassiveFocused
	PassiveUnfocused
	ActiveFocused
	ActiveUnfocused
)

func (s FocusState) String() string {
	switch s {
	case PassiveScan:
		return "passive_scan"
	case ActiveScan:
		return "active_scan"
	case PassiveFocused:
		return "passive_focused"
	case PassiveUnfocused:
		return "passive_unfocused"
	case ActiveFocused:
		return "active_focused"
	case ActiveUnfocused:
		return "active_unfocused"
	default:
		return fmt.Sprintf("focus(%d)", int(s))
	}
}

// Scanning reports whether the state starts or continues a focus scan.
func (s FocusState) Scanning() bool {
	return s == PassiveScan || s == ActiveScan
}

// Active reports whether the state belongs to a tap-triggered scan.
func (s FocusState) Active() bool {
	return s == ActiveScan || s == ActiveFocused || s == ActiveUnfocused
}

// OpenCallbacks receive the outcome of Manager.Open.
type OpenCallbacks interface {
	Opened(dev Device)
	Failed(err error)
	Closed()
}

// Listener receives preview-time notifications from an open device.
type Listener interface {
	FocusStateChanged(state FocusState, frame int64)
	ReadyStateChanged(ready bool)
	FrameAvailable()
}

// PictureCallbacks receive the progress and outcome of one capture.
type PictureCallbacks interface {
	QuickExpose()
	Progress(percent float64)
	Saved(data []byte)
	Failed(err error)
}

// Device is an opened camera.
type Device interface {
	// StartPreview begins streaming into surface; ready is called once with
	// nil on success or the setup error.
	StartPreview(surface Surface, ready func(error))
	TakePicture(params Parameters, cb PictureCallbacks)
	SetZoom(ratio float64)
	MaxZoom() float64
	// PickPreviewSize returns the buffer size the device streams for the given picture size.
	PickPreviewSize(picture geometry.Size) geometry.Size
	// TriggerFocusAt starts an active focus scan at normalized buffer coordinates.
	TriggerFocusAt(nx, ny float64)
	// SetListener attaches l; nil detaches.
	SetListener(l Listener)
	Close()
}

// Manager opens devices.
type Manager interface {
	Characteristics(facing Facing) (Characteristics, error)
	// Open is asynchronous: exactly one of cb.Opened or cb.Failed follows,
	// and cb.Closed may follow Opened if the device goes away.
	Open(facing Facing, hdr bool, picture geometry.Size, cb OpenCallbacks)
}
