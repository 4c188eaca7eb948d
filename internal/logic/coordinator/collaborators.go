package coordinator

import (
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/countdown"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Settings are the user preferences consulted on resume, open and shutter.
type Settings interface {
	CountdownSeconds() int
	HDR() bool
	SetHDR(on bool)
	Facing() camera.Facing
	SetFacing(f camera.Facing)
	PictureSize(f camera.Facing) geometry.Size
}

// Display reports the current display rotation and the device's natural orientation.
type Display interface {
	Rotation() int
	NaturalPortrait() bool
}

// Orientation reports the device orientation in degrees, stamped on captures.
type Orientation interface {
	DeviceOrientation() int
}

// Heading is the compass sensor; it only runs while the coordinator is resumed.
type Heading interface {
	Activate()
	Deactivate()
	Current() (degrees float64, ok bool)
}

// Locations provides the geotag for new sessions; nil means unknown.
type Locations interface {
	Current() *camera.Location
}

// Sounds plays countdown cues. Load and Unload bracket the resumed period.
type Sounds interface {
	Load()
	Unload()
	Play(cue countdown.Cue)
}

// PreviewListener follows the preview surface.
type PreviewListener interface {
	PreviewStarted()
	TransformChanged(t geometry.Transform)
}

// ReadyListener follows whether the shutter can be used.
type ReadyListener interface {
	ShutterEnabled(enabled bool)
}

// FocusMode selects which focus indicator to show.
type FocusMode int

const (
	FocusNone FocusMode = iota
	FocusPassive
	FocusActive
)

func (m FocusMode) String() string {
	switch m {
	case FocusPassive:
		return "passive"
	case FocusActive:
		return "active"
	default:
		return "none"
	}
}

// FocusIndicator is where to draw the focus ring, in view coordinates.
type FocusIndicator struct {
	Mode FocusMode `json:"mode"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
}

// FocusListener follows the focus indicator.
type FocusListener interface {
	FocusIndicator(ind FocusIndicator)
}

// ErrorListener receives recoverable errors meant for the user.
type ErrorListener interface {
	DeviceError(err error)
}

// CountdownListener follows the self-timer.
type CountdownListener interface {
	CountdownChanged(remaining int, active bool)
}

// FatalHandler receives unrecoverable errors. It should not return.
type FatalHandler func(err error)

type nopSettings struct{}

func (nopSettings) CountdownSeconds() int                   { return 0 }
func (nopSettings) HDR() bool                               { return false }
func (nopSettings) SetHDR(bool)                             {}
func (nopSettings) Facing() camera.Facing                   { return camera.Back }
func (nopSettings) SetFacing(camera.Facing)                 {}
func (nopSettings) PictureSize(camera.Facing) geometry.Size { return geometry.Size{} }

type nopDisplay struct{}

func (nopDisplay) Rotation() int         { return 0 }
func (nopDisplay) NaturalPortrait() bool { return false }

type nopOrientation struct{}

func (nopOrientation) DeviceOrientation() int { return 0 }

type nopHeading struct{}

func (nopHeading) Activate()                {}
func (nopHeading) Deactivate()              {}
func (nopHeading) Current() (float64, bool) { return 0, false }

type nopLocations struct{}

func (nopLocations) Current() *camera.Location { return nil }

type nopSounds struct{}

func (nopSounds) Load()              {}
func (nopSounds) Unload()            {}
func (nopSounds) Play(countdown.Cue) {}
