package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/camctl/internal/debug"
)

// Size is a pixel size (device buffers, preview sizes, picture sizes).
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsZero reports whether either dimension is unusable.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// View is the rendering surface: its pixel size and the current display rotation.
type View struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	RotationDeg int `json:"rotation_deg"`
}

// Rect is an axis-aligned rectangle in view pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the rectangle center.
func (r Rect) Center() (float64, float64) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Input is everything the preview transform depends on.
type Input struct {
	Buffer          Size
	View            View
	NaturalPortrait bool
}

// Transform is the buffer-to-view mapping applied to the preview surface.
type Transform struct {
	Matrix      Affine  `json:"matrix"`
	RotationDeg int     `json:"rotation_deg"`
	Scale       float64 `json:"scale"`
	// PreviewArea is where the scaled buffer lands in view coordinates.
	PreviewArea Rect `json:"preview_area"`
}

// Result tells the caller what Compute did.
type Result int

const (
	// Applied means a new transform was computed and should be pushed to the surface.
	Applied Result = iota
	// Unchanged means inputs matched the last applied ones; the previous transform is returned.
	Unchanged
	// Deferred means the view or buffer has no area yet; retry on the next geometry event.
	Deferred
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Unchanged:
		return "unchanged"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Engine computes preview transforms and remembers the last applied inputs.
// It is not safe for concurrent use; the coordinator's control loop owns it.
type Engine struct {
	last    Input
	applied bool
	current Transform
}

// NewEngine creates an engine with no applied transform.
func NewEngine() *Engine {
	return &Engine{current: Transform{Matrix: Identity(), Scale: 1}}
}

// Current returns the last applied transform.
func (e *Engine) Current() Transform {
	return e.current
}

// Compute maps the device buffer into the view. With unchanged inputs and
// forced=false it returns the previous transform without recomputing.
func (e *Engine) Compute(in Input, forced bool) (Transform, Result) {
	if e.applied && !forced && in == e.last {
		return e.current, Unchanged
	}
	if in.Buffer.IsZero() || in.View.Width <= 0 || in.View.Height <= 0 {
		debug.Verbose("geometry: deferring transform, buffer=%s view=%dx%d", in.Buffer, in.View.Width, in.View.Height)
		return e.current, Deferred
	}

	e.current = computeTransform(in)
	e.last = in
	e.applied = true
	debug.Verbose("geometry: buffer=%s view=%dx%d rotation=%d portrait=%v -> scale=%.4f rotate=%d",
		in.Buffer, in.View.Width, in.View.Height, in.View.RotationDeg, in.NaturalPortrait,
		e.current.Scale, e.current.RotationDeg)
	return e.current, Applied
}

// PreviewOrientation converts a display rotation into the rotation applied to
// buffer contents.
func PreviewOrientation(displayRotationDeg int) int {
	return ((360-displayRotationDeg)%360 + 360) % 360
}

func computeTransform(in Input) Transform {
	width := float64(in.View.Width)
	height := float64(in.View.Height)
	rotation := normalizeDegrees(in.View.RotationDeg)

	// Sensor buffers are landscape; portrait-natural devices report them rotated.
	effW, effH := float64(in.Buffer.Width), float64(in.Buffer.Height)
	if in.NaturalPortrait {
		effW, effH = effH, effW
	}

	viewRect := Rect{Width: width, Height: height}
	centerX, centerY := viewRect.Center()
	bufRect := Rect{Left: centerX - effW/2, Top: centerY - effH/2, Width: effW, Height: effH}

	// Undo the stretch-to-fill the compositor applies to the surface.
	m := SetRectToRect(viewRect, bufRect)

	previewRotation := PreviewOrientation(rotation)
	m = m.PostRotate(float64(previewRotation), centerX, centerY)

	if rotation%180 == 90 {
		effW, effH = effH, effW
	}

	// Crop the longest dimension rather than letterbox.
	scale := math.Min(width/effW, height/effH)
	m = m.PostScale(scale, scale, centerX, centerY)

	// Center the scaled buffer in the view.
	bx, by := bufRect.Center()
	mx, my := m.Map(bx, by)
	m = m.PostTranslate(centerX-mx, centerY-my)

	previewW, previewH := effW*scale, effH*scale
	return Transform{
		Matrix:      m,
		RotationDeg: previewRotation,
		Scale:       scale,
		PreviewArea: Rect{
			Left:   centerX - previewW/2,
			Top:    centerY - previewH/2,
			Width:  previewW,
			Height: previewH,
		},
	}
}

func normalizeDegrees(deg int) int {
	return ((deg % 360) + 360) % 360
}
