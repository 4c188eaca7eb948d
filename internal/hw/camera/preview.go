package camera

import (
	"math"

	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// DefaultPreviewSizes is the stream size table used when a device does not
// report its own.
var DefaultPreviewSizes = []geometry.Size{
	{Width: 1920, Height: 1080},
	{Width: 1440, Height: 1080},
	{Width: 1280, Height: 960},
	{Width: 1280, Height: 720},
	{Width: 1088, Height: 1088},
	{Width: 960, Height: 720},
	{Width: 640, Height: 480},
}

const aspectTolerance = 0.01

// PickPreviewSize chooses the largest supported size with the picture's
// aspect ratio, falling back to the largest 16:9 size and then to the
// largest size overall.
func PickPreviewSize(picture geometry.Size, supported []geometry.Size) geometry.Size {
	if len(supported) == 0 {
		supported = DefaultPreviewSizes
	}
	if !picture.IsZero() {
		if s, ok := largestWithAspect(supported, aspect(picture)); ok {
			return s
		}
	}
	if s, ok := largestWithAspect(supported, 16.0/9.0); ok {
		return s
	}
	best := supported[0]
	for _, s := range supported[1:] {
		if area(s) > area(best) {
			best = s
		}
	}
	return best
}

func largestWithAspect(sizes []geometry.Size, want float64) (geometry.Size, bool) {
	var best geometry.Size
	found := false
	for _, s := range sizes {
		if s.IsZero() || math.Abs(aspect(s)-want) > aspectTolerance {
			continue
		}
		if !found || area(s) > area(best) {
			best, found = s, true
		}
	}
	return best, found
}

func aspect(s geometry.Size) float64 {
	w, h := s.Width, s.Height
	if h > w {
		w, h = h, w
	}
	return float64(w) / float64(h)
}

func area(s geometry.Size) int {
	return s.Width * s.Height
}
