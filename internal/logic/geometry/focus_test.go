package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTap(t *testing.T) {
	area := Rect{Left: 0, Top: 0, Width: 1000, Height: 500}
	cases := []struct {
		name     string
		area     Rect
		rotation int
		x, y     float64
		wantX    float64
		wantY    float64
	}{
		{"center_any_rotation", area, 90, 500, 250, 0.5, 0.5},
		{"no_rotation", area, 0, 250, 250, 0.25, 0.5},
		{"rotation_90", area, 90, 250, 250, 0.5, 0.25},
		{"rotation_180", area, 180, 250, 250, 0.75, 0.5},
		{"offset_area", Rect{Left: 100, Top: 50, Width: 200, Height: 100}, 0, 150, 75, 0.25, 0.25},
		{"outside_clamped", area, 0, -100, 900, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nx, ny, ok := NormalizeTap(tc.area, tc.rotation, tc.x, tc.y)
			assert.True(t, ok)
			assert.InDelta(t, tc.wantX, nx, epsilon)
			assert.InDelta(t, tc.wantY, ny, epsilon)
		})
	}
}

func TestNormalizeTap_EmptyArea(t *testing.T) {
	_, _, ok := NormalizeTap(Rect{}, 0, 10, 10)
	assert.False(t, ok)
}
