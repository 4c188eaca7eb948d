package geometry

// NormalizeTap converts a tap in view pixels into the [0,1] coordinate space
// the device expects for focus and metering. The point is taken relative to
// the preview area and rotated by the display rotation around (0.5, 0.5),
// which undoes the preview rotation. ok is false when the area is empty.
func NormalizeTap(area Rect, displayRotationDeg int, x, y float64) (nx, ny float64, ok bool) {
	if area.Width <= 0 || area.Height <= 0 {
		return 0, 0, false
	}
	px := (x - area.Left) / area.Width
	py := (y - area.Top) / area.Height

	m := Identity().PostRotate(float64(normalizeDegrees(displayRotationDeg)), 0.5, 0.5)
	nx, ny = m.Map(px, py)
	return clamp01(nx), clamp01(ny), true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
