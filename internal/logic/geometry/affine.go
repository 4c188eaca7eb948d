package geometry

import "math"

// Affine is a 2D affine transform:
//
//	| A B C |
//	| D E F |
//	| 0 0 1 |
//
// Post* operations compose after the current transform (M' = op × M),
// so a point is mapped by the existing transform first.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, E: 1}
}

// Map applies the transform to a point.
func (m Affine) Map(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// concat returns o × m (m applied first).
func (m Affine) concat(o Affine) Affine {
	return Affine{
		A: o.A*m.A + o.B*m.D,
		B: o.A*m.B + o.B*m.E,
		C: o.A*m.C + o.B*m.F + o.C,
		D: o.D*m.A + o.E*m.D,
		E: o.D*m.B + o.E*m.E,
		F: o.D*m.C + o.E*m.F + o.F,
	}
}

// SetRectToRect maps src onto dst, scaling each axis independently (fill).
func SetRectToRect(src, dst Rect) Affine {
	if src.Width == 0 || src.Height == 0 {
		return Identity()
	}
	sx := dst.Width / src.Width
	sy := dst.Height / src.Height
	return Affine{
		A: sx, C: dst.Left - src.Left*sx,
		E: sy, F: dst.Top - src.Top*sy,
	}
}

// PostRotate rotates by deg degrees (clockwise in y-down view space) around (px, py).
func (m Affine) PostRotate(deg, px, py float64) Affine {
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	sin, cos = snap(sin), snap(cos)
	r := Affine{
		A: cos, B: -sin, C: px - cos*px + sin*py,
		D: sin, E: cos, F: py - sin*px - cos*py,
	}
	return m.concat(r)
}

// PostScale scales around (px, py).
func (m Affine) PostScale(sx, sy, px, py float64) Affine {
	s := Affine{
		A: sx, C: px - sx*px,
		E: sy, F: py - sy*py,
	}
	return m.concat(s)
}

// PostTranslate moves by (dx, dy).
func (m Affine) PostTranslate(dx, dy float64) Affine {
	return m.concat(Affine{A: 1, C: dx, E: 1, F: dy})
}

// Invert returns the inverse transform. ok is false for singular matrices.
func (m Affine) Invert() (inv Affine, ok bool) {
	det := m.A*m.E - m.B*m.D
	if det == 0 {
		return Affine{}, false
	}
	inv = Affine{
		A: m.E / det,
		B: -m.B / det,
		D: -m.D / det,
		E: m.A / det,
	}
	inv.C = -(inv.A*m.C + inv.B*m.F)
	inv.F = -(inv.D*m.C + inv.E*m.F)
	return inv, true
}

// snap removes floating point noise for right-angle rotations.
func snap(v float64) float64 {
	const eps = 1e-12
	switch {
	case math.Abs(v) < eps:
		return 0
	case math.Abs(v-1) < eps:
		return 1
	case math.Abs(v+1) < eps:
		return -1
	}
	return v
}
