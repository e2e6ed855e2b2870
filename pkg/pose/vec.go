package pose

import "math"

// Vec3 is a 3D direction or position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Finite reports whether all components are finite.
func (v Vec3) Finite() bool {
	return IsFinite(v.X) && IsFinite(v.Y) && IsFinite(v.Z)
}

// Normalize returns the unit vector and false if v is degenerate.
func (v Vec3) Normalize() (Vec3, bool) {
	n := v.Norm()
	if n < 1e-10 || !IsFinite(n) {
		return Vec3{}, false
	}
	return v.Scale(1 / n), true
}

// AngleDeg returns the angle between a and b in degrees, and false when
// either vector is degenerate.
func AngleDeg(a, b Vec3) (float64, bool) {
	ua, ok := a.Normalize()
	if !ok {
		return 0, false
	}
	ub, ok := b.Normalize()
	if !ok {
		return 0, false
	}
	d := ua.Dot(ub)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return Degrees(math.Acos(d)), true
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
