package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Reflect returns v mirrored about the plane with unit normal n.
func Reflect(v, n r3.Vec) r3.Vec {
	return r3.Sub(v, r3.Scale(2*r3.Dot(v, n), n))
}

// ReflectPoint mirrors p about the plane through origin with unit normal n.
func ReflectPoint(p, origin, n r3.Vec) r3.Vec {
	return r3.Sub(p, r3.Scale(2*r3.Dot(r3.Sub(p, origin), n), n))
}

// Lerp returns a + t*(b-a)
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Component returns the i-th cartesian component of v.
func Component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// FromArray builds a vector from a 3-array.
func FromArray(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

// ToArray returns the components of v as an array.
func ToArray(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Inverse33 inverts a 3x3 matrix given in row-major order.
func Inverse33(m [3][3]float64) ([3][3]float64, error) {
	var out [3][3]float64
	a := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	if d := mat.Det(a); math.Abs(d) < 1e-300 {
		return out, fmt.Errorf("singular 3x3 matrix (det=%g)", d)
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return out, fmt.Errorf("inverting 3x3 matrix: %w", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// MulVec33 returns m*v.
func MulVec33(m [3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// MulVec33T returns transpose(m)*v.
func MulVec33T(m [3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[1][0]*v.Y + m[2][0]*v.Z,
		Y: m[0][1]*v.X + m[1][1]*v.Y + m[2][1]*v.Z,
		Z: m[0][2]*v.X + m[1][2]*v.Y + m[2][2]*v.Z,
	}
}

// Frame is an orthonormal basis attached to a wall face. E1 is the outward
// unit normal, E2 and E3 span the tangent plane.
type Frame struct {
	E1, E2, E3 r3.Vec
}

// NewWallFrame builds a right-handed frame whose first axis is the unit
// normal n. The tangent axes are chosen from the coordinate axis least
// aligned with n, so the result only depends on n.
func NewWallFrame(n r3.Vec) Frame {
	e1 := r3.Unit(n)
	var ref r3.Vec
	ax, ay, az := math.Abs(e1.X), math.Abs(e1.Y), math.Abs(e1.Z)
	switch {
	case ax <= ay && ax <= az:
		ref = r3.Vec{X: 1}
	case ay <= ax && ay <= az:
		ref = r3.Vec{Y: 1}
	default:
		ref = r3.Vec{Z: 1}
	}
	e2 := r3.Unit(r3.Sub(ref, r3.Scale(r3.Dot(ref, e1), e1)))
	e3 := r3.Cross(e1, e2)
	return Frame{E1: e1, E2: e2, E3: e3}
}

// Matrix returns the rotation whose rows are the frame axes.
func (f Frame) Matrix() [3][3]float64 {
	return [3][3]float64{
		{f.E1.X, f.E1.Y, f.E1.Z},
		{f.E2.X, f.E2.Y, f.E2.Z},
		{f.E3.X, f.E3.Y, f.E3.Z},
	}
}

// ToLocal expresses a global vector in frame coordinates.
func (f Frame) ToLocal(v r3.Vec) r3.Vec {
	return MulVec33(f.Matrix(), v)
}

// ToGlobal maps frame coordinates back to the global basis.
func (f Frame) ToGlobal(v r3.Vec) r3.Vec {
	return MulVec33T(f.Matrix(), v)
}
