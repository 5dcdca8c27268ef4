package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TransformKind classifies a periodic transform
type TransformKind uint8

const (
	Translation TransformKind = iota // Pure translation
	Rotation                         // Rotation about an axis through a point
	Mixed                            // Rotation followed by translation
)

func (k TransformKind) String() string {
	switch k {
	case Translation:
		return "translation"
	case Rotation:
		return "rotation"
	case Mixed:
		return "mixed"
	}
	return fmt.Sprintf("TransformKind(%d)", uint8(k))
}

// Transform is an affine map x' = R x + c stored as a 3x4 matrix [R|c].
type Transform struct {
	Kind TransformKind
	M    [3][4]float64
}

// NewTranslation returns x' = x + t.
func NewTranslation(t r3.Vec) Transform {
	return Transform{
		Kind: Translation,
		M: [3][4]float64{
			{1, 0, 0, t.X},
			{0, 1, 0, t.Y},
			{0, 0, 1, t.Z},
		},
	}
}

// NewRotation returns a rotation by angle (radians) about the axis through
// center with direction axis.
func NewRotation(axis r3.Vec, angle float64, center r3.Vec) (Transform, error) {
	if r3.Norm(axis) == 0 {
		return Transform{}, fmt.Errorf("rotation axis has zero length")
	}
	u := r3.Unit(axis)
	c, s := math.Cos(angle), math.Sin(angle)
	oc := 1 - c
	r := [3][3]float64{
		{c + u.X*u.X*oc, u.X*u.Y*oc - u.Z*s, u.X*u.Z*oc + u.Y*s},
		{u.Y*u.X*oc + u.Z*s, c + u.Y*u.Y*oc, u.Y*u.Z*oc - u.X*s},
		{u.Z*u.X*oc - u.Y*s, u.Z*u.Y*oc + u.X*s, c + u.Z*u.Z*oc},
	}
	// x' = R(x - center) + center
	shift := r3.Sub(center, MulVec33(r, center))
	return fromParts(Rotation, r, shift), nil
}

func fromParts(kind TransformKind, r [3][3]float64, c r3.Vec) Transform {
	t := Transform{Kind: kind}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.M[i][j] = r[i][j]
		}
	}
	t.M[0][3], t.M[1][3], t.M[2][3] = c.X, c.Y, c.Z
	return t
}

// Linear returns the 3x3 part of the transform.
func (t Transform) Linear() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = t.M[i][j]
		}
	}
	return r
}

// Shift returns the translation column of the transform.
func (t Transform) Shift() r3.Vec {
	return r3.Vec{X: t.M[0][3], Y: t.M[1][3], Z: t.M[2][3]}
}

// HasRotation reports whether vectors must be rotated by this transform.
func (t Transform) HasRotation() bool {
	return t.Kind >= Rotation
}

// Apply maps a point.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(MulVec33(t.Linear(), p), t.Shift())
}

// Rotate maps a free vector (the translation part is ignored).
func (t Transform) Rotate(v r3.Vec) r3.Vec {
	return MulVec33(t.Linear(), v)
}

// Inverse returns the reverse transform.
func (t Transform) Inverse() (Transform, error) {
	rinv, err := Inverse33(t.Linear())
	if err != nil {
		return Transform{}, fmt.Errorf("inverse of %v transform: %w", t.Kind, err)
	}
	return fromParts(t.Kind, rinv, r3.Scale(-1, MulVec33(rinv, t.Shift()))), nil
}

// Compose returns the transform applying o first, then t.
func (t Transform) Compose(o Transform) Transform {
	rt, ro := t.Linear(), o.Linear()
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += rt[i][k] * ro[k][j]
			}
		}
	}
	kind := t.Kind
	if o.Kind > kind {
		kind = o.Kind
	}
	if kind == Rotation && (t.Kind == Translation || o.Kind == Translation) {
		kind = Mixed
	}
	return fromParts(kind, r, r3.Add(MulVec33(rt, o.Shift()), t.Shift()))
}
