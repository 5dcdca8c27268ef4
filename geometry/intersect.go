package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Fixed perturbation directions used to break exact orientation ties. A tie
// is resolved as if the segment origin had been moved by e*d1 + e^2*d2 +
// e^3*d3 for an infinitesimal e, so every test sharing an edge agrees.
var tieBreak = [3]r3.Vec{
	{X: 0.5376671395461, Y: 0.3187652398589, Z: 0.7812229148012},
	{X: -0.2050034113470, Y: 0.8622339470440, Z: 0.2769437948380},
	{X: 0.6714971336099, Y: -0.1242462262920, Z: 0.4488937703418},
}

const degenerateFaceRatio = 1e-15

// orient returns the sign of disp.(edge x (origin - a)), breaking ties by
// symbolic perturbation of origin. A fully degenerate configuration
// (zero displacement or zero edge) counts as negative.
func orient(origin, disp, a, b r3.Vec) int {
	edge := r3.Sub(b, a)
	val := r3.Dot(disp, r3.Cross(edge, r3.Sub(origin, a)))
	if val > 0 {
		return 1
	}
	if val < 0 {
		return -1
	}
	for _, d := range tieBreak {
		val = r3.Dot(disp, r3.Cross(edge, d))
		if val > 0 {
			return 1
		}
		if val < 0 {
			return -1
		}
	}
	return -1
}

// EdgeSign is the orientation of the trajectory line prev->next relative to
// the directed edge a->b. Callers pass edges with vertices in a canonical
// order so that faces sharing the edge see the same answer.
func EdgeSign(prev, next, a, b r3.Vec) int {
	return orient(prev, r3.Sub(next, prev), a, b)
}

// FacePolygon is a face as seen by the intersection test.
type FacePolygon struct {
	IDs      []int    // Vertex ids, in face order
	Vertices []r3.Vec // Vertex coordinates, parallel to IDs
	Cog      r3.Vec   // Face center of gravity
}

// Crossing accumulates the enter/leave counts of a cell's faces.
type Crossing struct {
	NIn  int
	NOut int
}

// Inside reports whether the counts describe a segment starting inside the
// cell.
func (c Crossing) Inside() bool {
	return c.NIn == c.NOut && c.NIn > 0
}

// IntersectFace tests the segment prev->next against the face fan
// triangulated about its centroid. cellCen is the center of the cell being
// tested and reorient is -1 when that cell sees the face with a reversed
// orientation. Counts are accumulated in c. The returned value is the
// smallest fraction t in [0,1) at which the segment leaves the cell through
// this face, or 1 if it does not.
func IntersectFace(f FacePolygon, prev, next, cellCen r3.Vec, reorient int, c *Crossing) float64 {
	n := len(f.IDs)
	if n < 3 {
		return 1
	}
	disp := r3.Sub(next, prev)
	gOrig := r3.Sub(prev, f.Cog)
	vectCen := r3.Sub(f.Cog, cellCen)

	retval := 1.0
	nIntersects := 0

	p0 := orient(prev, disp, f.Cog, f.Vertices[0])
	pip1 := p0

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		e0 := r3.Sub(f.Vertices[i], f.Cog)
		e1 := r3.Sub(f.Vertices[j], f.Cog)
		pvec := r3.Cross(e1, e0)

		det := r3.Dot(disp, pvec)
		signDet := signWithTie(det, reorient)

		pi := -pip1
		if i == n-1 {
			pip1 = p0
		} else {
			pip1 = orient(prev, disp, f.Cog, f.Vertices[j])
		}
		uSign := pip1 * signDet
		vSign := pi * signDet

		// outer edge, canonical orientation by vertex id
		a, b := i, j
		reorientEdge := 1
		if f.IDs[i] > f.IDs[j] {
			a, b = j, i
			reorientEdge = -1
		}
		wSign := orient(prev, disp, f.Vertices[a], f.Vertices[b]) * reorientEdge * signDet

		if wSign > 0 || uSign < 0 || vSign < 0 {
			continue
		}

		goP := -r3.Dot(gOrig, pvec)
		signGoP := signGo(goP, pvec, reorient)

		dirMove := sign(r3.Dot(pvec, vectCen))*signDet > 0

		if signDet == signGoP {
			if dirMove {
				c.NOut++
				if math.Abs(goP) < math.Abs(det) {
					t := 0.99
					detCen := r3.Dot(vectCen, pvec)
					if math.Abs(det/detCen) > degenerateFaceRatio {
						t = goP / det
					}
					nIntersects++
					if t < retval {
						retval = t
					}
				}
			} else {
				c.NIn++
				if math.Abs(goP) < math.Abs(det) {
					nIntersects--
				}
			}
		} else {
			if dirMove {
				c.NOut++
			} else {
				c.NIn++
			}
		}

		// entered and left through the same non-convex face
		if nIntersects < 1 && retval < 1 {
			retval = 1
		}
	}
	return retval
}

func sign(x float64) int {
	if x > 0 {
		return 1
	}
	return -1
}

// signWithTie returns the sign of x, resolving x == 0 so that the two
// cells sharing a face get opposite answers.
func signWithTie(x float64, reorient int) int {
	if x == 0 {
		return -reorient
	}
	return sign(x)
}

// signGo is the sign of the origin offset -(prev-cog).pvec with the same
// perturbation as orient.
func signGo(goP float64, pvec r3.Vec, reorient int) int {
	if goP != 0 {
		return sign(goP)
	}
	for _, d := range tieBreak {
		if v := -r3.Dot(d, pvec); v != 0 {
			return sign(v)
		}
	}
	return -reorient
}
