package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Periodicity connects two boundary groups: Transform maps the faces of
// Group1 onto the faces of Group2.
type Periodicity struct {
	Group1, Group2 string
	Transform      geometry.Transform
}

// FacePair is a periodic face match. Applying transform Transform to a
// point near face First yields a point near face Second.
type FacePair struct {
	First, Second int // Global boundary face ids
	Transform     int // Index into the transform list, 2k for periodicity k
}

// Transforms lists, for periodicities k, T_k at 2k and its inverse at 2k+1.
func Transforms(per []Periodicity) ([]geometry.Transform, error) {
	out := make([]geometry.Transform, 0, 2*len(per))
	for k, p := range per {
		inv, err := p.Transform.Inverse()
		if err != nil {
			return nil, fmt.Errorf("periodicity %d: %w", k, err)
		}
		out = append(out, p.Transform, inv)
	}
	return out, nil
}

// PairFaces matches every face of Group1 with the face of Group2 whose
// centroid is the image of its own.
func PairFaces(m *mesh.Mesh, per []Periodicity) ([]FacePair, error) {
	var pairs []FacePair
	seen := make(map[int]bool)
	for k, p := range per {
		g1, g2 := m.GroupID(p.Group1), m.GroupID(p.Group2)
		if g1 < 0 || g2 < 0 {
			return nil, fmt.Errorf("periodicity %s/%s: unknown boundary group", p.Group1, p.Group2)
		}
		first, second := m.FacesInGroup(g1), m.FacesInGroup(g2)
		if len(first) != len(second) {
			return nil, fmt.Errorf("periodicity %s/%s: %d faces against %d", p.Group1, p.Group2, len(first), len(second))
		}
		if len(first) == 0 {
			continue
		}

		pts := make(kdtree.Points, len(second))
		byCog := make(map[[3]float64]int, len(second))
		for i, f := range second {
			c := m.BoundaryFaces[f].Cog
			pts[i] = kdtree.Point{c.X, c.Y, c.Z}
			byCog[[3]float64{c.X, c.Y, c.Z}] = f
		}
		tree := kdtree.New(pts, false)

		for _, f := range first {
			bf := &m.BoundaryFaces[f]
			img := p.Transform.Apply(bf.Cog)
			near, d2 := tree.Nearest(kdtree.Point{img.X, img.Y, img.Z})
			q := near.(kdtree.Point)
			match := byCog[[3]float64{q[0], q[1], q[2]}]
			if tol := 1e-6 * math.Sqrt(bf.Area); math.Sqrt(d2) > tol {
				return nil, fmt.Errorf("periodicity %s/%s: face %d has no image (closest at %g)",
					p.Group1, p.Group2, f, math.Sqrt(d2))
			}
			if seen[match] || seen[f] {
				return nil, fmt.Errorf("periodicity %s/%s: face %d matched twice", p.Group1, p.Group2, match)
			}
			seen[f], seen[match] = true, true
			pairs = append(pairs, FacePair{First: f, Second: match, Transform: 2 * k})
		}
	}
	return pairs, nil
}
