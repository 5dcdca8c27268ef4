package mesh

import (
	"fmt"
	"math"

	"github.com/notargets/lagtrack/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Face is a planar or mildly warped polygon shared by two cells, or owned by
// a single cell on the domain boundary.
type Face struct {
	Vertices []int   // Vertex ids ordered so Normal points from Cells[0] to Cells[1]
	Cells    [2]int  // Adjacent cells, Cells[1] = -1 on boundary faces
	Group    int     // Boundary group index, -1 for interior faces
	Cog      r3.Vec  // Center of gravity
	Normal   r3.Vec  // Unit normal
	Area     float64 // Surface
}

// IsBoundary reports whether the face has a single adjacent cell.
func (f *Face) IsBoundary() bool {
	return f.Cells[1] < 0
}

// Mesh is an unstructured polyhedral mesh. Cells numbered NumCells and
// above are ghost copies of cells owned elsewhere.
type Mesh struct {
	Vertices      []r3.Vec
	NumCells      int       // Owned cells
	NumGhosts     int       // Ghost cells, numbered after owned cells
	CellCenters   []r3.Vec  // Length NumCells+NumGhosts
	CellVolumes   []float64 // Length NumCells+NumGhosts
	InteriorFaces []Face
	BoundaryFaces []Face
	Groups        []string // Boundary group names, indexed by Face.Group
}

// New assembles a mesh from its faces, computing face and cell geometry
// and orienting every face away from its first cell. Ghost cells carry no
// faces of their own and their centers must be supplied by the caller
// through SetGhostGeometry.
func New(vertices []r3.Vec, numCells, numGhosts int, interior, boundary []Face, groups []string) (*Mesh, error) {
	if numCells <= 0 {
		return nil, fmt.Errorf("mesh needs at least one cell, got %d", numCells)
	}
	m := &Mesh{
		Vertices:      vertices,
		NumCells:      numCells,
		NumGhosts:     numGhosts,
		CellCenters:   make([]r3.Vec, numCells+numGhosts),
		CellVolumes:   make([]float64, numCells+numGhosts),
		InteriorFaces: interior,
		BoundaryFaces: boundary,
		Groups:        groups,
	}
	nTot := numCells + numGhosts
	for i := range m.InteriorFaces {
		f := &m.InteriorFaces[i]
		if f.Cells[0] < 0 || f.Cells[0] >= numCells || f.Cells[1] < 0 || f.Cells[1] >= nTot {
			return nil, fmt.Errorf("interior face %d has invalid cells %v", i, f.Cells)
		}
		f.Group = -1
		if err := m.faceGeometry(f); err != nil {
			return nil, fmt.Errorf("interior face %d: %w", i, err)
		}
	}
	for i := range m.BoundaryFaces {
		f := &m.BoundaryFaces[i]
		if f.Cells[0] < 0 || f.Cells[0] >= numCells {
			return nil, fmt.Errorf("boundary face %d has invalid cell %d", i, f.Cells[0])
		}
		f.Cells[1] = -1
		if f.Group < 0 || f.Group >= len(groups) {
			return nil, fmt.Errorf("boundary face %d has invalid group %d", i, f.Group)
		}
		if err := m.faceGeometry(f); err != nil {
			return nil, fmt.Errorf("boundary face %d: %w", i, err)
		}
	}
	m.orientFaces()
	m.cellGeometry()
	for c := 0; c < numCells; c++ {
		if m.CellVolumes[c] <= 0 {
			return nil, fmt.Errorf("cell %d has non-positive volume %g", c, m.CellVolumes[c])
		}
	}
	return m, nil
}

// faceGeometry fills Cog, Normal and Area from the vertex polygon using a
// fan about the vertex mean.
func (m *Mesh) faceGeometry(f *Face) error {
	n := len(f.Vertices)
	if n < 3 {
		return fmt.Errorf("face has %d vertices", n)
	}
	var mean r3.Vec
	for _, v := range f.Vertices {
		if v < 0 || v >= len(m.Vertices) {
			return fmt.Errorf("vertex id %d out of range", v)
		}
		mean = r3.Add(mean, m.Vertices[v])
	}
	mean = r3.Scale(1/float64(n), mean)

	var normal, cog r3.Vec
	var area float64
	for i := 0; i < n; i++ {
		a := m.Vertices[f.Vertices[i]]
		b := m.Vertices[f.Vertices[(i+1)%n]]
		tn := r3.Scale(0.5, r3.Cross(r3.Sub(a, mean), r3.Sub(b, mean)))
		normal = r3.Add(normal, tn)
		ta := r3.Norm(tn)
		area += ta
		cog = r3.Add(cog, r3.Scale(ta/3, r3.Add(r3.Add(a, b), mean)))
	}
	if area == 0 {
		return fmt.Errorf("degenerate face with zero area")
	}
	f.Cog = r3.Scale(1/area, cog)
	f.Area = r3.Norm(normal)
	f.Normal = r3.Unit(normal)
	return nil
}

// orientFaces flips faces whose normal points into their first cell.
func (m *Mesh) orientFaces() {
	ref := make([]r3.Vec, m.NumCells)
	cnt := make([]int, m.NumCells)
	add := func(f *Face) {
		c := f.Cells[0]
		ref[c] = r3.Add(ref[c], f.Cog)
		cnt[c]++
		if c1 := f.Cells[1]; c1 >= 0 && c1 < m.NumCells {
			ref[c1] = r3.Add(ref[c1], f.Cog)
			cnt[c1]++
		}
	}
	for i := range m.InteriorFaces {
		add(&m.InteriorFaces[i])
	}
	for i := range m.BoundaryFaces {
		add(&m.BoundaryFaces[i])
	}
	for c := range ref {
		if cnt[c] > 0 {
			ref[c] = r3.Scale(1/float64(cnt[c]), ref[c])
		}
	}
	orient := func(f *Face) {
		if r3.Dot(f.Normal, r3.Sub(f.Cog, ref[f.Cells[0]])) < 0 {
			reverse(f.Vertices)
			f.Normal = r3.Scale(-1, f.Normal)
		}
	}
	for i := range m.InteriorFaces {
		orient(&m.InteriorFaces[i])
	}
	for i := range m.BoundaryFaces {
		orient(&m.BoundaryFaces[i])
	}
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// cellGeometry computes owned cell volumes and centroids from pyramids
// built on each face.
func (m *Mesh) cellGeometry() {
	ref := make([]r3.Vec, m.NumCells)
	cnt := make([]float64, m.NumCells)
	m.eachOwnedSide(func(c int, f *Face, _ float64) {
		ref[c] = r3.Add(ref[c], f.Cog)
		cnt[c]++
	})
	for c := range ref {
		if cnt[c] > 0 {
			ref[c] = r3.Scale(1/cnt[c], ref[c])
		}
	}
	moment := make([]r3.Vec, m.NumCells)
	m.eachOwnedSide(func(c int, f *Face, sgn float64) {
		d := r3.Sub(f.Cog, ref[c])
		vol := sgn * f.Area * r3.Dot(f.Normal, d) / 3
		m.CellVolumes[c] += vol
		moment[c] = r3.Add(moment[c], r3.Scale(vol, r3.Add(ref[c], r3.Scale(0.75, d))))
	})
	for c := 0; c < m.NumCells; c++ {
		if m.CellVolumes[c] > 0 {
			m.CellCenters[c] = r3.Scale(1/m.CellVolumes[c], moment[c])
		}
	}
}

// eachOwnedSide visits every (owned cell, face) pair with the sign that
// turns the face normal outward for that cell.
func (m *Mesh) eachOwnedSide(fn func(c int, f *Face, sgn float64)) {
	for i := range m.InteriorFaces {
		f := &m.InteriorFaces[i]
		fn(f.Cells[0], f, 1)
		if f.Cells[1] < m.NumCells {
			fn(f.Cells[1], f, -1)
		}
	}
	for i := range m.BoundaryFaces {
		fn(m.BoundaryFaces[i].Cells[0], &m.BoundaryFaces[i], 1)
	}
}

// SetGhostGeometry stores the center and volume of a ghost cell.
func (m *Mesh) SetGhostGeometry(ghost int, center r3.Vec, volume float64) error {
	c := m.NumCells + ghost
	if ghost < 0 || c >= len(m.CellCenters) {
		return fmt.Errorf("ghost %d out of range (%d ghosts)", ghost, m.NumGhosts)
	}
	m.CellCenters[c] = center
	m.CellVolumes[c] = volume
	return nil
}

// IsGhost reports whether cell c is a ghost copy.
func (m *Mesh) IsGhost(c int) bool {
	return c >= m.NumCells
}

// Face returns the face designated by ref.
func (m *Mesh) Face(ref FaceRef) *Face {
	switch {
	case ref.IsInterior():
		return &m.InteriorFaces[ref.ID()]
	case ref.IsBoundary():
		return &m.BoundaryFaces[ref.ID()]
	}
	return nil
}

// Polygon returns the face in the form used by the intersection test.
func (m *Mesh) Polygon(f *Face) geometry.FacePolygon {
	p := geometry.FacePolygon{
		IDs:      f.Vertices,
		Vertices: make([]r3.Vec, len(f.Vertices)),
		Cog:      f.Cog,
	}
	for i, v := range f.Vertices {
		p.Vertices[i] = m.Vertices[v]
	}
	return p
}

// GroupID returns the index of a named boundary group, or -1.
func (m *Mesh) GroupID(name string) int {
	for i, g := range m.Groups {
		if g == name {
			return i
		}
	}
	return -1
}

// FacesInGroup lists the boundary faces of a group.
func (m *Mesh) FacesInGroup(group int) []int {
	var out []int
	for i := range m.BoundaryFaces {
		if m.BoundaryFaces[i].Group == group {
			out = append(out, i)
		}
	}
	return out
}

// AssignGroup moves every boundary face accepted by sel into the named
// group, creating it if needed. It returns the number of faces moved.
func (m *Mesh) AssignGroup(name string, sel func(f *Face) bool) int {
	g := m.GroupID(name)
	if g < 0 {
		m.Groups = append(m.Groups, name)
		g = len(m.Groups) - 1
	}
	n := 0
	for i := range m.BoundaryFaces {
		if sel(&m.BoundaryFaces[i]) {
			m.BoundaryFaces[i].Group = g
			n++
		}
	}
	return n
}

// OnPlane selects faces whose centroid lies on the plane through origin
// with the given normal, within tol, and whose normal is aligned with it.
func OnPlane(origin, normal r3.Vec, tol float64) func(f *Face) bool {
	n := r3.Unit(normal)
	return func(f *Face) bool {
		return math.Abs(r3.Dot(r3.Sub(f.Cog, origin), n)) <= tol &&
			r3.Dot(f.Normal, n) > 1-1e-6
	}
}

// Validate checks that every owned cell is closed, i.e. its outward area
// vectors sum to zero relative to the cell size.
func (m *Mesh) Validate() error {
	sum := make([]r3.Vec, m.NumCells)
	area := make([]float64, m.NumCells)
	m.eachOwnedSide(func(c int, f *Face, sgn float64) {
		sum[c] = r3.Add(sum[c], r3.Scale(sgn*f.Area, f.Normal))
		area[c] += f.Area
	})
	for c := range sum {
		if r3.Norm(sum[c]) > 1e-9*area[c] {
			return fmt.Errorf("cell %d is not closed: |sum(n dA)| = %g", c, r3.Norm(sum[c]))
		}
	}
	for i := range m.InteriorFaces {
		f := &m.InteriorFaces[i]
		if f.Cells[1] >= m.NumCells {
			continue
		}
		d := r3.Sub(m.CellCenters[f.Cells[1]], m.CellCenters[f.Cells[0]])
		if r3.Dot(d, f.Normal) <= 0 {
			return fmt.Errorf("interior face %d normal does not point from cell %d to %d",
				i, f.Cells[0], f.Cells[1])
		}
	}
	return nil
}
