// Package connectivity derives the cell to face adjacency used by the
// particle propagator.
package connectivity

import (
	"fmt"

	"github.com/notargets/lagtrack/mesh"
)

// Index is a compressed cell to face map. Faces of cell c are
// Faces[Offset[c]:Offset[c+1]]. Interior faces come first for each cell,
// in face order, followed by boundary faces.
type Index struct {
	Offset []int
	Faces  []mesh.FaceRef
}

// Build derives the index for the owned cells of m. Faces shared with ghost
// cells are listed only for their owned side.
func Build(m *mesh.Mesh) (*Index, error) {
	n := m.NumCells
	count := make([]int, n+1)
	for i := range m.InteriorFaces {
		f := &m.InteriorFaces[i]
		for _, c := range f.Cells {
			if c >= 0 && c < n {
				count[c+1]++
			}
		}
	}
	for i := range m.BoundaryFaces {
		c := m.BoundaryFaces[i].Cells[0]
		if c < 0 || c >= n {
			return nil, fmt.Errorf("boundary face %d references cell %d outside [0,%d)", i, c, n)
		}
		count[c+1]++
	}
	for c := 0; c < n; c++ {
		count[c+1] += count[c]
	}
	ix := &Index{
		Offset: count,
		Faces:  make([]mesh.FaceRef, count[n]),
	}
	fill := make([]int, n)
	copy(fill, count[:n])
	for i := range m.InteriorFaces {
		for _, c := range m.InteriorFaces[i].Cells {
			if c >= 0 && c < n {
				ix.Faces[fill[c]] = mesh.InteriorRef(i)
				fill[c]++
			}
		}
	}
	for i := range m.BoundaryFaces {
		c := m.BoundaryFaces[i].Cells[0]
		ix.Faces[fill[c]] = mesh.BoundaryRef(i)
		fill[c]++
	}
	return ix, nil
}

// NumCells returns the number of indexed cells.
func (ix *Index) NumCells() int {
	return len(ix.Offset) - 1
}

// CellFaces returns the faces bounding cell c. The slice must not be
// modified.
func (ix *Index) CellFaces(c int) []mesh.FaceRef {
	return ix.Faces[ix.Offset[c]:ix.Offset[c+1]]
}

// Verify checks that every interior face appears twice when both sides are
// owned, once otherwise, and every boundary face exactly once.
func (ix *Index) Verify(m *mesh.Mesh) error {
	if ix.NumCells() != m.NumCells {
		return fmt.Errorf("index has %d cells, mesh has %d", ix.NumCells(), m.NumCells)
	}
	seenI := make([]int, len(m.InteriorFaces))
	seenB := make([]int, len(m.BoundaryFaces))
	for c := 0; c < ix.NumCells(); c++ {
		for _, r := range ix.CellFaces(c) {
			f := m.Face(r)
			if f == nil {
				return fmt.Errorf("cell %d lists an empty face reference", c)
			}
			if f.Cells[0] != c && f.Cells[1] != c {
				return fmt.Errorf("cell %d lists face %v which does not touch it", c, r)
			}
			if r.IsInterior() {
				seenI[r.ID()]++
			} else {
				seenB[r.ID()]++
			}
		}
	}
	for i, s := range seenI {
		want := 2
		if m.IsGhost(m.InteriorFaces[i].Cells[1]) {
			want = 1
		}
		if s != want {
			return fmt.Errorf("interior face %d listed %d times, want %d", i, s, want)
		}
	}
	for i, s := range seenB {
		if s != 1 {
			return fmt.Errorf("boundary face %d listed %d times", i, s)
		}
	}
	return nil
}
