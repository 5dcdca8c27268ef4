package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box group names, in the order they are created by NewBox.
const (
	XMin = "xmin"
	XMax = "xmax"
	YMin = "ymin"
	YMax = "ymax"
	ZMin = "zmin"
	ZMax = "zmax"
)

// NewBox builds a structured nx*ny*nz hexahedral mesh of the box [lo,hi].
// Cell (i,j,k) has id i + nx*(j + ny*k). Boundary faces are grouped by the
// side of the box they lie on.
func NewBox(nx, ny, nz int, lo, hi r3.Vec) (*Mesh, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("invalid box dimensions %dx%dx%d", nx, ny, nz)
	}
	if hi.X <= lo.X || hi.Y <= lo.Y || hi.Z <= lo.Z {
		return nil, fmt.Errorf("invalid box extents %v..%v", lo, hi)
	}
	vid := func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	cid := func(i, j, k int) int { return i + nx*(j+ny*k) }

	verts := make([]r3.Vec, (nx+1)*(ny+1)*(nz+1))
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				verts[vid(i, j, k)] = r3.Vec{
					X: lo.X + (hi.X-lo.X)*float64(i)/float64(nx),
					Y: lo.Y + (hi.Y-lo.Y)*float64(j)/float64(ny),
					Z: lo.Z + (hi.Z-lo.Z)*float64(k)/float64(nz),
				}
			}
		}
	}

	groups := []string{XMin, XMax, YMin, YMax, ZMin, ZMax}
	var interior, boundary []Face
	addFace := func(quad []int, c0, c1, group int) {
		switch {
		case c0 >= 0 && c1 >= 0:
			interior = append(interior, Face{Vertices: quad, Cells: [2]int{c0, c1}})
		case c0 >= 0:
			boundary = append(boundary, Face{Vertices: quad, Cells: [2]int{c0, -1}, Group: group})
		default:
			boundary = append(boundary, Face{Vertices: quad, Cells: [2]int{c1, -1}, Group: group})
		}
	}
	cellOr := func(ok bool, c int) int {
		if ok {
			return c
		}
		return -1
	}

	// faces normal to x
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i <= nx; i++ {
				quad := []int{vid(i, j, k), vid(i, j+1, k), vid(i, j+1, k+1), vid(i, j, k+1)}
				group := 0
				if i == nx {
					group = 1
				}
				addFace(quad, cellOr(i > 0, cid(i-1, j, k)), cellOr(i < nx, cid(i, j, k)), group)
			}
		}
	}
	// faces normal to y
	for k := 0; k < nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i < nx; i++ {
				quad := []int{vid(i, j, k), vid(i, j, k+1), vid(i+1, j, k+1), vid(i+1, j, k)}
				group := 2
				if j == ny {
					group = 3
				}
				addFace(quad, cellOr(j > 0, cid(i, j-1, k)), cellOr(j < ny, cid(i, j, k)), group)
			}
		}
	}
	// faces normal to z
	for k := 0; k <= nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				quad := []int{vid(i, j, k), vid(i+1, j, k), vid(i+1, j+1, k), vid(i, j+1, k)}
				group := 4
				if k == nz {
					group = 5
				}
				addFace(quad, cellOr(k > 0, cid(i, j, k-1)), cellOr(k < nz, cid(i, j, k)), group)
			}
		}
	}
	return New(verts, nx*ny*nz, 0, interior, boundary, groups)
}
