package mesh

import (
	"fmt"
	"slices"
	"sort"

	"github.com/facette/natsort"
	gocfd "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultGroup receives the boundary faces of tetrahedral meshes that no
// boundary condition set names.
const DefaultGroup = "wall"

// tetFaces lists the local vertices of each tetrahedron face.
var tetFaces = [4][3]int{
	{0, 1, 2},
	{0, 1, 3},
	{1, 2, 3},
	{0, 2, 3},
}

type faceKey [3]int

func sortedKey(v [3]int) faceKey {
	s := v
	sort.Ints(s[:])
	return faceKey(s)
}

// NewTetMesh builds a mesh from tetrahedra given as element to vertex
// connectivity. Faces seen once become boundary faces of DefaultGroup.
func NewTetMesh(vertices []r3.Vec, etov [][]int) (*Mesh, error) {
	return buildTets(vertices, etov, nil)
}

// buildTets is NewTetMesh with boundary faces named by tags. Untagged
// boundary faces go to DefaultGroup.
func buildTets(vertices []r3.Vec, etov [][]int, tags map[faceKey]string) (*Mesh, error) {
	if len(etov) == 0 {
		return nil, fmt.Errorf("no elements")
	}
	type seen struct {
		verts []int
		cells [2]int
	}
	faces := make(map[faceKey]*seen)
	var order []faceKey
	for k, ev := range etov {
		if len(ev) != 4 {
			return nil, fmt.Errorf("element %d has %d vertices, only tetrahedra are supported", k, len(ev))
		}
		for _, lf := range tetFaces {
			tri := [3]int{ev[lf[0]], ev[lf[1]], ev[lf[2]]}
			key := sortedKey(tri)
			if s, ok := faces[key]; ok {
				if s.cells[1] >= 0 {
					return nil, fmt.Errorf("face %v shared by more than two elements", key)
				}
				s.cells[1] = k
				continue
			}
			faces[key] = &seen{verts: tri[:], cells: [2]int{k, -1}}
			order = append(order, key)
		}
	}

	var names []string
	for key, name := range tags {
		if s, ok := faces[key]; ok && s.cells[1] < 0 && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return natsort.Compare(names[i], names[j]) })
	groupOf := func(key faceKey) int {
		name, ok := tags[key]
		if !ok {
			name = DefaultGroup
		}
		g := slices.Index(names, name)
		if g < 0 {
			names = append(names, name)
			g = len(names) - 1
		}
		return g
	}

	var interior, boundary []Face
	for _, key := range order {
		s := faces[key]
		verts := append([]int(nil), s.verts...)
		if s.cells[1] >= 0 {
			interior = append(interior, Face{Vertices: verts, Cells: s.cells})
		} else {
			boundary = append(boundary, Face{Vertices: verts, Cells: s.cells, Group: groupOf(key)})
		}
	}
	if len(names) == 0 {
		names = []string{DefaultGroup}
	}
	return New(vertices, len(etov), 0, interior, boundary, names)
}

// ReadFile loads a tetrahedral mesh through the gocfd readers (Gambit
// neutral, Gmsh and SU2 formats). Boundary condition sets of the file name
// the boundary groups. The returned partition map is the one stored in the
// file, or nil.
func ReadFile(path string) (*Mesh, []int, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}
	verts := make([]r3.Vec, len(msh.Vertices))
	for i, v := range msh.Vertices {
		if len(v) < 3 {
			return nil, nil, fmt.Errorf("vertex %d has %d coordinates", i, len(v))
		}
		verts[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	tags, err := boundaryTags(msh.EtoV, msh.BoundaryElements)
	if err != nil {
		return nil, nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	m, err := buildTets(verts, msh.EtoV, tags)
	if err != nil {
		return nil, nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	var etop []int
	if len(msh.EToP) == msh.NumElements {
		etop = msh.EToP
	}
	return m, etop, nil
}

// boundaryTags maps the faces of the boundary elements to their condition
// name. A boundary element is located by its triangle nodes, or by its
// parent element and local face when the format only records those.
func boundaryTags(etov [][]int, bcs map[string][]gocfd.BoundaryElement) (map[faceKey]string, error) {
	tags := make(map[faceKey]string)
	for name, elems := range bcs {
		for k, be := range elems {
			var tri [3]int
			switch {
			case len(be.Nodes) == 3:
				copy(tri[:], be.Nodes)
			case be.ParentElement >= 0 && be.ParentElement < len(etov) &&
				be.ParentFace >= 0 && be.ParentFace < len(tetFaces) && len(etov[be.ParentElement]) == 4:
				ev, lf := etov[be.ParentElement], tetFaces[be.ParentFace]
				tri = [3]int{ev[lf[0]], ev[lf[1]], ev[lf[2]]}
			default:
				return nil, fmt.Errorf("boundary %q element %d: no triangle face (nodes %v, parent %d face %d)",
					name, k, be.Nodes, be.ParentElement, be.ParentFace)
			}
			key := sortedKey(tri)
			if prev, ok := tags[key]; ok && prev != name {
				return nil, fmt.Errorf("face %v is in boundaries %q and %q", key, prev, name)
			}
			tags[key] = name
		}
	}
	return tags, nil
}
