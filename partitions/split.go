package partitions

import (
	"fmt"
	"sort"

	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// NoTransform marks a ghost reached without crossing a periodic face.
const NoTransform = -1

// Ghost is the local copy of a cell owned elsewhere. A particle entering it
// continues on Rank in local cell Cell, after applying Transform.
type Ghost struct {
	Rank      int
	Cell      int // Local id on Rank
	Global    int // Global cell id
	Transform int // Index into Local.Transforms, or NoTransform
}

// RemotePartition groups the ghosts of a rank that refer to one partition.
// Ghosts are sorted by rank so each group is contiguous.
type RemotePartition struct {
	Rank        int
	GhostOffset int
	GhostCount  int
}

// Local is the part of a decomposed mesh seen by one rank.
type Local struct {
	Rank int
	Mesh *mesh.Mesh

	CellGlobal     []int // Owned local cell -> global cell
	BoundaryGlobal []int // Local boundary face -> global boundary face
	InteriorGlobal []int // Local interior face -> global interior face, -1 on periodic faces

	Ghosts     []Ghost // Ghost g is local cell Mesh.NumCells+g
	Remote     []RemotePartition
	Transforms []geometry.Transform

	interiorLocal map[int]int
}

// LocalInterior returns the local id of a global interior face.
func (l *Local) LocalInterior(global int) (int, bool) {
	f, ok := l.interiorLocal[global]
	return f, ok
}

// Ghost returns the ghost record of local cell c, which must be a ghost.
func (l *Local) Ghost(c int) Ghost {
	return l.Ghosts[c-l.Mesh.NumCells]
}

type side struct {
	cell      int
	transform int
}

type localFace struct {
	verts  []int
	owner  int // Global, owned by the rank
	other  side
	global int
}

// Split builds the local mesh of every partition of layout. Faces of
// periodic groups become interior faces leading to transformed ghosts.
func Split(m *mesh.Mesh, layout *PartitionLayout, per []Periodicity) ([]*Local, error) {
	if m.NumGhosts != 0 {
		return nil, fmt.Errorf("cannot split a mesh which already has ghost cells")
	}
	if layout.TotalCells != m.NumCells {
		return nil, fmt.Errorf("layout covers %d cells, mesh has %d", layout.TotalCells, m.NumCells)
	}
	pairs, err := PairFaces(m, per)
	if err != nil {
		return nil, err
	}
	transforms, err := Transforms(per)
	if err != nil {
		return nil, err
	}
	periodic := make(map[int]bool, 2*len(pairs))
	for _, p := range pairs {
		periodic[p.First], periodic[p.Second] = true, true
	}
	localOf := layout.LocalIndex()

	locals := make([]*Local, layout.NumPartitions)
	for r := range locals {
		var faces []localFace
		for i := range m.InteriorFaces {
			f := &m.InteriorFaces[i]
			c0, c1 := f.Cells[0], f.Cells[1]
			switch {
			case layout.EToP[c0] == r:
			case layout.EToP[c1] == r:
				c0, c1 = c1, c0
			default:
				continue
			}
			faces = append(faces, localFace{verts: f.Vertices, owner: c0, other: side{c1, NoTransform}, global: i})
		}
		for _, p := range pairs {
			a, b := &m.BoundaryFaces[p.First], &m.BoundaryFaces[p.Second]
			if layout.EToP[a.Cells[0]] == r {
				faces = append(faces, localFace{verts: a.Vertices, owner: a.Cells[0],
					other: side{b.Cells[0], p.Transform}, global: -1})
			}
			if layout.EToP[b.Cells[0]] == r {
				faces = append(faces, localFace{verts: b.Vertices, owner: b.Cells[0],
					other: side{a.Cells[0], p.Transform + 1}, global: -1})
			}
		}

		l := &Local{
			Rank:          r,
			CellGlobal:    layout.Partitions[r].Cells,
			Transforms:    transforms,
			interiorLocal: make(map[int]int),
		}
		ghostOf := l.collectGhosts(faces, layout, localOf)

		nOwned := len(l.CellGlobal)
		vmap := make([]int, len(m.Vertices))
		for i := range vmap {
			vmap[i] = -1
		}
		var verts []r3.Vec
		remap := func(ids []int) []int {
			out := make([]int, len(ids))
			for i, v := range ids {
				if vmap[v] < 0 {
					vmap[v] = len(verts)
					verts = append(verts, m.Vertices[v])
				}
				out[i] = vmap[v]
			}
			return out
		}

		interior := make([]mesh.Face, 0, len(faces))
		for _, f := range faces {
			other := nOwned + ghostOf[f.other]
			if f.other.transform == NoTransform && layout.EToP[f.other.cell] == r {
				other = localOf[f.other.cell]
			}
			if f.global >= 0 {
				l.interiorLocal[f.global] = len(interior)
			}
			interior = append(interior, mesh.Face{
				Vertices: remap(f.verts),
				Cells:    [2]int{localOf[f.owner], other},
			})
			l.InteriorGlobal = append(l.InteriorGlobal, f.global)
		}
		var boundary []mesh.Face
		for i := range m.BoundaryFaces {
			f := &m.BoundaryFaces[i]
			if periodic[i] || layout.EToP[f.Cells[0]] != r {
				continue
			}
			boundary = append(boundary, mesh.Face{
				Vertices: remap(f.Vertices),
				Cells:    [2]int{localOf[f.Cells[0]], -1},
				Group:    f.Group,
			})
			l.BoundaryGlobal = append(l.BoundaryGlobal, i)
		}

		groups := append([]string(nil), m.Groups...)
		lm, err := mesh.New(verts, nOwned, len(l.Ghosts), interior, boundary, groups)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", r, err)
		}
		for g, gh := range l.Ghosts {
			cen := m.CellCenters[gh.Global]
			if gh.Transform != NoTransform {
				cen = transforms[gh.Transform^1].Apply(cen)
			}
			if err := lm.SetGhostGeometry(g, cen, m.CellVolumes[gh.Global]); err != nil {
				return nil, fmt.Errorf("partition %d: %w", r, err)
			}
		}
		l.Mesh = lm
		locals[r] = l
	}
	if err := ValidateHalo(locals); err != nil {
		return nil, fmt.Errorf("asymmetric halo: %w", err)
	}
	return locals, nil
}

// collectGhosts numbers the distinct ghost cells needed by faces, grouped
// by owning rank, and fills Ghosts and Remote.
func (l *Local) collectGhosts(faces []localFace, layout *PartitionLayout, localOf []int) map[side]int {
	ghostOf := make(map[side]int)
	var sides []side
	for _, f := range faces {
		s := f.other
		if s.transform == NoTransform && layout.EToP[s.cell] == l.Rank {
			continue
		}
		if _, ok := ghostOf[s]; !ok {
			ghostOf[s] = -1
			sides = append(sides, s)
		}
	}
	sort.Slice(sides, func(a, b int) bool {
		ra, rb := layout.EToP[sides[a].cell], layout.EToP[sides[b].cell]
		if ra != rb {
			return ra < rb
		}
		if sides[a].cell != sides[b].cell {
			return sides[a].cell < sides[b].cell
		}
		return sides[a].transform < sides[b].transform
	})
	l.Ghosts = make([]Ghost, len(sides))
	for g, s := range sides {
		ghostOf[s] = g
		rank := layout.EToP[s.cell]
		l.Ghosts[g] = Ghost{Rank: rank, Cell: localOf[s.cell], Global: s.cell, Transform: s.transform}
		if n := len(l.Remote); n == 0 || l.Remote[n-1].Rank != rank {
			l.Remote = append(l.Remote, RemotePartition{Rank: rank, GhostOffset: g})
		}
		l.Remote[len(l.Remote)-1].GhostCount++
	}
	return ghostOf
}

// ValidateHalo checks that every ghost designates the cell it copies and
// that communication between partitions is symmetric.
func ValidateHalo(locals []*Local) error {
	talks := make(map[[2]int]bool)
	for _, l := range locals {
		for g, gh := range l.Ghosts {
			if gh.Rank < 0 || gh.Rank >= len(locals) {
				return fmt.Errorf("partition %d ghost %d on unknown partition %d", l.Rank, g, gh.Rank)
			}
			dst := locals[gh.Rank]
			if gh.Cell < 0 || gh.Cell >= len(dst.CellGlobal) || dst.CellGlobal[gh.Cell] != gh.Global {
				return fmt.Errorf("partition %d ghost %d does not match cell %d of partition %d",
					l.Rank, g, gh.Cell, gh.Rank)
			}
		}
		for _, rp := range l.Remote {
			talks[[2]int{l.Rank, rp.Rank}] = true
		}
	}
	for k := range talks {
		if !talks[[2]int{k[1], k[0]}] {
			return fmt.Errorf("partition %d sends to %d, but %d never sends back", k[0], k[1], k[1])
		}
	}
	return nil
}
