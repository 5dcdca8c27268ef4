// Package zones classifies boundary and internal faces by the physical
// nature of their interaction with particles and holds the per-face
// statistics those interactions accumulate.
package zones

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notargets/lagtrack/mesh"
)

// Nature is the interaction type of a zone.
type Nature int

const (
	None Nature = iota // Plain interior face, no interaction
	Inlet
	Outlet
	Rebound
	Symmetry
	Depo1    // Permanent deposition, particle removed
	Depo2    // Deposition, particle kept on the wall
	DepoDLVO // Deposition gated by an energy barrier
	Fouling
	UserDefined
)

var natureNames = map[Nature]string{
	None:        "none",
	Inlet:       "inlet",
	Outlet:      "outlet",
	Rebound:     "rebound",
	Symmetry:    "symmetry",
	Depo1:       "deposition1",
	Depo2:       "deposition2",
	DepoDLVO:    "dlvo",
	Fouling:     "fouling",
	UserDefined: "user",
}

func (n Nature) String() string {
	if s, ok := natureNames[n]; ok {
		return s
	}
	return fmt.Sprintf("Nature(%d)", int(n))
}

// IsDeposition reports whether the nature deposits particles on the wall
// and therefore takes part in the wall distance search.
func (n Nature) IsDeposition() bool {
	return n == Depo1 || n == Depo2 || n == DepoDLVO
}

// IsWall reports whether interactions with the nature are recorded in the
// boundary statistics.
func (n Nature) IsWall() bool {
	return n.IsDeposition() || n == Rebound || n == Fouling
}

var ErrUnknownNature = errors.New("unknown zone nature")

// ParseNature converts a configuration keyword to a Nature.
func ParseNature(s string) (Nature, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for n, name := range natureNames {
		if name == key {
			return n, nil
		}
	}
	switch key {
	case "depo1":
		return Depo1, nil
	case "depo2":
		return Depo2, nil
	case "sym":
		return Symmetry, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownNature, s)
}

// FoulingParams describe the temperature dependent capture of a fouling
// zone. The particle viscosity at temperature T is
// 0.1 * 10^(1e7*Enc1/(T-150-273.15)^2 + Enc2).
type FoulingParams struct {
	TPrenc  float64 // Capture threshold temperature, Celsius
	ViscRef float64 // Critical viscosity
	Enc1    float64
	Enc2    float64
}

// Zone is a set of faces sharing a nature and its parameters.
type Zone struct {
	Name    string // Mesh group name for boundary zones
	Nature  Nature
	Barrier float64 // Energy barrier per unit length, DLVO zones
	Fouling FoulingParams
}

// Table maps faces to zones. It is read-only once built.
type Table struct {
	Zones    []Zone
	Boundary []int // Boundary face -> zone index
	Internal []int // Interior face -> zone index, -1 for plain faces
}

// NewTable assigns every boundary face of m to the zone named after its
// group. Every group must have a zone.
func NewTable(m *mesh.Mesh, zones []Zone) (*Table, error) {
	t := &Table{
		Zones:    zones,
		Boundary: make([]int, len(m.BoundaryFaces)),
		Internal: make([]int, len(m.InteriorFaces)),
	}
	byGroup := make([]int, len(m.Groups))
	for g, name := range m.Groups {
		byGroup[g] = -1
		for z := range zones {
			if zones[z].Name == name {
				byGroup[g] = z
				break
			}
		}
	}
	for i := range m.BoundaryFaces {
		z := byGroup[m.BoundaryFaces[i].Group]
		if z < 0 {
			return nil, fmt.Errorf("boundary group %q has no zone", m.Groups[m.BoundaryFaces[i].Group])
		}
		t.Boundary[i] = z
	}
	for i := range t.Internal {
		t.Internal[i] = -1
	}
	return t, nil
}

// AddInternal declares a zone on the interior faces accepted by sel and
// returns the number of faces assigned.
func (t *Table) AddInternal(m *mesh.Mesh, z Zone, sel func(f *mesh.Face) bool) int {
	t.Zones = append(t.Zones, z)
	id := len(t.Zones) - 1
	n := 0
	for i := range m.InteriorFaces {
		if sel(&m.InteriorFaces[i]) {
			t.Internal[i] = id
			n++
		}
	}
	return n
}

// BoundaryZone returns the zone of a boundary face.
func (t *Table) BoundaryZone(face int) (int, *Zone) {
	z := t.Boundary[face]
	return z, &t.Zones[z]
}

// InternalZone returns the zone of an interior face, or nil.
func (t *Table) InternalZone(face int) (int, *Zone) {
	if t.Internal == nil {
		return -1, nil
	}
	z := t.Internal[face]
	if z < 0 {
		return -1, nil
	}
	return z, &t.Zones[z]
}

// HasDeposition reports whether any zone deposits particles.
func (t *Table) HasDeposition() bool {
	for _, z := range t.Zones {
		if z.Nature.IsDeposition() {
			return true
		}
	}
	return false
}

// Localize returns the table of a partition whose local faces map to the
// faces of t through the given global id lists.
func (t *Table) Localize(boundaryGlobal, interiorGlobal []int) *Table {
	l := &Table{
		Zones:    t.Zones,
		Boundary: make([]int, len(boundaryGlobal)),
		Internal: make([]int, len(interiorGlobal)),
	}
	for i, g := range boundaryGlobal {
		l.Boundary[i] = t.Boundary[g]
	}
	for i, g := range interiorGlobal {
		if g < 0 {
			l.Internal[i] = -1
			continue
		}
		l.Internal[i] = t.Internal[g]
	}
	return l
}

// Validate checks the table is consistent with m.
func (t *Table) Validate(m *mesh.Mesh) error {
	if len(t.Boundary) != len(m.BoundaryFaces) {
		return fmt.Errorf("zone table has %d boundary faces, mesh has %d", len(t.Boundary), len(m.BoundaryFaces))
	}
	if len(t.Internal) != len(m.InteriorFaces) {
		return fmt.Errorf("zone table has %d interior faces, mesh has %d", len(t.Internal), len(m.InteriorFaces))
	}
	for i, z := range t.Boundary {
		if z < 0 || z >= len(t.Zones) {
			return fmt.Errorf("boundary face %d has zone %d out of range", i, z)
		}
	}
	return nil
}
