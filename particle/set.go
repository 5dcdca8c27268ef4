package particle

import (
	"sort"

	"github.com/notargets/lagtrack/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options selects the optional attribute groups allocated for a run.
type Options struct {
	Deposition   bool // Near-wall deposition model attributes
	Resuspension bool // Adhesion force and torque
	Clogging     bool // Deposit height and cluster size
	SecondOrder  bool // Predicted values of the order 2 scheme
	Temperature  bool // Particle temperature, used by fouling
}

// Record is a complete copy of one particle, used for injection and
// transfer between ranks. Attributes of disabled groups are ignored.
type Record struct {
	ID               uint64
	Coords           r3.Vec
	PrevCoords       r3.Vec
	StartCoords      r3.Vec
	Velocity         r3.Vec
	PrevVelocity     r3.Vec
	VelocitySeen     r3.Vec
	PrevVelocitySeen r3.Vec
	Cell             Cell
	Weight           float64
	Mass             float64
	Diameter         float64
	Taup             float64
	Tlag             r3.Vec
	State            TrackingState
	LastFace         mesh.FaceRef
	SwitchOrder1     bool
	Passes           int

	DepositionFlag DepositionFlag
	NeighborFace   int
	Yplus          float64
	Interf         float64
	Marko          Phase

	AdhesionForce    float64
	AdhesionTorque   float64
	DisplacementNorm float64

	Height        float64
	ClusterNbPart int
	DepoTime      float64

	PredVelocity     r3.Vec
	PredVelocitySeen r3.Vec
	TaupAux          float64
	BxAux            r3.Vec

	Temperature float64
}

// Set is the rank-local particle container. Each attribute lives in its own
// slice; slices of disabled attribute groups stay nil.
type Set struct {
	Opts Options

	ID               []uint64
	Coords           []r3.Vec
	PrevCoords       []r3.Vec
	StartCoords      []r3.Vec // Origin of the remaining segment during tracking
	Velocity         []r3.Vec
	PrevVelocity     []r3.Vec
	VelocitySeen     []r3.Vec
	PrevVelocitySeen []r3.Vec
	Cell             []Cell
	Weight           []float64
	Mass             []float64
	Diameter         []float64
	Taup             []float64
	Tlag             []r3.Vec
	State            []TrackingState
	LastFace         []mesh.FaceRef
	SwitchOrder1     []bool
	Passes           []int // Propagation passes already spent this step

	DepositionFlag []DepositionFlag
	NeighborFace   []int
	Yplus          []float64
	Interf         []float64
	Marko          []Phase

	AdhesionForce    []float64
	AdhesionTorque   []float64
	DisplacementNorm []float64

	Height        []float64
	ClusterNbPart []int
	DepoTime      []float64

	PredVelocity     []r3.Vec
	PredVelocitySeen []r3.Vec
	TaupAux          []float64 // Relaxation time at the start of the step
	BxAux            []r3.Vec  // Turbulent diffusion at the start of the step

	Temperature []float64

	cols []column
}

// NewSet allocates an empty set with the attribute groups of opts.
func NewSet(opts Options, capacity int) *Set {
	s := &Set{Opts: opts}
	s.cols = []column{
		newCol(&s.ID, capacity),
		newCol(&s.Coords, capacity),
		newCol(&s.PrevCoords, capacity),
		newCol(&s.StartCoords, capacity),
		newCol(&s.Velocity, capacity),
		newCol(&s.PrevVelocity, capacity),
		newCol(&s.VelocitySeen, capacity),
		newCol(&s.PrevVelocitySeen, capacity),
		newCol(&s.Cell, capacity),
		newCol(&s.Weight, capacity),
		newCol(&s.Mass, capacity),
		newCol(&s.Diameter, capacity),
		newCol(&s.Taup, capacity),
		newCol(&s.Tlag, capacity),
		newCol(&s.State, capacity),
		newCol(&s.LastFace, capacity),
		newCol(&s.SwitchOrder1, capacity),
		newCol(&s.Passes, capacity),
	}
	if opts.Deposition {
		s.cols = append(s.cols,
			newCol(&s.DepositionFlag, capacity),
			newCol(&s.NeighborFace, capacity),
			newCol(&s.Yplus, capacity),
			newCol(&s.Interf, capacity),
			newCol(&s.Marko, capacity),
		)
	}
	if opts.Resuspension {
		s.cols = append(s.cols,
			newCol(&s.AdhesionForce, capacity),
			newCol(&s.AdhesionTorque, capacity),
			newCol(&s.DisplacementNorm, capacity),
		)
	}
	if opts.Clogging {
		s.cols = append(s.cols,
			newCol(&s.Height, capacity),
			newCol(&s.ClusterNbPart, capacity),
			newCol(&s.DepoTime, capacity),
		)
	}
	if opts.SecondOrder {
		s.cols = append(s.cols,
			newCol(&s.PredVelocity, capacity),
			newCol(&s.PredVelocitySeen, capacity),
			newCol(&s.TaupAux, capacity),
			newCol(&s.BxAux, capacity),
		)
	}
	if opts.Temperature {
		s.cols = append(s.cols, newCol(&s.Temperature, capacity))
	}
	return s
}

// Len returns the number of particles.
func (s *Set) Len() int {
	return len(s.ID)
}

// Append adds a particle and returns its index.
func (s *Set) Append(r Record) int {
	for _, c := range s.cols {
		c.appendZero()
	}
	i := s.Len() - 1
	s.Put(i, r)
	return i
}

// Get copies particle i out of the set.
func (s *Set) Get(i int) Record {
	r := Record{
		ID:               s.ID[i],
		Coords:           s.Coords[i],
		PrevCoords:       s.PrevCoords[i],
		StartCoords:      s.StartCoords[i],
		Velocity:         s.Velocity[i],
		PrevVelocity:     s.PrevVelocity[i],
		VelocitySeen:     s.VelocitySeen[i],
		PrevVelocitySeen: s.PrevVelocitySeen[i],
		Cell:             s.Cell[i],
		Weight:           s.Weight[i],
		Mass:             s.Mass[i],
		Diameter:         s.Diameter[i],
		Taup:             s.Taup[i],
		Tlag:             s.Tlag[i],
		State:            s.State[i],
		LastFace:         s.LastFace[i],
		SwitchOrder1:     s.SwitchOrder1[i],
		Passes:           s.Passes[i],
		NeighborFace:     -1,
	}
	if s.Opts.Deposition {
		r.DepositionFlag = s.DepositionFlag[i]
		r.NeighborFace = s.NeighborFace[i]
		r.Yplus = s.Yplus[i]
		r.Interf = s.Interf[i]
		r.Marko = s.Marko[i]
	}
	if s.Opts.Resuspension {
		r.AdhesionForce = s.AdhesionForce[i]
		r.AdhesionTorque = s.AdhesionTorque[i]
		r.DisplacementNorm = s.DisplacementNorm[i]
	}
	if s.Opts.Clogging {
		r.Height = s.Height[i]
		r.ClusterNbPart = s.ClusterNbPart[i]
		r.DepoTime = s.DepoTime[i]
	}
	if s.Opts.SecondOrder {
		r.PredVelocity = s.PredVelocity[i]
		r.PredVelocitySeen = s.PredVelocitySeen[i]
		r.TaupAux = s.TaupAux[i]
		r.BxAux = s.BxAux[i]
	}
	if s.Opts.Temperature {
		r.Temperature = s.Temperature[i]
	}
	return r
}

// Put overwrites particle i with r.
func (s *Set) Put(i int, r Record) {
	s.ID[i] = r.ID
	s.Coords[i] = r.Coords
	s.PrevCoords[i] = r.PrevCoords
	s.StartCoords[i] = r.StartCoords
	s.Velocity[i] = r.Velocity
	s.PrevVelocity[i] = r.PrevVelocity
	s.VelocitySeen[i] = r.VelocitySeen
	s.PrevVelocitySeen[i] = r.PrevVelocitySeen
	s.Cell[i] = r.Cell
	s.Weight[i] = r.Weight
	s.Mass[i] = r.Mass
	s.Diameter[i] = r.Diameter
	s.Taup[i] = r.Taup
	s.Tlag[i] = r.Tlag
	s.State[i] = r.State
	s.LastFace[i] = r.LastFace
	s.SwitchOrder1[i] = r.SwitchOrder1
	s.Passes[i] = r.Passes
	if s.Opts.Deposition {
		s.DepositionFlag[i] = r.DepositionFlag
		s.NeighborFace[i] = r.NeighborFace
		s.Yplus[i] = r.Yplus
		s.Interf[i] = r.Interf
		s.Marko[i] = r.Marko
	}
	if s.Opts.Resuspension {
		s.AdhesionForce[i] = r.AdhesionForce
		s.AdhesionTorque[i] = r.AdhesionTorque
		s.DisplacementNorm[i] = r.DisplacementNorm
	}
	if s.Opts.Clogging {
		s.Height[i] = r.Height
		s.ClusterNbPart[i] = r.ClusterNbPart
		s.DepoTime[i] = r.DepoTime
	}
	if s.Opts.SecondOrder {
		s.PredVelocity[i] = r.PredVelocity
		s.PredVelocitySeen[i] = r.PredVelocitySeen
		s.TaupAux[i] = r.TaupAux
		s.BxAux[i] = r.BxAux
	}
	if s.Opts.Temperature {
		s.Temperature[i] = r.Temperature
	}
}

// Compact keeps the particles for which keep returns true, preserving their
// relative order, and returns the number removed.
func (s *Set) Compact(keep func(i int) bool) int {
	n := s.Len()
	mask := make([]bool, n)
	kept := 0
	for i := 0; i < n; i++ {
		mask[i] = keep(i)
		if mask[i] {
			kept++
		}
	}
	if kept == n {
		return 0
	}
	for _, c := range s.cols {
		c.compact(mask)
	}
	return n - kept
}

// SortByCell orders particles by owning cell, stuck and deleted particles
// sorted with their cell id. The sort is stable.
func (s *Set) SortByCell() {
	n := s.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return s.Cell[perm[a]].ID < s.Cell[perm[b]].ID
	})
	for _, c := range s.cols {
		c.permute(perm)
	}
}

// TotalWeight sums the statistical weights of particles selected by sel, or
// of all particles when sel is nil.
func (s *Set) TotalWeight(sel func(i int) bool) float64 {
	var w float64
	for i := 0; i < s.Len(); i++ {
		if sel == nil || sel(i) {
			w += s.Weight[i]
		}
	}
	return w
}

// column abstracts one attribute slice for structural operations.
type column interface {
	appendZero()
	compact(mask []bool)
	permute(perm []int)
}

type col[T any] struct {
	p *[]T
}

func newCol[T any](p *[]T, capacity int) column {
	*p = make([]T, 0, capacity)
	return col[T]{p: p}
}

func (c col[T]) appendZero() {
	var zero T
	*c.p = append(*c.p, zero)
}

func (c col[T]) compact(mask []bool) {
	s := *c.p
	j := 0
	for i := range s {
		if mask[i] {
			s[j] = s[i]
			j++
		}
	}
	*c.p = s[:j]
}

func (c col[T]) permute(perm []int) {
	s := *c.p
	out := make([]T, len(s), cap(s))
	for i, p := range perm {
		out[i] = s[p]
	}
	*c.p = out
}
