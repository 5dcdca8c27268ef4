package tracking

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/sirupsen/logrus"
)

var ErrSyncStalled = errors.New("particles still pending synchronization after the pass limit")

// Syncer hands the particles sitting in ghost cells to their owning rank,
// receives incoming ones, and reports whether any rank still has particles
// to move. It is a collective operation.
type Syncer interface {
	Sync(set *particle.Set) (pending bool, err error)
}

// LocalSync is the Syncer of a rank without neighbors.
type LocalSync struct {
	Prop *Propagator
}

func (s LocalSync) Sync(set *particle.Set) (bool, error) {
	s.Prop.Discard(set)
	return false, nil
}

// Begin prepares the displacement of every particle of set: the tracking
// state is derived from the cell variant and the segment starts at the
// previous position.
func (p *Propagator) Begin(set *particle.Set) {
	for i := 0; i < set.Len(); i++ {
		switch c := set.Cell[i]; {
		case c.IsStuck():
			set.State[i] = particle.Stuck
		case c.IsPendingDelete():
			set.State[i] = particle.ToDelete
		default:
			set.State[i] = particle.ToSync
			if set.DepositionFlag != nil && set.DepositionFlag[i] == particle.Deposited {
				set.State[i] = particle.Treated
			}
		}
		set.LastFace[i] = mesh.NoFace
		set.Passes[i] = 0
		set.StartCoords[i] = set.PrevCoords[i]

		if set.DepositionFlag == nil {
			continue
		}
		if !p.Opts.Deposition {
			set.DepositionFlag[i] = particle.InFlow
		} else {
			p.massContribution(set, i, -1)
		}
	}
}

// Propagate moves every particle waiting for synchronization once.
func (p *Propagator) Propagate(set *particle.Set) error {
	for i := 0; i < set.Len(); i++ {
		if set.State[i] != particle.ToSync {
			continue
		}
		st, err := p.Move(set, i)
		set.State[i] = st
		if err != nil {
			return err
		}
	}
	return nil
}

// Discard removes particles which left the domain, were lost, or sit in a
// ghost cell, and counts the lost ones. It returns the number removed.
func (p *Propagator) Discard(set *particle.Set) int {
	return set.Compact(func(i int) bool {
		switch st := set.State[i]; {
		case st == particle.Err:
			p.Counters.Failed.Add(set.Weight[i])
			return false
		case st == particle.ToSync:
			return set.Cell[i].HasCell() && !p.Mesh.IsGhost(set.Cell[i].ID)
		default:
			return st.Kept()
		}
	})
}

// Run performs the displacement of a whole step: propagation passes
// alternate with synchronization until no rank has particles left to move.
func (p *Propagator) Run(set *particle.Set, sync Syncer) error {
	p.Begin(set)
	for pass := 0; ; pass++ {
		if pass > p.Opts.MaxPasses {
			return fmt.Errorf("step %d: %w", p.Step, ErrSyncStalled)
		}
		if err := p.Propagate(set); err != nil {
			return fmt.Errorf("step %d: %w", p.Step, err)
		}
		pending, err := sync.Sync(set)
		if err != nil {
			return fmt.Errorf("step %d, pass %d: %w", p.Step, pass, err)
		}
		if !pending {
			break
		}
	}
	p.Finish(set)
	return nil
}

// Finish updates the near-wall state of the remaining particles, sorts
// them by cell and restores the mass flux of wall particles.
func (p *Propagator) Finish(set *particle.Set) {
	if p.Opts.Deposition {
		for i := 0; i < set.Len(); i++ {
			p.WallCell(set, i)
			p.UpdatePhase(set, i)
		}
		p.imposedMotion(set)
	}
	set.SortByCell()
	if set.DepositionFlag != nil && p.Opts.Deposition {
		for i := 0; i < set.Len(); i++ {
			p.massContribution(set, i, 1)
		}
	}
	p.Log.WithFields(logrus.Fields{
		"step":      p.Step,
		"particles": set.Len(),
	}).Debug("displacement done")
}

// UpdatePhase sets the deposition phase of particle i from its wall
// distance after the displacement.
func (p *Propagator) UpdatePhase(set *particle.Set, i int) {
	yplus, m := set.Yplus[i], set.Marko[i]
	switch {
	case yplus > BoundaryLayer:
		set.Marko[i] = particle.PhaseOutside
	case yplus < set.Interf[i]:
		if m < 0 {
			set.Marko[i] = particle.PhaseInnerEntry
		} else {
			set.Marko[i] = particle.PhaseInnerZone
		}
	case m < 0:
		set.Marko[i] = particle.PhaseOuterEntry
	case m == particle.PhaseInnerZone || m == particle.PhaseInnerEntry:
		set.Marko[i] = particle.PhaseCrossOut
	}
}

// massContribution adds sign times the mass per unit area of a particle
// resting on a wall to the mass flux of its face.
func (p *Propagator) massContribution(set *particle.Set, i int, sign float64) {
	if !set.DepositionFlag[i].OnWall() {
		return
	}
	face := set.NeighborFace[i]
	if face < 0 {
		return
	}
	area := p.Mesh.BoundaryFaces[face].Area
	p.Engine.Stats.Faces.MassFlux[face] += sign * set.Weight[i] * set.Mass[i] / area
}

// imposedMotion attaches particles held on internal deposition faces to
// their face and removes their cross-section from its open area.
func (p *Propagator) imposedMotion(set *particle.Set) {
	open := p.Engine.Stats.FluidArea
	if len(open) != len(p.Mesh.InteriorFaces) {
		open = nil
	}
	for f := range open {
		open[f] = p.Mesh.InteriorFaces[f].Area
	}
	for i := 0; i < set.Len(); i++ {
		if !set.Cell[i].IsActive() || set.DepositionFlag[i] != particle.ImposedMotion {
			continue
		}
		for _, ref := range p.Index.CellFaces(set.Cell[i].ID) {
			if !ref.IsInterior() {
				continue
			}
			face := ref.ID()
			if _, z := p.Zones.InternalZone(face); z == nil {
				continue
			}
			set.NeighborFace[i] = face
			if open != nil {
				d := set.Diameter[i]
				open[face] -= math.Pi / 4 * d * d * set.Weight[i]
			}
		}
	}
	for f := range open {
		open[f] = math.Max(open[f], 0)
	}
}
