// Package deposition integrates the wall-normal motion of a particle in the
// turbulent boundary layer. The layer alternates between coherent sweeps
// toward the wall, ejections away from it and diffusion phases; below the
// interface y+ the particle diffuses in the inner zone.
package deposition

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
)

const (
	// Boltzmann constant, J/K.
	Boltzmann = 1.38e-23
	// LayerEdge is the y+ of the outer edge of the boundary layer.
	LayerEdge = 100.0
	// DefaultMaxTransitions bounds the phase changes of a particle within
	// one step. A particle reaching it is placed on the inner zone
	// interface.
	DefaultMaxTransitions = 16

	rapkvp = 0.39 // v'^2 / k in the log layer
	epzero = 1e-12
)

var ErrInvalidParameter = errors.New("invalid deposition model parameter")

// Wall is the boundary layer seen by a particle.
type Wall struct {
	ViscousLength   float64 // nu/u*
	ViscousTime     float64 // nu/u*^2
	TurbulentEnergy float64
	Temperature     float64 // Fluid temperature in K, zero disables Brownian motion
}

// Model holds the time and velocity scales of the coherent structures of
// one boundary layer.
type Model struct {
	Wall           Wall
	MaxTransitions int

	tlag2  float64 // Relaxation time of the seen velocity in diffusion phases
	tstruc float64 // Mean duration of a coherent structure
	tdiffu float64 // Mean duration of a diffusion phase
	ttotal float64
	vstruc float64 // Wall-normal velocity of the structures
	kdif   float64 // Diffusion coefficient of the diffusion phases
	kdifcl float64 // Diffusion coefficient of the inner zone
	paux   float64 // Probability of entering the layer in a sweep
}

// New derives the phase scales from the wall units and the turbulent
// energy.
func New(w Wall) (*Model, error) {
	if !(w.ViscousLength > 0) || !(w.ViscousTime > 0) {
		return nil, fmt.Errorf("%w: wall units %g m, %g s", ErrInvalidParameter, w.ViscousLength, w.ViscousTime)
	}
	if w.TurbulentEnergy < 0 || w.Temperature < 0 {
		return nil, fmt.Errorf("%w: turbulent energy %g, temperature %g", ErrInvalidParameter, w.TurbulentEnergy, w.Temperature)
	}
	m := &Model{
		Wall:           w,
		MaxTransitions: DefaultMaxTransitions,
		tlag2:          3 * w.ViscousTime,
		tstruc:         30 * w.ViscousTime,
		tdiffu:         10 * w.ViscousTime,
	}
	m.ttotal = m.tstruc + m.tdiffu
	m.vstruc = math.Sqrt(w.TurbulentEnergy * rapkvp)

	// kdif balances the wall-normal fluxes of the diffusion phases and of
	// the structures.
	balance := m.ttotal - math.Sqrt(math.Pi*rapkvp)*m.tstruc
	if balance <= 0 {
		return nil, fmt.Errorf("%w: structure duration %g exceeds the flux balance", ErrInvalidParameter, m.tstruc)
	}
	m.kdif = math.Sqrt(w.TurbulentEnergy/m.tlag2) * balance / m.tdiffu

	// vstruc/ectype does not depend on k, so the ratio is taken with unit
	// energy to stay defined in a laminar layer.
	ectype := math.Sqrt(m.tlag2/2) * balance / (math.Sqrt(m.tlag2) * m.tdiffu)
	paux := math.Sqrt(math.Pi/2) * m.tstruc * math.Sqrt(rapkvp) / (ectype * m.tdiffu)
	m.paux = paux / (1 + paux)
	m.kdifcl = m.kdif * m.tdiffu / m.ttotal
	return m, nil
}

// State is the wall-normal state of a particle. Velocities are taken along
// the outward normal of the deposition face, so they are positive toward
// the wall.
type State struct {
	Phase     particle.Phase
	Yplus     float64 // Distance to the wall in wall units
	Interface float64 // y+ of the inner zone edge
	Velocity  float64
	Seen      float64 // Seen fluid velocity
}

// Forcing is the wall-normal forcing and the particle properties.
type Forcing struct {
	Gravity          float64
	FluidVelocity    float64
	PressureGradient float64
	Piil             float64
	Diameter         float64
	Density          float64
	Taup             float64
}

// Result reports a step of the jump process.
type Result struct {
	Displacement float64 // Toward the wall
	Transitions  int     // Phase changes within the step
	Capped       bool    // Transition bound reached, particle left on the interface
}

// Enter sets the phase of a particle about to be integrated from its
// position relative to the interface. Particles coming from outside the
// layer take the entry phases.
func Enter(s *State) {
	if s.Yplus < s.Interface {
		if s.Phase < 0 {
			s.Phase = particle.PhaseInnerEntry
		} else {
			s.Phase = particle.PhaseInnerZone
		}
		return
	}
	switch {
	case s.Phase < 0:
		s.Phase = particle.PhaseOuterEntry
	case s.Phase == particle.PhaseInnerZone:
		s.Phase = particle.PhaseCrossOut
	}
}

// Step advances s over dt. A phase ending on the interface hands the rest
// of the time to the phase on the other side.
func (m *Model) Step(dt float64, s *State, f Forcing, d random.Drawer) (Result, error) {
	var res Result
	if !(dt > 0) || !(f.Taup > 0) || !(f.Density > 0) || f.Diameter < 0 {
		return res, fmt.Errorf("%w: dt %g, taup %g, density %g, diameter %g", ErrInvalidParameter, dt, f.Taup, f.Density, f.Diameter)
	}
	if math.Abs(m.tlag2-f.Taup) < epzero*m.tlag2 {
		f.Taup = m.tlag2 * (1 + 1e3*epzero)
	}
	unif := [2]float64{d.Uniform(), d.Uniform()}

	switch s.Phase {
	case particle.PhaseInnerEntry:
		s.Phase, s.Seen = particle.PhaseInnerZone, 0
	case particle.PhaseOuterEntry:
		if d.Uniform() < m.paux {
			s.Phase = particle.PhaseSweep
		} else {
			s.Phase = particle.PhaseAfterSweep
		}
	case particle.PhaseCrossOut:
		if d.Uniform() < 0.5 {
			s.Phase = particle.PhaseSweep
		} else {
			s.Phase = particle.PhaseEjection
		}
	}

	y0 := s.Yplus
	budget := dt
	afterSweep := false
	for {
		var seg segment
		switch s.Phase {
		case particle.PhaseSweep:
			seg = m.sweep(budget, s, f, unif)
		case particle.PhaseDiffusion, particle.PhaseAfterSweep:
			seg = m.diffusion(budget, s, f, unif, d)
		case particle.PhaseEjection:
			seg = m.ejection(budget, s, f, unif)
		case particle.PhaseInnerZone:
			seg = m.innerZone(budget, s, f, afterSweep, d)
		default:
			return res, fmt.Errorf("%w: phase %d cannot be integrated", ErrInvalidParameter, s.Phase)
		}
		res.Displacement += seg.dx
		if seg.rest <= 0 {
			break
		}
		res.Transitions++
		if res.Transitions >= m.MaxTransitions {
			res.Displacement = (y0 - s.Interface) * m.Wall.ViscousLength
			res.Capped = true
			s.Phase = particle.PhaseInnerZone
			s.Yplus = s.Interface
			return res, nil
		}
		budget = seg.rest
		afterSweep = seg.fromSweep
	}
	s.Yplus = y0 - res.Displacement/m.Wall.ViscousLength
	return res, nil
}

// segment is the part of a step spent in one phase. A positive rest is the
// time left to the next phase, which starts from the interface.
type segment struct {
	dx        float64
	rest      float64
	fromSweep bool
}
