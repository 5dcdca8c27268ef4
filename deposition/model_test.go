package deposition

import (
	"math"
	"testing"

	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// air at 1 m/s friction velocity
func layer(t *testing.T) *Model {
	t.Helper()
	m, err := New(Wall{ViscousLength: 1.5e-5, ViscousTime: 1.5e-5, TurbulentEnergy: 3.3})
	require.NoError(t, err)
	return m
}

func forcing() Forcing {
	return Forcing{Diameter: 1e-5, Density: 1000, Taup: 3e-4}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Wall{ViscousTime: 1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = New(Wall{ViscousLength: 1, ViscousTime: 1, TurbulentEnergy: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	m, err := New(Wall{ViscousLength: 1, ViscousTime: 1})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(m.paux), "laminar layer keeps a defined sweep probability")
	assert.Greater(t, m.paux, 0.0)
	assert.Less(t, m.paux, 1.0)
}

func TestStep_InvalidForcing(t *testing.T) {
	m := layer(t)
	s := State{Phase: particle.PhaseEjection, Yplus: 50, Interface: 20}
	f := forcing()
	f.Taup = 0
	_, err := m.Step(1e-4, &s, f, random.Fixed{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	s.Phase = particle.PhaseOutside
	_, err = m.Step(1e-4, &s, forcing(), random.Fixed{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestStep_EjectionRelaxesVelocity(t *testing.T) {
	m := layer(t)
	f := forcing()
	dt := 1e-5
	s := State{Phase: particle.PhaseEjection, Yplus: 50, Interface: 20, Velocity: -0.2}
	res, err := m.Step(dt, &s, f, random.Fixed{U: 0.99})
	require.NoError(t, err)

	e := math.Exp(-dt / f.Taup)
	assert.InDelta(t, -0.2*e, s.Velocity, 1e-12)
	assert.InDelta(t, -0.2*f.Taup*(1-e), res.Displacement, 1e-15)
	assert.InDelta(t, -m.vstruc, s.Seen, 1e-12)
	assert.Equal(t, particle.PhaseEjection, s.Phase)
	assert.Zero(t, res.Transitions)
	assert.InDelta(t, 50-res.Displacement/m.Wall.ViscousLength, s.Yplus, 1e-9)
}

func TestStep_EntryPhases(t *testing.T) {
	m := layer(t)
	f := forcing()

	s := State{Phase: particle.PhaseOuterEntry, Yplus: 50, Interface: 20}
	_, err := m.Step(1e-5, &s, f, random.Fixed{U: 0})
	require.NoError(t, err)
	assert.Equal(t, particle.PhaseAfterSweep, s.Phase, "sweep then structure end")
	assert.InDelta(t, m.vstruc, s.Seen, 1e-12)

	s = State{Phase: particle.PhaseOuterEntry, Yplus: 50, Interface: 20}
	_, err = m.Step(1e-5, &s, f, random.Fixed{U: 0.99})
	require.NoError(t, err)
	assert.Equal(t, particle.PhaseDiffusion, s.Phase)

	s = State{Phase: particle.PhaseInnerEntry, Yplus: 10, Interface: 20, Seen: 3}
	res, err := m.Step(1e-5, &s, f, random.Fixed{})
	require.NoError(t, err)
	assert.Equal(t, particle.PhaseInnerZone, s.Phase)
	assert.Zero(t, s.Seen)
	assert.Zero(t, res.Displacement)
}

func TestEnter(t *testing.T) {
	cases := []struct {
		from, want particle.Phase
		yplus      float64
	}{
		{particle.PhaseOutside, particle.PhaseInnerEntry, 5},
		{particle.PhaseSweep, particle.PhaseInnerZone, 5},
		{particle.PhaseLeftLayer, particle.PhaseOuterEntry, 50},
		{particle.PhaseInnerZone, particle.PhaseCrossOut, 50},
		{particle.PhaseDiffusion, particle.PhaseDiffusion, 50},
	}
	for _, c := range cases {
		s := State{Phase: c.from, Yplus: c.yplus, Interface: 20}
		Enter(&s)
		assert.Equal(t, c.want, s.Phase, "from %d at y+ %g", c.from, c.yplus)
	}
}

func TestStep_DiffusionCrossesInterface(t *testing.T) {
	m := layer(t)
	f := forcing()
	s := State{Phase: particle.PhaseDiffusion, Yplus: 21, Interface: 20, Velocity: 1, Seen: 1}
	res, err := m.Step(1e-3, &s, f, random.Fixed{U: 0.99})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Transitions, 1)
	assert.False(t, res.Capped)
	// at least the way down to the interface
	assert.Greater(t, res.Displacement, 0.999*m.Wall.ViscousLength)
}

func TestStep_TransitionBoundSnapsToInterface(t *testing.T) {
	m := layer(t)
	m.MaxTransitions = 1
	s := State{Phase: particle.PhaseDiffusion, Yplus: 21, Interface: 20, Velocity: 1, Seen: 1}
	res, err := m.Step(1e-3, &s, forcing(), random.Fixed{U: 0.99})
	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.InDelta(t, m.Wall.ViscousLength, res.Displacement, 1e-15)
	assert.Equal(t, 20.0, s.Yplus)
	assert.Equal(t, particle.PhaseInnerZone, s.Phase)
}

func TestAdvance_NoTurbulenceRelaxes(t *testing.T) {
	dt, taup := 1e-3, 2e-3
	dx, vp, vs := Advance(dt, taup, 1e12, 0, 2, 0, 0, 0, [3]float64{1, 1, 1})
	e := math.Exp(-dt / taup)
	assert.InDelta(t, 2*e, vp, 1e-9)
	assert.InDelta(t, 2*taup*(1-e), dx, 1e-9)
	assert.InDelta(t, 0, vs, 1e-12)
}
