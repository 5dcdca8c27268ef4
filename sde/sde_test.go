package sde

import (
	"math"
	"testing"

	"github.com/notargets/lagtrack/flow"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	diam = 1e-5
	rhop = 1000.0
	dt   = 1e-4
)

var air = flow.Cell{Density: 1.2, Viscosity: 1.8e-5, Temperature: 293}

type fixture struct {
	mesh  *mesh.Mesh
	it    *Integrator
	set   *particle.Set
	stats *zones.Stats
	cnt   *particle.Counters
}

func newFixture(t *testing.T, popts particle.Options, opts Options) *fixture {
	t.Helper()
	m, err := mesh.NewBox(1, 1, 1, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	fl, err := flow.NewUniform(air, 0.1)
	require.NoError(t, err)
	fx := &fixture{
		mesh:  m,
		set:   particle.NewSet(popts, 2),
		stats: zones.NewStats(len(m.BoundaryFaces), len(m.Groups), nil),
		cnt:   &particle.Counters{},
	}
	fx.it, err = New(m, fl, random.Constant(random.Fixed{}), fx.cnt, fx.stats, opts)
	require.NoError(t, err)
	return fx
}

func (fx *fixture) add(x, vp, vs r3.Vec) int {
	return fx.set.Append(particle.Record{
		ID:           uint64(fx.set.Len()),
		Coords:       x,
		Velocity:     vp,
		VelocitySeen: vs,
		Cell:         particle.InCell(0),
		Weight:       1,
		Mass:         rhop * math.Pi * diam * diam * diam / 6,
		Diameter:     diam,
	})
}

func (fx *fixture) xmin(t *testing.T) int {
	t.Helper()
	faces := fx.mesh.FacesInGroup(fx.mesh.GroupID(mesh.XMin))
	require.Len(t, faces, 1)
	return faces[0]
}

func center() r3.Vec { return r3.Vec{X: .5, Y: .5, Z: .5} }

func TestNew_Options(t *testing.T) {
	m, err := mesh.NewBox(1, 1, 1, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	fl, err := flow.NewUniform(air, 0.1)
	require.NoError(t, err)
	rnd := random.Constant(random.Fixed{})

	_, err = New(m, fl, rnd, nil, nil, Options{Order: 3})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = New(m, fl, rnd, nil, nil, Options{Order: 2, Deposition: true})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = New(m, fl, rnd, nil, nil, Options{Resuspension: true})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = New(m, nil, rnd, nil, nil, Options{})
	assert.Error(t, err)

	it, err := New(m, fl, rnd, nil, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, it.Opts.Order)
}

func TestCharacterize_StokesLimit(t *testing.T) {
	ch, err := Characterize(air, r3.Vec{}, r3.Vec{}, diam, rhop, r3.Vec{Z: -9.81})
	require.NoError(t, err)
	assert.InEpsilon(t, rhop*diam*diam/(18*air.Viscosity), ch.Taup, 1e-12)
	assert.Equal(t, r3.Vec{Z: -9.81}, ch.Piil)
	assert.Zero(t, ch.Bx.X, "laminar fluid")
	require.NoError(t, ch.Validate())

	_, err = Characterize(air, r3.Vec{}, r3.Vec{}, 0, rhop, r3.Vec{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	turb := air
	turb.TurbulentEnergy, turb.Dissipation = 1, 10
	ch, err = Characterize(turb, r3.Vec{}, r3.Vec{}, diam, rhop, r3.Vec{})
	require.NoError(t, err)
	assert.InDelta(t, 1/(0.5+0.75*C0)/10, ch.Tlag.Y, 1e-12)
	assert.InDelta(t, math.Sqrt(C0*10), ch.Bx.Z, 1e-12)
}

func TestPredict_FirstOrderRelaxation(t *testing.T) {
	fx := newFixture(t, particle.Options{}, Options{})
	vp0 := r3.Vec{X: 1e-3}
	i := fx.add(center(), vp0, r3.Vec{})
	ch, err := Characterize(air, vp0, r3.Vec{}, diam, rhop, r3.Vec{})
	require.NoError(t, err)

	require.NoError(t, fx.it.Predict(fx.set, dt))
	e := math.Exp(-dt / ch.Taup)
	assert.InDelta(t, vp0.X*e, fx.set.Velocity[i].X, 1e-12)
	assert.InDelta(t, .5+vp0.X*ch.Taup*(1-e), fx.set.Coords[i].X, 1e-12)
	assert.Equal(t, center(), fx.set.PrevCoords[i])
	assert.Equal(t, vp0, fx.set.PrevVelocity[i])
	assert.InDelta(t, ch.Taup, fx.set.Taup[i], 1e-15)
}

func TestPredict_InvalidParticle(t *testing.T) {
	fx := newFixture(t, particle.Options{}, Options{})
	i := fx.add(center(), r3.Vec{}, r3.Vec{})
	fx.set.Mass[i] = 0
	assert.ErrorIs(t, fx.it.Predict(fx.set, dt), ErrInvalidParameter)
	assert.ErrorIs(t, fx.it.Predict(fx.set, 0), ErrInvalidParameter)
}

func TestPredict_SkipsStuckParticles(t *testing.T) {
	fx := newFixture(t, particle.Options{}, Options{})
	i := fx.add(center(), r3.Vec{X: 1}, r3.Vec{})
	fx.set.Cell[i] = particle.StuckIn(0)
	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.Equal(t, center(), fx.set.Coords[i])
	assert.Equal(t, center(), fx.set.PrevCoords[i])
}

func TestSecondOrder_MatchesExactRelaxation(t *testing.T) {
	fx := newFixture(t, particle.Options{SecondOrder: true}, Options{Order: 2})
	vp0 := r3.Vec{Y: 1e-3}
	a := fx.add(center(), vp0, r3.Vec{})
	b := fx.add(center(), vp0, r3.Vec{})
	ch, err := Characterize(air, vp0, r3.Vec{}, diam, rhop, r3.Vec{})
	require.NoError(t, err)

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.InEpsilon(t, ch.Taup, fx.set.TaupAux[a], 1e-12)
	first := fx.set.Velocity[b]
	fx.set.SwitchOrder1[b] = true
	require.NoError(t, fx.it.Correct(fx.set, dt))

	e := math.Exp(-dt / ch.Taup)
	assert.InEpsilon(t, vp0.Y*e, fx.set.Velocity[a].Y, 1e-3)
	assert.Equal(t, first, fx.set.Velocity[b], "boundary interaction keeps the first order values")
}

func TestCorrect_FirstOrderIsNoop(t *testing.T) {
	fx := newFixture(t, particle.Options{}, Options{})
	i := fx.add(center(), r3.Vec{X: 1}, r3.Vec{})
	require.NoError(t, fx.it.Correct(fx.set, dt))
	assert.Equal(t, r3.Vec{X: 1}, fx.set.Velocity[i])
}

func TestBrownianMoments(t *testing.T) {
	sx, sv, cxv := brownianMoments(dt, 1e-4, 0, 1e-12)
	assert.Zero(t, sx+sv+cxv, "no motion at zero temperature")

	m, taup := 1e-18, 1e-6
	sx, sv, cxv = brownianMoments(1, taup, 300, m)
	// long times: equipartition and diffusive spreading
	kt := 1.38e-23 * 300
	assert.InEpsilon(t, kt/m, sv, 1e-9)
	assert.InEpsilon(t, 2*kt/m*taup*1, sx, 1e-5)
	assert.Greater(t, sx*sv, cxv*cxv)
}

func TestWallStep_DepositedWithoutResuspensionHolds(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true}, Options{Deposition: true})
	x := r3.Vec{X: 1e-6, Y: .5, Z: .5}
	i := fx.add(x, r3.Vec{Y: 1}, r3.Vec{Y: 1})
	fx.set.DepositionFlag[i] = particle.Deposited
	fx.set.NeighborFace[i] = fx.xmin(t)
	fx.set.Yplus[i] = 1

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.Equal(t, x, fx.set.Coords[i])
	assert.InDelta(t, 0, r3.Norm(fx.set.Velocity[i]), 1e-15)
	assert.InDelta(t, 0, r3.Norm(fx.set.VelocitySeen[i]), 1e-15)
	assert.Equal(t, particle.Deposited, fx.set.DepositionFlag[i])
}

func TestWallStep_LiftOff(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true, Resuspension: true},
		Options{Deposition: true, Resuspension: true})
	face := fx.xmin(t)
	x := r3.Vec{X: 1e-6, Y: .5, Z: .5}
	// seen fluid moving away from the xmin wall
	i := fx.add(x, r3.Vec{}, r3.Vec{X: .1})
	fx.set.DepositionFlag[i] = particle.Deposited
	fx.set.NeighborFace[i] = face
	fx.set.Yplus[i] = 1
	fx.set.AdhesionForce[i] = 1e-12
	fx.set.AdhesionTorque[i] = 1e-18

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.Equal(t, particle.InFlow, fx.set.DepositionFlag[i])
	assert.Zero(t, fx.set.AdhesionForce[i])
	assert.Equal(t, 1, fx.cnt.Resuspended.N)
	assert.Equal(t, 1.0, fx.stats.Faces.Resuspended[face])
	area := fx.mesh.BoundaryFaces[face].Area
	assert.InDelta(t, -fx.set.Mass[i]/area, fx.stats.Faces.MassFlux[face], 1e-18)

	drag := 3 * math.Pi * diam * .1 * air.Viscosity * wallDragNormal
	assert.InEpsilon(t, drag*dt/fx.set.Mass[i], fx.set.Velocity[i].X, 1e-9, "lifted off along the inward normal")
	assert.Zero(t, fx.set.Velocity[i].Y)
	assert.Equal(t, x, fx.set.Coords[i])
}

func TestWallStep_HeldByAdhesion(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true, Resuspension: true},
		Options{Deposition: true, Resuspension: true})
	x := r3.Vec{X: 1e-6, Y: .5, Z: .5}
	// seen fluid pushing toward the wall, tangential flow opposed by the torque
	i := fx.add(x, r3.Vec{}, r3.Vec{X: -.1})
	fx.set.DepositionFlag[i] = particle.Deposited
	fx.set.NeighborFace[i] = fx.xmin(t)
	fx.set.Yplus[i] = 1
	fx.set.AdhesionForce[i] = 1

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.Equal(t, particle.NoMotion, fx.set.DepositionFlag[i])
	assert.Equal(t, x, fx.set.Coords[i])
	assert.Equal(t, r3.Vec{}, fx.set.Velocity[i])
	assert.Zero(t, fx.cnt.Resuspended.N)
}

func TestWallStep_InFlowUsesLayerModel(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true}, Options{Deposition: true})
	x := r3.Vec{X: 5e-3, Y: .5, Z: .5}
	i := fx.add(x, r3.Vec{X: -1e-3}, r3.Vec{})
	fx.set.NeighborFace[i] = fx.xmin(t)
	fx.set.Yplus[i] = 50
	fx.set.Interf[i] = 20
	fx.set.Marko[i] = particle.PhaseOutside

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.GreaterOrEqual(t, fx.set.Marko[i], particle.PhaseInnerZone, "entered the layer")
	assert.NotEqual(t, particle.PhaseOuterEntry, fx.set.Marko[i])
	assert.Less(t, fx.set.Coords[i].X, x.X, "drifts toward the wall")
}

func TestPredict_OutsideLayerIsFirstOrder(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true}, Options{Deposition: true})
	i := fx.add(center(), r3.Vec{}, r3.Vec{})
	fx.set.NeighborFace[i] = -1
	fx.set.Yplus[i] = 1e4
	fx.set.Marko[i] = particle.PhaseSweep
	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.Equal(t, particle.PhaseOutside, fx.set.Marko[i])
}

func TestPredict_ImposedMotion(t *testing.T) {
	fx := newFixture(t, particle.Options{Deposition: true}, Options{Deposition: true})
	fx.it.Motion = func(x r3.Vec, dt float64) r3.Vec { return r3.Vec{Z: 2 * dt} }
	i := fx.add(center(), r3.Vec{X: 1}, r3.Vec{X: 1})
	fx.set.DepositionFlag[i] = particle.ImposedMotion

	require.NoError(t, fx.it.Predict(fx.set, dt))
	assert.InDelta(t, .5+2*dt, fx.set.Coords[i].Z, 1e-15)
	assert.InDelta(t, 2, fx.set.Velocity[i].Z, 1e-9)
	assert.Zero(t, fx.set.Velocity[i].X)
	assert.Equal(t, r3.Vec{}, fx.set.VelocitySeen[i])
}

func TestWallProfiles(t *testing.T) {
	k, eps := wallTurbulence(2, 1, 1)
	assert.InDelta(t, 0.4, k, 1e-12)
	assert.InDelta(t, 0.2, eps, 1e-12)
	k, eps = wallTurbulence(50, 1, 1)
	assert.InDelta(t, 1/0.3, k, 1e-12)
	assert.InDelta(t, 1/(0.41*50), eps, 1e-12)

	assert.Equal(t, 3.0, logLaw(3))
	assert.InDelta(t, -3.05+5*math.Log(10), logLaw(10), 1e-12)
	assert.InDelta(t, 2.5*math.Log(60)+5.5, logLaw(60), 1e-12)
}
