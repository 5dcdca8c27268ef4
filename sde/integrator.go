package sde

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/deposition"
	"github.com/notargets/lagtrack/flow"
	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options select the terms of the equations.
type Options struct {
	Order          int // 1 or 2
	Brownian       bool
	Deposition     bool
	Resuspension   bool
	AddedMass      bool
	AddedMassConst float64
	Gravity        r3.Vec
}

// Integrator advances the particles of one rank over a time step. The
// predictor runs before the tracking and the corrector after it.
type Integrator struct {
	Mesh     *mesh.Mesh
	Flow     flow.Field
	Random   random.Factory
	Opts     Options
	Counters *particle.Counters
	Stats    *zones.Stats
	// Motion returns the displacement over dt of a particle held at x by an
	// internal deposition face. Nil holds those particles in place.
	Motion func(x r3.Vec, dt float64) r3.Vec
	Step   int
	Log    logrus.FieldLogger
}

// New returns an integrator for mesh m in the flow fl.
func New(m *mesh.Mesh, fl flow.Field, rnd random.Factory, counters *particle.Counters, stats *zones.Stats, opts Options) (*Integrator, error) {
	if fl == nil {
		return nil, errors.New("SDE integration needs a flow field")
	}
	switch opts.Order {
	case 0:
		opts.Order = 1
	case 1, 2:
	default:
		return nil, fmt.Errorf("%w: scheme order %d", ErrInvalidParameter, opts.Order)
	}
	if opts.Order == 2 && opts.Deposition {
		return nil, fmt.Errorf("%w: the deposition model needs the first order scheme", ErrInvalidParameter)
	}
	if opts.Resuspension && !opts.Deposition {
		return nil, fmt.Errorf("%w: resuspension needs the deposition model", ErrInvalidParameter)
	}
	return &Integrator{
		Mesh:     m,
		Flow:     fl,
		Random:   rnd,
		Opts:     opts,
		Counters: counters,
		Stats:    stats,
		Log:      logrus.StandardLogger(),
	}, nil
}

// frozen is the state a particle starts a step with, and its forcing.
type frozen struct {
	cell  flow.Cell
	ch    Characteristics
	rho   float64 // Particle density
	force r3.Vec  // Taup times the external acceleration
}

func (it *Integrator) freeze(set *particle.Set, i int) (frozen, error) {
	var fz frozen
	fz.cell = it.Flow.Cell(set.Cell[i].ID)
	d := set.Diameter[i]
	if !(d > 0) || !(set.Mass[i] > 0) {
		return fz, fmt.Errorf("%w: particle %d has diameter %g and mass %g", ErrInvalidParameter, set.ID[i], d, set.Mass[i])
	}
	fz.rho = Density(set.Mass[i], d)
	ch, err := Characterize(fz.cell, set.Velocity[i], set.VelocitySeen[i], d, fz.rho, it.Opts.Gravity)
	if err != nil {
		return fz, fmt.Errorf("particle %d: %w", set.ID[i], err)
	}
	fz.ch = ch
	fz.force = r3.Scale(ch.Taup, it.acceleration(fz.cell, fz.rho))
	return fz, nil
}

// acceleration is the pressure gradient and gravity acceleration of a
// particle of density rho.
func (it *Integrator) acceleration(c flow.Cell, rho float64) r3.Vec {
	gp := r3.Scale(-1/rho, c.PressureGradient)
	if it.Opts.AddedMass {
		cm := 0.5 * it.Opts.AddedMassConst
		gp = r3.Scale((1+cm)/(1+cm*c.Density/rho), gp)
	}
	return r3.Add(gp, it.Opts.Gravity)
}

// Predict starts the step: the previous values are saved and every active
// particle gets its new position and velocities. Particles near a
// deposition wall go through the boundary layer model.
func (it *Integrator) Predict(set *particle.Set, dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: time step %g", ErrInvalidParameter, dt)
	}
	for i := 0; i < set.Len(); i++ {
		set.PrevCoords[i] = set.Coords[i]
		set.PrevVelocity[i] = set.Velocity[i]
		set.PrevVelocitySeen[i] = set.VelocitySeen[i]
		if set.SwitchOrder1 != nil {
			set.SwitchOrder1[i] = false
		}
		if !set.Cell[i].IsActive() {
			continue
		}
		if err := it.predict(set, i, dt); err != nil {
			return fmt.Errorf("step %d: %w", it.Step, err)
		}
	}
	return nil
}

func (it *Integrator) predict(set *particle.Set, i int, dt float64) error {
	if it.Opts.Deposition && set.DepositionFlag[i] == particle.ImposedMotion {
		it.imposed(set, i, dt)
		return nil
	}
	fz, err := it.freeze(set, i)
	if err != nil {
		return err
	}
	set.Taup[i] = fz.ch.Taup
	set.Tlag[i] = fz.ch.Tlag

	if it.Opts.Deposition {
		if set.DepositionFlag[i] != particle.InFlow ||
			(set.Yplus[i] <= deposition.LayerEdge && set.NeighborFace[i] >= 0) {
			return it.wallStep(set, i, dt, fz)
		}
		set.Marko[i] = particle.PhaseOutside
	}

	if it.Opts.Order == 2 {
		it.savePrediction(set, i, dt, fz)
	}
	it.order1(set, i, dt, fz)
	return nil
}

func (it *Integrator) imposed(set *particle.Set, i int, dt float64) {
	var disp r3.Vec
	if it.Motion != nil {
		disp = it.Motion(set.PrevCoords[i], dt)
	}
	set.Coords[i] = r3.Add(set.PrevCoords[i], disp)
	set.VelocitySeen[i] = r3.Vec{}
	set.Velocity[i] = r3.Scale(1/dt, disp)
}

// order1 integrates the equations exactly with the characteristics frozen
// at the start of the step.
func (it *Integrator) order1(set *particle.Set, i int, dt float64, fz frozen) {
	turb := it.Random(set.ID[i], it.Step, random.StageTurbulence)
	x := geometry.ToArray(set.Coords[i])
	vp := geometry.ToArray(set.Velocity[i])
	vs := geometry.ToArray(set.VelocitySeen[i])
	tl := geometry.ToArray(fz.ch.Tlag)
	bx := geometry.ToArray(fz.ch.Bx)
	piil := geometry.ToArray(fz.ch.Piil)
	u := geometry.ToArray(fz.cell.Velocity)
	force := geometry.ToArray(fz.force)
	for k := 0; k < 3; k++ {
		g := [3]float64{turb.Normal(), turb.Normal(), turb.Normal()}
		tci := piil[k]*tl[k] + u[k]
		var dx float64
		dx, vp[k], vs[k] = deposition.Advance(dt, fz.ch.Taup, tl[k], bx[k], vp[k], vs[k], tci, force[k], g)
		x[k] += dx
	}
	if it.Opts.Brownian {
		bdx, bdv := it.brownian(set, i, dt, fz.ch.Taup, fz.cell.Temperature)
		for k := 0; k < 3; k++ {
			x[k] += bdx[k]
			vp[k] += bdv[k]
		}
	}
	set.Coords[i] = geometry.FromArray(x)
	set.Velocity[i] = geometry.FromArray(vp)
	set.VelocitySeen[i] = geometry.FromArray(vs)
}

// brownian returns the position and velocity increments of the Brownian
// motion of particle i in a fluid at temperature temp.
func (it *Integrator) brownian(set *particle.Set, i int, dt, taup, temp float64) (dx, dv [3]float64) {
	sx, sv, cxv := brownianMoments(dt, taup, temp, set.Mass[i])
	if sv <= 0 {
		return dx, dv
	}
	d := it.Random(set.ID[i], it.Step, random.StageBrownian)
	var gb [6]float64
	for k := range gb {
		gb[k] = d.Normal()
	}
	for k := 0; k < 3; k++ {
		dx[k] = math.Sqrt(math.Max(0, sx-cxv*cxv/sv))*gb[k] + cxv/math.Sqrt(sv)*gb[k+3]
		dv[k] = math.Sqrt(sv) * gb[k+3]
	}
	return dx, dv
}

// brownianMoments returns the position and velocity variances of the
// Brownian motion over dt and their covariance.
func brownianMoments(dt, taup, temp, mass float64) (sx, sv, cxv float64) {
	if temp <= 0 {
		return 0, 0, 0
	}
	ddbr := math.Sqrt(2 * deposition.Boltzmann * temp / (mass * taup))
	e := math.Exp(-dt / taup)
	sx = (taup * ddbr) * (taup * ddbr) * (dt - taup*(1-e)*(3-e)/2)
	sv = ddbr * ddbr * taup * (1 - e*e) / 2
	cxv = (ddbr * taup * (1 - e)) * (ddbr * taup * (1 - e)) / 2
	return sx, sv, cxv
}

// savePrediction stores the deterministic half of the second order
// velocities, which the corrector completes.
func (it *Integrator) savePrediction(set *particle.Set, i int, dt float64, fz frozen) {
	vp0 := geometry.ToArray(set.Velocity[i])
	vs0 := geometry.ToArray(set.VelocitySeen[i])
	tl := geometry.ToArray(fz.ch.Tlag)
	piil := geometry.ToArray(fz.ch.Piil)
	u := geometry.ToArray(fz.cell.Velocity)
	force := geometry.ToArray(fz.force)
	taup := fz.ch.Taup
	var pvp, pvs [3]float64
	for k := 0; k < 3; k++ {
		aux0 := -dt / taup
		aux1 := -dt / tl[k]
		aux2 := math.Exp(aux0)
		aux3 := math.Exp(aux1)
		aux4 := tl[k] / (tl[k] - taup)
		aux5 := aux3 - aux2
		tci := piil[k]*tl[k] + u[k]

		pvs[k] = 0.5*vs0[k]*aux3 + tci*(-aux3+(aux3-1)/aux1)
		pvp[k] = 0.5*vp0[k]*aux2 + 0.5*vs0[k]*aux4*aux5 +
			tci*(-aux2+((tl[k]+taup)/dt)*(1-aux2)-(1+tl[k]/dt)*aux4*aux5) +
			force[k]*(-aux2+(aux2-1)/aux0)
	}
	set.PredVelocity[i] = geometry.FromArray(pvp)
	set.PredVelocitySeen[i] = geometry.FromArray(pvs)
	set.TaupAux[i] = taup
	set.BxAux[i] = fz.ch.Bx
}

// Correct completes the second order velocities of the particles which
// stayed clear of boundary interactions, with the characteristics of the
// cell they ended in. It does nothing for the first order scheme.
func (it *Integrator) Correct(set *particle.Set, dt float64) error {
	if it.Opts.Order != 2 {
		return nil
	}
	for i := 0; i < set.Len(); i++ {
		if !set.Cell[i].IsActive() || set.SwitchOrder1[i] {
			continue
		}
		fz, err := it.freeze(set, i)
		if err != nil {
			return fmt.Errorf("step %d: %w", it.Step, err)
		}
		it.correct(set, i, dt, fz)
		set.Taup[i] = fz.ch.Taup
		set.Tlag[i] = fz.ch.Tlag
	}
	return nil
}

func (it *Integrator) correct(set *particle.Set, i int, dt float64, fz frozen) {
	d := it.Random(set.ID[i], it.Step, random.StageCorrector)
	vp0 := geometry.ToArray(set.PrevVelocity[i])
	vs0 := geometry.ToArray(set.PrevVelocitySeen[i])
	pvp := geometry.ToArray(set.PredVelocity[i])
	pvs := geometry.ToArray(set.PredVelocitySeen[i])
	bxn := geometry.ToArray(set.BxAux[i])
	bxn1 := geometry.ToArray(fz.ch.Bx)
	tl := geometry.ToArray(fz.ch.Tlag)
	piil := geometry.ToArray(fz.ch.Piil)
	u := geometry.ToArray(fz.cell.Velocity)
	force := geometry.ToArray(fz.force)
	taup := fz.ch.Taup
	tapn := set.TaupAux[i]

	var brv [3]float64
	if it.Opts.Brownian {
		_, sv, _ := brownianMoments(dt, tapn, fz.cell.Temperature, set.Mass[i])
		if sv > 0 {
			b := it.Random(set.ID[i], it.Step, random.StageBrownian)
			for k := range brv {
				brv[k] = math.Sqrt(sv) * b.Normal()
			}
		}
	}

	var vp, vs [3]float64
	for k := 0; k < 3; k++ {
		g := [3]float64{d.Normal(), d.Normal(), d.Normal()}
		t := tl[k]
		aux0 := -dt / taup
		aux1 := -dt / t
		aux2 := math.Exp(aux0)
		aux3 := math.Exp(aux1)
		aux4 := t / (t - taup)
		aux5 := aux3 - aux2
		aux6 := aux3 * aux3
		tci := piil[k]*t + u[k]

		var sige float64
		if 1-aux6 > epzero {
			sige = ((-aux6+(aux6-1)/(2*aux1))*bxn[k] + (1-(aux6-1)/(2*aux1))*bxn1[k]) / (1 - aux6)
		}
		vs[k] = pvs[k] + 0.5*vs0[k]*aux3 + tci*(1-(aux3-1)/aux1) +
			sige*math.Sqrt(0.5*t*(1-aux6))*g[0]

		det := 0.5*vp0[k]*aux2 + 0.5*vs0[k]*aux4*aux5 +
			tci*(1-((t+taup)/dt)*(1-aux2)+(t/dt)*aux4*aux5) +
			force[k]*(1-(aux2-1)/aux0)
		vp[k] = pvp[k] + det + correctorNoise(dt, t, separate(tapn, t), sige, aux3, g) + brv[k]
	}
	set.Velocity[i] = geometry.FromArray(vp)
	set.VelocitySeen[i] = geometry.FromArray(vs)
}

// correctorNoise is the stochastic integral of the particle velocity over
// dt, correlated with the seen velocity through g[0]. e is exp(-dt/tl).
func correctorNoise(dt, tl, tapn, sige, e float64, g [3]float64) float64 {
	e2 := e * e
	aux7 := math.Exp(-dt / tapn)
	aux8 := 1 - e*aux7
	aux9 := 1 - e2
	aux10 := 1 - aux7*aux7
	aux11 := tapn / (tl + tapn)
	aux12 := tl / (tl - tapn)
	aux14 := tl - tapn
	aux15 := tl * (1 - e)
	aux16 := tapn * (1 - aux7)
	aux17 := sige * sige * aux12 * aux12
	aux18 := 0.5 * tl * aux9
	aux19 := 0.5 * tapn * aux10
	aux20 := tl * aux11 * aux8

	gamma2 := sige * sige * aux18
	grgam2 := aux17 * (aux18 - 2*aux20 + aux19)
	gagam := sige * sige * aux12 * (aux18 - aux20)
	omega2 := aux17 * (aux14*(aux14*dt-2*tl*aux15+2*tapn*aux16) +
		tl*tl*aux18 + tapn*tapn*aux19 - 2*tl*tapn*aux20)
	omegam := (aux14*(1-e) - aux18 + tapn*aux11*aux8) * sige * sige * aux12 * tl
	gaome := aux17 * (aux14*(aux15-aux16) - tl*aux18 - tapn*aux19 + tapn*tl*aux8)

	var p21, p22, p31, p32 float64
	p11 := math.Sqrt(math.Max(0, gamma2))
	if p11 > epzero {
		p21 = omegam / p11
		p22 = math.Sqrt(math.Max(0, omega2-p21*p21))
		p31 = gagam / p11
	}
	if p22 > epzero {
		p32 = (gaome - p31*p21) / p22
	}
	p33 := math.Sqrt(math.Max(0, grgam2-p31*p31-p32*p32))
	return p31*g[0] + p32*g[1] + p33*g[2]
}
