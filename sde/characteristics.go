// Package sde integrates the stochastic differential equations of particle
// position, velocity and seen fluid velocity over one time step.
package sde

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/flow"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// C0 is the Kolmogorov constant of the Langevin model.
	C0 = 2.1
	// reynoldsDrag is the particle Reynolds number above which the drag
	// coefficient is constant.
	reynoldsDrag = 1000.0

	epzero = 1e-12
)

var ErrInvalidParameter = errors.New("invalid SDE parameter")

// Characteristics are the time scales and drift of one particle.
type Characteristics struct {
	Taup float64 // Particle relaxation time
	Tlag r3.Vec  // Integral time scale of the seen velocity, per component
	Bx   r3.Vec  // Diffusion coefficient of the seen velocity
	Piil r3.Vec  // Mean acceleration of the seen fluid
}

// Density returns the material density of a sphere of mass m and diameter
// d.
func Density(m, d float64) float64 {
	return 6 * m / (math.Pi * d * d * d)
}

// Characterize computes the characteristics of a particle of diameter d
// and density rho moving at vp in fluid c, seeing the fluid velocity vs.
// The drag follows Schiller and Naumann up to a particle Reynolds number
// of 1000.
func Characterize(c flow.Cell, vp, vs r3.Vec, d, rho float64, g r3.Vec) (Characteristics, error) {
	var ch Characteristics
	if !(d > 0) || !(rho > 0) || !(c.Density > 0) || !(c.Viscosity > 0) {
		return ch, fmt.Errorf("%w: diameter %g, density %g, fluid density %g, viscosity %g",
			ErrInvalidParameter, d, rho, c.Density, c.Viscosity)
	}
	nu := c.KinematicViscosity()
	ur := r3.Norm(r3.Sub(vs, vp))
	rep := ur * d / nu
	var fdr float64
	if rep <= reynoldsDrag {
		fdr = 18 * nu * (1 + 0.15*math.Pow(rep, 0.687)) / (d * d)
	} else {
		fdr = 0.44 * 3 / 4 * ur / d
	}
	ch.Taup = rho / c.Density / fdr

	tl := epzero
	var bx float64
	if c.TurbulentEnergy > epzero && c.Dissipation > epzero {
		cl := 1 / (0.5 + 0.75*C0)
		tl = math.Max(cl*c.TurbulentEnergy/c.Dissipation, epzero)
		bx = math.Sqrt(C0 * c.Dissipation)
	}
	tl = separate(tl, ch.Taup)
	ch.Tlag = r3.Vec{X: tl, Y: tl, Z: tl}
	ch.Bx = r3.Vec{X: bx, Y: bx, Z: bx}
	ch.Piil = r3.Add(r3.Scale(-1/c.Density, c.PressureGradient), g)
	return ch, nil
}

// separate moves tl away from taup, where the closed-form coefficients are
// singular.
func separate(tl, taup float64) float64 {
	if math.Abs(tl-taup) < 1e-9*taup {
		return taup * (1 + 1e-9)
	}
	return tl
}

// Validate rejects non-positive time scales.
func (ch Characteristics) Validate() error {
	if !(ch.Taup > 0) || !(ch.Tlag.X > 0) || !(ch.Tlag.Y > 0) || !(ch.Tlag.Z > 0) {
		return fmt.Errorf("%w: taup %g, tlag %v", ErrInvalidParameter, ch.Taup, ch.Tlag)
	}
	return nil
}
