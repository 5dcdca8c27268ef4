// Package flow exposes the continuum carrier phase to the particle solver.
// The solver only reads the flow; it never modifies it.
package flow

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cell is the fluid state in one mesh cell.
type Cell struct {
	Velocity         r3.Vec
	Density          float64
	Viscosity        float64 // Dynamic viscosity
	TurbulentEnergy  float64
	Dissipation      float64
	PressureGradient r3.Vec
	Temperature      float64 // Kelvin
}

// KinematicViscosity returns mu/rho.
func (c Cell) KinematicViscosity() float64 {
	return c.Viscosity / c.Density
}

// Wall is the near-wall state at a boundary face.
type Wall struct {
	FrictionVelocity float64
	ViscousLength    float64 // nu/u*, the wall unit
}

// Field gives the fluid state by local cell and boundary face id.
type Field interface {
	Cell(c int) Cell
	Wall(face int) Wall
}

// Uniform is the same state everywhere.
type Uniform struct {
	State     Cell
	WallState Wall
}

func (u *Uniform) Cell(int) Cell { return u.State }
func (u *Uniform) Wall(int) Wall { return u.WallState }

// NewUniform builds a uniform field and derives the wall unit from the
// friction velocity when it is not given.
func NewUniform(c Cell, ustar float64) (*Uniform, error) {
	if c.Density <= 0 || c.Viscosity <= 0 {
		return nil, fmt.Errorf("flow density and viscosity must be positive, got %g and %g", c.Density, c.Viscosity)
	}
	w := Wall{FrictionVelocity: ustar, ViscousLength: 1}
	if ustar > 0 {
		w.ViscousLength = c.KinematicViscosity() / ustar
	}
	return &Uniform{State: c, WallState: w}, nil
}

// Sampled stores one state per cell and per boundary face.
type Sampled struct {
	Cells []Cell
	Walls []Wall
}

func (s *Sampled) Cell(c int) Cell    { return s.Cells[c] }
func (s *Sampled) Wall(face int) Wall { return s.Walls[face] }

// Sample evaluates f on n cells and m boundary faces.
func Sample(f Field, nCells, nFaces int) *Sampled {
	s := &Sampled{Cells: make([]Cell, nCells), Walls: make([]Wall, nFaces)}
	for c := range s.Cells {
		s.Cells[c] = f.Cell(c)
	}
	for i := range s.Walls {
		s.Walls[i] = f.Wall(i)
	}
	return s
}

// Restrict returns the field seen by a partition whose local cells and
// boundary faces have the given global ids. Ghost cells are included in
// cells so the field is defined on both sides of partition faces.
func (s *Sampled) Restrict(cells, faces []int) *Sampled {
	out := &Sampled{Cells: make([]Cell, len(cells)), Walls: make([]Wall, len(faces))}
	for i, g := range cells {
		out.Cells[i] = s.Cells[g]
	}
	for i, g := range faces {
		out.Walls[i] = s.Walls[g]
	}
	return out
}
