// Package random provides per-particle reproducible random streams. A stream
// is keyed by the run seed, the particle id, the time step and the stage
// within the step, so the draws a particle sees do not depend on which rank
// owns it or in which order particles are processed.
package random

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Drawer supplies standard normal and uniform [0,1) variates.
type Drawer interface {
	Normal() float64
	Uniform() float64
}

// Stage separates the independent draws a particle makes within one step.
type Stage uint64

const (
	StageTurbulence Stage = iota + 1
	StageBrownian
	StageDeposition
	StageInteraction
	StageInjection
	StageCorrector
)

// Stream is a Drawer backed by a PCG source.
type Stream struct {
	normal  distuv.Normal
	uniform distuv.Uniform
}

// New returns the stream of particle id at the given step and stage.
func New(seed, id uint64, step int, stage Stage) *Stream {
	src := rand.NewPCG(mix(seed, uint64(step), uint64(stage)), mix(id, seed, 0x9e3779b97f4a7c15))
	return &Stream{
		normal:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

func (s *Stream) Normal() float64  { return s.normal.Rand() }
func (s *Stream) Uniform() float64 { return s.uniform.Rand() }

// Normals fills dst with standard normal draws.
func (s *Stream) Normals(dst []float64) {
	for i := range dst {
		dst[i] = s.normal.Rand()
	}
}

// Fixed is a Drawer that always returns the same values.
type Fixed struct {
	N float64 // Returned by Normal
	U float64 // Returned by Uniform
}

func (f Fixed) Normal() float64  { return f.N }
func (f Fixed) Uniform() float64 { return f.U }

// Factory creates the stream of a particle. Simulations carry one so tests
// can substitute a deterministic source.
type Factory func(id uint64, step int, stage Stage) Drawer

// Seeded returns the Factory of streams derived from seed.
func Seeded(seed uint64) Factory {
	return func(id uint64, step int, stage Stage) Drawer {
		return New(seed, id, step, stage)
	}
}

// Constant returns a Factory handing out the same Fixed drawer.
func Constant(f Fixed) Factory {
	return func(uint64, int, Stage) Drawer { return f }
}

// mix folds three words through the splitmix64 finalizer.
func mix(a, b, c uint64) uint64 {
	z := a + 0x9e3779b97f4a7c15*(b+1) + 0xbf58476d1ce4e5b9*(c+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
