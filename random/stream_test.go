package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestStream_Reproducible(t *testing.T) {
	a := New(42, 7, 3, StageTurbulence)
	b := New(42, 7, 3, StageTurbulence)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Normal(), b.Normal())
		assert.Equal(t, a.Uniform(), b.Uniform())
	}
}

func TestStream_KeysDiffer(t *testing.T) {
	base := New(42, 7, 3, StageTurbulence).Normal()
	assert.NotEqual(t, base, New(42, 8, 3, StageTurbulence).Normal())
	assert.NotEqual(t, base, New(42, 7, 4, StageTurbulence).Normal())
	assert.NotEqual(t, base, New(42, 7, 3, StageBrownian).Normal())
	assert.NotEqual(t, base, New(43, 7, 3, StageTurbulence).Normal())
}

func TestStream_Moments(t *testing.T) {
	s := New(1, 1, 0, StageTurbulence)
	x := make([]float64, 20000)
	s.Normals(x)
	mean, std := stat.MeanStdDev(x, nil)
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, std, 0.05)

	for i := range x {
		x[i] = s.Uniform()
		assert.GreaterOrEqual(t, x[i], 0.0)
		assert.Less(t, x[i], 1.0)
	}
	assert.InDelta(t, 0.5, stat.Mean(x, nil), 0.02)
}

func TestFactory(t *testing.T) {
	f := Constant(Fixed{N: 0, U: 0.25})
	d := f(1, 2, StageDeposition)
	assert.Equal(t, 0.0, d.Normal())
	assert.Equal(t, 0.25, d.Uniform())

	g := Seeded(9)
	assert.Equal(t, g(3, 1, StageInjection).Uniform(), New(9, 3, 1, StageInjection).Uniform())
}
