package particle

import (
	"testing"

	"github.com/notargets/lagtrack/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func sample(id uint64, cell int) Record {
	return Record{
		ID:       id,
		Coords:   r3.Vec{X: float64(id)},
		Velocity: r3.Vec{Y: 1},
		Cell:     InCell(cell),
		Weight:   float64(id) + 1,
		Mass:     1e-9,
		Diameter: 1e-5,
		LastFace: mesh.InteriorRef(int(id)),
		Yplus:    12.5,
		Marko:    PhaseSweep,
	}
}

func TestSet_OptionalGroupsStayNil(t *testing.T) {
	s := NewSet(Options{}, 4)
	s.Append(sample(1, 0))
	assert.Nil(t, s.Yplus)
	assert.Nil(t, s.AdhesionForce)
	assert.Nil(t, s.PredVelocity)
	r := s.Get(0)
	assert.Equal(t, 0.0, r.Yplus, "disabled attribute reads as zero")
	assert.Equal(t, -1, r.NeighborFace)
}

func TestSet_AppendGetRoundTrip(t *testing.T) {
	s := NewSet(Options{Deposition: true, Clogging: true}, 0)
	in := sample(7, 3)
	in.NeighborFace = 2
	in.Height = 4e-6
	i := s.Append(in)
	require.Equal(t, 0, i)
	out := s.Get(i)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Coords, out.Coords)
	assert.Equal(t, in.Cell, out.Cell)
	assert.Equal(t, in.Yplus, out.Yplus)
	assert.Equal(t, in.Marko, out.Marko)
	assert.Equal(t, 2, out.NeighborFace)
	assert.Equal(t, in.Height, out.Height)
}

func TestSet_CompactIsStable(t *testing.T) {
	s := NewSet(Options{Deposition: true}, 0)
	for id := uint64(0); id < 6; id++ {
		s.Append(sample(id, int(id)))
	}
	removed := s.Compact(func(i int) bool { return s.ID[i]%2 == 0 })
	assert.Equal(t, 3, removed)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []uint64{0, 2, 4}, s.ID)
	assert.Len(t, s.Yplus, 3)
	assert.Equal(t, 4.0, s.Coords[2].X)
	assert.Equal(t, 0, s.Compact(func(int) bool { return true }))
}

func TestSet_SortByCell(t *testing.T) {
	s := NewSet(Options{}, 0)
	s.Append(sample(1, 5))
	s.Append(sample(2, 1))
	s.Append(sample(3, 5))
	s.Append(sample(4, 0))
	s.SortByCell()
	assert.Equal(t, []uint64{4, 2, 1, 3}, s.ID)
	assert.Equal(t, 4.0, s.Coords[0].X)
}

func TestSet_TotalWeight(t *testing.T) {
	s := NewSet(Options{}, 0)
	s.Append(sample(0, 0))
	s.Append(sample(1, 0))
	assert.Equal(t, 3.0, s.TotalWeight(nil))
	assert.Equal(t, 2.0, s.TotalWeight(func(i int) bool { return i == 1 }))
}

func TestCell_Variants(t *testing.T) {
	c := StuckIn(4)
	assert.True(t, c.IsStuck())
	assert.True(t, c.HasCell())
	assert.Equal(t, InCell(4), c.Unstick())
	assert.False(t, PendingDelete().HasCell())
	assert.Equal(t, "cell(2)", InCell(2).String())
}

func TestTrackingState_Kept(t *testing.T) {
	assert.True(t, ToSync.Kept())
	assert.True(t, Treated.Kept())
	assert.True(t, Stuck.Kept())
	assert.False(t, Out.Kept())
	assert.False(t, ToDelete.Kept())
	assert.False(t, Err.Kept())
}

func TestCounters_ValuesRoundTrip(t *testing.T) {
	var c Counters
	c.Injected.Add(2.5)
	c.Failed.Add(1)
	c.Deposited.Add(0.5)
	c.Held.Add(3)
	var d Counters
	d.Merge(CountersFromValues(c.Values()))
	d.Merge(c)
	assert.Equal(t, 2, d.Injected.N)
	assert.Equal(t, 5.0, d.Injected.Weight)
	assert.Equal(t, 2, d.Failed.N)
	assert.Equal(t, 1.0, d.Deposited.Weight)
	assert.Equal(t, Tally{N: 2, Weight: 6}, d.Held)
}

func TestCounters_CensusClosesBalance(t *testing.T) {
	s := NewSet(Options{Deposition: true}, 4)
	s.Append(Record{Cell: InCell(0), Weight: 1})
	s.Append(Record{Cell: InCell(0), Weight: 2, DepositionFlag: Deposited})
	s.Append(Record{Cell: StuckIn(1), Weight: 3})
	s.Append(Record{Cell: InCell(1), Weight: 4, DepositionFlag: Rolling})

	var c Counters
	for _, w := range []float64{1, 2, 3, 4, 5, 6} {
		c.Injected.Add(w)
	}
	c.Exited.Add(5)
	c.Deposited.Add(6)
	c.Attached.Add(2)
	c.Resuspended.Add(2)
	c.Census(s)
	assert.Equal(t, Tally{N: 1, Weight: 1}, c.Resident)
	assert.Equal(t, Tally{N: 3, Weight: 9}, c.Held)
	assert.Equal(t, Tally{}, c.Balance())

	// lifting off returns the particle to the flow
	s.DepositionFlag[1] = InFlow
	c.Census(s)
	assert.Equal(t, 2, c.Resident.N)
	assert.Equal(t, 2, c.Held.N)
	assert.Equal(t, Tally{}, c.Balance())

	c.Census(NewSet(Options{}, 0))
	assert.Equal(t, 4, c.Balance().N)
}
