package exchange

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/notargets/lagtrack/connectivity"
	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/interaction"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/partitions"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/tracking"
	"github.com/notargets/lagtrack/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBuffer_Elastic(t *testing.T) {
	var b Buffer
	assert.Len(t, b.Reserve(3), 3)
	assert.Equal(t, 8, b.Cap())
	b.Reserve(100)
	assert.Equal(t, 128, b.Cap())
	b.Reserve(10)
	assert.Equal(t, 128, b.Cap(), "128 is not above 16 times 10")
	b.Reserve(7)
	assert.Equal(t, 16, b.Cap())
	b.Reserve(0)
	assert.Equal(t, 8, b.Cap())
}

func TestWorld_Collectives(t *testing.T) {
	w, err := NewWorld(3)
	require.NoError(t, err)
	var mu sync.Mutex
	got := make(map[int][]int)
	err = w.Run(func(c Comm) error {
		var peers, counts []int
		for p := 0; p < c.Size(); p++ {
			peers = append(peers, p)
			counts = append(counts, 10*c.Rank()+p)
		}
		recv, err := c.ExchangeCounts(peers, counts)
		if err != nil {
			return err
		}
		mu.Lock()
		got[c.Rank()] = recv
		mu.Unlock()

		sum, err := c.AllReduceSum([]float64{float64(c.Rank()), 1})
		if err != nil {
			return err
		}
		if sum[0] != 3 || sum[1] != 3 {
			return errors.New("bad sum")
		}
		anyRank, err := c.AllReduceOr(c.Rank() == 2)
		if err != nil {
			return err
		}
		if !anyRank {
			return errors.New("bad or")
		}
		return c.Barrier()
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20}, got[0])
	assert.Equal(t, []int{2, 12, 22}, got[2])
}

func TestWorld_Exchange(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	recv := make([][]particle.Record, 2)
	err = w.Run(func(c Comm) error {
		me, other := c.Rank(), 1-c.Rank()
		tr := &Transfer{
			Peers:      []int{me, other},
			Send:       []particle.Record{{ID: uint64(10 * me)}, {ID: uint64(10*me + 1)}, {ID: uint64(10*me + 2)}},
			SendOffset: []int{0, 1},
			SendCount:  []int{1, 2},
			RecvOffset: []int{0, 1},
			RecvCount:  []int{1, 2},
			Recv:       make([]particle.Record, 3),
		}
		if err := c.Exchange(tr); err != nil {
			return err
		}
		recv[me] = tr.Recv
		return nil
	})
	require.NoError(t, err)
	ids := func(rs []particle.Record) []uint64 {
		var out []uint64
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []uint64{0, 11, 12}, ids(recv[0]))
	assert.Equal(t, []uint64{10, 1, 2}, ids(recv[1]))
}

func TestWorld_AbortUnblocksRanks(t *testing.T) {
	w, err := NewWorld(3)
	require.NoError(t, err)
	boom := errors.New("boom")
	err = w.Run(func(c Comm) error {
		if c.Rank() == 1 {
			return boom
		}
		return c.Barrier()
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAborted)
}

// rank builds the propagator of a partition with rebounding walls.
func rank(t *testing.T, l *partitions.Local) *tracking.Propagator {
	t.Helper()
	var zs []zones.Zone
	for _, g := range l.Mesh.Groups {
		zs = append(zs, zones.Zone{Name: g, Nature: zones.Rebound})
	}
	tab, err := zones.NewTable(l.Mesh, zs)
	require.NoError(t, err)
	ix, err := connectivity.Build(l.Mesh)
	require.NoError(t, err)
	stats := zones.NewStats(len(l.Mesh.BoundaryFaces), len(tab.Zones), nil)
	eng := interaction.NewEngine(l.Mesh, tab, stats, &particle.Counters{}, interaction.Options{})
	p, err := tracking.New(l.Mesh, ix, eng, nil, random.Constant(random.Fixed{}), tracking.Options{})
	require.NoError(t, err)
	return p
}

func TestSync_TwoRanks(t *testing.T) {
	m, err := mesh.NewBox(4, 1, 1, r3.Vec{}, r3.Vec{X: 4, Y: 1, Z: 1})
	require.NoError(t, err)
	layout, err := (&partitions.PartitionBuilder{Mesh: m, NumPartitions: 2}).BuildPartitions()
	require.NoError(t, err)
	locals, err := partitions.Split(m, layout, nil)
	require.NoError(t, err)

	sets := []*particle.Set{particle.NewSet(particle.Options{}, 1), particle.NewSet(particle.Options{}, 1)}
	sets[0].Append(particle.Record{
		ID:         7,
		PrevCoords: r3.Vec{X: .5, Y: .4, Z: .3},
		Coords:     r3.Vec{X: 3.5, Y: .45, Z: .35},
		Cell:       particle.InCell(0),
		Weight:     2,
	})
	props := []*tracking.Propagator{rank(t, locals[0]), rank(t, locals[1])}

	w, err := NewWorld(2)
	require.NoError(t, err)
	err = w.Run(func(c Comm) error {
		s, err := NewSyncer(props[c.Rank()], locals[c.Rank()], c)
		if err != nil {
			return err
		}
		return props[c.Rank()].Run(sets[c.Rank()], s)
	})
	require.NoError(t, err)

	assert.Zero(t, sets[0].Len())
	require.Equal(t, 1, sets[1].Len())
	got := sets[1].Get(0)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, particle.InCell(1), got.Cell)
	assert.Equal(t, particle.Treated, got.State)
	assert.Equal(t, 4, got.Passes)
	assert.Equal(t, 2.0, got.Weight)
	assert.Equal(t, mesh.InteriorRef(1), got.LastFace)
}

func TestSync_PeriodicRoundTrip(t *testing.T) {
	m, err := mesh.NewBox(2, 1, 1, r3.Vec{}, r3.Vec{X: 2, Y: 1, Z: 1})
	require.NoError(t, err)
	layout, err := partitions.NewLayout([]int{0, 0}, 1)
	require.NoError(t, err)
	rot, err := geometry.NewRotation(r3.Vec{X: 1}, 0, r3.Vec{})
	require.NoError(t, err)
	shift := geometry.NewTranslation(r3.Vec{X: 2}).Compose(rot)
	per := []partitions.Periodicity{{Group1: mesh.XMin, Group2: mesh.XMax, Transform: shift}}
	locals, err := partitions.Split(m, layout, per)
	require.NoError(t, err)
	p := rank(t, locals[0])

	w, err := NewWorld(1)
	require.NoError(t, err)
	s, err := NewSyncer(p, locals[0], w.Comm(0))
	require.NoError(t, err)

	start := r3.Vec{X: 1.5, Y: .4, Z: .3}
	set := particle.NewSet(particle.Options{}, 1)
	set.Append(particle.Record{
		PrevCoords:   start,
		Coords:       r3.Vec{X: 2.5, Y: .4, Z: .3},
		Velocity:     r3.Vec{X: 1, Y: .2},
		VelocitySeen: r3.Vec{X: 1},
		Cell:         particle.InCell(1),
		Weight:       1,
	})
	require.NoError(t, p.Run(set, s))
	require.Equal(t, 1, set.Len())
	assert.Equal(t, particle.InCell(0), set.Cell[0])
	assertVec(t, r3.Vec{X: .5, Y: .4, Z: .3}, set.Coords[0])
	assertVec(t, r3.Vec{X: -.5, Y: .4, Z: .3}, set.PrevCoords[0])
	assert.True(t, set.LastFace[0].IsNone())
	assertVec(t, r3.Vec{X: 1, Y: .2}, set.Velocity[0])

	// and back through the other side
	set.PrevCoords[0] = set.Coords[0]
	set.Coords[0] = r3.Vec{X: -.5, Y: .4, Z: .3}
	require.NoError(t, p.Run(set, s))
	require.Equal(t, 1, set.Len())
	assert.Equal(t, particle.InCell(1), set.Cell[0])
	assertVec(t, start, set.Coords[0])
	assertVec(t, r3.Vec{X: 1, Y: .2}, set.Velocity[0])
}

func TestSync_RotationalPeriodicRoundTrip(t *testing.T) {
	m, err := mesh.NewBox(2, 2, 1, r3.Vec{}, r3.Vec{X: 2, Y: 2, Z: 1})
	require.NoError(t, err)
	layout, err := partitions.NewLayout([]int{0, 0, 0, 0}, 1)
	require.NoError(t, err)
	// a quarter turn about the x=y=2 edge carries xmax onto ymax
	rot, err := geometry.NewRotation(r3.Vec{Z: 1}, -math.Pi/2, r3.Vec{X: 2, Y: 2})
	require.NoError(t, err)
	require.True(t, rot.HasRotation())
	per := []partitions.Periodicity{{Group1: mesh.XMax, Group2: mesh.YMax, Transform: rot}}
	locals, err := partitions.Split(m, layout, per)
	require.NoError(t, err)
	p := rank(t, locals[0])

	w, err := NewWorld(1)
	require.NoError(t, err)
	s, err := NewSyncer(p, locals[0], w.Comm(0))
	require.NoError(t, err)

	start := r3.Vec{X: 1.5, Y: .4, Z: .3}
	vel, seen := r3.Vec{X: 1, Z: .2}, r3.Vec{X: 1, Y: .3}
	set := particle.NewSet(particle.Options{}, 1)
	set.Append(particle.Record{
		PrevCoords:   start,
		Coords:       r3.Vec{X: 2.5, Y: .4, Z: .3},
		Velocity:     vel,
		VelocitySeen: seen,
		Cell:         particle.InCell(1),
		Weight:       1,
	})
	require.NoError(t, p.Run(set, s))
	require.Equal(t, 1, set.Len())
	assert.Equal(t, particle.InCell(2), set.Cell[0])
	assertVec(t, r3.Vec{X: .4, Y: 1.5, Z: .3}, set.Coords[0])
	assertVec(t, r3.Vec{X: .4, Y: 2.5, Z: .3}, set.PrevCoords[0])
	assertVec(t, r3.Vec{Y: -1, Z: .2}, set.Velocity[0])
	assertVec(t, r3.Vec{X: .3, Y: -1}, set.VelocitySeen[0])

	// back out through ymax restores position and orientation
	set.PrevCoords[0] = set.Coords[0]
	set.Coords[0] = r3.Vec{X: .4, Y: 2.5, Z: .3}
	require.NoError(t, p.Run(set, s))
	require.Equal(t, 1, set.Len())
	assert.Equal(t, particle.InCell(1), set.Cell[0])
	assertVec(t, start, set.Coords[0])
	assertVec(t, vel, set.Velocity[0])
	assertVec(t, seen, set.VelocitySeen[0])
}

func assertVec(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)
	assert.InDelta(t, want.Z, got.Z, 1e-9)
}
