package partitions

import (
	"testing"

	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func bar(t *testing.T, nx int) *mesh.Mesh {
	t.Helper()
	m, err := mesh.NewBox(nx, 1, 1, r3.Vec{}, r3.Vec{X: float64(nx), Y: 1, Z: 1})
	require.NoError(t, err)
	return m
}

func TestBuildPartitions_Strategies(t *testing.T) {
	m := bar(t, 5)
	pb := &PartitionBuilder{Mesh: m, NumPartitions: 2}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, layout.EToP)
	assert.Equal(t, []int{3, 4}, layout.Partitions[1].Cells)

	pb.Strategy = RoundRobin
	layout, err = pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, layout.EToP)
	stats := layout.PartitionStatistics()
	assert.Equal(t, 2, stats.MinCells)
	assert.Equal(t, 3, stats.MaxCells)
	assert.InDelta(t, 1.2, stats.Imbalance, 1e-12)

	pb.NumPartitions = 6
	_, err = pb.BuildPartitions()
	assert.Error(t, err)
}

func TestBuildPartitions_MortonKeepsQuadrantsTogether(t *testing.T) {
	m, err := mesh.NewBox(4, 4, 1, r3.Vec{}, r3.Vec{X: 4, Y: 4, Z: 1})
	require.NoError(t, err)
	pb := &PartitionBuilder{Mesh: m, NumPartitions: 4, Strategy: SpaceFillingCurve}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4, 5}, layout.Partitions[0].Cells)
	assert.Equal(t, []int{10, 11, 14, 15}, layout.Partitions[3].Cells)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Morton")
	require.NoError(t, err)
	assert.Equal(t, SpaceFillingCurve, s)
	_, err = ParseStrategy("metis")
	assert.Error(t, err)
}

func TestNewLayout_Invalid(t *testing.T) {
	_, err := NewLayout([]int{0, 2}, 2)
	assert.Error(t, err)
	_, err = NewLayout([]int{0, 0}, 2)
	assert.Error(t, err, "empty partition")
}

func TestSplit_TwoRanks(t *testing.T) {
	m := bar(t, 4)
	layout, err := (&PartitionBuilder{Mesh: m, NumPartitions: 2}).BuildPartitions()
	require.NoError(t, err)
	locals, err := Split(m, layout, nil)
	require.NoError(t, err)
	require.Len(t, locals, 2)

	l0, l1 := locals[0], locals[1]
	assert.Equal(t, 2, l0.Mesh.NumCells)
	assert.Equal(t, []Ghost{{Rank: 1, Cell: 0, Global: 2, Transform: NoTransform}}, l0.Ghosts)
	assert.Equal(t, []Ghost{{Rank: 0, Cell: 1, Global: 1, Transform: NoTransform}}, l1.Ghosts)
	assert.Equal(t, []RemotePartition{{Rank: 1, GhostOffset: 0, GhostCount: 1}}, l0.Remote)
	assert.Equal(t, []int{0, 1}, l0.InteriorGlobal)
	assert.Len(t, l0.BoundaryGlobal, 9)
	assert.Len(t, l1.BoundaryGlobal, 9)

	f, ok := l1.LocalInterior(1)
	require.True(t, ok)
	face := l1.Mesh.InteriorFaces[f]
	assert.Equal(t, 0, face.Cells[0], "faces start from the owned cell")
	assert.True(t, l1.Mesh.IsGhost(face.Cells[1]))
	assert.InDelta(t, -1, face.Normal.X, 1e-12)
	assertVecNear(t, r3.Vec{X: 1.5, Y: .5, Z: .5}, l1.Mesh.CellCenters[face.Cells[1]])

	assert.NoError(t, l0.Mesh.Validate())
	assert.NoError(t, l1.Mesh.Validate())
}

func TestSplit_PeriodicSingleRank(t *testing.T) {
	m := bar(t, 2)
	layout, err := NewLayout([]int{0, 0}, 1)
	require.NoError(t, err)
	per := []Periodicity{{Group1: mesh.XMin, Group2: mesh.XMax, Transform: geometry.NewTranslation(r3.Vec{X: 2})}}
	locals, err := Split(m, layout, per)
	require.NoError(t, err)
	l := locals[0]

	assert.Equal(t, []Ghost{
		{Rank: 0, Cell: 0, Global: 0, Transform: 1},
		{Rank: 0, Cell: 1, Global: 1, Transform: 0},
	}, l.Ghosts)
	assert.Equal(t, []int{0, -1, -1}, l.InteriorGlobal)
	assert.Len(t, l.BoundaryGlobal, 8)
	// seen from cell 0, the image of cell 1 lies beyond xmin
	assert.InDelta(t, -.5, l.Mesh.CellCenters[l.Mesh.NumCells+1].X, 1e-12)
	assert.InDelta(t, 2.5, l.Mesh.CellCenters[l.Mesh.NumCells].X, 1e-12)
	assertVecNear(t, r3.Vec{X: 3}, l.Transforms[0].Apply(r3.Vec{X: 1}))
	assertVecNear(t, r3.Vec{X: -1}, l.Transforms[1].Apply(r3.Vec{X: 1}))
}

func TestPairFaces_NoImage(t *testing.T) {
	m := bar(t, 2)
	per := []Periodicity{{Group1: mesh.XMin, Group2: mesh.XMax, Transform: geometry.NewTranslation(r3.Vec{X: 3})}}
	_, err := PairFaces(m, per)
	assert.Error(t, err)

	per[0].Group2 = "nowhere"
	_, err = PairFaces(m, per)
	assert.Error(t, err)
}

func TestValidateHalo(t *testing.T) {
	l0 := &Local{Rank: 0, CellGlobal: []int{0}, Ghosts: []Ghost{{Rank: 1, Cell: 0, Global: 1}},
		Remote: []RemotePartition{{Rank: 1, GhostCount: 1}}}
	l1 := &Local{Rank: 1, CellGlobal: []int{1}}
	assert.Error(t, ValidateHalo([]*Local{l0, l1}), "partition 1 never sends back")

	l1.Ghosts = []Ghost{{Rank: 0, Cell: 0, Global: 0}}
	l1.Remote = []RemotePartition{{Rank: 0, GhostCount: 1}}
	assert.NoError(t, ValidateHalo([]*Local{l0, l1}))

	l1.Ghosts[0].Global = 3
	assert.Error(t, ValidateHalo([]*Local{l0, l1}))
}

func assertVecNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
	assert.InDelta(t, want.Z, got.Z, 1e-12)
}
