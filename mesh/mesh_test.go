package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewBox_UnitCube(t *testing.T) {
	m, err := NewBox(1, 1, 1, r3.Vec{X: -.5, Y: -.5, Z: -.5}, r3.Vec{X: .5, Y: .5, Z: .5})
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 1, m.NumCells)
	assert.Len(t, m.InteriorFaces, 0)
	assert.Len(t, m.BoundaryFaces, 6)
	assert.InDelta(t, 1.0, m.CellVolumes[0], 1e-12)
	assert.InDelta(t, 0.0, r3.Norm(m.CellCenters[0]), 1e-12)

	top := m.FacesInGroup(m.GroupID(ZMax))
	require.Len(t, top, 1)
	f := m.BoundaryFaces[top[0]]
	assert.InDelta(t, 0.5, f.Cog.Z, 1e-12)
	assert.InDelta(t, 1.0, f.Normal.Z, 1e-12)
	assert.InDelta(t, 1.0, f.Area, 1e-12)
}

func TestNewBox_Counts(t *testing.T) {
	nx, ny, nz := 3, 2, 4
	m, err := NewBox(nx, ny, nz, r3.Vec{}, r3.Vec{X: 3, Y: 2, Z: 4})
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, nx*ny*nz, m.NumCells)
	wantInterior := (nx-1)*ny*nz + nx*(ny-1)*nz + nx*ny*(nz-1)
	wantBoundary := 2 * (ny*nz + nx*nz + nx*ny)
	assert.Len(t, m.InteriorFaces, wantInterior)
	assert.Len(t, m.BoundaryFaces, wantBoundary)

	var vol float64
	for c := 0; c < m.NumCells; c++ {
		vol += m.CellVolumes[c]
	}
	assert.InDelta(t, 24.0, vol, 1e-9)
	assert.Len(t, m.FacesInGroup(m.GroupID(XMax)), ny*nz)

	// cell (1,1,2) center
	c := 1 + nx*(1+ny*2)
	assert.InDelta(t, 1.5, m.CellCenters[c].X, 1e-12)
	assert.InDelta(t, 1.5, m.CellCenters[c].Y, 1e-12)
	assert.InDelta(t, 2.5, m.CellCenters[c].Z, 1e-12)
}

func TestNewBox_RejectsBadInput(t *testing.T) {
	_, err := NewBox(0, 1, 1, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	assert.Error(t, err)
	_, err = NewBox(1, 1, 1, r3.Vec{X: 1}, r3.Vec{X: 1, Y: 1, Z: 1})
	assert.Error(t, err)
}

func TestNewTetMesh_TwoTets(t *testing.T) {
	verts := []r3.Vec{
		{}, {X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 1, Z: 1},
	}
	etov := [][]int{{0, 1, 2, 3}, {1, 2, 3, 4}}
	m, err := NewTetMesh(verts, etov)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Len(t, m.InteriorFaces, 1)
	assert.Len(t, m.BoundaryFaces, 6)
	assert.InDelta(t, 1.0/6, m.CellVolumes[0], 1e-12)
	for _, f := range m.BoundaryFaces {
		assert.Equal(t, DefaultGroup, m.Groups[f.Group])
	}

	_, err = NewTetMesh(verts, [][]int{{0, 1, 2}})
	assert.Error(t, err)
}

func TestAssignGroup_OnPlane(t *testing.T) {
	verts := []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}
	m, err := NewTetMesh(verts, [][]int{{0, 1, 2, 3}})
	require.NoError(t, err)
	n := m.AssignGroup("floor", OnPlane(r3.Vec{}, r3.Vec{Z: -1}, 1e-12))
	assert.Equal(t, 1, n)
	g := m.GroupID("floor")
	require.GreaterOrEqual(t, g, 0)
	assert.Len(t, m.FacesInGroup(g), 1)
	assert.Equal(t, -1, m.GroupID("missing"))
}

func TestFaceRef_Encoding(t *testing.T) {
	i := InteriorRef(4)
	b := BoundaryRef(0)
	assert.True(t, i.IsInterior())
	assert.Equal(t, 4, i.ID())
	assert.True(t, b.IsBoundary())
	assert.Equal(t, 0, b.ID())
	assert.True(t, NoFace.IsNone())
	assert.Equal(t, "b0", b.String())
}
