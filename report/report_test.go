package report

import (
	"bytes"
	"math"
	"testing"

	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNew_ZoneBalance(t *testing.T) {
	m, err := mesh.NewBox(1, 1, 1, r3.Vec{}, r3.Vec{X: 2, Y: 1, Z: 1})
	require.NoError(t, err)
	tab := &zones.Table{
		Zones: []zones.Zone{
			{Name: "wall10", Nature: zones.Depo2},
			{Name: "wall2", Nature: zones.Rebound},
			{Name: "inlet", Nature: zones.Inlet},
		},
		Boundary: []int{2, 1, 0, 0, 0, 0},
	}
	st := zones.NewStats(6, 3, nil)
	st.FlowRate[2] = 3
	st.Exited[2] = 1.5
	st.Faces.RecordImpact(2, 0, 1, 2)
	st.Faces.MassFlux[2] = 0.25
	st.Faces.MassFlux[3] = 0.5

	var c particle.Counters
	c.Injected.Add(1)
	c.Injected.Add(1)
	c.Injected.Add(1)
	c.Injected.Add(1)
	c.Failed.Add(1)

	r, err := New(7, 2, c, m, tab, st)
	require.NoError(t, err)
	names := []string{}
	for _, z := range r.Zones {
		names = append(names, z.Name)
	}
	assert.Equal(t, []string{"inlet", "wall2", "wall10"}, names)

	in := r.Zones[0]
	assert.Equal(t, 1.5, in.MassFlow)
	assert.Equal(t, 1.5, in.Exited)
	assert.True(t, math.IsNaN(in.MeanAngle))

	wall := r.Zones[2]
	assert.Equal(t, 2.0, wall.Interactions)
	assert.InDelta(t, math.Pi/2, wall.MeanAngle, 1e-12)
	area := m.BoundaryFaces[2].Area*0.25 + m.BoundaryFaces[3].Area*0.5
	assert.InDelta(t, area, wall.WallMass, 1e-12)

	assert.Equal(t, 25.0, r.LossPercent())
	assert.Equal(t, 1, r.Fields()["lost"])

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "step 7")
	assert.Contains(t, buf.String(), "wall10")
}

func TestNew_RejectsLocalStatistics(t *testing.T) {
	m, err := mesh.NewBox(1, 1, 1, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	tab := &zones.Table{Zones: []zones.Zone{{Name: "a"}}, Boundary: make([]int, 6)}
	_, err = New(1, 1, particle.Counters{}, m, tab, zones.NewStats(2, 1, nil))
	assert.Error(t, err)
}

func TestLossPercent_NoInjection(t *testing.T) {
	assert.Zero(t, Step{}.LossPercent())
}
