// Package report summarizes the global particle balance of a run.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/facette/natsort"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Zone is the balance of one zone.
type Zone struct {
	Name   string
	Nature zones.Nature
	// MassFlow is the mean particle mass flow rate through the zone since
	// the start of the run, negative for particles leaving the domain.
	MassFlow     float64
	Exited       float64 // Statistical weight that left through the zone
	Interactions float64 // Weight of wall interactions on the zone faces
	WallMass     float64 // Mass resting on the zone faces
	MeanAngle    float64 // Mean impact angle, NaN without impacts
}

// Step is the global state after a time step. Counters are cumulative
// except Resident and Held, which count the particles present at the end
// of the step.
type Step struct {
	Step     int
	Time     float64
	Counters particle.Counters
	Zones    []Zone
}

// New builds the report of a step from counters and statistics already
// reduced over all ranks and expressed on the faces of the global mesh m.
// Zones are listed in natural order of their names.
func New(step int, time float64, c particle.Counters, m *mesh.Mesh, tab *zones.Table, st *zones.Stats) (Step, error) {
	if st.Faces.Len() != len(m.BoundaryFaces) {
		return Step{}, fmt.Errorf("statistics cover %d faces, mesh has %d", st.Faces.Len(), len(m.BoundaryFaces))
	}
	faces := make([][]int, len(tab.Zones))
	for f, z := range tab.Boundary {
		faces[z] = append(faces[z], f)
	}
	r := Step{Step: step, Time: time, Counters: c, Zones: make([]Zone, len(tab.Zones))}
	fs := st.Faces
	for z, zone := range tab.Zones {
		flux := make([]float64, len(faces[z]))
		area := make([]float64, len(faces[z]))
		var angles float64
		for k, f := range faces[z] {
			flux[k] = fs.MassFlux[f]
			area[k] = m.BoundaryFaces[f].Area
			angles += fs.AngleSum[f]
		}
		zr := Zone{
			Name:         zone.Name,
			Nature:       zone.Nature,
			Exited:       st.Exited[z],
			Interactions: fs.TotalInteractions(faces[z]),
			WallMass:     floats.Dot(flux, area),
			MeanAngle:    math.NaN(),
		}
		if time > 0 {
			zr.MassFlow = st.FlowRate[z] / time
		}
		if zr.Interactions > 0 {
			zr.MeanAngle = angles / zr.Interactions
		}
		r.Zones[z] = zr
	}
	sort.SliceStable(r.Zones, func(i, j int) bool {
		return natsort.Compare(r.Zones[i].Name, r.Zones[j].Name)
	})
	return r, nil
}

// LossPercent is the share of injected particles lost by the tracking.
func (r Step) LossPercent() float64 {
	if r.Counters.Injected.N == 0 {
		return 0
	}
	return 100 * float64(r.Counters.Failed.N) / float64(r.Counters.Injected.N)
}

// Fields returns the particle balance for a log entry.
func (r Step) Fields() logrus.Fields {
	c := r.Counters
	return logrus.Fields{
		"step":        r.Step,
		"time":        r.Time,
		"injected":    c.Injected.N,
		"exited":      c.Exited.N,
		"deposited":   c.Deposited.N,
		"fouled":      c.Fouled.N,
		"resuspended": c.Resuspended.N,
		"lost":        c.Failed.N,
		"in_flow":     c.Resident.N,
		"on_wall":     c.Held.N,
		"loss_pct":    r.LossPercent(),
	}
}

// Write prints the balance and the zone table.
func (r Step) Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)
	c := r.Counters
	fmt.Fprintf(w, "step %d\ttime %.6g\n", r.Step, r.Time)
	fmt.Fprintln(w, "\tnumber\tweight")
	for _, row := range []struct {
		name string
		t    particle.Tally
	}{
		{"injected", c.Injected},
		{"exited", c.Exited},
		{"deposited", c.Deposited},
		{"fouled", c.Fouled},
		{"lost", c.Failed},
		{"in flow", c.Resident},
		{"on wall", c.Held},
		{"attached", c.Attached},
		{"resuspended", c.Resuspended},
	} {
		fmt.Fprintf(w, "%s\t%d\t%.6g\n", row.name, row.t.N, row.t.Weight)
	}
	fmt.Fprintf(w, "loss\t%.3g %%\t\n\n", r.LossPercent())

	fmt.Fprintln(w, "zone\ttype\tmass flow\texited\timpacts\twall mass\tmean angle")
	for _, z := range r.Zones {
		fmt.Fprintf(w, "%s\t%v\t%.6g\t%.6g\t%.6g\t%.6g\t%.3g\n",
			z.Name, z.Nature, z.MassFlow, z.Exited, z.Interactions, z.WallMass, z.MeanAngle)
	}
	return w.Flush()
}
