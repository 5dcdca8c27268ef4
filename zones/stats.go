package zones

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// FaceStats are the weighted boundary statistics of a rank, one entry per
// boundary face.
type FaceStats struct {
	Interactions []float64 // Weight of wall interactions
	AngleSum     []float64 // Weighted impact angles, radians
	VelocitySum  []float64 // Weighted impact speeds
	MassFlux     []float64 // Deposited mass per unit area

	FoulNumber   []float64
	FoulMass     []float64 // Fouled mass per unit area
	FoulDiameter []float64

	Coverage    []float64 // Surface coverage of the deposit
	HeightMean  []float64
	HeightVar   []float64
	DiameterSum []float64
	ClogTotal   []float64 // Weight of particles depositing under clogging
	ClogNaked   []float64 // Weight of those landing on a bare surface

	Resuspended   []float64
	ResuspendFlux []float64
}

// NewFaceStats allocates zeroed statistics for n faces.
func NewFaceStats(n int) *FaceStats {
	s := &FaceStats{}
	for _, p := range s.fields() {
		*p = make([]float64, n)
	}
	return s
}

func (s *FaceStats) fields() []*[]float64 {
	return []*[]float64{
		&s.Interactions, &s.AngleSum, &s.VelocitySum, &s.MassFlux,
		&s.FoulNumber, &s.FoulMass, &s.FoulDiameter,
		&s.Coverage, &s.HeightMean, &s.HeightVar, &s.DiameterSum, &s.ClogTotal, &s.ClogNaked,
		&s.Resuspended, &s.ResuspendFlux,
	}
}

// Len returns the number of faces.
func (s *FaceStats) Len() int {
	return len(s.Interactions)
}

// Scatter adds src into s, local face i of src landing on face ids[i].
func (s *FaceStats) Scatter(src *FaceStats, ids []int) {
	dst := s.fields()
	for k, p := range src.fields() {
		for i, v := range *p {
			(*dst[k])[ids[i]] += v
		}
	}
}

// Values flattens the statistics, field by field, for a sum reduction.
func (s *FaceStats) Values() []float64 {
	n := s.Len()
	fs := s.fields()
	out := make([]float64, 0, n*len(fs))
	for _, p := range fs {
		out = append(out, *p...)
	}
	return out
}

// SetValues is the inverse of Values on statistics of the same length.
func (s *FaceStats) SetValues(v []float64) error {
	n := s.Len()
	fs := s.fields()
	if len(v) != n*len(fs) {
		return fmt.Errorf("%d values for %d faces", len(v), n)
	}
	for k, p := range fs {
		copy(*p, v[k*n:(k+1)*n])
	}
	return nil
}

// RecordImpact adds a wall interaction of a particle with velocity v
// (component along the unit face normal vn, speed |v|) and weight w.
func (s *FaceStats) RecordImpact(face int, vn, speed, w float64) {
	s.Interactions[face] += w
	if speed > 0 {
		c := math.Max(-1, math.Min(1, vn/speed))
		s.AngleSum[face] += math.Acos(c) * w
	}
	s.VelocitySum[face] += speed * w
}

// MeanAngle returns the mean impact angle of a face, or NaN without impact.
func (s *FaceStats) MeanAngle(face int) float64 {
	if s.Interactions[face] == 0 {
		return math.NaN()
	}
	return s.AngleSum[face] / s.Interactions[face]
}

// TotalInteractions sums the interaction weight over the faces of a zone.
func (s *FaceStats) TotalInteractions(faces []int) float64 {
	v := make([]float64, len(faces))
	for i, f := range faces {
		v[i] = s.Interactions[f]
	}
	return floats.Sum(v)
}

// Stats are all the interaction accumulators of a rank.
type Stats struct {
	Faces *FaceStats
	// FlowRate is the signed particle mass flow per zone, negative for
	// particles leaving the domain.
	FlowRate []float64
	// Exited is the statistical weight leaving through each zone.
	Exited []float64
	// FluidArea is the open area of interior faces of internal deposition
	// zones, reduced by the particles stuck on them.
	FluidArea []float64
}

// NewStats allocates the accumulators of a rank.
func NewStats(nBoundary, nZones int, interiorArea []float64) *Stats {
	fa := make([]float64, len(interiorArea))
	copy(fa, interiorArea)
	return &Stats{
		Faces:     NewFaceStats(nBoundary),
		FlowRate:  make([]float64, nZones),
		Exited:    make([]float64, nZones),
		FluidArea: fa,
	}
}
