// Package simulation assembles a run from its configuration and advances
// the particles of every rank in time.
package simulation

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/notargets/lagtrack/config"
	"github.com/notargets/lagtrack/exchange"
	"github.com/notargets/lagtrack/flow"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/partitions"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/report"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Simulation is a configured run. The global mesh, zone table and flow are
// shared read-only by the ranks.
type Simulation struct {
	Config *config.Config
	Mesh   *mesh.Mesh
	Zones  *zones.Table
	Flow   *flow.Sampled
	Locals []*partitions.Local
	Random random.Factory
	// Motion displaces particles held by internal deposition faces.
	Motion func(x r3.Vec, dt float64) r3.Vec
	// Out receives the report tables, if set.
	Out     io.Writer
	Log     logrus.FieldLogger
	Reports []report.Step

	sources []source
}

// source is an injection on the faces of a zone.
type source struct {
	config.Injection
	zone  int
	faces []int     // Global boundary faces
	cdf   []float64 // Cumulative area fraction of faces
}

// New builds the mesh, the decomposition and the injection sources of c.
func New(c *config.Config, log logrus.FieldLogger) (*Simulation, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m, etop, err := buildMesh(c.Mesh)
	if err != nil {
		return nil, err
	}
	zs, err := c.ZoneList()
	if err != nil {
		return nil, err
	}
	per, err := c.Periodicities()
	if err != nil {
		return nil, err
	}
	for _, p := range per {
		for _, g := range []string{p.Group1, p.Group2} {
			if !hasZone(zs, g) {
				zs = append(zs, zones.Zone{Name: g, Nature: zones.None})
			}
		}
	}
	tab, err := zones.NewTable(m, zs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if err := tab.Validate(m); err != nil {
		return nil, err
	}

	layout, err := decompose(m, etop, c.Run)
	if err != nil {
		return nil, err
	}
	if ps := layout.PartitionStatistics(); ps.Imbalance > 1.5 {
		log.WithFields(logrus.Fields{
			"min":       ps.MinCells,
			"max":       ps.MaxCells,
			"imbalance": ps.Imbalance,
		}).Warn("unbalanced decomposition")
	}
	locals, err := partitions.Split(m, layout, per)
	if err != nil {
		return nil, err
	}
	if err := partitions.ValidateHalo(locals); err != nil {
		return nil, err
	}

	uni, err := flow.NewUniform(c.Flow.Cell(), c.Flow.FrictionVelocity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	s := &Simulation{
		Config: c,
		Mesh:   m,
		Zones:  tab,
		Flow:   flow.Sample(uni, m.NumCells, len(m.BoundaryFaces)),
		Locals: locals,
		Random: random.Seeded(c.Run.Seed),
		Log:    log,
	}
	for _, in := range c.Injections {
		src, err := s.newSource(in)
		if err != nil {
			return nil, err
		}
		s.sources = append(s.sources, src)
	}
	log.WithFields(logrus.Fields{
		"cells":  m.NumCells,
		"faces":  len(m.BoundaryFaces) + len(m.InteriorFaces),
		"ranks":  len(locals),
		"zones":  len(tab.Zones),
		"inject": len(s.sources),
	}).Info("simulation ready")
	return s, nil
}

func hasZone(zs []zones.Zone, name string) bool {
	for _, z := range zs {
		if z.Name == name {
			return true
		}
	}
	return false
}

func buildMesh(c config.Mesh) (*mesh.Mesh, []int, error) {
	if c.File != "" {
		return mesh.ReadFile(c.File)
	}
	m, err := mesh.NewBox(c.Cells[0], c.Cells[1], c.Cells[2], config.Vec(c.Lo), config.Vec(c.Hi))
	return m, nil, err
}

// decompose uses the partition map of the mesh file when it matches the
// number of ranks, and the configured strategy otherwise.
func decompose(m *mesh.Mesh, etop []int, r config.Run) (*partitions.PartitionLayout, error) {
	if etop != nil && floats.Max(toFloats(etop)) == float64(r.Ranks-1) {
		return partitions.NewLayout(etop, r.Ranks)
	}
	st, err := partitions.ParseStrategy(r.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	pb := &partitions.PartitionBuilder{Mesh: m, NumPartitions: r.Ranks, Strategy: st}
	return pb.BuildPartitions()
}

func toFloats(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func (s *Simulation) newSource(in config.Injection) (source, error) {
	z := -1
	for k, zone := range s.Zones.Zones {
		if zone.Name == in.Zone {
			z = k
			break
		}
	}
	src := source{Injection: in, zone: z}
	var area []float64
	for f, fz := range s.Zones.Boundary {
		if fz == z {
			src.faces = append(src.faces, f)
			area = append(area, s.Mesh.BoundaryFaces[f].Area)
		}
	}
	if len(src.faces) == 0 {
		return source{}, fmt.Errorf("%w: injection zone %q has no boundary face", config.ErrInvalid, in.Zone)
	}
	src.cdf = floats.CumSum(make([]float64, len(area)), area)
	floats.Scale(1/src.cdf[len(src.cdf)-1], src.cdf)
	return src, nil
}

// pick returns the global face and the point on it where a particle drawn
// with d enters. Faces are chosen in proportion to their area and points
// uniformly on the triangles fanning from the face center.
func (src *source) pick(m *mesh.Mesh, d random.Drawer) (int, r3.Vec) {
	k := sort.SearchFloat64s(src.cdf, d.Uniform())
	if k >= len(src.faces) {
		k = len(src.faces) - 1
	}
	face := src.faces[k]
	f := &m.BoundaryFaces[face]
	n := len(f.Vertices)
	tri := make([]float64, n)
	for j := range f.Vertices {
		a := r3.Sub(m.Vertices[f.Vertices[j]], f.Cog)
		b := r3.Sub(m.Vertices[f.Vertices[(j+1)%n]], f.Cog)
		tri[j] = r3.Norm(r3.Cross(a, b))
	}
	floats.CumSum(tri, tri)
	floats.Scale(1/tri[n-1], tri)
	j := sort.SearchFloat64s(tri, d.Uniform())
	if j >= n {
		j = n - 1
	}
	a := m.Vertices[f.Vertices[j]]
	b := m.Vertices[f.Vertices[(j+1)%n]]
	r1 := math.Sqrt(d.Uniform())
	r2 := d.Uniform()
	p := r3.Add(r3.Scale(1-r1, f.Cog), r3.Add(r3.Scale(r1*(1-r2), a), r3.Scale(r1*r2, b)))
	return face, p
}

// Run advances all ranks over the configured number of steps. The first
// failing rank stops the others.
func (s *Simulation) Run(ctx context.Context) error {
	w, err := exchange.NewWorld(len(s.Locals))
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, w.Abort)
	defer stop()
	err = w.Run(func(c exchange.Comm) error {
		r, err := s.newRank(c)
		if err != nil {
			return err
		}
		return r.run(ctx)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
