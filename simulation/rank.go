package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/config"
	"github.com/notargets/lagtrack/connectivity"
	"github.com/notargets/lagtrack/exchange"
	"github.com/notargets/lagtrack/interaction"
	"github.com/notargets/lagtrack/logging"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/partitions"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/report"
	"github.com/notargets/lagtrack/sde"
	"github.com/notargets/lagtrack/tracking"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// injectEpsilon is the fraction of the way from the face to the cell
// center where injected particles start.
const injectEpsilon = 1e-2

// rank is the state owned by one goroutine.
type rank struct {
	sim      *Simulation
	comm     exchange.Comm
	local    *partitions.Local
	set      *particle.Set
	counters particle.Counters
	stats    *zones.Stats
	prop     *tracking.Propagator
	integ    *sde.Integrator
	sync     *exchange.Syncer
	faceOf   map[int]int // Global boundary face -> local
	nextID   uint64
	log      logrus.FieldLogger
}

func (s *Simulation) newRank(c exchange.Comm) (*rank, error) {
	cfg := s.Config
	l := s.Locals[c.Rank()]
	log := logging.Rank(s.Log, c.Rank())
	tab := s.Zones.Localize(l.BoundaryGlobal, l.InteriorGlobal)

	cells := append([]int(nil), l.CellGlobal...)
	for _, g := range l.Ghosts {
		cells = append(cells, g.Global)
	}
	fl := s.Flow.Restrict(cells, l.BoundaryGlobal)

	ix, err := connectivity.Build(l.Mesh)
	if err != nil {
		return nil, err
	}
	r := &rank{
		sim:    s,
		comm:   c,
		local:  l,
		stats:  zones.NewStats(len(l.Mesh.BoundaryFaces), len(tab.Zones), nil),
		faceOf: make(map[int]int, len(l.BoundaryGlobal)),
		nextID: 1,
		log:    log,
	}
	for i, g := range l.BoundaryGlobal {
		r.faceOf[g] = i
	}

	ph := cfg.Physics
	eng := interaction.NewEngine(l.Mesh, tab, r.stats, &r.counters, interaction.Options{
		Deposition:   ph.Deposition,
		Resuspension: ph.Resuspension,
		Clogging:     ph.Clogging,
	})
	eng.Clogging = interaction.CoverageClogging{
		ContactBarrier: ph.ContactBarrier,
		Limit:          ph.JammingLimit,
		MinPorosity:    ph.MinPorosity,
	}
	eng.Log = log

	r.prop, err = tracking.New(l.Mesh, ix, eng, fl, s.Random, tracking.Options{
		Deposition:  ph.Deposition,
		SecondOrder: cfg.Run.Order == 2,
		MaxPasses:   cfg.Run.MaxPasses,
		Failsafe:    cfg.Run.Failsafe,
	})
	if err != nil {
		return nil, err
	}
	r.prop.Log = log

	r.integ, err = sde.New(l.Mesh, fl, s.Random, &r.counters, r.stats, sde.Options{
		Order:          cfg.Run.Order,
		Brownian:       ph.Brownian,
		Deposition:     ph.Deposition,
		Resuspension:   ph.Resuspension,
		AddedMass:      ph.AddedMass,
		AddedMassConst: ph.AddedMassConst,
		Gravity:        config.Vec(ph.Gravity),
	})
	if err != nil {
		return nil, err
	}
	r.integ.Motion = s.Motion
	r.integ.Log = log

	r.sync, err = exchange.NewSyncer(r.prop, l, c)
	if err != nil {
		return nil, err
	}
	r.sync.Log = log

	r.set = particle.NewSet(particle.Options{
		Deposition:   ph.Deposition,
		Resuspension: ph.Resuspension,
		Clogging:     ph.Clogging,
		SecondOrder:  cfg.Run.Order == 2,
		Temperature:  hasNature(tab, zones.Fouling),
	}, 64)
	return r, nil
}

func hasNature(t *zones.Table, n zones.Nature) bool {
	for _, z := range t.Zones {
		if z.Nature == n {
			return true
		}
	}
	return false
}

func (r *rank) run(ctx context.Context) error {
	cfg := r.sim.Config.Run
	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(step, cfg.Dt); err != nil {
			return err
		}
		last := step == cfg.Steps
		if last || (cfg.Report > 0 && step%cfg.Report == 0) {
			if err := r.report(step, float64(step)*cfg.Dt); err != nil {
				return err
			}
		}
	}
	return nil
}

// step injects the new particles, integrates the trajectories and tracks
// them through the mesh.
func (r *rank) step(step int, dt float64) error {
	r.prop.Step = step
	r.integ.Step = step
	r.inject(step)
	if err := r.integ.Predict(r.set, dt); err != nil {
		return err
	}
	if err := r.prop.Run(r.set, r.sync); err != nil {
		return err
	}
	if err := r.integ.Correct(r.set, dt); err != nil {
		return err
	}
	r.counters.Census(r.set)
	r.log.WithFields(logrus.Fields{
		"step":      step,
		"particles": r.set.Len(),
	}).Debug("step done")
	return nil
}

// inject seeds the particles of every source due at step. All ranks draw
// the same particles and keep those entering through their own faces, so
// the result does not depend on the decomposition.
func (r *rank) inject(step int) {
	ph := r.sim.Config.Physics
	m := r.local.Mesh
	for k := range r.sim.sources {
		src := &r.sim.sources[k]
		if (step-1)%src.Every != 0 {
			continue
		}
		first := r.nextID
		r.nextID += uint64(src.Number)
		mass := src.Density * math.Pi / 6 * math.Pow(src.Diameter, 3)
		v := config.Vec(src.Velocity)
		for id := first; id < r.nextID; id++ {
			global, p := src.pick(r.sim.Mesh, r.sim.Random(id, step, random.StageInjection))
			face, ok := r.faceOf[global]
			if !ok {
				continue
			}
			cell := m.BoundaryFaces[face].Cells[0]
			p = r3.Add(p, r3.Scale(injectEpsilon, r3.Sub(m.CellCenters[cell], p)))
			i := r.set.Append(particle.Record{
				ID:               id,
				Coords:           p,
				PrevCoords:       p,
				StartCoords:      p,
				Velocity:         v,
				PrevVelocity:     v,
				VelocitySeen:     r.prop.Flow.Cell(cell).Velocity,
				PrevVelocitySeen: r.prop.Flow.Cell(cell).Velocity,
				Cell:             particle.InCell(cell),
				Weight:           src.Weight,
				Mass:             mass,
				Diameter:         src.Diameter,
				LastFace:         mesh.NoFace,
				DepositionFlag:   particle.InFlow,
				NeighborFace:     -1,
				Interf:           ph.Interface,
				Marko:            particle.PhaseOutside,
				Temperature:      src.Temperature,
			})
			if ph.Deposition {
				r.prop.WallCell(r.set, i)
				r.prop.UpdatePhase(r.set, i)
			}
			r.counters.Injected.Add(src.Weight)
			r.stats.FlowRate[src.zone] += src.Weight * mass
		}
	}
}

// report reduces the counters and statistics of all ranks. Rank 0 logs
// the result and keeps it.
func (r *rank) report(step int, time float64) error {
	cv, err := r.comm.AllReduceSum(r.counters.Values())
	if err != nil {
		return fmt.Errorf("step %d: reducing counters: %w", step, err)
	}
	sim := r.sim
	nz := len(sim.Zones.Zones)
	g := zones.NewStats(len(sim.Mesh.BoundaryFaces), nz, nil)
	g.Faces.Scatter(r.stats.Faces, r.local.BoundaryGlobal)
	v := append(g.Faces.Values(), r.stats.FlowRate...)
	v = append(v, r.stats.Exited...)
	sum, err := r.comm.AllReduceSum(v)
	if err != nil {
		return fmt.Errorf("step %d: reducing statistics: %w", step, err)
	}
	nf := len(sum) - 2*nz
	if err := g.Faces.SetValues(sum[:nf]); err != nil {
		return err
	}
	copy(g.FlowRate, sum[nf:nf+nz])
	copy(g.Exited, sum[nf+nz:])
	if r.comm.Rank() != 0 {
		return nil
	}

	rep, err := report.New(step, time, particle.CountersFromValues(cv), sim.Mesh, sim.Zones, g)
	if err != nil {
		return err
	}
	sim.Reports = append(sim.Reports, rep)
	r.log.WithFields(rep.Fields()).Info("particle balance")
	if sim.Out != nil {
		return rep.Write(sim.Out)
	}
	return nil
}
