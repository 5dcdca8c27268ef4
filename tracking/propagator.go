// Package tracking walks particle trajectories through the cells of a
// rank-local mesh, handing face crossings to the interaction engine.
package tracking

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/lagtrack/connectivity"
	"github.com/notargets/lagtrack/flow"
	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/interaction"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxPasses bounds the cells a particle may visit in one step,
	// counted across exchange passes.
	DefaultMaxPasses = 100
	// BoundaryLayer is the wall distance, in wall units, under which the
	// deposition model applies.
	BoundaryLayer = 100.0
	// noWall is the wall distance of a particle with no deposition face in
	// its cell.
	noWall = 10000.0

	minMove    = 1e-15
	crossNudge = 1e-8
)

var (
	ErrLost      = errors.New("particle is not inside its cell")
	ErrMaxPasses = errors.New("maximum number of propagation passes reached")
)

// Options configure a propagator.
type Options struct {
	Deposition  bool
	SecondOrder bool
	MaxPasses   int
	// Failsafe turns a lost particle into an error for the whole step
	// instead of discarding the particle.
	Failsafe bool
}

// Propagator moves the particles of one rank through its mesh. It is not
// safe for concurrent use.
type Propagator struct {
	Mesh     *mesh.Mesh
	Index    *connectivity.Index
	Zones    *zones.Table
	Flow     flow.Field
	Engine   *interaction.Engine
	Counters *particle.Counters
	Random   random.Factory
	Opts     Options
	Step     int
	Log      logrus.FieldLogger
}

// New checks the index against the mesh and returns a propagator.
func New(m *mesh.Mesh, ix *connectivity.Index, eng *interaction.Engine, fl flow.Field, rnd random.Factory, opts Options) (*Propagator, error) {
	if err := ix.Verify(m); err != nil {
		return nil, fmt.Errorf("connectivity does not match mesh: %w", err)
	}
	if opts.Deposition && fl == nil {
		return nil, errors.New("deposition needs a flow field")
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	return &Propagator{
		Mesh:     m,
		Index:    ix,
		Zones:    eng.Zones,
		Flow:     fl,
		Engine:   eng,
		Counters: eng.Counters,
		Random:   rnd,
		Opts:     opts,
		Log:      logrus.StandardLogger(),
	}, nil
}

// Move propagates particle i along the segment StartCoords->Coords until
// it stops in a cell, leaves the rank or is removed.
func (p *Propagator) Move(set *particle.Set, i int) (particle.TrackingState, error) {
	cell := set.Cell[i].ID
	disp := r3.Sub(set.Coords[i], set.StartCoords[i])
	inv := 1 / math.Cbrt(p.Mesh.CellVolumes[cell])
	if math.Abs(disp.X*inv) < minMove && math.Abs(disp.Y*inv) < minMove && math.Abs(disp.Z*inv) < minMove {
		return particle.Treated, nil
	}

	var d random.Drawer
	for {
		cell = set.Cell[i].ID
		set.Passes[i]++
		if set.Passes[i] > p.Opts.MaxPasses {
			return p.lose(set, i, ErrMaxPasses)
		}

		// returning from another rank with a stale wall distance
		if p.Opts.Deposition && set.Yplus[i] < 0 {
			p.WallCell(set, i)
			if set.Yplus[i] < BoundaryLayer {
				p.projectSeen(set, i, cell)
			}
		}

		exit, t, ok := p.exitFace(set, i, cell)
		if !ok {
			p.Log.WithFields(logrus.Fields{
				"particle": set.ID[i],
				"cell":     cell,
			}).Warn("particle not in its cell, restarting from the cell center")
			set.StartCoords[i] = p.Mesh.CellCenters[cell]
			if exit, t, ok = p.exitFace(set, i, cell); !ok {
				return p.lose(set, i, ErrLost)
			}
		}

		switch {
		case exit.IsNone():
			return particle.Treated, nil

		case exit.IsInterior():
			face := exit.ID()
			set.LastFace[i] = exit
			out, err := p.Engine.Internal(set, i, face, t)
			if err != nil {
				return particle.Err, err
			}
			if !out.Move {
				return out.State, nil
			}
			f := &p.Mesh.InteriorFaces[face]
			next := f.Cells[0]
			if next == cell {
				next = f.Cells[1]
			}
			set.Cell[i] = particle.InCell(next)

			if p.Mesh.IsGhost(next) {
				if p.Opts.Deposition && set.Yplus[i] < BoundaryLayer {
					set.Yplus[i] = -set.Yplus[i]
				}
				return particle.ToSync, nil
			}
			if p.Opts.Deposition {
				saved := set.Yplus[i]
				p.WallCell(set, i)
				if saved < BoundaryLayer {
					k := geometry.Lerp(set.StartCoords[i], set.Coords[i], t)
					set.Coords[i] = geometry.Lerp(k, p.Mesh.CellCenters[next], crossNudge)
					if set.Yplus[i] < BoundaryLayer {
						p.projectSeen(set, i, next)
					}
					return particle.Treated, nil
				}
			}

		default:
			face := exit.ID()
			if d == nil {
				d = p.Random(set.ID[i], p.Step, random.StageInteraction)
			}
			out, err := p.Engine.Boundary(set, i, face, t, d)
			if p.Opts.SecondOrder {
				set.SwitchOrder1[i] = true
			}
			set.LastFace[i] = exit
			if err != nil {
				return particle.Err, err
			}
			if !out.Move {
				return out.State, nil
			}
		}
	}
}

// exitFace finds the face through which the segment leaves cell with the
// smallest crossing fraction. ok is false when the segment origin does not
// lie in the cell.
func (p *Propagator) exitFace(set *particle.Set, i, cell int) (mesh.FaceRef, float64, bool) {
	prev, next := set.StartCoords[i], set.Coords[i]
	cen := p.Mesh.CellCenters[cell]
	var c geometry.Crossing
	exit := mesh.NoFace
	tMin := 1.0
	for _, ref := range p.Index.CellFaces(cell) {
		f := p.Mesh.Face(ref)
		reorient := 1
		if ref.IsInterior() && f.Cells[1] == cell {
			reorient = -1
		}
		t := geometry.IntersectFace(p.Mesh.Polygon(f), prev, next, cen, reorient, &c)
		if t < tMin {
			tMin = t
			exit = ref
		}
	}
	return exit, tMin, c.Inside()
}

func (p *Propagator) lose(set *particle.Set, i int, cause error) (particle.TrackingState, error) {
	log := p.Log.WithFields(logrus.Fields{
		"particle": set.ID[i],
		"cell":     set.Cell[i].ID,
		"passes":   set.Passes[i],
	})
	set.Cell[i] = particle.PendingDelete()
	if p.Opts.Failsafe {
		log.Error(cause)
		return particle.Err, fmt.Errorf("particle %d: %w", set.ID[i], cause)
	}
	log.Warnf("%v, particle removed", cause)
	return particle.Err, nil
}

// WallCell sets the wall distance of particle i, in wall units, to the
// nearest deposition face of its cell, and records that face. Stuck
// particles keep their values.
func (p *Propagator) WallCell(set *particle.Set, i int) {
	c := set.Cell[i]
	if !c.IsActive() {
		return
	}
	yplus, nearest := noWall, -1
	x := set.Coords[i]
	for _, ref := range p.Index.CellFaces(c.ID) {
		if !ref.IsBoundary() {
			continue
		}
		face := ref.ID()
		if _, z := p.Zones.BoundaryZone(face); !z.Nature.IsDeposition() {
			continue
		}
		f := &p.Mesh.BoundaryFaces[face]
		dist := math.Abs(r3.Dot(f.Normal, r3.Sub(x, f.Cog))) / p.Flow.Wall(face).ViscousLength
		if dist < yplus {
			yplus, nearest = dist, face
		}
	}
	set.Yplus[i] = yplus
	set.NeighborFace[i] = nearest
}

// projectSeen keeps the wall-normal seen velocity of particle i and takes
// its tangential part from the fluid velocity of cell.
func (p *Propagator) projectSeen(set *particle.Set, i, cell int) {
	face := set.NeighborFace[i]
	if face < 0 {
		return
	}
	fr := geometry.NewWallFrame(p.Mesh.BoundaryFaces[face].Normal)
	u := p.Flow.Cell(cell).Velocity
	vs := set.VelocitySeen[i]
	set.VelocitySeen[i] = r3.Add(r3.Scale(r3.Dot(vs, fr.E1), fr.E1),
		r3.Add(r3.Scale(r3.Dot(u, fr.E2), fr.E2), r3.Scale(r3.Dot(u, fr.E3), fr.E3)))
}
