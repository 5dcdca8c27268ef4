// Package interaction implements what happens to a particle when its
// trajectory meets a boundary face or an internal deposition face.
package interaction

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/zones"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// wallEpsilon is the fraction of the way from the impact point to the
	// cell center where wall-held particles are placed.
	wallEpsilon = 1e-2
	kelvin      = 273.15
)

var (
	ErrUnknownZone      = errors.New("unknown zone nature")
	ErrClusterAnomaly   = errors.New("no deposited particle found to form a cluster")
	ErrFoulingViscosity = errors.New("fouling viscosity cannot be computed")
)

// Options select the wall models in use.
type Options struct {
	Deposition   bool
	Resuspension bool
	Clogging     bool
}

// Outcome tells the propagator what to do after an interaction.
type Outcome struct {
	Move  bool // Tracking continues with the (possibly modified) segment
	State particle.TrackingState
}

// Engine applies face interactions to the particles of one rank. It
// mutates the rank's statistics and counters and must not be shared
// between goroutines.
type Engine struct {
	Mesh     *mesh.Mesh
	Zones    *zones.Table
	Stats    *zones.Stats
	Counters *particle.Counters
	Opts     Options
	Adhesion Adhesion
	Clogging Clogging
	Log      logrus.FieldLogger
}

// NewEngine returns an engine with a constant energy barrier and the
// coverage clogging model.
func NewEngine(m *mesh.Mesh, z *zones.Table, stats *zones.Stats, counters *particle.Counters, opts Options) *Engine {
	return &Engine{
		Mesh:     m,
		Zones:    z,
		Stats:    stats,
		Counters: counters,
		Opts:     opts,
		Adhesion: ConstantBarrier{},
		Clogging: CoverageClogging{Limit: 0.9069, MinPorosity: 0.366},
		Log:      logrus.StandardLogger(),
	}
}

// impact gathers the geometry of a crossing.
type impact struct {
	face   *mesh.Face
	point  r3.Vec
	cell   int // Cell the particle is in when it meets the face
	weight float64
	mass   float64
	diam   float64
}

func (e *Engine) impactOf(set *particle.Set, i int, f *mesh.Face, t float64) impact {
	start := set.StartCoords[i]
	disp := r3.Sub(set.Coords[i], start)
	return impact{
		face:   f,
		point:  r3.Add(start, r3.Scale(t, disp)),
		cell:   set.Cell[i].ID,
		weight: set.Weight[i],
		mass:   set.Mass[i],
		diam:   set.Diameter[i],
	}
}

// pin returns the impact point moved slightly toward the cell center.
func (e *Engine) pin(im impact) r3.Vec {
	cen := e.Mesh.CellCenters[im.cell]
	return r3.Add(im.point, r3.Scale(wallEpsilon, r3.Sub(cen, im.point)))
}

// Boundary treats the crossing of boundary face at fraction t of the
// current segment.
func (e *Engine) Boundary(set *particle.Set, i, face int, t float64, d random.Drawer) (Outcome, error) {
	f := &e.Mesh.BoundaryFaces[face]
	zid, z := e.Zones.BoundaryZone(face)
	im := e.impactOf(set, i, f, t)
	faceCell := f.Cells[0]
	v0 := set.Velocity[i]
	out := Outcome{Move: true, State: particle.ToSync}

	switch z.Nature {
	case zones.Outlet, zones.Inlet, zones.Depo1:
		out = Outcome{Move: false, State: particle.Out}
		if z.Nature == zones.Depo1 {
			e.Counters.Deposited.Add(im.weight)
			if e.Opts.Deposition {
				setFlag(set, i, particle.Deposited)
			}
		} else {
			e.Stats.Exited[zid] += im.weight
			e.Counters.Exited.Add(im.weight)
		}
		e.Stats.FlowRate[zid] -= im.weight * im.mass
		set.Coords[i] = im.point

	case zones.Depo2:
		out.Move = false
		set.Velocity[i] = r3.Vec{}
		set.Coords[i] = e.pin(im)
		e.Counters.Attached.Add(im.weight)
		setFlag(set, i, particle.Deposited)
		if e.Opts.Resuspension {
			adhere(set, i, z, im.diam)
			set.Cell[i] = particle.InCell(faceCell)
			out.State = particle.Treated
		} else {
			set.Cell[i] = particle.StuckIn(im.cell)
			set.VelocitySeen[i] = r3.Vec{}
			out.State = particle.Stuck
		}

	case zones.DepoDLVO:
		var err error
		if out, err = e.dlvo(set, i, face, z, im, d); err != nil {
			return out, err
		}

	case zones.Rebound, zones.Symmetry:
		e.reflect(set, i, im, faceCell)

	case zones.Fouling:
		captured, err := e.foul(set, i, face, z, im, d)
		if err != nil {
			return out, err
		}
		if captured {
			out = Outcome{Move: false, State: particle.Out}
		} else {
			e.reflect(set, i, im, faceCell)
		}

	default:
		return out, fmt.Errorf("%w: zone %q (%v) on boundary face %d", ErrUnknownZone, z.Name, z.Nature, face)
	}

	if set.DepositionFlag != nil && set.DepositionFlag[i].OnWall() {
		set.Cell[i] = particle.Cell{Kind: set.Cell[i].Kind, ID: faceCell}
		set.NeighborFace[i] = face
	}

	if z.Nature.IsWall() {
		e.Stats.Faces.RecordImpact(face, r3.Dot(v0, f.Normal), r3.Norm(v0), im.weight)
	}
	return out, nil
}

// reflect mirrors the remaining segment, velocity and seen velocity about
// the face and restarts the segment just inside the cell.
func (e *Engine) reflect(set *particle.Set, i int, im impact, faceCell int) {
	n := im.face.Normal
	set.StartCoords[i] = e.pin(im)
	set.Cell[i] = particle.InCell(faceCell)
	set.Coords[i] = geometry.ReflectPoint(set.Coords[i], im.point, n)
	set.Velocity[i] = geometry.Reflect(set.Velocity[i], n)
	set.VelocitySeen[i] = geometry.Reflect(set.VelocitySeen[i], n)
}

func (e *Engine) dlvo(set *particle.Set, i, face int, z *zones.Zone, im impact, d random.Drawer) (Outcome, error) {
	faceCell := im.face.Cells[0]
	set.Cell[i] = particle.InCell(faceCell)

	vn := r3.Dot(set.Velocity[i], im.face.Normal)
	energy := 0.5 * im.mass * vn * vn

	var c Contact
	if e.Opts.Clogging {
		c = e.Clogging.Contacts(z, e.Stats.Faces.Coverage[face], im.diam, d)
	} else {
		c.Barrier = e.Adhesion.Barrier(z, im.diam)
	}

	if energy <= c.Barrier*0.5*im.diam {
		setFlag(set, i, particle.InFlow)
		e.reflect(set, i, im, faceCell)
		return Outcome{Move: true, State: particle.ToSync}, nil
	}

	if e.Opts.Clogging {
		return e.clog(set, i, face, im, c, d)
	}

	setFlag(set, i, particle.Deposited)
	set.Velocity[i] = r3.Vec{}
	set.Coords[i] = e.pin(im)
	e.Counters.Attached.Add(im.weight)
	if e.Opts.Resuspension {
		adhere(set, i, z, im.diam)
		return Outcome{Move: false, State: particle.Treated}, nil
	}
	set.Cell[i] = particle.StuckIn(faceCell)
	return Outcome{Move: false, State: particle.Stuck}, nil
}

// clog deposits a particle on a face subject to clogging, either on the
// bare surface or merged into a deposited particle picked with a
// probability proportional to its share of the covered surface.
func (e *Engine) clog(set *particle.Set, i, face int, im impact, c Contact, d random.Drawer) (Outcome, error) {
	fs := e.Stats.Faces
	area := im.face.Area
	w, m, diam := im.weight, im.mass, im.diam

	fs.ClogTotal[face] += w
	fs.DiameterSum[face] += diam

	if c.Count == 0 {
		h := set.Height[i]
		disk := math.Pi * diam * diam / 4
		fs.Coverage[face] += disk * w / area
		fs.HeightMean[face] += h * disk / area
		fs.HeightVar[face] += math.Pow(h*disk/area, 2)
		fs.ClogNaked[face] += w

		set.Coords[i] = e.pin(im)
		set.Velocity[i] = r3.Vec{}
		set.VelocitySeen[i] = r3.Vec{}
		setFlag(set, i, particle.Deposited)
		set.Cell[i] = particle.InCell(im.face.Cells[0])
		if set.NeighborFace != nil {
			set.NeighborFace[i] = face
		}
		e.Counters.Attached.Add(w)
		return Outcome{Move: false, State: particle.Treated}, nil
	}

	j := pickCluster(set, i, face, area, fs.Coverage[face], d)
	if j < 0 {
		e.Log.WithFields(logrus.Fields{
			"particle": set.ID[i],
			"face":     face,
			"coverage": fs.Coverage[face],
		}).Error("clustering found no deposited particle on the face")
		return Outcome{Move: false, State: particle.Err},
			fmt.Errorf("%w: boundary face %d, coverage %g", ErrClusterAnomaly, face, fs.Coverage[face])
	}

	dc, wc, mc, hc := set.Diameter[j], set.Weight[j], set.Mass[j], set.Height[j]
	share := func(h, dc float64) (mean, vr float64) {
		a := h * math.Pi * dc * dc / (4 * area)
		return a, a * a
	}
	mean, vr := share(hc, dc)
	fs.HeightMean[face] -= mean
	fs.HeightVar[face] -= vr

	merged := (wc*mc + w*m) / (mc + m)
	if fs.Coverage[face] >= c.Limit {
		set.Height[j] = hc + diam*diam*diam/(dc*dc)/(1-c.MinPorosity)
		set.Weight[j] = merged
	} else {
		fs.Coverage[face] -= math.Pi * dc * dc / 4 * wc / area
		dc = math.Cbrt(dc*dc*dc + diam*diam*diam/(1-c.MinPorosity))
		set.Diameter[j] = dc
		set.Weight[j] = merged
		fs.Coverage[face] += math.Pi * dc * dc / 4 * merged / area
		set.Height[j] = dc
	}
	set.Mass[j] = mc + m
	set.ClusterNbPart[j]++

	mean, vr = share(set.Height[j], dc)
	fs.HeightMean[face] += mean
	fs.HeightVar[face] += vr

	e.Counters.Deposited.Add(w)
	return Outcome{Move: false, State: particle.Out}, nil
}

// pickCluster draws a deposited particle of face other than i, or returns
// -1 when the cumulative coverage of the face never reaches the draw.
func pickCluster(set *particle.Set, i, face int, area, coverage float64, d random.Drawer) int {
	if set.DepositionFlag == nil {
		return -1
	}
	target := d.Uniform() * coverage
	var cand []int
	var cover []float64
	for j := 0; j < set.Len(); j++ {
		if j == i || !set.State[j].Kept() {
			continue
		}
		if set.DepositionFlag[j] == particle.InFlow || set.NeighborFace[j] != face {
			continue
		}
		cand = append(cand, j)
		cover = append(cover, math.Pi*set.Diameter[j]*set.Diameter[j]/4*set.Weight[j]/area)
	}
	if len(cand) == 0 {
		return -1
	}
	cdf := floats.CumSum(cover, cover)
	if k := sort.SearchFloat64s(cdf, target); k < len(cand) {
		return cand[k]
	}
	return -1
}

// foul decides the capture of a particle on a fouling face. A particle
// hotter than the zone threshold is captured with a probability given by
// the ratio of the critical viscosity to its own.
func (e *Engine) foul(set *particle.Set, i, face int, z *zones.Zone, im impact, d random.Drawer) (bool, error) {
	var temp float64
	if set.Temperature != nil {
		temp = set.Temperature[i]
	}
	fp := z.Fouling
	if temp <= fp.TPrenc+kelvin {
		return false, nil
	}
	dt := temp - 150 - kelvin
	exponent := 1e7*fp.Enc1/(dt*dt) + fp.Enc2
	if exponent <= 0 {
		return false, fmt.Errorf("%w: exponent %g on face %d", ErrFoulingViscosity, exponent, face)
	}
	visc := 0.1 * math.Pow(10, exponent)
	captured := visc <= fp.ViscRef
	if !captured {
		trap := 1 - fp.ViscRef/visc
		captured = d.Uniform() >= trap
	}
	if !captured {
		return false, nil
	}

	w := im.weight
	fs := e.Stats.Faces
	e.Counters.Fouled.Add(w)
	fs.FoulNumber[face] += w
	fs.FoulMass[face] += w * im.mass / im.face.Area
	fs.FoulDiameter[face] += w * im.diam
	set.Coords[i] = im.point
	set.Velocity[i] = r3.Vec{}
	set.VelocitySeen[i] = r3.Vec{}
	return true, nil
}

// Internal treats the crossing of an interior face. Faces outside internal
// zones let the particle through.
func (e *Engine) Internal(set *particle.Set, i, face int, t float64) (Outcome, error) {
	out := Outcome{Move: true, State: particle.ToSync}
	zid, z := e.Zones.InternalZone(face)
	if z == nil {
		return out, nil
	}
	f := &e.Mesh.InteriorFaces[face]
	im := e.impactOf(set, i, f, t)

	switch z.Nature {
	case zones.Outlet, zones.Inlet:
		set.Coords[i] = im.point
		e.Stats.FlowRate[zid] -= im.weight * im.mass
		e.Stats.Exited[zid] += im.weight
		e.Counters.Exited.Add(im.weight)
		return Outcome{Move: false, State: particle.Out}, nil

	case zones.DepoDLVO:
		vn := r3.Dot(set.Velocity[i], f.Normal)
		energy := 0.5 * im.mass * vn * vn
		if energy <= e.Adhesion.Barrier(z, im.diam)*0.5*im.diam {
			return out, nil
		}
		set.Velocity[i] = r3.Vec{}
		set.VelocitySeen[i] = r3.Vec{}
		set.Coords[i] = e.pin(im)
		setFlag(set, i, particle.ImposedMotion)
		if set.NeighborFace != nil {
			set.NeighborFace[i] = face
		}
		e.Counters.Attached.Add(im.weight)
		if e.Opts.Resuspension {
			return Outcome{Move: false, State: particle.Treated}, nil
		}
		set.Cell[i] = particle.StuckIn(im.cell)
		return Outcome{Move: false, State: particle.Stuck}, nil
	}
	return out, fmt.Errorf("%w: zone %q (%v) on interior face %d", ErrUnknownZone, z.Name, z.Nature, face)
}

func setFlag(set *particle.Set, i int, f particle.DepositionFlag) {
	if set.DepositionFlag != nil {
		set.DepositionFlag[i] = f
	}
}
