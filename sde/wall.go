package sde

import (
	"math"

	"github.com/notargets/lagtrack/deposition"
	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Drag corrections on a sphere touching a wall, normal and tangential.
	wallDragNormal     = 3.39
	wallDragTangential = 1.7
	wallTorque         = 1.4
	// maxLiftOff caps the wall-normal velocity of a resuspended particle.
	maxLiftOff = 0.001
)

// wallTurbulence returns the turbulent energy and dissipation of the
// boundary layer at yplus.
func wallTurbulence(yplus, ustar, nu float64) (k, eps float64) {
	u2 := ustar * ustar
	switch {
	case yplus <= 5:
		return 0.1 * yplus * yplus * u2, 0.2 * u2 * u2 / nu
	case yplus <= 30:
		return u2 / 0.3, 0.2 * u2 * u2 / nu
	default:
		return u2 / 0.3, u2 * u2 / (0.41 * yplus * nu)
	}
}

// logLaw returns the mean tangential velocity of the layer at yplus, in
// units of the friction velocity.
func logLaw(yplus float64) float64 {
	switch {
	case yplus <= 5:
		return yplus
	case yplus <= 30:
		return -3.05 + 5*math.Log(yplus)
	default:
		return 2.5*math.Log(yplus) + 5.5
	}
}

// wallStep integrates particle i in the frame of its deposition face: the
// wall-normal motion follows the boundary layer model and the tangential
// one the Langevin model with the layer profiles. Particles on the wall
// only move through resuspension.
func (it *Integrator) wallStep(set *particle.Set, i int, dt float64, fz frozen) error {
	face := set.NeighborFace[i]
	if face < 0 {
		set.Coords[i] = set.PrevCoords[i]
		set.Velocity[i] = r3.Vec{}
		return nil
	}
	w := it.Flow.Wall(face)
	ustar := w.FrictionVelocity
	nu := fz.cell.KinematicViscosity()
	yplus := set.Yplus[i]
	taup := fz.ch.Taup
	d := set.Diameter[i]

	fr := geometry.NewWallFrame(it.Mesh.BoundaryFaces[face].Normal)
	local := func(v r3.Vec) [3]float64 { return geometry.ToArray(fr.ToLocal(v)) }
	vp := local(set.Velocity[i])
	vs := local(set.VelocitySeen[i])
	g := local(it.Opts.Gravity)
	uf := local(fz.cell.Velocity)
	gradp := local(fz.cell.PressureGradient)
	piil := local(fz.ch.Piil)

	ut := logLaw(yplus) * ustar
	if n := math.Hypot(uf[1], uf[2]); ut > 0 && n > 0 {
		uf[1] *= ut / n
		uf[2] *= ut / n
	} else {
		uf[1], uf[2] = 0, 0
	}

	k, eps := wallTurbulence(yplus, ustar, nu)
	tlp := epzero
	var bxp float64
	if k > 0 && eps > 0 {
		cl := 1 / (0.5 + 0.75*C0)
		tlp = math.Max(cl*k/eps, epzero)
		bxp = math.Sqrt(C0 * eps)
	}
	tlp = separate(tlp, taup)
	turb := it.Random(set.ID[i], it.Step, random.StageTurbulence)

	var depl [3]float64
	if set.DepositionFlag[i] == particle.InFlow {
		ns, err := it.normalStep(set, i, dt, fz, ustar, w.ViscousLength, vp[0], vs[0], deposition.Forcing{
			Gravity:          g[0],
			FluidVelocity:    uf[0],
			PressureGradient: gradp[0],
			Piil:             piil[0],
			Diameter:         d,
			Density:          fz.rho,
			Taup:             taup,
		})
		if err != nil {
			return err
		}
		depl[0], vp[0], vs[0] = ns.Displacement, ns.velocity, ns.seen
		for c := 1; c < 3; c++ {
			gc := [3]float64{turb.Normal(), turb.Normal(), turb.Normal()}
			tci := piil[c]*tlp + uf[c]
			force := (-gradp[c]/fz.rho + g[c]) * taup
			depl[c], vp[c], vs[c] = deposition.Advance(dt, taup, tlp, bxp, vp[c], vs[c], tci, force, gc)
		}
	} else {
		vp[0] = 0
		e := math.Exp(-dt / tlp)
		sd := bxp * math.Sqrt(0.5*tlp*(1-e*e))
		for c := 1; c < 3; c++ {
			tci := piil[c]*tlp + uf[c]
			vs[c] = vs[c]*e + tci*(1-e) + sd*turb.Normal()
		}
		if it.Opts.Resuspension {
			it.resuspend(set, i, dt, fz, &vp, &vs, &depl)
		} else {
			vp[1], vp[2] = 0, 0
			vs[1], vs[2] = 0, 0
		}
	}

	set.Coords[i] = r3.Add(set.PrevCoords[i], fr.ToGlobal(geometry.FromArray(depl)))
	set.Velocity[i] = fr.ToGlobal(geometry.FromArray(vp))
	set.VelocitySeen[i] = fr.ToGlobal(geometry.FromArray(vs))
	return nil
}

type normal struct {
	deposition.Result
	velocity, seen float64
}

// normalStep runs the boundary layer model on the wall-normal component of
// particle i and stores its phase back.
func (it *Integrator) normalStep(set *particle.Set, i int, dt float64, fz frozen, ustar, lv, vp, vs float64, f deposition.Forcing) (normal, error) {
	tv := 1 / epzero
	if ustar > 0 {
		tv = lv / ustar
	}
	wall := deposition.Wall{
		ViscousLength:   lv,
		ViscousTime:     tv,
		TurbulentEnergy: fz.cell.TurbulentEnergy,
	}
	if it.Opts.Brownian {
		wall.Temperature = fz.cell.Temperature
	}
	model, err := deposition.New(wall)
	if err != nil {
		return normal{}, err
	}
	s := deposition.State{
		Phase:     set.Marko[i],
		Yplus:     set.Yplus[i],
		Interface: set.Interf[i],
		Velocity:  vp,
		Seen:      vs,
	}
	deposition.Enter(&s)
	res, err := model.Step(dt, &s, f, it.Random(set.ID[i], it.Step, random.StageDeposition))
	if err != nil {
		return normal{}, err
	}
	if res.Capped {
		it.Log.WithFields(logrus.Fields{
			"step":     it.Step,
			"particle": set.ID[i],
		}).Debug("phase transitions capped, particle placed on the layer interface")
	}
	set.Marko[i] = s.Phase
	set.Yplus[i] = s.Yplus
	return normal{Result: res, velocity: s.Velocity, seen: s.Seen}, nil
}

// resuspend weighs the hydrodynamic drag and torque on a particle resting
// on the wall against its adhesion. The particle lifts off, rolls along the
// wall or stays in place. Vectors are in the wall frame.
func (it *Integrator) resuspend(set *particle.Set, i int, dt float64, fz frozen, vp, vs, depl *[3]float64) {
	d := set.Diameter[i]
	m := set.Mass[i]
	r := 0.5 * d
	mu := fz.cell.Viscosity

	drag0 := 3 * math.Pi * d * (vs[0] - vp[0]) * mu * wallDragNormal
	var tor [3]float64
	for c := 1; c < 3; c++ {
		tor[c] = wallTorque * 3 * math.Pi * d * (vs[c] - vp[c]) * mu * wallDragTangential * r
	}

	if math.Abs(drag0) > set.AdhesionForce[i] && drag0 < 0 {
		set.DepositionFlag[i] = particle.InFlow
		set.AdhesionForce[i] = 0
		set.AdhesionTorque[i] = 0
		set.DisplacementNorm[i] = 0
		vp[0] = math.Min(-math.Abs(drag0)*dt/m, maxLiftOff)
		vp[1], vp[2] = 0, 0

		w := set.Weight[i]
		if it.Counters != nil {
			it.Counters.Resuspended.Add(w)
		}
		if face := set.NeighborFace[i]; it.Stats != nil && face >= 0 {
			area := it.Mesh.BoundaryFaces[face].Area
			fs := it.Stats.Faces
			fs.Resuspended[face] += w
			fs.ResuspendFlux[face] += w + w*m/area
			fs.MassFlux[face] -= w * m / area
		}
		return
	}

	var adh [3]float64
	if tn := math.Hypot(tor[1], tor[2]); tn > 0 {
		for c := 1; c < 3; c++ {
			adh[c] = -set.AdhesionTorque[i] / tn * tor[c]
		}
	}
	iner := 7.0 / 5.0 * m * r * r
	cst4 := 6 * math.Pi * mu * wallDragTangential * wallTorque * r * r
	cst1 := cst4 * r / iner
	e := math.Exp(-cst1 * dt)
	vp0 := *vp
	for c := 1; c < 3; c++ {
		vp[c] = (vp0[c]-vs[c]-adh[c]/cst4)*e + vs[c] + adh[c]/cst4
	}

	if vp[1]*vs[1]+vp[2]*vs[2] > 0 {
		set.DepositionFlag[i] = particle.Rolling
		vp[0] = 0
		for c := 1; c < 3; c++ {
			if math.Abs(vp[c]) > math.Abs(vs[c]) {
				vp[c] = vs[c]
			}
			kk := vp0[c] - vs[c] - adh[c]/cst4
			kkk := vs[c] + adh[c]/cst4
			depl[c] = kkk*dt + kk/cst1*(1-e)
		}
		return
	}
	set.DepositionFlag[i] = particle.NoMotion
	*vp = [3]float64{}
	*depl = [3]float64{}
}
