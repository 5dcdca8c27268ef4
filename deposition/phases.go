package deposition

import (
	"math"

	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
)

// structure integrates the particle velocity in a coherent structure,
// during which the seen velocity is frozen, and returns the displacement.
func structure(dt, taup float64, s *State) float64 {
	e := math.Exp(-dt / taup)
	vp0, vs0 := s.Velocity, s.Seen
	s.Velocity = vp0*e + (1-e)*vs0
	return vs0*dt + vs0*taup*(e-1) + vp0*taup*(1-e)
}

// structureSeen is the seen velocity in a structure moving at v.
func structureSeen(v float64, f Forcing) float64 {
	return v + f.Gravity*f.Taup + f.FluidVelocity
}

func (m *Model) ejection(dt float64, s *State, f Forcing, unif [2]float64) segment {
	dx := structure(dt, f.Taup, s)
	s.Seen = structureSeen(-m.vstruc, f)

	y := s.Yplus - dx/m.Wall.ViscousLength
	switch {
	case y > LayerEdge:
		s.Phase = particle.PhaseLeftLayer
	case y < s.Interface:
		s.Phase = particle.PhaseInnerZone
	case unif[0] < dt/m.tstruc:
		s.Phase = particle.PhaseAfterSweep
	default:
		s.Phase = particle.PhaseEjection
	}
	return segment{dx: dx}
}

func (m *Model) sweep(dt float64, s *State, f Forcing, unif [2]float64) segment {
	dx := structure(dt, f.Taup, s)
	s.Seen = structureSeen(m.vstruc, f)

	y := s.Yplus - dx/m.Wall.ViscousLength
	switch {
	case y > LayerEdge:
		s.Phase = particle.PhaseLeftLayer
	case y < s.Interface:
		// time spent beyond the interface at the arrival velocity
		rest := dt
		if s.Velocity != 0 {
			rest = math.Min(dt, (s.Interface-y)*m.Wall.ViscousLength/math.Abs(s.Velocity))
		}
		dx *= (s.Interface - s.Yplus) / (y - s.Yplus)
		s.Yplus = s.Interface
		s.Seen = structureSeen(-m.vstruc, f)
		s.Phase = particle.PhaseInnerZone
		return segment{dx: dx, rest: rest, fromSweep: true}
	case unif[0] < dt/m.tstruc:
		s.Phase = particle.PhaseAfterSweep
	default:
		s.Phase = particle.PhaseSweep
	}
	return segment{dx: dx}
}

// ou holds the coefficients of the exact integration of the coupled
// particle and seen velocity equations over dt.
type ou struct {
	aa, bb, cc float64 // Position weights of vp0, vs0 and the drift
	dd, ee     float64 // Velocity weights of vs0 and the forcing
	e1, e2     float64 // exp(-dt/taup), exp(-dt/tl)
	p11        float64 // Seen velocity noise
	p21, p22   float64 // Position noise
	p31, p32   float64 // Particle velocity noise
	p33        float64
}

// newOU computes the integration coefficients for particle relaxation
// time taup, seen velocity time scale tl and diffusion coefficient b.
func newOU(dt, taup, tl, b float64) ou {
	aux1 := math.Exp(-dt / taup)
	aux2 := math.Exp(-dt / tl)
	aux3 := tl / (tl - taup)
	aux4 := tl / (tl + taup)
	aux5 := tl * (1 - aux2)
	aux6 := b * b * tl
	aux7 := tl - taup
	aux8 := b * b * aux3 * aux3

	c := ou{e1: aux1, e2: aux2}
	c.aa = taup * (1 - aux1)
	c.bb = (aux5 - c.aa) * aux3
	c.cc = dt - c.aa - c.bb
	c.dd = aux3 * (aux2 - aux1)
	c.ee = 1 - aux1

	gama2 := 0.5 * (1 - aux2*aux2)
	omegam := (0.5*aux4*(aux5-aux2*c.aa) - 0.5*aux2*c.bb) * math.Sqrt(aux6)
	omega2 := aux7*(aux7*dt-2*(tl*aux5-taup*c.aa)) +
		0.5*tl*tl*aux5*(1+aux2) +
		0.5*taup*taup*c.aa*(1+aux1) -
		2*aux4*tl*taup*taup*(1-aux1*aux2)
	omega2 *= aux8
	if math.Abs(gama2) > epzero {
		c.p21 = omegam / math.Sqrt(gama2)
		c.p22 = math.Sqrt(math.Max(0, omega2-c.p21*c.p21))
	}
	c.p11 = math.Sqrt(gama2 * aux6)

	aux9 := 0.5 * tl * (1 - aux2*aux2)
	aux10 := 0.5 * taup * (1 - aux1*aux1)
	aux11 := taup * tl * (1 - aux1*aux2) / (taup + tl)
	grga2 := (aux9 - 2*aux11 + aux10) * aux8
	gagam := (aux9 - aux11) * (aux8 / aux3)
	gaome := ((tl-taup)*(aux5-c.aa) - tl*aux9 - taup*aux10 + (tl+taup)*aux11) * aux8
	if c.p11 > epzero {
		c.p31 = gagam / c.p11
	}
	if c.p22 > epzero {
		c.p32 = (gaome - c.p31*c.p21) / c.p22
	}
	c.p33 = math.Sqrt(math.Max(0, grga2-c.p31*c.p31-c.p32*c.p32))
	return c
}

// advance integrates one component from (vp0, vs0) with drift velocity
// tci and forcing velocity force, using the normal draws g.
func (c ou) advance(dt, vp0, vs0, tci, force float64, g [3]float64) (dx, vp, vs float64) {
	dx = c.aa*vp0 + c.bb*vs0 + c.cc*tci + (dt-c.aa)*force + c.p21*g[0] + c.p22*g[1]
	vs = vs0*c.e2 + tci*(1-c.e2) + c.p11*g[0]
	vp = vp0*c.e1 + vs0*c.dd + tci*(c.ee-c.dd) + force*c.ee +
		c.p31*g[0] + c.p32*g[1] + c.p33*g[2]
	return dx, vp, vs
}

// Advance is the closed-form step of the Langevin model for one velocity
// component. It is shared with the generic integrator.
func Advance(dt, taup, tl, b, vp0, vs0, tci, force float64, g [3]float64) (dx, vp, vs float64) {
	return newOU(dt, taup, tl, b).advance(dt, vp0, vs0, tci, force, g)
}

func (m *Model) diffusion(dt float64, s *State, f Forcing, unif [2]float64, d random.Drawer) segment {
	var g [4]float64
	for k := range g {
		g[k] = d.Normal()
	}
	vs0 := s.Seen
	if s.Phase == particle.PhaseAfterSweep {
		vs0 = g[3] * math.Sqrt(m.kdif*m.kdif*m.tlag2/2)
	}
	tci := f.Piil*m.tlag2 + f.FluidVelocity
	force := (-f.PressureGradient/f.Density + f.Gravity) * f.Taup
	dx, vp, vs := Advance(dt, f.Taup, m.tlag2, m.kdif, s.Velocity, vs0, tci, force, [3]float64{g[0], g[1], g[2]})
	s.Velocity, s.Seen = vp, vs

	y := s.Yplus - dx/m.Wall.ViscousLength
	switch {
	case y > LayerEdge:
		s.Phase = particle.PhaseLeftLayer
	case y < s.Interface:
		s.Phase = particle.PhaseInnerZone
		s.Seen = math.Sqrt(m.kdifcl*m.kdifcl*m.tlag2/2) * math.Sqrt(2*math.Pi) * 0.5
		return m.cross(dt, dx, y, s)
	case unif[0] < dt/m.tdiffu:
		if unif[1] < 0.5 {
			s.Phase = particle.PhaseSweep
			s.Seen = structureSeen(m.vstruc, f)
		} else {
			s.Phase = particle.PhaseEjection
			s.Seen = structureSeen(-m.vstruc, f)
		}
	default:
		s.Phase = particle.PhaseDiffusion
	}
	return segment{dx: dx}
}

// cross stops a diffusing particle on the interface: the displacement is
// cut at the interface, the velocity is the mean over the step and the
// remaining time is proportional to the overshoot.
func (m *Model) cross(dt, dx, y float64, s *State) segment {
	dx *= (s.Interface - s.Yplus) / (y - s.Yplus)
	s.Velocity = (s.Yplus - y) * m.Wall.ViscousLength / dt
	rest := dt * (s.Interface - y) / (s.Yplus - y)
	s.Yplus = s.Interface
	return segment{dx: dx, rest: rest}
}

// viscousSublayer gives the diffusion coefficient of the seen velocity at
// y+ < 5, damped to zero at the wall, and the magnitude of the drift that
// goes with it.
func (m *Model) viscousSublayer(yplus float64) (k, drift float64) {
	arg := math.Pi * yplus / 5
	k = m.kdifcl * 0.5 * (1 - math.Cos(arg))
	drift = m.tlag2 * m.tlag2 * 0.5 * m.kdifcl * m.kdifcl * math.Pi *
		math.Sin(arg) * (1 - math.Cos(arg)) / 10 / m.Wall.ViscousLength
	return k, drift
}

func (m *Model) innerZone(dt float64, s *State, f Forcing, afterSweep bool, d random.Drawer) segment {
	var g [3]float64
	var gb [2]float64
	for k := range g {
		g[k] = d.Normal()
	}
	for k := range gb {
		gb[k] = d.Normal()
	}
	tl, taup := m.tlag2, f.Taup
	force := f.Gravity * taup
	vs0, vp0 := s.Seen, s.Velocity

	kaux := m.kdifcl
	// the fluid velocity decreases linearly to zero at the wall
	tci := f.FluidVelocity * s.Yplus / s.Interface
	if s.Yplus < 5 {
		var drift float64
		kaux, drift = m.viscousSublayer(s.Yplus)
		tci = -drift
	}

	rpart := f.Diameter / 2
	mpart := 4.0 / 3.0 * math.Pi * rpart * rpart * rpart * f.Density
	var kdifbr float64
	if mpart > 0 {
		kdifbr = math.Sqrt(2 * Boltzmann * m.Wall.Temperature / (mpart * taup))
	}
	kdifbrtp := kdifbr * taup

	dtstl, dtstp := dt/tl, dt/taup
	tlmtp, tlptp, tltp := tl-taup, tl+taup, tl*taup
	tl2, tp2 := tl*tl, taup*taup
	thet := tl / tlmtp
	the2 := thet * thet
	etl, etp := math.Exp(-dtstl), math.Exp(-dtstp)
	l1l, l1p := 1-etl, 1-etp
	l2l, l2p := 1-etl*etl, 1-etp*etp
	l3 := 1 - etl*etp
	kaux2 := kaux * kaux
	k2the2 := kaux2 * the2
	aa1 := taup * l1p
	bb1 := thet * (tl*l1l - aa1)
	cc1 := dt - aa1 - bb1
	dd1 := thet * (etl - etp)
	ee1 := l1p

	xiubr := 0.5 * (kdifbrtp * l1p) * (kdifbrtp * l1p)
	ucarbr := kdifbrtp * kdifbr * 0.5 * l2p
	xcarbr := kdifbrtp * kdifbrtp * (dt - l1p*(2+l1p)*0.5*taup)
	ubr := math.Sqrt(math.Max(ucarbr, 0))

	s.Seen = vs0*etl + tci*l1l
	s.Velocity = vp0*etp + dd1*vs0 + tci*(ee1-dd1) + force*ee1
	dx := aa1*vp0 + bb1*vs0 + cc1*tci + (dt-aa1)*force

	pgam2 := 0.5 * kaux2 * tl * l2l
	ggam2 := the2*pgam2 + k2the2*(l3*(-2*tltp/tlptp)+l2p*taup*0.5)
	ome2 := k2the2 * (dt*tlmtp*tlmtp + l2l*tl2*tl*0.5 + l2p*tp2*taup*0.5 +
		l1l*(-2*tl2*tlmtp) + l1p*2*tp2*tlmtp + l3*(-2*tltp*tltp/tlptp))
	pgagga := thet * (pgam2 - kaux2*tltp/tlptp*l3)
	pgaome := thet * tl * (-pgam2 + kaux2*(l1l*tlmtp+l3*tp2/tlptp))
	ggaome := k2the2 * (tlmtp*(tl*l1l-l1p*taup) - l2l*tl2*0.5 - l2p*tp2*0.5 + l3*tltp)

	p11 := math.Sqrt(math.Max(0, pgam2))
	var p21, p31, p32 float64
	if p11 > epzero {
		p21 = pgagga / p11
		p31 = pgaome / p11
	}
	p22 := math.Sqrt(math.Max(0, ggam2-p21*p21))
	if p22 > epzero {
		p32 = (ggaome - p21*p31) / p22
	}
	p33 := math.Sqrt(math.Max(0, ome2-p31*p31-p32*p32))

	var p21br float64
	if ubr > epzero {
		p21br = xiubr / ubr
	}
	p22br := math.Sqrt(math.Max(xcarbr-p21br*p21br, 0))
	terpbr := ubr * gb[0]

	s.Seen += p11 * g[0]
	s.Velocity += p21*g[0] + p22*g[1] + terpbr
	dx += p31*g[0] + p32*g[1] + p33*g[2] + p21br*gb[0] + p22br*gb[1]

	lv := m.Wall.ViscousLength
	y := s.Yplus - dx/lv
	if y*lv < rpart {
		// closer to the wall than a radius: push through so the
		// tracking meets the face
		s.Phase = particle.PhaseInnerZone
		return segment{dx: dx + 2*rpart}
	}
	if y > s.Interface && !afterSweep {
		s.Phase = particle.PhaseDiffusion
		c := m.kdifcl * m.ttotal / m.tdiffu
		s.Seen = -math.Sqrt(c*c*tl/2) * math.Sqrt(2*math.Pi) * 0.5
		return m.cross(dt, dx, y, s)
	}
	if y > 0 {
		// second order correction of the velocities with the
		// coefficients at the arrival point
		kn1, tcin1 := m.kdifcl, 0.0
		if y < 5 {
			kn1, tcin1 = m.viscousSublayer(y)
		}
		pox1 := l1l / dtstl
		pox2 := tlptp / dt * l1p
		aa2 := -etl + pox1
		bb2 := 1 - pox1
		c2c := tl / tlmtp * (etl - etp)
		a2c := -etp + pox2 - (1+tl/dt)*c2c
		b2c := 1 - pox2 + (tl/dt)*c2c
		a22 := l2l + l2l/(2*dtstl) - 1
		b22 := 1 - l2l/(2*dtstl)

		s.Seen = vs0*etl + aa2*tci + bb2*tcin1
		s.Velocity = vp0*etp + vs0*c2c + a2c*tci + b2c*tcin1 + force*(1-(etp-1)/(-dtstp))

		ketoi := (a22*kaux + b22*kn1) / l2l
		k2 := ketoi * ketoi
		pgam2 = 0.5 * k2 * tl * l2l
		ggam2 = the2 * (pgam2 + k2*(l3*(-2*tltp/tlptp)+l2p*taup*0.5))
		pgagga = thet * (pgam2 - k2*tltp/tlptp*l3)
		p11 = math.Sqrt(math.Max(0, pgam2))
		p21 = 0
		if p11 > epzero {
			p21 = pgagga / p11
		}
		p22 = math.Sqrt(math.Max(0, ggam2-p21*p21))
		s.Seen += p11 * g[0]
		s.Velocity += p21*g[0] + p22*g[1] + terpbr
	}
	s.Phase = particle.PhaseInnerZone
	if afterSweep && y > s.Interface {
		// the structure carries the particle back out: the excursion is
		// replaced by an ejection from the interface
		s.Phase = particle.PhaseEjection
		s.Seen = structureSeen(-m.vstruc, f)
		return segment{rest: dt}
	}
	return segment{dx: dx}
}
