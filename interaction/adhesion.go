package interaction

import (
	"math"

	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/random"
	"github.com/notargets/lagtrack/zones"
)

// Adhesion gives the energy barrier, per unit particle radius, a particle
// must overcome to deposit on a face of zone z.
type Adhesion interface {
	Barrier(z *zones.Zone, diameter float64) float64
}

// ConstantBarrier uses the barrier configured on the zone.
type ConstantBarrier struct{}

func (ConstantBarrier) Barrier(z *zones.Zone, _ float64) float64 {
	return z.Barrier
}

// Contact is the outcome of a clogging barrier evaluation.
type Contact struct {
	Count       int     // Deposited particles touched by the depositing one
	Barrier     float64 // Energy barrier per unit radius
	Limit       float64 // Coverage above which clusters grow in height
	MinPorosity float64 // Porosity of the deposit
}

// Clogging evaluates the barrier of a face already partly covered by a
// deposit.
type Clogging interface {
	Contacts(z *zones.Zone, coverage, diameter float64, d random.Drawer) Contact
}

// CoverageClogging lands the particle on the existing deposit with a
// probability equal to the face coverage.
type CoverageClogging struct {
	ContactBarrier float64 // Barrier when touching deposited particles
	Limit          float64 // Jamming coverage, 0.9069 for a hexagonal packing
	MinPorosity    float64
}

func (c CoverageClogging) Contacts(z *zones.Zone, coverage, _ float64, d random.Drawer) Contact {
	out := Contact{Barrier: z.Barrier, Limit: c.Limit, MinPorosity: c.MinPorosity}
	if coverage > 0 && d.Uniform() < math.Min(coverage, 1) {
		out.Count = 1
		out.Barrier = c.ContactBarrier
	}
	return out
}

// contactDistance is the particle-surface separation at contact, m.
const contactDistance = 1.65e-10

// adhere sets the adhesion force and torque holding particle i on a face of
// zone z. The force is the barrier released over the contact distance, the
// torque arm the radius of the contact disk.
func adhere(set *particle.Set, i int, z *zones.Zone, diam float64) {
	if set.AdhesionForce == nil {
		return
	}
	r := 0.5 * diam
	f := z.Barrier * r / contactDistance
	set.AdhesionForce[i] = f
	set.AdhesionTorque[i] = f * math.Sqrt(contactDistance*r)
	set.DisplacementNorm[i] = 0
}
