package particle

// Tally is a particle count with its statistical weight.
type Tally struct {
	N      int
	Weight float64
}

// Add records one particle of weight w.
func (t *Tally) Add(w float64) {
	t.N++
	t.Weight += w
}

// Counters are the per-step global particle counters of a rank. They are
// summed across ranks before reporting.
//
// Injected, Exited, Deposited, Fouled and Failed accumulate over the run.
// Resident and Held describe the particles present at the end of the last
// step. Together they close the balance
//
//	Injected = Exited + Deposited + Fouled + Failed + Resident + Held
//
// Attached and Resuspended count wall events and take no part in it.
type Counters struct {
	Injected    Tally
	Exited      Tally // Left through outlets or inlets
	Deposited   Tally // Removed from the set when depositing
	Fouled      Tally
	Failed      Tally
	Resident    Tally // In the flow at the end of the step
	Held        Tally // Held on a wall at the end of the step
	Attached    Tally // Depositions that keep the particle on the wall
	Resuspended Tally
}

func (c *Counters) tallies() []*Tally {
	return []*Tally{
		&c.Injected, &c.Exited, &c.Deposited, &c.Fouled, &c.Failed,
		&c.Resident, &c.Held, &c.Attached, &c.Resuspended,
	}
}

// Merge adds o into c.
func (c *Counters) Merge(o Counters) {
	src := o.tallies()
	for k, t := range c.tallies() {
		t.N += src[k].N
		t.Weight += src[k].Weight
	}
}

// Census replaces Resident and Held with the particles of s. A particle
// is held when its deposition flag leaves the flow or its cell is stuck.
func (c *Counters) Census(s *Set) {
	c.Resident, c.Held = Tally{}, Tally{}
	for i := 0; i < s.Len(); i++ {
		held := s.Cell[i].IsStuck()
		if s.DepositionFlag != nil && s.DepositionFlag[i] != InFlow {
			held = true
		}
		if held {
			c.Held.Add(s.Weight[i])
		} else {
			c.Resident.Add(s.Weight[i])
		}
	}
}

// Balance returns Injected less every outcome of the balance. It is zero,
// up to rounding of the weights, when no particle is unaccounted for.
func (c Counters) Balance() Tally {
	b := c.Injected
	for _, t := range []Tally{c.Exited, c.Deposited, c.Fouled, c.Failed, c.Resident, c.Held} {
		b.N -= t.N
		b.Weight -= t.Weight
	}
	return b
}

// Values flattens the counters for a sum reduction.
func (c Counters) Values() []float64 {
	ts := c.tallies()
	out := make([]float64, 0, 2*len(ts))
	for _, t := range ts {
		out = append(out, float64(t.N), t.Weight)
	}
	return out
}

// CountersFromValues is the inverse of Values.
func CountersFromValues(v []float64) Counters {
	var c Counters
	for i, t := range c.tallies() {
		if 2*i+1 < len(v) {
			t.N = int(v[2*i] + 0.5)
			t.Weight = v[2*i+1]
		}
	}
	return c
}
