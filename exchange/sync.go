package exchange

import (
	"fmt"

	"github.com/notargets/lagtrack/geometry"
	"github.com/notargets/lagtrack/mesh"
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/partitions"
	"github.com/notargets/lagtrack/tracking"
	"github.com/sirupsen/logrus"
)

// Syncer hands particles that entered a ghost cell to the rank owning the
// cell and takes in the particles other ranks send.
type Syncer struct {
	Prop  *tracking.Propagator
	Local *partitions.Local
	Halo  *Halo
	Comm  Comm
	Log   logrus.FieldLogger
}

// NewSyncer connects the propagator of a rank to its peers.
func NewSyncer(p *tracking.Propagator, l *partitions.Local, c Comm) (*Syncer, error) {
	if l.Rank != c.Rank() {
		return nil, fmt.Errorf("partition %d attached to rank %d", l.Rank, c.Rank())
	}
	if p.Mesh != l.Mesh {
		return nil, fmt.Errorf("propagator of rank %d tracks on another mesh", l.Rank)
	}
	return &Syncer{
		Prop:  p,
		Local: l,
		Halo:  NewHalo(l),
		Comm:  c,
		Log:   logrus.StandardLogger(),
	}, nil
}

var _ tracking.Syncer = (*Syncer)(nil)

// Sync performs one exchange pass and reports whether any rank received
// particles that still have to move.
func (s *Syncer) Sync(set *particle.Set) (bool, error) {
	h := s.Halo
	m := s.Local.Mesh
	for k := range h.SendCount {
		h.SendCount[k] = 0
	}
	var leaving []int
	for i := 0; i < set.Len(); i++ {
		c := set.Cell[i]
		if set.State[i] != particle.ToSync || !c.IsActive() || !m.IsGhost(c.ID) {
			continue
		}
		leaving = append(leaving, i)
		h.SendCount[h.Peer(s.Local.Ghost(c.ID).Rank)]++
	}
	nSend := offsets(h.SendCount, h.SendOffset)
	send := h.Send.Reserve(nSend)
	fill := append([]int(nil), h.SendOffset...)
	for _, i := range leaving {
		g := s.Local.Ghost(set.Cell[i].ID)
		k := h.Peer(g.Rank)
		send[fill[k]] = s.outgoing(set.Get(i), g)
		fill[k]++
	}
	s.Prop.Discard(set)

	recv, err := s.Comm.ExchangeCounts(h.Peers, h.SendCount)
	if err != nil {
		return false, fmt.Errorf("count phase: %w", err)
	}
	t := h.transfer(send, recv)
	if err := s.Comm.Exchange(t); err != nil {
		return false, fmt.Errorf("data phase: %w", err)
	}
	for _, r := range t.Recv {
		set.Append(s.incoming(r))
	}
	if len(leaving) > 0 || len(t.Recv) > 0 {
		s.Log.WithFields(logrus.Fields{
			"rank":     s.Local.Rank,
			"sent":     len(leaving),
			"received": len(t.Recv),
		}).Debug("particles exchanged")
	}
	return s.Comm.AllReduceOr(len(t.Recv) > 0)
}

// outgoing prepares a record for the rank owning ghost g: positions and
// vectors are mapped through the periodic transform and the last face is
// expressed in global numbering.
func (s *Syncer) outgoing(r particle.Record, g partitions.Ghost) particle.Record {
	r.Cell = particle.InCell(g.Cell)
	r.NeighborFace = -1
	if g.Transform == partitions.NoTransform {
		if r.LastFace.IsInterior() {
			r.LastFace = mesh.InteriorRef(s.Local.InteriorGlobal[r.LastFace.ID()])
		}
		return r
	}
	r.LastFace = mesh.NoFace
	transformRecord(&r, s.Local.Transforms[g.Transform])
	return r
}

// incoming translates the last face of a received record into local
// numbering.
func (s *Syncer) incoming(r particle.Record) particle.Record {
	r.State = particle.ToSync
	if r.LastFace.IsInterior() {
		global := r.LastFace.ID()
		r.LastFace = mesh.NoFace
		if f, ok := s.Local.LocalInterior(global); ok {
			r.LastFace = mesh.InteriorRef(f)
		}
	}
	return r
}

func transformRecord(r *particle.Record, t geometry.Transform) {
	r.Coords = t.Apply(r.Coords)
	r.PrevCoords = t.Apply(r.PrevCoords)
	r.StartCoords = t.Apply(r.StartCoords)
	if !t.HasRotation() {
		return
	}
	r.Velocity = t.Rotate(r.Velocity)
	r.PrevVelocity = t.Rotate(r.PrevVelocity)
	r.VelocitySeen = t.Rotate(r.VelocitySeen)
	r.PrevVelocitySeen = t.Rotate(r.PrevVelocitySeen)
	r.PredVelocity = t.Rotate(r.PredVelocity)
	r.PredVelocitySeen = t.Rotate(r.PredVelocitySeen)
}
