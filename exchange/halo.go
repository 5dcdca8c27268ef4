package exchange

import (
	"github.com/notargets/lagtrack/particle"
	"github.com/notargets/lagtrack/partitions"
)

const minCapacity = 8

// Buffer is an elastic record buffer. Its capacity doubles until a request
// fits and shrinks by a factor 8 once it exceeds 16 times the request.
type Buffer struct {
	data []particle.Record
}

// Reserve returns a slice of n records backed by the buffer.
func (b *Buffer) Reserve(n int) []particle.Record {
	c := max(cap(b.data), minCapacity)
	for c < n {
		c *= 2
	}
	if c > 16*n {
		c = max(c/8, minCapacity)
	}
	if c != cap(b.data) {
		b.data = make([]particle.Record, c)
	}
	return b.data[:n]
}

// Cap returns the current capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Halo holds the per-peer counts and offsets of one rank. Counts change
// every pass; peers are fixed by the partition.
type Halo struct {
	Peers      []int
	SendCount  []int
	SendOffset []int
	RecvCount  []int
	RecvOffset []int

	Send, Recv Buffer
	peerOf     map[int]int
}

// NewHalo builds the descriptor of the ranks that l has ghosts on.
func NewHalo(l *partitions.Local) *Halo {
	h := &Halo{peerOf: make(map[int]int)}
	for _, rp := range l.Remote {
		h.peerOf[rp.Rank] = len(h.Peers)
		h.Peers = append(h.Peers, rp.Rank)
	}
	n := len(h.Peers)
	h.SendCount, h.SendOffset = make([]int, n), make([]int, n)
	h.RecvCount, h.RecvOffset = make([]int, n), make([]int, n)
	return h
}

// Peer returns the index of rank in Peers.
func (h *Halo) Peer(rank int) int {
	return h.peerOf[rank]
}

// offsets turns counts into exclusive prefix sums and returns the total.
func offsets(count, offset []int) int {
	n := 0
	for k, c := range count {
		offset[k] = n
		n += c
	}
	return n
}

// transfer returns the exchange described by the current counts, with the
// receive side sized from recv.
func (h *Halo) transfer(send []particle.Record, recv []int) *Transfer {
	copy(h.RecvCount, recv)
	nRecv := offsets(h.RecvCount, h.RecvOffset)
	return &Transfer{
		Peers:      h.Peers,
		Send:       send,
		SendOffset: h.SendOffset,
		SendCount:  h.SendCount,
		Recv:       h.Recv.Reserve(nRecv),
		RecvOffset: h.RecvOffset,
		RecvCount:  h.RecvCount,
	}
}
