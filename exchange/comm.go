// Package exchange moves particles between ranks. Ranks are goroutines of
// one process talking through channels; the protocol is the same whether a
// rank sends to itself or to another rank.
package exchange

import (
	"errors"
	"fmt"
	"sync"

	"github.com/notargets/lagtrack/particle"
)

// ErrAborted is returned by collective operations once the world has been
// aborted.
var ErrAborted = errors.New("communicator aborted")

// Comm is the view of one rank on the set of ranks. Every operation is
// collective: all ranks involved must call it in the same order.
type Comm interface {
	Rank() int
	Size() int
	// ExchangeCounts sends counts[k] to peers[k] and returns the counts the
	// peers sent back, in the same order.
	ExchangeCounts(peers []int, counts []int) ([]int, error)
	// Exchange sends and receives the segments described by t.
	Exchange(t *Transfer) error
	AllReduceOr(v bool) (bool, error)
	AllReduceSum(v []float64) ([]float64, error)
	Barrier() error
}

// Transfer describes an all-to-all exchange with variable counts. Segment k
// of Send goes to Peers[k], segment k of Recv is filled by it.
type Transfer struct {
	Peers      []int
	Send       []particle.Record
	SendOffset []int
	SendCount  []int
	Recv       []particle.Record
	RecvOffset []int
	RecvCount  []int
}

type message struct {
	count   int
	records []particle.Record
}

// World connects size ranks.
type World struct {
	size  int
	links [][]chan message // links[from][to]
	up    chan []float64
	down  []chan []float64
	done  chan struct{}
	once  sync.Once
}

// NewWorld creates the channels between size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid number of ranks %d", size)
	}
	w := &World{
		size:  size,
		links: make([][]chan message, size),
		up:    make(chan []float64, size),
		down:  make([]chan []float64, size),
		done:  make(chan struct{}),
	}
	for r := range w.links {
		w.links[r] = make([]chan message, size)
		for q := range w.links[r] {
			w.links[r][q] = make(chan message, 1)
		}
		w.down[r] = make(chan []float64, 1)
	}
	return w, nil
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// Comm returns the communicator of rank.
func (w *World) Comm(rank int) Comm {
	return &chanComm{w: w, rank: rank}
}

// Abort unblocks every pending and future collective with ErrAborted.
func (w *World) Abort() {
	w.once.Do(func() { close(w.done) })
}

// Run calls fn once per rank, each in its own goroutine, and waits for all
// of them. The first failing rank aborts the others.
func (w *World) Run(fn func(c Comm) error) error {
	errs := make([]error, w.size)
	var wg sync.WaitGroup
	for r := 0; r < w.size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			if err := fn(w.Comm(r)); err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				w.Abort()
			}
		}(r)
	}
	wg.Wait()

	var causes, aborted []error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, ErrAborted):
			aborted = append(aborted, err)
		default:
			causes = append(causes, err)
		}
	}
	if len(causes) > 0 {
		return errors.Join(causes...)
	}
	return errors.Join(aborted...)
}

type chanComm struct {
	w    *World
	rank int
}

func (c *chanComm) Rank() int { return c.rank }
func (c *chanComm) Size() int { return c.w.size }

func (c *chanComm) send(to int, m message) error {
	select {
	case c.w.links[c.rank][to] <- m:
		return nil
	case <-c.w.done:
		return ErrAborted
	}
}

func (c *chanComm) recv(from int) (message, error) {
	select {
	case m := <-c.w.links[from][c.rank]:
		return m, nil
	case <-c.w.done:
		return message{}, ErrAborted
	}
}

func (c *chanComm) checkPeers(peers []int) error {
	for _, p := range peers {
		if p < 0 || p >= c.w.size {
			return fmt.Errorf("peer %d out of [0,%d)", p, c.w.size)
		}
	}
	return nil
}

func (c *chanComm) ExchangeCounts(peers []int, counts []int) ([]int, error) {
	if err := c.checkPeers(peers); err != nil {
		return nil, err
	}
	out := make([]int, len(peers))
	for k, p := range peers {
		if p == c.rank {
			out[k] = counts[k]
			continue
		}
		if err := c.send(p, message{count: counts[k]}); err != nil {
			return nil, err
		}
	}
	for k, p := range peers {
		if p == c.rank {
			continue
		}
		m, err := c.recv(p)
		if err != nil {
			return nil, err
		}
		out[k] = m.count
	}
	return out, nil
}

func (c *chanComm) Exchange(t *Transfer) error {
	if err := c.checkPeers(t.Peers); err != nil {
		return err
	}
	for k, p := range t.Peers {
		seg := t.Send[t.SendOffset[k] : t.SendOffset[k]+t.SendCount[k]]
		if p == c.rank {
			if t.RecvCount[k] != len(seg) {
				return fmt.Errorf("rank %d expects %d records from itself, sends %d", c.rank, t.RecvCount[k], len(seg))
			}
			copy(t.Recv[t.RecvOffset[k]:], seg)
			continue
		}
		m := message{count: len(seg), records: append([]particle.Record(nil), seg...)}
		if err := c.send(p, m); err != nil {
			return err
		}
	}
	for k, p := range t.Peers {
		if p == c.rank {
			continue
		}
		m, err := c.recv(p)
		if err != nil {
			return err
		}
		if m.count != t.RecvCount[k] {
			return fmt.Errorf("rank %d expects %d records from %d, got %d", c.rank, t.RecvCount[k], p, m.count)
		}
		copy(t.Recv[t.RecvOffset[k]:], m.records)
	}
	return nil
}

func (c *chanComm) AllReduceSum(v []float64) ([]float64, error) {
	if c.rank != 0 {
		select {
		case c.w.up <- append([]float64(nil), v...):
		case <-c.w.done:
			return nil, ErrAborted
		}
		select {
		case res := <-c.w.down[c.rank]:
			return res, nil
		case <-c.w.done:
			return nil, ErrAborted
		}
	}
	acc := append([]float64(nil), v...)
	for k := 1; k < c.w.size; k++ {
		select {
		case x := <-c.w.up:
			if len(x) != len(acc) {
				return nil, fmt.Errorf("reduction of %d values against %d", len(x), len(acc))
			}
			for i := range acc {
				acc[i] += x[i]
			}
		case <-c.w.done:
			return nil, ErrAborted
		}
	}
	for r := 1; r < c.w.size; r++ {
		select {
		case c.w.down[r] <- append([]float64(nil), acc...):
		case <-c.w.done:
			return nil, ErrAborted
		}
	}
	return acc, nil
}

func (c *chanComm) AllReduceOr(v bool) (bool, error) {
	x := 0.0
	if v {
		x = 1
	}
	s, err := c.AllReduceSum([]float64{x})
	if err != nil {
		return false, err
	}
	return s[0] > 0, nil
}

func (c *chanComm) Barrier() error {
	_, err := c.AllReduceSum(nil)
	return err
}
