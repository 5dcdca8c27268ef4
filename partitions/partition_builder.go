package partitions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/lagtrack/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// PartitionBuilder constructs partitions from a mesh
type PartitionBuilder struct {
	Mesh          *mesh.Mesh
	NumPartitions int
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	BlockPartition    PartitionStrategy = iota // Consecutive cells
	RoundRobin                                 // Distribute cyclically
	SpaceFillingCurve                          // Blocks along the Morton order of cell centers
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case SpaceFillingCurve:
		return "morton"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy returns the strategy named s.
func ParseStrategy(s string) (PartitionStrategy, error) {
	for _, st := range []PartitionStrategy{BlockPartition, RoundRobin, SpaceFillingCurve} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", s)
}

// BuildPartitions creates a partition layout of the owned cells of the mesh
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	n := pb.Mesh.NumCells
	if pb.NumPartitions < 1 || pb.NumPartitions > n {
		return nil, fmt.Errorf("cannot split %d cells into %d partitions", n, pb.NumPartitions)
	}
	return NewLayout(pb.partitionCells(), pb.NumPartitions)
}

// partitionCells assigns cells to partitions
func (pb *PartitionBuilder) partitionCells() []int {
	n, np := pb.Mesh.NumCells, pb.NumPartitions
	eToP := make([]int, n)

	switch pb.Strategy {
	case RoundRobin:
		for i := 0; i < n; i++ {
			eToP[i] = i % np
		}

	case SpaceFillingCurve:
		order := mortonOrder(pb.Mesh.CellCenters[:n])
		for rank, c := range order {
			eToP[c] = blockOf(rank, n, np)
		}

	default:
		for i := 0; i < n; i++ {
			eToP[i] = blockOf(i, n, np)
		}
	}
	return eToP
}

// blockOf spreads n items over np blocks whose sizes differ by one at most.
func blockOf(i, n, np int) int {
	return i * np / n
}

// mortonOrder sorts points along a Z-order curve through their bounding box.
func mortonOrder(pts []r3.Vec) []int {
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Scale(-1, lo)
	for _, p := range pts {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	span := math.Max(hi.X-lo.X, math.Max(hi.Y-lo.Y, hi.Z-lo.Z))
	const bits = 21
	scale := func(v, a, b float64) uint64 {
		if b-a <= 1e-9*span {
			return 0
		}
		return uint64((v - a) / (b - a) * float64(1<<bits-1))
	}
	keys := make([]uint64, len(pts))
	for i, p := range pts {
		keys[i] = interleave(scale(p.X, lo.X, hi.X)) |
			interleave(scale(p.Y, lo.Y, hi.Y))<<1 |
			interleave(scale(p.Z, lo.Z, hi.Z))<<2
	}
	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	return order
}

// interleave spreads the low 21 bits of x three positions apart.
func interleave(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}
