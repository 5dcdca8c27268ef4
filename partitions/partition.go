// Package partitions splits a mesh over ranks and builds the rank-local
// meshes, with their ghost cells, on which particles are tracked.
package partitions

import (
	"fmt"
	"math"
)

// Partition is the set of cells owned by one rank
type Partition struct {
	ID       int
	Cells    []int // Global cell ids, ascending; local cell i is Cells[i]
	NumCells int
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	Partitions    []Partition
	TotalCells    int
	NumPartitions int

	// Cell to partition mapping
	EToP []int // Length TotalCells: cell k belongs to partition EToP[k]
}

// NewLayout builds a layout from a cell to partition map.
func NewLayout(eToP []int, numPartitions int) (*PartitionLayout, error) {
	if numPartitions < 1 {
		return nil, fmt.Errorf("invalid number of partitions %d", numPartitions)
	}
	pl := &PartitionLayout{
		Partitions:    make([]Partition, numPartitions),
		TotalCells:    len(eToP),
		NumPartitions: numPartitions,
		EToP:          eToP,
	}
	for i := range pl.Partitions {
		pl.Partitions[i].ID = i
	}
	for c, p := range eToP {
		if p < 0 || p >= numPartitions {
			return nil, fmt.Errorf("cell %d assigned to partition %d out of [0,%d)", c, p, numPartitions)
		}
		pl.Partitions[p].Cells = append(pl.Partitions[p].Cells, c)
		pl.Partitions[p].NumCells++
	}
	if err := pl.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return pl, nil
}

// GetPartition returns the partition containing cell k
func (pl *PartitionLayout) GetPartition(cellID int) int {
	if cellID < 0 || cellID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[cellID]
}

// LocalIndex returns the rank-local id of global cell k in its partition.
func (pl *PartitionLayout) LocalIndex() []int {
	local := make([]int, pl.TotalCells)
	for _, p := range pl.Partitions {
		for i, c := range p.Cells {
			local[c] = i
		}
	}
	return local
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	total := 0
	for _, p := range pl.Partitions {
		if p.NumCells != len(p.Cells) {
			return fmt.Errorf("partition %d: NumCells %d != %d cells listed", p.ID, p.NumCells, len(p.Cells))
		}
		if p.NumCells == 0 {
			return fmt.Errorf("partition %d owns no cell", p.ID)
		}
		for _, c := range p.Cells {
			if pl.GetPartition(c) != p.ID {
				return fmt.Errorf("cell %d listed in partition %d but mapped to %d", c, p.ID, pl.GetPartition(c))
			}
		}
		total += p.NumCells
	}
	if total != pl.TotalCells {
		return fmt.Errorf("partitions own %d cells, mesh has %d", total, pl.TotalCells)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinCells:      math.MaxInt32,
		AvgCells:      float64(pl.TotalCells) / float64(pl.NumPartitions),
	}
	for _, p := range pl.Partitions {
		stats.MinCells = min(stats.MinCells, p.NumCells)
		stats.MaxCells = max(stats.MaxCells, p.NumCells)
	}
	stats.Imbalance = float64(stats.MaxCells) / stats.AvgCells
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinCells      int
	MaxCells      int
	AvgCells      float64
	Imbalance     float64 // MaxCells / AvgCells
}
