package partitions

import (
	"fmt"

	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/floats"
)

// NoNeighbor marks a face of a partition that lies on the outer boundary of
// the global domain.
const NoNeighbor = -1

// Partition is one block of the Cartesian decomposition; one rank owns one
// partition.
type Partition struct {
	// Unique identifier for this partition, equal to its rank
	ID int

	// Block coordinates in the Divisions lattice
	Coord [3]int

	// Global placement: owned cells are Head+1 .. Head+Size on every axis
	Head [3]int
	Size [3]int

	// Partition across each face (utils.XMinus .. utils.ZPlus), NoNeighbor at
	// the outer boundary. Periodic axes wrap, possibly onto the partition
	// itself.
	Neighbors [utils.NumFaces]int

	NumElements int // owned cells
}

// IsOuterFace reports whether face lies on the global domain boundary. A
// periodic face is not outer even when it wraps onto the same partition.
func (p *Partition) IsOuterFace(face int) bool {
	return p.Neighbors[face] == NoNeighbor
}

// TouchesGlobalFace reports whether the partition owns cells adjacent to the
// global domain face, periodic or not.
func (p *Partition) TouchesGlobalFace(face int, global [3]int) bool {
	axis := face / 2
	if face%2 == 0 {
		return p.Head[axis] == 0
	}
	return p.Head[axis]+p.Size[axis] == global[axis]
}

// PartitionLayout manages the complete domain decomposition
type PartitionLayout struct {
	// All partitions in the domain, index == ID == rank
	Partitions []Partition

	// Global sizing information
	GlobalSize    [3]int
	Divisions     [3]int
	Periodic      [3]bool
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all owned cells across partitions
	NumPartitions int
}

// GetPartition returns the partition owning global cell (i, j, k), 1-based,
// or -1 outside the domain.
func (pl *PartitionLayout) GetPartition(i, j, k int) int {
	g := [3]int{i, j, k}
	for d := 0; d < 3; d++ {
		if g[d] < 1 || g[d] > pl.GlobalSize[d] {
			return -1
		}
	}
	for n := range pl.Partitions {
		p := &pl.Partitions[n]
		inside := true
		for d := 0; d < 3 && inside; d++ {
			inside = g[d] > p.Head[d] && g[d] <= p.Head[d]+p.Size[d]
		}
		if inside {
			return p.ID
		}
	}
	return -1
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("layout holds %d partitions, NumPartitions %d",
			len(pl.Partitions), pl.NumPartitions)
	}
	actualMax := 0
	total := 0
	for n, p := range pl.Partitions {
		if p.ID != n {
			return fmt.Errorf("partition at index %d has ID %d", n, p.ID)
		}
		cells := p.Size[0] * p.Size[1] * p.Size[2]
		if cells != p.NumElements {
			return fmt.Errorf("partition %d: NumElements %d != %d cells", p.ID, p.NumElements, cells)
		}
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		total += p.NumElements
		for face := 0; face < utils.NumFaces; face++ {
			nb := p.Neighbors[face]
			if nb == NoNeighbor {
				continue
			}
			if nb < 0 || nb >= pl.NumPartitions {
				return fmt.Errorf("partition %d: %s neighbour %d out of range",
					p.ID, utils.FaceName(face), nb)
			}
			back := pl.Partitions[nb].Neighbors[utils.OppositeFace(face)]
			if back != p.ID {
				return fmt.Errorf("partition %d: %s neighbour %d points back to %d",
					p.ID, utils.FaceName(face), nb, back)
			}
		}
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	want := pl.GlobalSize[0] * pl.GlobalSize[1] * pl.GlobalSize[2]
	if total != want || total != pl.TotalElements {
		return fmt.Errorf("partitions cover %d cells, domain has %d (TotalElements %d)",
			total, want, pl.TotalElements)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	loads := make([]float64, len(pl.Partitions))
	for n, p := range pl.Partitions {
		loads[n] = float64(p.NumElements)
	}
	stats := PartitionStats{NumPartitions: pl.NumPartitions}
	if len(loads) == 0 {
		return stats
	}
	stats.MinElements = int(floats.Min(loads))
	stats.MaxElements = int(floats.Max(loads))
	stats.AvgElements = floats.Sum(loads) / float64(len(loads))
	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

func (ps PartitionStats) String() string {
	return fmt.Sprintf("partitions=%d cells min=%d max=%d avg=%.1f imbalance=%.3f",
		ps.NumPartitions, ps.MinElements, ps.MaxElements, ps.AvgElements, ps.Imbalance)
}
