package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/utils"
)

// PartitionBuilder decomposes a global Cartesian cell block into one block
// per rank.
type PartitionBuilder struct {
	GlobalSize    [3]int
	NumPartitions int

	// Divisions fixes the block lattice; zero selects one from Strategy.
	Divisions [3]int
	Periodic  [3]bool
	Strategy  PartitionStrategy
}

// PartitionStrategy defines how the lattice of blocks is chosen
type PartitionStrategy int

const (
	// Minimize the total cut surface over all factorizations
	BlockPartition PartitionStrategy = iota
	// Split along z only
	SlabPartition
)

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	for d := 0; d < 3; d++ {
		if pb.GlobalSize[d] < 1 {
			return nil, fmt.Errorf("invalid global size %v", pb.GlobalSize)
		}
	}
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("invalid partition count %d", pb.NumPartitions)
	}

	div, err := pb.calculateDivisions()
	if err != nil {
		return nil, err
	}

	// Split each axis and create the partition structures
	var splits [3][][2]int
	for d := 0; d < 3; d++ {
		splits[d] = splitAxis(pb.GlobalSize[d], div[d])
	}
	partitions := pb.createPartitions(div, splits)

	layout := &PartitionLayout{
		Partitions:    partitions,
		GlobalSize:    pb.GlobalSize,
		Divisions:     div,
		Periodic:      pb.Periodic,
		KpartMax:      calculateKpartMax(partitions),
		TotalElements: pb.GlobalSize[0] * pb.GlobalSize[1] * pb.GlobalSize[2],
		NumPartitions: len(partitions),
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateDivisions determines the block lattice
func (pb *PartitionBuilder) calculateDivisions() ([3]int, error) {
	n := pb.NumPartitions
	if pb.Divisions != [3]int{} {
		div := pb.Divisions
		if div[0]*div[1]*div[2] != n {
			return div, fmt.Errorf("divisions %v do not multiply to %d partitions", div, n)
		}
		for d := 0; d < 3; d++ {
			if div[d] < 1 || div[d] > pb.GlobalSize[d] {
				return div, fmt.Errorf("axis %d: %d divisions for %d cells", d, div[d], pb.GlobalSize[d])
			}
		}
		return div, nil
	}

	if pb.Strategy == SlabPartition {
		if n > pb.GlobalSize[2] {
			return [3]int{}, fmt.Errorf("%d slabs exceed %d planes", n, pb.GlobalSize[2])
		}
		return [3]int{1, 1, n}, nil
	}

	var (
		best      [3]int
		bestScore = math.MaxFloat64
		sz        = pb.GlobalSize
	)
	for a := 1; a <= n; a++ {
		if n%a != 0 || a > sz[0] {
			continue
		}
		for b := 1; b <= n/a; b++ {
			if (n/a)%b != 0 || b > sz[1] {
				continue
			}
			c := n / a / b
			if c > sz[2] {
				continue
			}
			// Interior cut surface in cell faces
			score := float64((a-1)*sz[1]*sz[2] + (b-1)*sz[0]*sz[2] + (c-1)*sz[0]*sz[1])
			if score < bestScore {
				best, bestScore = [3]int{a, b, c}, score
			}
		}
	}
	if bestScore == math.MaxFloat64 {
		return best, fmt.Errorf("no block lattice of %d partitions fits %v", n, sz)
	}
	return best, nil
}

// splitAxis splits n cells into parts contiguous ranges [head, head+size),
// spreading the remainder over the leading parts.
func splitAxis(n, parts int) [][2]int {
	pm := utils.NewPartitionMap(parts, n)
	out := make([][2]int, parts)
	for p := 0; p < parts; p++ {
		lo, hi := pm.GetBucketRange(p)
		out[p] = [2]int{lo, hi - lo}
	}
	return out
}

// createPartitions builds partition structures ordered x fastest.
func (pb *PartitionBuilder) createPartitions(div [3]int, splits [3][][2]int) []Partition {
	rank := func(c [3]int) int {
		return c[0] + div[0]*(c[1]+div[1]*c[2])
	}
	partitions := make([]Partition, div[0]*div[1]*div[2])
	for c2 := 0; c2 < div[2]; c2++ {
		for c1 := 0; c1 < div[1]; c1++ {
			for c0 := 0; c0 < div[0]; c0++ {
				coord := [3]int{c0, c1, c2}
				p := Partition{ID: rank(coord), Coord: coord}
				for d := 0; d < 3; d++ {
					p.Head[d] = splits[d][coord[d]][0]
					p.Size[d] = splits[d][coord[d]][1]
				}
				p.NumElements = p.Size[0] * p.Size[1] * p.Size[2]
				for face := 0; face < utils.NumFaces; face++ {
					axis := face / 2
					nc := coord
					if face%2 == 0 {
						nc[axis]--
					} else {
						nc[axis]++
					}
					switch {
					case nc[axis] >= 0 && nc[axis] < div[axis]:
						p.Neighbors[face] = rank(nc)
					case pb.Periodic[axis]:
						nc[axis] = (nc[axis] + div[axis]) % div[axis]
						p.Neighbors[face] = rank(nc)
					default:
						p.Neighbors[face] = NoNeighbor
					}
				}
				partitions[p.ID] = p
			}
		}
	}
	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// PartitionBuffer holds the halo exchange plan of one partition
type PartitionBuffer struct {
	Partition *Partition
	Grid      *utils.Grid
	Connector *utils.FaceConnector

	// One entry per face; PartitionID is NoNeighbor on outer faces
	RemotePartitions [utils.NumFaces]RemotePartition
}

// RemotePartition describes the exchange across one face
type RemotePartition struct {
	Rank        int
	PartitionID int
	Face        int // face of the local partition
	SendCount   int // values sent per scalar field
	RecvCount   int
}

// BuildPartitionBuffers creates the exchange plan of every partition
// for a halo of guide cells, exchanging width layers per face.
func BuildPartitionBuffers(layout *PartitionLayout, guide, width int) ([]*PartitionBuffer, error) {
	buffers := make([]*PartitionBuffer, layout.NumPartitions)

	for partID := range layout.Partitions {
		p := &layout.Partitions[partID]
		g, err := utils.NewGrid(p.Size, guide)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", partID, err)
		}
		fc, err := utils.NewFaceConnector(g, width)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", partID, err)
		}
		if err = fc.Verify(); err != nil {
			return nil, fmt.Errorf("partition %d: %w", partID, err)
		}
		for face := 0; face < utils.NumFaces; face++ {
			nb := p.Neighbors[face]
			if fc.Thin(face/2) && nb != NoNeighbor && nb != p.ID {
				return nil, fmt.Errorf("partition %d: axis %d has %d cells, fewer than exchange width %d, next to partition %d",
					partID, face/2, p.Size[face/2], width, nb)
			}
		}
		buf := &PartitionBuffer{Partition: p, Grid: g, Connector: fc}
		for face := 0; face < utils.NumFaces; face++ {
			rp := RemotePartition{Rank: NoNeighbor, PartitionID: p.Neighbors[face], Face: face}
			if rp.PartitionID != NoNeighbor {
				rp.Rank = rp.PartitionID
				rp.SendCount = len(fc.GetPickIndices(face))
				rp.RecvCount = len(fc.GetPlaceIndices(face))
			}
			buf.RemotePartitions[face] = rp
		}
		buffers[partID] = buf
	}

	// Validate symmetry of communication
	if err := validateCommunicationSymmetry(buffers); err != nil {
		return nil, fmt.Errorf("asymmetric communication pattern: %w", err)
	}

	return buffers, nil
}

func validateCommunicationSymmetry(buffers []*PartitionBuffer) error {
	// Verify that if partition A sends across face f to partition B,
	// then B expects the same count across the opposite face from A

	type key struct{ from, to, face int }
	sendMap := make(map[key]int)
	for senderID, buf := range buffers {
		for _, rp := range buf.RemotePartitions {
			if rp.PartitionID == NoNeighbor {
				continue
			}
			sendMap[key{senderID, rp.PartitionID, rp.Face}] = rp.SendCount
		}
	}

	for receiverID, buf := range buffers {
		for _, rp := range buf.RemotePartitions {
			if rp.PartitionID == NoNeighbor {
				continue
			}
			k := key{rp.PartitionID, receiverID, utils.OppositeFace(rp.Face)}
			expectedCount, exists := sendMap[k]
			if !exists {
				return fmt.Errorf("partition %d expects to receive from %d across %s, but %d doesn't send",
					receiverID, rp.PartitionID, utils.FaceName(rp.Face), rp.PartitionID)
			}
			if expectedCount != rp.RecvCount {
				return fmt.Errorf("count mismatch: partition %d sends %d to %d, but %d expects %d",
					rp.PartitionID, expectedCount, receiverID, receiverID, rp.RecvCount)
			}
		}
	}

	return nil
}
