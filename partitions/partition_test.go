package partitions

import (
	"testing"

	"github.com/notargets/FVKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPartitionsBlockLattice(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{8, 8, 8}, NumPartitions: 8}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, layout.Divisions)
	assert.Equal(t, 64, layout.KpartMax)
	assert.Equal(t, 512, layout.TotalElements)

	// x fastest rank ordering
	p := layout.Partitions[5]
	assert.Equal(t, [3]int{1, 0, 1}, p.Coord)
	assert.Equal(t, [3]int{4, 0, 4}, p.Head)
	assert.Equal(t, 4, p.Neighbors[utils.XMinus])
	assert.Equal(t, NoNeighbor, p.Neighbors[utils.XPlus])
	assert.Equal(t, 7, p.Neighbors[utils.YPlus])
	assert.True(t, p.IsOuterFace(utils.YMinus))
}

func TestBuildPartitionsRemainder(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{10, 2, 2}, NumPartitions: 3, Divisions: [3]int{3, 1, 1}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	sizes := []int{layout.Partitions[0].Size[0], layout.Partitions[1].Size[0], layout.Partitions[2].Size[0]}
	assert.Equal(t, []int{4, 3, 3}, sizes)
	assert.Equal(t, 0, layout.GetPartition(4, 1, 1))
	assert.Equal(t, 1, layout.GetPartition(5, 2, 2))
	assert.Equal(t, 2, layout.GetPartition(10, 1, 1))
	assert.Equal(t, -1, layout.GetPartition(11, 1, 1))

	stats := layout.PartitionStatistics()
	assert.Equal(t, 12, stats.MinElements)
	assert.Equal(t, 16, stats.MaxElements)
	assert.InDelta(t, 40.0/3.0, stats.AvgElements, 1.e-12)
}

func TestBuildPartitionsErrors(t *testing.T) {
	_, err := (&PartitionBuilder{GlobalSize: [3]int{4, 4, 4}, NumPartitions: 4, Divisions: [3]int{3, 1, 1}}).BuildPartitions()
	assert.Error(t, err)
	_, err = (&PartitionBuilder{GlobalSize: [3]int{2, 1, 1}, NumPartitions: 3}).BuildPartitions()
	assert.Error(t, err)
	_, err = (&PartitionBuilder{GlobalSize: [3]int{4, 4, 2}, NumPartitions: 3, Strategy: SlabPartition}).BuildPartitions()
	assert.Error(t, err)
}

func TestPeriodicNeighbors(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{4, 4, 4}, NumPartitions: 2,
		Divisions: [3]int{2, 1, 1}, Periodic: [3]bool{true, false, true}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	p0 := layout.Partitions[0]
	assert.Equal(t, 1, p0.Neighbors[utils.XMinus])
	assert.Equal(t, 1, p0.Neighbors[utils.XPlus])
	assert.Equal(t, 0, p0.Neighbors[utils.ZMinus])
	assert.Equal(t, 0, p0.Neighbors[utils.ZPlus])
	assert.False(t, p0.IsOuterFace(utils.ZPlus))
	assert.True(t, p0.IsOuterFace(utils.YPlus))
	assert.True(t, p0.TouchesGlobalFace(utils.XMinus, layout.GlobalSize))
	assert.False(t, p0.TouchesGlobalFace(utils.XPlus, layout.GlobalSize))
}

func TestBuildPartitionBuffersSymmetric(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{6, 5, 4}, NumPartitions: 4,
		Divisions: [3]int{2, 2, 1}, Periodic: [3]bool{true, false, false}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 2, 2)
	require.NoError(t, err)
	require.Len(t, buffers, 4)
	for _, buf := range buffers {
		for face, rp := range buf.RemotePartitions {
			if rp.PartitionID == NoNeighbor {
				assert.Zero(t, rp.SendCount)
				continue
			}
			assert.Equal(t, len(buf.Connector.GetPickIndices(face)), rp.SendCount)
		}
	}
	// an asymmetric plan is rejected
	buffers[0].RemotePartitions[utils.XPlus].SendCount++
	assert.Error(t, validateCommunicationSymmetry(buffers))
}

func TestBuildPartitionBuffersThinAxis(t *testing.T) {
	// one cell deep in z, periodic onto itself
	pb := &PartitionBuilder{GlobalSize: [3]int{8, 4, 1}, NumPartitions: 2,
		Divisions: [3]int{2, 1, 1}, Periodic: [3]bool{false, false, true}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	bufs, err := BuildPartitionBuffers(layout, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, bufs[0].RemotePartitions[utils.ZPlus].PartitionID)
	assert.True(t, bufs[0].Connector.Thin(2))

	// a thin slab next to another slab cannot fill its halo
	pb = &PartitionBuilder{GlobalSize: [3]int{3, 4, 4}, NumPartitions: 2, Divisions: [3]int{2, 1, 1}}
	layout, err = pb.BuildPartitions()
	require.NoError(t, err)
	_, err = BuildPartitionBuffers(layout, 2, 2)
	assert.Error(t, err)
}
