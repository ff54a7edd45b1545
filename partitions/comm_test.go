package partitions

import (
	"errors"
	"testing"

	"github.com/notargets/FVKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func globalValue(gi, gj, gk int) float64 {
	return float64(gi + 100*gj + 10000*gk)
}

// fillOwned writes the global coordinate encoding into the owned cells.
func fillOwned(buf *PartitionBuffer, f []float64) {
	g := buf.Grid
	h := buf.Partition.Head
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				f[g.Idx(i, j, k)] = globalValue(h[0]+i, h[1]+j, h[2]+k)
			}
		}
	}
}

// expected returns the halo value a cell should carry after the exchange, 0
// when it maps outside a non-periodic domain.
func expected(layout *PartitionLayout, buf *PartitionBuffer, i, j, k int) float64 {
	gc := [3]int{buf.Partition.Head[0] + i, buf.Partition.Head[1] + j, buf.Partition.Head[2] + k}
	for d := 0; d < 3; d++ {
		n := layout.GlobalSize[d]
		if gc[d] < 1 || gc[d] > n {
			if !layout.Periodic[d] {
				return 0
			}
			gc[d] = (gc[d]-1+n)%n + 1
		}
	}
	return globalValue(gc[0], gc[1], gc[2])
}

func checkHalo(t *testing.T, layout *PartitionLayout, buf *PartitionBuffer, f []float64) {
	g := buf.Grid
	lo := 1 - g.Guide
	for k := lo; k <= g.Size[2]+g.Guide; k++ {
		for j := lo; j <= g.Size[1]+g.Guide; j++ {
			for i := lo; i <= g.Size[0]+g.Guide; i++ {
				want := expected(layout, buf, i, j, k)
				if got := f[g.Idx(i, j, k)]; got != want {
					t.Errorf("partition %d cell (%d,%d,%d): expected %v, got %v",
						buf.Partition.ID, i, j, k, want, got)
					return
				}
			}
		}
	}
}

func TestGroupExchangeScalar(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{6, 5, 4}, NumPartitions: 4,
		Divisions: [3]int{2, 2, 1}, Periodic: [3]bool{true, false, false}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 1, 1)
	require.NoError(t, err)
	group, err := NewGroup(buffers)
	require.NoError(t, err)

	fields := make([]utils.ScalarField, len(buffers))
	for n, buf := range buffers {
		fields[n] = buf.Grid.NewScalar()
		fillOwned(buf, fields[n])
	}
	err = group.Run(func(ep *Endpoint) error {
		// twice, to exercise back to back messages on the same links
		if err := ep.ExchangeScalar(fields[ep.Rank()]); err != nil {
			return err
		}
		return ep.ExchangeScalar(fields[ep.Rank()])
	})
	require.NoError(t, err)
	for n, buf := range buffers {
		checkHalo(t, layout, buf, fields[n])
	}
}

func TestGroupExchangeVector(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{4, 4, 6}, NumPartitions: 3, Strategy: SlabPartition}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 2, 2)
	require.NoError(t, err)
	group, err := NewGroup(buffers)
	require.NoError(t, err)

	vecs := make([]utils.VectorField, len(buffers))
	for n, buf := range buffers {
		vecs[n] = buf.Grid.NewVector()
		for l := 0; l < 3; l++ {
			fillOwned(buf, vecs[n][l])
		}
	}
	require.NoError(t, group.Run(func(ep *Endpoint) error {
		return ep.ExchangeVector(vecs[ep.Rank()])
	}))
	for n, buf := range buffers {
		for l := 0; l < 3; l++ {
			checkHalo(t, layout, buf, vecs[n][l])
		}
	}
}

func TestSerialPeriodicWrap(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{3, 3, 4}, NumPartitions: 1, Periodic: [3]bool{false, false, true}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 1, 1)
	require.NoError(t, err)

	s := NewSerial(buffers[0])
	f := buffers[0].Grid.NewScalar()
	fillOwned(buffers[0], f)
	require.NoError(t, s.ExchangeScalar(f))
	checkHalo(t, layout, buffers[0], f)
}

func TestGroupAllReduce(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{8, 2, 2}, NumPartitions: 4, Divisions: [3]int{4, 1, 1}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 1, 1)
	require.NoError(t, err)
	group, err := NewGroup(buffers)
	require.NoError(t, err)

	sums := make([][]float64, 4)
	maxes := make([]float64, 4)
	require.NoError(t, group.Run(func(ep *Endpoint) error {
		r := float64(ep.Rank())
		for iter := 0; iter < 10; iter++ {
			out := make([]float64, 2)
			if err := ep.AllReduceSum([]float64{r, float64(iter)}, out); err != nil {
				return err
			}
			sums[ep.Rank()] = out
		}
		m, err := AllReduceMax(ep, 10*r-3)
		maxes[ep.Rank()] = m
		return err
	}))
	for rank := 0; rank < 4; rank++ {
		assert.Equal(t, []float64{6, 36}, sums[rank])
		assert.Equal(t, 27.0, maxes[rank])
	}
}

func TestGroupAbort(t *testing.T) {
	pb := &PartitionBuilder{GlobalSize: [3]int{6, 2, 2}, NumPartitions: 3, Divisions: [3]int{3, 1, 1}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := BuildPartitionBuffers(layout, 1, 1)
	require.NoError(t, err)
	group, err := NewGroup(buffers)
	require.NoError(t, err)

	failure := errors.New("local failure")
	peerErrs := make([]error, 3)
	err = group.Run(func(ep *Endpoint) error {
		if ep.Rank() == 1 {
			return failure
		}
		_, err := AllReduceScalar(ep, 1)
		peerErrs[ep.Rank()] = err
		return err
	})
	assert.ErrorIs(t, err, failure)
	assert.ErrorIs(t, peerErrs[0], ErrCollective)
	assert.ErrorIs(t, peerErrs[2], ErrCollective)

	// later collectives fail immediately
	f := buffers[0].Grid.NewScalar()
	assert.ErrorIs(t, group.Endpoint(0).ExchangeScalar(f), ErrCollective)
}
