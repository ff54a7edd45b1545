package utils

import (
	"runtime"
	"sync"
)

// PartitionMap splits the index range [0, MaxIndex) into ParallelDegree
// contiguous buckets. Loops over a grid axis are sharded by bucket so that
// every goroutine writes a disjoint set of planes.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

// NewPartitionMap creates a map for maxIndex entries. A ParallelDegree of 0
// selects runtime.NumCPU().
func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree <= 0 {
		ParallelDegree = runtime.NumCPU()
	}
	if ParallelDegree > maxIndex {
		ParallelDegree = maxIndex
	}
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.split1D(n)
	}
	return
}

func (pm *PartitionMap) split1D(threadNum int) (bucket [2]int) {
	var (
		Npart            = pm.MaxIndex / pm.ParallelDegree
		startAdd, endAdd int
		remainder        = pm.MaxIndex % pm.ParallelDegree
	)
	if remainder != 0 {
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// GetBucket returns the bucket holding index kDim.
func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	for bn, b := range pm.Partitions {
		if kDim >= b[0] && kDim < b[1] {
			return bn, b[0], b[1]
		}
	}
	return -1, 0, 0
}

// GetBucketRange returns the half-open index range of a bucket.
func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

// GetBucketDimension returns the number of indices in a bucket.
func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	k1, k2 := pm.GetBucketRange(bn)
	kMax = k2 - k1
	return
}

// Run calls fn once per bucket, concurrently, and waits for all of them.
// The ranges passed to fn are shifted by offset so callers can iterate over
// 1-based grid indices directly.
func (pm *PartitionMap) Run(offset int, fn func(kMin, kMax int)) {
	if pm.ParallelDegree == 1 {
		fn(offset, pm.MaxIndex+offset)
		return
	}
	var wg sync.WaitGroup
	for np := 0; np < pm.ParallelDegree; np++ {
		kMin, kMax := pm.GetBucketRange(np)
		wg.Add(1)
		go func(kMin, kMax int) {
			defer wg.Done()
			fn(kMin+offset, kMax+offset)
		}(kMin, kMax)
	}
	wg.Wait()
}

// ParallelK shards the 1-based planes 1..pm.MaxIndex across pm.
func ParallelK(pm *PartitionMap, fn func(kMin, kMax int)) {
	pm.Run(1, fn)
}
