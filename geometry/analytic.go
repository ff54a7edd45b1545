package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Shape maps a point of the global domain to the medium occupying it.
type Shape func(p r3.Vec) int32

// PaintAnalytic classifies every owned cell by the medium of shape at its
// centre and writes VF and SolidSub from n³ sub-cell samples of shape. The
// halo ids are refreshed across ranks and copied onto the outer guide
// cells, as Fill leaves them. It returns the global count of mixed cells.
func (geom *Geometry) PaintAnalytic(comm partitions.Communicator, shape Shape, n int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("%w: sub-cell division %d, must be at least 1", config.ErrConfig, n)
	}
	var (
		g  = geom.Grid
		h  = geom.Pitch / float64(n)
		pr = newPlaneResults(g.Size[2])
	)
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		votes := make([]int32, 0, n*n*n)
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1] && pr.errs[k] == nil; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					mid := shape(geom.Center(i, j, k))
					if _, ok := geom.Media.Lookup(mid); !ok {
						pr.errs[k] = fmt.Errorf("cell (%d,%d,%d): shape returned medium %d", i, j, k, mid)
						break
					}
					geom.Mid[idx] = mid

					min := geom.CellBox(i, j, k).Min
					fluid := 0
					votes = votes[:0]
					for c := 0; c < n; c++ {
						for b := 0; b < n; b++ {
							for a := 0; a < n; a++ {
								m := shape(r3.Vec{
									X: min.X + (float64(a)+0.5)*h,
									Y: min.Y + (float64(b)+0.5)*h,
									Z: min.Z + (float64(c)+0.5)*h,
								})
								if geom.Media.IsFluid(m) {
									fluid++
								} else {
									votes = append(votes, m)
								}
							}
						}
					}
					geom.VF[idx] = float64(fluid) / float64(n*n*n)
					geom.SolidSub[idx] = Undetermined
					if s, ok := ModalID(votes); ok {
						geom.SolidSub[idx] = s
					}
					if fluid != 0 && len(votes) != 0 {
						pr.counts[k]++
					}
				}
			}
		}
	})
	// the failure flag rides on the count so that every rank reaches the
	// same collectives
	mixed, perr := pr.total()
	local := []float64{float64(mixed), 0}
	if perr != nil {
		local[1] = 1
	}
	global := make([]float64, len(local))
	if err := comm.AllReduceSum(local, global); err != nil {
		return 0, err
	}
	if perr != nil {
		return 0, perr
	}
	if global[1] > 0 {
		return 0, fmt.Errorf("analytic fill failed on %d ranks", int(global[1]))
	}
	if err := geom.exchangeMid(comm); err != nil {
		return 0, err
	}
	geom.CopyIDOnGuide()
	if comm.Rank() == 0 {
		geom.logf("analytic fill: %d mixed cells sampled with %d³ sub-cells", int(global[0]), n)
	}
	return int(global[0]), nil
}
