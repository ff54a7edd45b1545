package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/cutinfo"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// segmentHit finds the closest crossing of the segment a->b with the polygons
// of group (any group when group < 0). Polygons are visited in ID order, so a
// tie keeps the lowest ID.
func segmentHit(polys []Polygon, a, b r3.Vec, group int) (t float64, poly *Polygon, ok bool) {
	t = 2
	for n := range polys {
		p := &polys[n]
		if group >= 0 && p.Group != group {
			continue
		}
		s, x, err := IntersectLineByPlane(a, b, p.Plane())
		if err != nil || s < 0 || s > 1 || s >= t {
			continue
		}
		if !p.Contains(x) {
			continue
		}
		t, poly, ok = s, p, true
	}
	return
}

// QuantizeCut records for every owned cell and direction the closest
// crossing of the segment from the cell centre to the neighbour centre with
// the polygon library. It returns the number of new cut records.
func (geom *Geometry) QuantizeCut() (int, error) {
	if geom.Library == nil {
		return 0, fmt.Errorf("cut quantization needs a polygon library")
	}
	var (
		g  = geom.Grid
		pr = newPlaneResults(g.Size[2])
	)
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					n, err := geom.quantizeCell(i, j, k)
					pr.counts[k] += n
					if err != nil {
						pr.errs[k] = fmt.Errorf("cell (%d,%d,%d): %w", i, j, k, err)
						break
					}
				}
				if pr.errs[k] != nil {
					break
				}
			}
		}
	})
	return pr.total()
}

func (geom *Geometry) quantizeCell(i, j, k int) (int, error) {
	var (
		idx   = geom.Grid.Idx(i, j, k)
		a     = geom.Center(i, j, k)
		box   = geom.CellBox(i, j, k).Inflate(geom.Pitch / 2)
		polys = geom.Library.SearchPolygons(box)
		count int
	)
	if len(polys) == 0 {
		return 0, nil
	}
	for d := cutinfo.Direction(0); d < cutinfo.NumDirections; d++ {
		b := geom.Center(Neighbor(i, j, k, d))
		t, p, ok := segmentHit(polys, a, b, -1)
		if !ok {
			continue
		}
		n, err := cutinfo.Update(&geom.Cut[idx], &geom.Bid[idx], d, t, p.Group)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

// direction returns the unit vector of d.
func direction(d cutinfo.Direction) r3.Vec {
	off := d.Offset()
	return r3.Vec{X: float64(off[0]), Y: float64(off[1]), Z: float64(off[2])}
}
