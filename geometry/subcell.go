package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/cutinfo"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// rayDir is nearly +x; the small irrational tilt keeps parity rays off the
// polygon edges of axis aligned surfaces.
var rayDir = r3.Vec{X: 1, Y: 1.0e-4 * math.Sqrt2, Z: 1.0e-4 * math.Sqrt(3)}

// subFluid marks a fluid sub-cell; solid sub-cells hold their medium id and
// sub-cells on the surface stay Undetermined until the modal fill.
const subFluid int32 = -1

// SubDivision splits cell (i, j, k) into n³ sub-cells and classifies each
// sub-cell centre by the crossing parity of a ray against every polygon
// group. Centres lying on a polygon take the modal solid of their sub-cell
// neighbours. It returns the fluid volume fraction and the modal solid
// medium of the sub-cells, Undetermined when no sub-cell is solid.
func (geom *Geometry) SubDivision(i, j, k, n int) (vf float64, solid int32, err error) {
	if n < 1 {
		return 0, Undetermined, fmt.Errorf("%w: sub-cell division %d, must be at least 1", config.ErrConfig, n)
	}
	if geom.Library == nil {
		return 0, Undetermined, fmt.Errorf("sub-cell refinement needs a polygon library")
	}
	smd := geom.SubCellIncTest(i, j, k, n)
	geom.FillSubCellByModalSolid(smd, n)

	var (
		fluid int
		votes []int32
	)
	for _, m := range smd {
		if m == subFluid {
			fluid++
			continue
		}
		votes = append(votes, m)
	}
	total := n * n * n
	switch fluid {
	case total:
		vf = 1
	case 0:
		vf = 0
	default:
		vf = float64(fluid) / float64(total)
	}
	solid, _ = ModalID(votes)
	return vf, solid, nil
}

// SubCellIncTest classifies the n³ sub-cell centres of cell (i, j, k),
// x fastest. A centre within a relative 1e-9 of a polygon is left
// Undetermined.
func (geom *Geometry) SubCellIncTest(i, j, k, n int) []int32 {
	var (
		cell   = geom.CellBox(i, j, k)
		bounds = geom.Library.Bounds()
		reach  = math.Max(bounds.Max.X-cell.Min.X, 0) + geom.Pitch
		sweep  = Box{Min: cell.Min, Max: r3.Add(cell.Max, r3.Scale(reach, rayDir))}
		polys  = geom.Library.SearchPolygons(sweep)
		h      = geom.Pitch / float64(n)
		tol    = 1.0e-9 * geom.Pitch
		smd    = make([]int32, 0, n*n*n)
	)
	for c := 0; c < n; c++ {
		for b := 0; b < n; b++ {
			for a := 0; a < n; a++ {
				p := r3.Vec{
					X: cell.Min.X + (float64(a)+0.5)*h,
					Y: cell.Min.Y + (float64(b)+0.5)*h,
					Z: cell.Min.Z + (float64(c)+0.5)*h,
				}
				if onSurface(polys, p, tol) {
					smd = append(smd, Undetermined)
					continue
				}
				m := geom.classifyPoint(polys, p, reach)
				if m == Undetermined {
					m = subFluid
				}
				smd = append(smd, m)
			}
		}
	}
	return smd
}

func onSurface(polys []Polygon, p r3.Vec, tol float64) bool {
	for n := range polys {
		poly := &polys[n]
		nv := poly.Normal()
		if nv == (r3.Vec{}) {
			continue
		}
		d := r3.Dot(nv, r3.Sub(p, poly.Vertices[0]))
		if math.Abs(d) > tol {
			continue
		}
		if poly.Contains(r3.Sub(p, r3.Scale(d, nv))) {
			return true
		}
	}
	return false
}

// FillSubCellByModalSolid resolves the undetermined sub-cells of an n³
// block from the modal solid of their face neighbours, in Jacobi sweeps
// until nothing changes. Sub-cells without a solid neighbour end fluid. It
// returns the number of sub-cells resolved to a solid.
func (geom *Geometry) FillSubCellByModalSolid(smd []int32, n int) int {
	var (
		snap   = make([]int32, len(smd))
		votes  []int32
		filled int
	)
	at := func(a, b, c int) int { return a + n*(b+n*c) }
	for {
		copy(snap, smd)
		changed := 0
		for c := 0; c < n; c++ {
			for b := 0; b < n; b++ {
				for a := 0; a < n; a++ {
					s := at(a, b, c)
					if snap[s] != Undetermined {
						continue
					}
					votes = votes[:0]
					for d := cutinfo.Direction(0); d < cutinfo.NumDirections; d++ {
						off := d.Offset()
						na, nb, nc := a+off[0], b+off[1], c+off[2]
						if na < 0 || nb < 0 || nc < 0 || na >= n || nb >= n || nc >= n {
							continue
						}
						if m := snap[at(na, nb, nc)]; m > Undetermined {
							votes = append(votes, m)
						}
					}
					if mode, ok := ModalID(votes); ok {
						smd[s] = mode
						changed++
					}
				}
			}
		}
		filled += changed
		if changed == 0 {
			break
		}
	}
	for s, m := range smd {
		if m == Undetermined {
			smd[s] = subFluid
		}
	}
	return filled
}

// classifyPoint returns the solid medium enclosing p, or Undetermined for
// fluid. A group is crossed an odd number of times by a ray leaving an
// enclosed point; several enclosing groups resolve to the lowest medium id.
func (geom *Geometry) classifyPoint(polys []Polygon, p r3.Vec, reach float64) int32 {
	var (
		end  = r3.Add(p, r3.Scale(reach, rayDir))
		hits = make(map[int][]float64)
	)
	for n := range polys {
		poly := &polys[n]
		t, x, err := IntersectLineByPlane(p, end, poly.Plane())
		if err != nil || t < 0 || t > 1 || !poly.Contains(x) {
			continue
		}
		hits[poly.Group] = append(hits[poly.Group], t)
	}
	inside := Undetermined
	for grp, ts := range hits {
		if crossings(ts)%2 == 0 {
			continue
		}
		g, ok := geom.groups[grp]
		if !ok {
			continue
		}
		if inside == Undetermined || g.Medium < inside {
			inside = g.Medium
		}
	}
	return inside
}

// crossings counts distinct ray parameters; a ray through an edge shared by
// two polygons of a group crosses the surface once.
func crossings(ts []float64) int {
	sort.Float64s(ts)
	n := 0
	for m, t := range ts {
		if m == 0 || t-ts[m-1] > 1.0e-9 {
			n++
		}
	}
	return n
}

// SubSampling writes the fluid volume fraction of every owned cell: n³
// refinement for cells carrying a cut record, exactly 1 or 0 for uncut fluid
// or solid cells.
func (geom *Geometry) SubSampling(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: sub-cell division %d, must be at least 1", config.ErrConfig, n)
	}
	var (
		g  = geom.Grid
		pr = newPlaneResults(g.Size[2])
	)
	geom.AssignVF(Undetermined, 0)
	for _, m := range geom.Media {
		if m.State == Fluid {
			geom.AssignVF(m.ID, 1)
		} else {
			geom.AssignVF(m.ID, 0)
		}
	}
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1] && pr.errs[k] == nil; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !geom.Cut[idx].Any() {
						geom.SolidSub[idx] = Undetermined
						if geom.Media.IsSolid(geom.Mid[idx]) {
							geom.SolidSub[idx] = geom.Mid[idx]
						}
						continue
					}
					vf, solid, err := geom.SubDivision(i, j, k, n)
					if err != nil {
						pr.errs[k] = fmt.Errorf("cell (%d,%d,%d): %w", i, j, k, err)
						break
					}
					geom.VF[idx] = vf
					geom.SolidSub[idx] = solid
					pr.counts[k]++
				}
			}
		}
	})
	refined, err := pr.total()
	if err != nil {
		return err
	}
	geom.logf("sub-sampling: %d cut cells refined with %d³ sub-cells", refined, n)
	return nil
}
