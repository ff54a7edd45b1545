package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/cutinfo"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// FillParams selects the media of the fill sequence.
type FillParams struct {
	FillID   int32 // fluid medium filling the domain
	SeedID   int32 // medium painted on the seed face
	SeedFace int   // utils.XMinus .. utils.ZPlus, negative for no seed
}

// FillStats summarises one Fill, counts are global over all ranks.
type FillStats struct {
	Seeded      int
	OnCenter    int
	ByBid       int
	Substituted int
	Flooded     map[int32]int
	Modal       int
	Remainder   int // cells painted by FillByID in SeedFilling
}

// FillSeed paints target on the undetermined uncut owned cells of the layer
// next to a global domain face. Sub-domains not touching the face paint
// nothing.
func (geom *Geometry) FillSeed(face int, target int32) int {
	if face < 0 || face >= utils.NumFaces || !geom.GlobalFaces[face] {
		return 0
	}
	var (
		g     = geom.Grid
		axis  = face / 2
		layer = 1
		lo    = [3]int{1, 1, 1}
		hi    = g.Size
		n     int
	)
	if face%2 == 1 {
		layer = g.Size[axis]
	}
	lo[axis], hi[axis] = layer, layer
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				idx := g.Idx(i, j, k)
				if geom.Mid[idx] != Undetermined || geom.Cut[idx].Any() {
					continue
				}
				geom.Mid[idx] = target
				n++
			}
		}
	}
	return n
}

// FillCutOnCellCenter resolves undetermined cells whose centre lies on the
// surface, quantized distance 0, to the solid medium of the cut group.
func (geom *Geometry) FillCutOnCellCenter() int {
	var (
		g  = geom.Grid
		pr = newPlaneResults(g.Size[2])
	)
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					c := geom.Cut[idx]
					if geom.Mid[idx] != Undetermined || !c.Any() {
						continue
					}
					d, _ := c.Closest()
					if c.Quantized(d) != 0 {
						continue
					}
					if grp, ok := geom.groups[geom.Bid[idx].Get(d)]; ok {
						geom.Mid[idx] = grp.Medium
						pr.counts[k]++
					}
				}
			}
		}
	})
	n, _ := pr.total()
	return n
}

// FillByBid resolves every undetermined cell carrying a cut record from the
// orientation of its closest cut polygon. Polygon normals point into the
// fluid, so a positive projection on the cut direction puts the centre
// behind the surface: the cell takes the group's solid medium and counts as
// substituted. The other cells take fluid.
func (geom *Geometry) FillByBid(fluid int32) (painted, substituted int, err error) {
	if geom.Library == nil {
		return 0, 0, fmt.Errorf("fill by boundary id needs a polygon library")
	}
	var (
		g    = geom.Grid
		pr   = newPlaneResults(g.Size[2])
		subs = make([]int, g.Size[2]+1)
	)
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1] && pr.errs[k] == nil; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if geom.Mid[idx] != Undetermined || !geom.Cut[idx].Any() {
						continue
					}
					solid, mid, e := geom.sideOf(i, j, k, fluid)
					if e != nil {
						pr.errs[k] = e
						break
					}
					geom.Mid[idx] = mid
					pr.counts[k]++
					if solid {
						subs[k]++
					}
				}
			}
		}
	})
	if painted, err = pr.total(); err != nil {
		return painted, 0, err
	}
	for _, s := range subs {
		substituted += s
	}
	return painted, substituted, nil
}

func (geom *Geometry) sideOf(i, j, k int, fluid int32) (solid bool, mid int32, err error) {
	var (
		idx     = geom.Grid.Idx(i, j, k)
		d, _    = geom.Cut[idx].Closest()
		bid     = geom.Bid[idx].Get(d)
		grp, ok = geom.groups[bid]
	)
	if !ok {
		return false, Undetermined, fmt.Errorf("cell (%d,%d,%d) %v: unknown polygon group %d", i, j, k, d, bid)
	}
	a := geom.Center(i, j, k)
	b := geom.Center(Neighbor(i, j, k, d))
	polys := geom.Library.SearchPolygons(NewBox(a, b).Inflate(geom.Pitch * 1.0e-6))
	_, p, found := segmentHit(polys, a, b, bid)
	if !found {
		return false, Undetermined, fmt.Errorf("cell (%d,%d,%d) %v: cut polygon of group %d not found", i, j, k, d, bid)
	}
	if r3.Dot(p.Normal(), direction(d)) > 0 {
		return true, grp.Medium, nil
	}
	return false, fluid, nil
}

// FillByFluid floods the fluid medium.
func (geom *Geometry) FillByFluid(fluid int32) int {
	return geom.FillByMid(fluid)
}

// FillByMid floods target from every cell holding it, halo included, into
// face connected undetermined owned cells without a cut record. A flood never
// crosses a face the source cell has a cut on. Cells carrying cuts are never
// written.
func (geom *Geometry) FillByMid(target int32) int {
	var (
		g     = geom.Grid
		queue []int
		n     int
	)
	for idx, m := range geom.Mid {
		if m == target {
			queue = append(queue, idx)
		}
	}
	for len(queue) > 0 {
		src := queue[0]
		queue = queue[1:]
		i, j, k := g.Coords(src)
		srcOwned := g.Owned(i, j, k)
		if !srcOwned && geom.suppressed(i, j, k) {
			continue
		}
		for d := cutinfo.Direction(0); d < cutinfo.NumDirections; d++ {
			if srcOwned && geom.Cut[src].Has(d) {
				continue
			}
			ni, nj, nk := Neighbor(i, j, k, d)
			if !g.Owned(ni, nj, nk) {
				continue
			}
			dst := g.Idx(ni, nj, nk)
			if geom.Mid[dst] != Undetermined || geom.Cut[dst].Any() {
				continue
			}
			geom.Mid[dst] = target
			queue = append(queue, dst)
			n++
		}
	}
	return n
}

// suppressed reports whether halo cell (i, j, k) lies beyond a global face
// of an axis the fill must not cross.
func (geom *Geometry) suppressed(i, j, k int) bool {
	c := [3]int{i, j, k}
	for a := 0; a < 3; a++ {
		if !geom.FillSuppress[a] {
			continue
		}
		if (c[a] < 1 && geom.GlobalFaces[2*a]) || (c[a] > geom.Grid.Size[a] && geom.GlobalFaces[2*a+1]) {
			return true
		}
	}
	return false
}

// FillByID paints target on every undetermined owned cell.
func (geom *Geometry) FillByID(target int32) int {
	var (
		g = geom.Grid
		n int
	)
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				if idx := g.Idx(i, j, k); geom.Mid[idx] == Undetermined {
					geom.Mid[idx] = target
					n++
				}
			}
		}
	}
	return n
}

// AssignVF writes value into the volume fraction of every owned cell
// holding target.
func (geom *Geometry) AssignVF(target int32, value float64) int {
	var (
		g = geom.Grid
		n int
	)
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				if idx := g.Idx(i, j, k); geom.Mid[idx] == target {
					geom.VF[idx] = value
					n++
				}
			}
		}
	}
	return n
}

// FillByModalSolid runs one Jacobi sweep: every undetermined owned cell with
// solid face neighbours takes their most frequent solid id, the lowest id on
// a tie. The fluid id never votes. Neighbours are read from a snapshot so the
// result does not depend on the sweep order.
func (geom *Geometry) FillByModalSolid(fluid int32) int {
	var (
		g    = geom.Grid
		snap = make([]int32, len(geom.Mid))
		pr   = newPlaneResults(g.Size[2])
	)
	copy(snap, geom.Mid)
	utils.ParallelK(geom.pm, func(kMin, kMax int) {
		var votes []int32
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if snap[idx] != Undetermined {
						continue
					}
					votes = votes[:0]
					for d := cutinfo.Direction(0); d < cutinfo.NumDirections; d++ {
						m := snap[g.Idx(Neighbor(i, j, k, d))]
						if m != fluid && geom.Media.IsSolid(m) {
							votes = append(votes, m)
						}
					}
					if mode, ok := ModalID(votes); ok {
						geom.Mid[idx] = mode
						pr.counts[k]++
					}
				}
			}
		}
	})
	n, _ := pr.total()
	return n
}

// ModalID returns the most frequent id of list, the lowest id on a tie.
func ModalID(list []int32) (int32, bool) {
	if len(list) == 0 {
		return Undetermined, false
	}
	counts := make(map[int32]int, len(list))
	for _, m := range list {
		counts[m]++
	}
	var (
		best  int32
		bestN int
	)
	for m, c := range counts {
		if c > bestN || (c == bestN && m < best) {
			best, bestN = m, c
		}
	}
	return best, true
}

// exchangeMid refreshes the halo of the medium ids.
func (geom *Geometry) exchangeMid(comm partitions.Communicator) error {
	scratch := make(utils.ScalarField, len(geom.Mid))
	for n, m := range geom.Mid {
		scratch[n] = float64(m)
	}
	if err := comm.ExchangeScalar(scratch); err != nil {
		return err
	}
	for n, v := range scratch {
		geom.Mid[n] = int32(v)
	}
	return nil
}

// stage repeats pass, halo exchange and a global sum of the changes until no
// rank changes anything. It returns the global count.
func (geom *Geometry) stage(comm partitions.Communicator, pass func() int) (int, error) {
	total := 0
	for {
		local := pass()
		if err := geom.exchangeMid(comm); err != nil {
			return total, err
		}
		n, err := partitions.AllReduceScalar(comm, float64(local))
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += int(n)
	}
}

// sum reduces a local count over all ranks.
func sum(comm partitions.Communicator, v int) (int, error) {
	s, err := partitions.AllReduceScalar(comm, float64(v))
	return int(s), err
}

// fillCuts runs the stages shared by Fill and SeedFilling: seed, cut on
// centre and by boundary id.
func (geom *Geometry) fillCuts(comm partitions.Communicator, fp FillParams) (stats FillStats, err error) {
	stats.Flooded = make(map[int32]int)
	if !geom.Media.IsFluid(fp.FillID) {
		return stats, fmt.Errorf("fill medium %d is not a fluid", fp.FillID)
	}
	if fp.SeedFace >= 0 {
		if _, ok := geom.Media.Lookup(fp.SeedID); !ok {
			return stats, fmt.Errorf("seed medium %d not in the medium table", fp.SeedID)
		}
		if stats.Seeded, err = sum(comm, geom.FillSeed(fp.SeedFace, fp.SeedID)); err != nil {
			return
		}
	}
	if stats.OnCenter, err = sum(comm, geom.FillCutOnCellCenter()); err != nil {
		return
	}
	if geom.Library != nil {
		// an error here returns before the next collective; the peers are
		// released by the abort of the failing rank
		painted, substituted, e := geom.FillByBid(fp.FillID)
		if e != nil {
			return stats, e
		}
		if stats.ByBid, err = sum(comm, painted); err != nil {
			return
		}
		if stats.Substituted, err = sum(comm, substituted); err != nil {
			return
		}
	}
	return
}

// flood runs FillByMid for id as a cross-rank stage.
func (geom *Geometry) flood(comm partitions.Communicator, stats *FillStats, id int32) error {
	n, err := geom.stage(comm, func() int { return geom.FillByMid(id) })
	stats.Flooded[id] += n
	return err
}

// finish checks that no owned cell is left undetermined and copies the ids
// onto the outer guide cells.
func (geom *Geometry) finish(comm partitions.Communicator, stats FillStats, what string) error {
	left, err := sum(comm, geom.CountCell(Undetermined, true))
	if err != nil {
		return err
	}
	if comm.Rank() == 0 {
		geom.logf("%s: seeded %d, on centre %d, by bid %d (substituted %d), flooded %v, modal %d, remainder %d",
			what, stats.Seeded, stats.OnCenter, stats.ByBid, stats.Substituted, stats.Flooded, stats.Modal, stats.Remainder)
	}
	if left > 0 {
		return fmt.Errorf("%w: %d cells", ErrUnresolvedCells, left)
	}
	geom.CopyIDOnGuide()
	return nil
}

// Fill runs the complete classification: seed, cut on centre, by boundary
// id, fluid flood, seed flood, per solid flood in ascending id order and modal
// solid voting. Every flood and modal stage iterates across ranks until no
// cell changes. Afterwards no owned cell is undetermined, or
// ErrUnresolvedCells is returned.
func (geom *Geometry) Fill(comm partitions.Communicator, fp FillParams) (FillStats, error) {
	stats, err := geom.fillCuts(comm, fp)
	if err != nil {
		return stats, err
	}
	if err = geom.flood(comm, &stats, fp.FillID); err != nil {
		return stats, err
	}
	if fp.SeedFace >= 0 && fp.SeedID != fp.FillID {
		if err = geom.flood(comm, &stats, fp.SeedID); err != nil {
			return stats, err
		}
	}
	for _, id := range geom.Media.SolidIDs() {
		if err = geom.flood(comm, &stats, id); err != nil {
			return stats, err
		}
	}
	if stats.Modal, err = geom.stage(comm, func() int { return geom.FillByModalSolid(fp.FillID) }); err != nil {
		return stats, err
	}
	return stats, geom.finish(comm, stats, "fill")
}

// SeedFilling classifies a domain holding watertight polygon groups of one
// solid: the fluid is flooded from the seed face and the cut cells, and every
// cell the flood cannot reach lies inside a surface and takes solid. A
// surface with a hole lets the fluid leak inside, which shows as a missing
// solid count in the stats.
func (geom *Geometry) SeedFilling(comm partitions.Communicator, fp FillParams, solid int32) (FillStats, error) {
	if !geom.Media.IsSolid(solid) {
		return FillStats{}, fmt.Errorf("seed filling medium %d is not a solid", solid)
	}
	if fp.SeedFace < 0 {
		return FillStats{}, fmt.Errorf("seed filling needs a seed face")
	}
	stats, err := geom.fillCuts(comm, fp)
	if err != nil {
		return stats, err
	}
	if err = geom.flood(comm, &stats, fp.FillID); err != nil {
		return stats, err
	}
	if fp.SeedID != fp.FillID {
		if err = geom.flood(comm, &stats, fp.SeedID); err != nil {
			return stats, err
		}
	}
	if stats.Remainder, err = sum(comm, geom.FillByID(solid)); err != nil {
		return stats, err
	}
	if err = geom.exchangeMid(comm); err != nil {
		return stats, err
	}
	return stats, geom.finish(comm, stats, "seed filling")
}

// CopyIDOnGuide copies the medium of the owned layer next to every outer face
// into the halo layers of that face.
func (geom *Geometry) CopyIDOnGuide() {
	g := geom.Grid
	for face := 0; face < utils.NumFaces; face++ {
		if !geom.OuterFaces[face] {
			continue
		}
		axis := face / 2
		var lo, hi [3]int
		for d := 0; d < 3; d++ {
			lo[d], hi[d] = 1-g.Guide, g.Size[d]+g.Guide
		}
		src := 1
		if face%2 == 0 {
			lo[axis], hi[axis] = 1-g.Guide, 0
		} else {
			src = g.Size[axis]
			lo[axis], hi[axis] = g.Size[axis]+1, g.Size[axis]+g.Guide
		}
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					c := [3]int{i, j, k}
					c[axis] = src
					geom.Mid[g.Idx(i, j, k)] = geom.Mid[g.Idx(c[0], c[1], c[2])]
				}
			}
		}
	}
}
