package geometry

import (
	"errors"
	"fmt"
	"log"

	"github.com/notargets/FVKernel/cutinfo"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnresolvedCells is returned when undetermined cells remain after every
// fill stage: the surface does not enclose the domain the way the fill
// parameters assume.
var ErrUnresolvedCells = errors.New("cells remain undetermined after fill")

// Params places a sub-domain in the global domain and binds the tables the
// engine reads.
type Params struct {
	Head       [3]int // global offset of the owned block, 0-based
	GlobalSize [3]int
	Origin     r3.Vec // min corner of the global domain
	Pitch      float64

	// GlobalFaces marks faces of the sub-domain lying on a face of the global
	// domain, periodic or not; OuterFaces only the non-periodic ones.
	GlobalFaces [utils.NumFaces]bool
	OuterFaces  [utils.NumFaces]bool
	// FillSuppress stops floods from entering through the global faces of
	// an axis, used for periodic and symmetric axes.
	FillSuppress [3]bool

	Media   MediumList
	Groups  []PolygonGroup
	Library PolygonLibrary // nil when cells are classified analytically

	ParallelDegree int
	Logger         *log.Logger // nil silences the fill summaries
}

// Geometry holds the per-cell classification state of one sub-domain.
type Geometry struct {
	Params
	Grid *utils.Grid

	Mid      []int32       // medium id, Undetermined until resolved
	Cut      []cutinfo.Cut // quantized cut distances per direction
	Bid      []cutinfo.Bid // polygon group per direction
	VF       []float64     // fluid volume fraction
	SolidSub []int32       // modal solid sub-medium of cut cells

	groups map[int]PolygonGroup
	pm     *utils.PartitionMap
}

// NewGeometry allocates the classification arrays of g.
func NewGeometry(g *utils.Grid, p Params) (*Geometry, error) {
	if g == nil {
		return nil, fmt.Errorf("nil grid")
	}
	if g.Guide < 1 {
		return nil, fmt.Errorf("classification needs a guide cell halo, got width %d", g.Guide)
	}
	if !(p.Pitch > 0) {
		return nil, fmt.Errorf("invalid cell pitch %v", p.Pitch)
	}
	if len(p.Media) == 0 {
		return nil, fmt.Errorf("empty medium table")
	}
	geom := &Geometry{
		Params:   p,
		Grid:     g,
		Mid:      g.NewMedium(),
		Cut:      make([]cutinfo.Cut, g.Volume),
		Bid:      make([]cutinfo.Bid, g.Volume),
		VF:       make([]float64, g.Volume),
		SolidSub: g.NewMedium(),
		groups:   make(map[int]PolygonGroup),
		pm:       utils.NewPartitionMap(p.ParallelDegree, g.Size[2]),
	}
	for _, grp := range p.Groups {
		if grp.ID < 1 || grp.ID > cutinfo.BidMax {
			return nil, fmt.Errorf("polygon group %q: %w: id %d", grp.Label, cutinfo.ErrBidOverflow, grp.ID)
		}
		if _, dup := geom.groups[grp.ID]; dup {
			return nil, fmt.Errorf("duplicate polygon group id %d", grp.ID)
		}
		if !p.Media.IsSolid(grp.Medium) {
			return nil, fmt.Errorf("polygon group %q: medium %d is not a solid", grp.Label, grp.Medium)
		}
		geom.groups[grp.ID] = grp
	}
	return geom, nil
}

// Group returns the polygon group with the given id.
func (geom *Geometry) Group(id int) (PolygonGroup, bool) {
	grp, ok := geom.groups[id]
	return grp, ok
}

// Center returns the centre of local cell (i, j, k); halo indices are valid.
func (geom *Geometry) Center(i, j, k int) r3.Vec {
	h := geom.Pitch
	return r3.Vec{
		X: geom.Origin.X + (float64(geom.Head[0]+i)-0.5)*h,
		Y: geom.Origin.Y + (float64(geom.Head[1]+j)-0.5)*h,
		Z: geom.Origin.Z + (float64(geom.Head[2]+k)-0.5)*h,
	}
}

// CellBox returns the box of local cell (i, j, k).
func (geom *Geometry) CellBox(i, j, k int) Box {
	c := geom.Center(i, j, k)
	half := r3.Vec{X: geom.Pitch / 2, Y: geom.Pitch / 2, Z: geom.Pitch / 2}
	return Box{Min: r3.Sub(c, half), Max: r3.Add(c, half)}
}

// Neighbor returns the index triple next to (i, j, k) in direction d.
func Neighbor(i, j, k int, d cutinfo.Direction) (int, int, int) {
	off := d.Offset()
	return i + off[0], j + off[1], k + off[2]
}

// CountCell counts owned cells holding id when painted is true, or the cells
// holding any other id otherwise.
func (geom *Geometry) CountCell(id int32, painted bool) int {
	var (
		g = geom.Grid
		n int
	)
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				if (geom.Mid[g.Idx(i, j, k)] == id) == painted {
					n++
				}
			}
		}
	}
	return n
}

// CountCut returns the number of owned cells carrying any cut record.
func (geom *Geometry) CountCut() int {
	var (
		g = geom.Grid
		n int
	)
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				if geom.Cut[g.Idx(i, j, k)].Any() {
					n++
				}
			}
		}
	}
	return n
}

func (geom *Geometry) logf(format string, args ...interface{}) {
	if geom.Logger != nil {
		geom.Logger.Printf(format, args...)
	}
}

// planeResults gathers one value per k plane so that sums over a parallel
// loop come out in plane order.
type planeResults struct {
	counts []int
	errs   []error
}

func newPlaneResults(nk int) *planeResults {
	return &planeResults{counts: make([]int, nk+1), errs: make([]error, nk+1)}
}

func (pr *planeResults) total() (int, error) {
	n := 0
	for k, c := range pr.counts {
		if pr.errs[k] != nil {
			return n, pr.errs[k]
		}
		n += c
	}
	return n, nil
}
