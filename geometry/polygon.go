package geometry

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Polygon is a triangular surface element. Vertices are ordered
// counter-clockwise when seen from the fluid side, so Normal points out of
// the solid the polygon bounds.
type Polygon struct {
	ID       int
	Group    int // polygon group id, recorded in the boundary id field
	Vertices [3]r3.Vec
}

// Normal returns the unit normal (v1-v0)x(v2-v0).
func (p *Polygon) Normal() r3.Vec {
	n := r3.Cross(r3.Sub(p.Vertices[1], p.Vertices[0]), r3.Sub(p.Vertices[2], p.Vertices[0]))
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// Plane returns the coefficients a, b, c, d of ax+by+cz+d=0 with (a,b,c) the
// unit normal.
func (p *Polygon) Plane() [4]float64 {
	n := p.Normal()
	return [4]float64{n.X, n.Y, n.Z, -r3.Dot(n, p.Vertices[0])}
}

// Bounds returns the bounding box of the polygon.
func (p *Polygon) Bounds() Box {
	return NewBox(p.Vertices[0], p.Vertices[1], p.Vertices[2])
}

// Area returns the triangle area.
func (p *Polygon) Area() float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(p.Vertices[1], p.Vertices[0]), r3.Sub(p.Vertices[2], p.Vertices[0])))
}

// Contains reports whether x, assumed to lie in the plane of p, falls inside
// the triangle. Edges are inclusive within a small relative tolerance.
func (p *Polygon) Contains(x r3.Vec) bool {
	var (
		v0  = r3.Sub(p.Vertices[1], p.Vertices[0])
		v1  = r3.Sub(p.Vertices[2], p.Vertices[0])
		v2  = r3.Sub(x, p.Vertices[0])
		d00 = r3.Dot(v0, v0)
		d01 = r3.Dot(v0, v1)
		d11 = r3.Dot(v1, v1)
		d20 = r3.Dot(v2, v0)
		d21 = r3.Dot(v2, v1)
	)
	denom := d00*d11 - d01*d01
	if denom == 0 {
		return false
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	u := 1 - v - w
	const tol = 1.0e-10
	return u >= -tol && v >= -tol && w >= -tol
}

// PolygonLibrary is the polygon collaborator: it enumerates the polygons
// whose bounds overlap a box.
type PolygonLibrary interface {
	SearchPolygons(box Box) []Polygon
	Bounds() Box
}

// TriangleSet is an in-memory PolygonLibrary with a uniform bin index.
type TriangleSet struct {
	polygons []Polygon
	bounds   Box
	bins     [3]int
	binWidth r3.Vec
	index    map[[3]int][]int
}

// NewTriangleSet indexes polygons using roughly binsPerAxis bins per axis.
func NewTriangleSet(polygons []Polygon, binsPerAxis int) (*TriangleSet, error) {
	if len(polygons) == 0 {
		return nil, fmt.Errorf("empty polygon set")
	}
	if binsPerAxis < 1 {
		binsPerAxis = 1
	}
	ts := &TriangleSet{
		polygons: make([]Polygon, len(polygons)),
		bounds:   NewBox(),
		index:    make(map[[3]int][]int),
	}
	copy(ts.polygons, polygons)
	for n := range ts.polygons {
		p := &ts.polygons[n]
		if p.Area() == 0 {
			return nil, fmt.Errorf("polygon %d: %w: zero area", p.ID, ErrDegenerate)
		}
		for _, v := range p.Vertices {
			ts.bounds.Extend(v)
		}
	}
	ts.bounds = ts.bounds.Inflate(1.0e-9)
	ext := r3.Sub(ts.bounds.Max, ts.bounds.Min)
	for d, e := range [3]float64{ext.X, ext.Y, ext.Z} {
		ts.bins[d] = binsPerAxis
		if e <= 0 {
			ts.bins[d] = 1
		}
	}
	ts.binWidth = r3.Vec{
		X: ext.X / float64(ts.bins[0]),
		Y: ext.Y / float64(ts.bins[1]),
		Z: ext.Z / float64(ts.bins[2]),
	}
	for n := range ts.polygons {
		lo, hi := ts.binRange(ts.polygons[n].Bounds())
		for a := lo[0]; a <= hi[0]; a++ {
			for b := lo[1]; b <= hi[1]; b++ {
				for c := lo[2]; c <= hi[2]; c++ {
					key := [3]int{a, b, c}
					ts.index[key] = append(ts.index[key], n)
				}
			}
		}
	}
	return ts, nil
}

func (ts *TriangleSet) binOf(v, min, width float64, nb int) int {
	if width <= 0 {
		return 0
	}
	b := int(math.Floor((v - min) / width))
	if b < 0 {
		b = 0
	}
	if b >= nb {
		b = nb - 1
	}
	return b
}

func (ts *TriangleSet) binRange(b Box) (lo, hi [3]int) {
	lo[0] = ts.binOf(b.Min.X, ts.bounds.Min.X, ts.binWidth.X, ts.bins[0])
	lo[1] = ts.binOf(b.Min.Y, ts.bounds.Min.Y, ts.binWidth.Y, ts.bins[1])
	lo[2] = ts.binOf(b.Min.Z, ts.bounds.Min.Z, ts.binWidth.Z, ts.bins[2])
	hi[0] = ts.binOf(b.Max.X, ts.bounds.Min.X, ts.binWidth.X, ts.bins[0])
	hi[1] = ts.binOf(b.Max.Y, ts.bounds.Min.Y, ts.binWidth.Y, ts.bins[1])
	hi[2] = ts.binOf(b.Max.Z, ts.bounds.Min.Z, ts.binWidth.Z, ts.bins[2])
	return
}

// SearchPolygons returns the polygons whose bounds overlap box, ordered by ID.
func (ts *TriangleSet) SearchPolygons(box Box) []Polygon {
	if !box.Overlaps(ts.bounds) {
		return nil
	}
	lo, hi := ts.binRange(box)
	seen := make(map[int]bool)
	var hits []int
	for a := lo[0]; a <= hi[0]; a++ {
		for b := lo[1]; b <= hi[1]; b++ {
			for c := lo[2]; c <= hi[2]; c++ {
				for _, n := range ts.index[[3]int{a, b, c}] {
					if seen[n] {
						continue
					}
					seen[n] = true
					if ts.polygons[n].Bounds().Overlaps(box) {
						hits = append(hits, n)
					}
				}
			}
		}
	}
	sort.Ints(hits)
	out := make([]Polygon, len(hits))
	for n, h := range hits {
		out[n] = ts.polygons[h]
	}
	return out
}

// Bounds returns the box enclosing every polygon.
func (ts *TriangleSet) Bounds() Box {
	return ts.bounds
}

// Len returns the number of polygons.
func (ts *TriangleSet) Len() int {
	return len(ts.polygons)
}

// BoxSurface returns the 12 triangles of the closed surface of an axis aligned
// box with outward normals. IDs start at firstID.
func BoxSurface(min, max r3.Vec, group, firstID int) []Polygon {
	c := [8]r3.Vec{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	// quads counter-clockwise seen from outside
	quads := [6][4]int{
		{0, 3, 2, 1}, // z min
		{4, 5, 6, 7}, // z max
		{0, 1, 5, 4}, // y min
		{3, 7, 6, 2}, // y max
		{0, 4, 7, 3}, // x min
		{1, 2, 6, 5}, // x max
	}
	polys := make([]Polygon, 0, 12)
	id := firstID
	for _, q := range quads {
		polys = append(polys,
			Polygon{ID: id, Group: group, Vertices: [3]r3.Vec{c[q[0]], c[q[1]], c[q[2]]}},
			Polygon{ID: id + 1, Group: group, Vertices: [3]r3.Vec{c[q[0]], c[q[2]], c[q[3]]}},
		)
		id += 2
	}
	return polys
}

// SphereSurface returns a UV-sphere triangulation with outward normals using
// nLat latitude bands and nLon longitude sectors.
func SphereSurface(center r3.Vec, radius float64, nLat, nLon, group, firstID int) []Polygon {
	if nLat < 2 {
		nLat = 2
	}
	if nLon < 3 {
		nLon = 3
	}
	point := func(a, b int) r3.Vec {
		theta := math.Pi * float64(a) / float64(nLat)
		phi := 2 * math.Pi * float64(b%nLon) / float64(nLon)
		return r3.Add(center, r3.Vec{
			X: radius * math.Sin(theta) * math.Cos(phi),
			Y: radius * math.Sin(theta) * math.Sin(phi),
			Z: radius * math.Cos(theta),
		})
	}
	var polys []Polygon
	id := firstID
	for a := 0; a < nLat; a++ {
		for b := 0; b < nLon; b++ {
			p00, p01 := point(a, b), point(a, b+1)
			p10, p11 := point(a+1, b), point(a+1, b+1)
			if a != 0 {
				polys = append(polys, Polygon{ID: id, Group: group, Vertices: [3]r3.Vec{p00, p10, p01}})
				id++
			}
			if a != nLat-1 {
				polys = append(polys, Polygon{ID: id, Group: group, Vertices: [3]r3.Vec{p01, p10, p11}})
				id++
			}
		}
	}
	return polys
}
