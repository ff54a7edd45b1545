package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DegenerateEps bounds |n·(B-A)| relative to |n||B-A| below which a segment
// is taken as parallel to a plane.
const DegenerateEps = 1.0e-12

// ErrDegenerate reports a segment/plane pair with no well-defined
// intersection: a zero-length segment, a zero normal or a segment parallel to
// the plane. Callers treat it as "no intersection".
var ErrDegenerate = errors.New("degenerate geometry")

// IntersectLineByPlane returns the parametric position t of the intersection
// of the line through A and B with the plane pl[0]x+pl[1]y+pl[2]z+pl[3]=0,
// together with the intersection point X = A + t(B-A). The raw t is returned;
// callers check 0 <= t <= 1 for a segment hit.
func IntersectLineByPlane(A, B r3.Vec, pl [4]float64) (t float64, X r3.Vec, err error) {
	var (
		n   = r3.Vec{X: pl[0], Y: pl[1], Z: pl[2]}
		ab  = r3.Sub(B, A)
		lab = r3.Norm(ab)
		ln  = r3.Norm(n)
	)
	if lab == 0 || ln == 0 || math.IsNaN(lab) || math.IsNaN(ln) {
		return -1, X, ErrDegenerate
	}
	denom := r3.Dot(n, ab)
	if math.Abs(denom) <= DegenerateEps*ln*lab {
		return -1, X, ErrDegenerate
	}
	t = -(r3.Dot(n, A) + pl[3]) / denom
	X = r3.Add(A, r3.Scale(t, ab))
	return t, X, nil
}

// Box is an axis aligned bounding box.
type Box struct {
	Min, Max r3.Vec
}

// NewBox returns the bounding box of the given points.
func NewBox(pts ...r3.Vec) Box {
	b := Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, p := range pts {
		b.Extend(p)
	}
	return b
}

// Extend grows b to contain p.
func (b *Box) Extend(p r3.Vec) {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
}

// Inflate returns b grown by eps on every side.
func (b Box) Inflate(eps float64) Box {
	e := r3.Vec{X: eps, Y: eps, Z: eps}
	return Box{Min: r3.Sub(b.Min, e), Max: r3.Add(b.Max, e)}
}

// Overlaps returns true if the two boxes intersect (touching counts).
func (b Box) Overlaps(o Box) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

// Empty reports whether b contains no point.
func (b Box) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}
