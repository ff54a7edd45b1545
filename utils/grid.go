package utils

import (
	"fmt"
)

// Grid provides an interface for reasoning over a 1D slice as if it were a
// 3D block of cells surrounded by a guide-cell halo. Interior indices run
// 1..Size[d]; halo indices run 1-Guide..0 and Size[d]+1..Size[d]+Guide.
//
// Every field of a sub-domain is addressed through Idx so that a change of
// halo width stays local to this type.
type Grid struct {
	Size  [3]int // imax, jmax, kmax
	Guide int    // halo width

	Dims                 [3]int // Size + 2*Guide
	Length, Area, Volume int
}

// NewGrid returns a new Grid instance.
func NewGrid(size [3]int, guide int) (*Grid, error) {
	for d := 0; d < 3; d++ {
		if size[d] < 1 {
			return nil, fmt.Errorf("invalid grid size %v: every axis needs at least one cell", size)
		}
	}
	if guide < 0 {
		return nil, fmt.Errorf("invalid guide cell width %d", guide)
	}
	g := &Grid{}
	g.Init(size, guide)
	return g, nil
}

// Init initializes a Grid instance.
func (g *Grid) Init(size [3]int, guide int) {
	g.Size = size
	g.Guide = guide
	for d := 0; d < 3; d++ {
		g.Dims[d] = size[d] + 2*guide
	}
	g.Length = g.Dims[0]
	g.Area = g.Dims[0] * g.Dims[1]
	g.Volume = g.Area * g.Dims[2]
}

// Idx returns the flat index of cell (i, j, k).
func (g *Grid) Idx(i, j, k int) int {
	return (i - 1 + g.Guide) + (j-1+g.Guide)*g.Length + (k-1+g.Guide)*g.Area
}

// IdxCheck returns an index and true if the given coordinates address a cell
// of the grid (halo included) and false otherwise.
func (g *Grid) IdxCheck(i, j, k int) (idx int, ok bool) {
	if !g.BoundsCheck(i, j, k) {
		return -1, false
	}
	return g.Idx(i, j, k), true
}

// BoundsCheck returns true if (i, j, k) lies inside the grid including the halo.
func (g *Grid) BoundsCheck(i, j, k int) bool {
	lo := 1 - g.Guide
	return i >= lo && j >= lo && k >= lo &&
		i <= g.Size[0]+g.Guide && j <= g.Size[1]+g.Guide && k <= g.Size[2]+g.Guide
}

// Owned returns true for interior (non-halo) cells.
func (g *Grid) Owned(i, j, k int) bool {
	return i >= 1 && j >= 1 && k >= 1 &&
		i <= g.Size[0] && j <= g.Size[1] && k <= g.Size[2]
}

// Coords returns the (i, j, k) indices of a flat index.
func (g *Grid) Coords(idx int) (i, j, k int) {
	i = idx%g.Length + 1 - g.Guide
	j = (idx%g.Area)/g.Length + 1 - g.Guide
	k = idx/g.Area + 1 - g.Guide
	return
}

// Stride returns the flat index distance between neighbours along axis.
func (g *Grid) Stride(axis int) int {
	switch axis {
	case 0:
		return 1
	case 1:
		return g.Length
	default:
		return g.Area
	}
}

// Cells returns the number of owned cells.
func (g *Grid) Cells() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// NewScalar allocates a zeroed scalar field covering the grid and its halo.
func (g *Grid) NewScalar() ScalarField {
	return make(ScalarField, g.Volume)
}

// NewVector allocates a zeroed 3-component vector field.
func (g *Grid) NewVector() VectorField {
	var v VectorField
	for l := 0; l < 3; l++ {
		v[l] = make([]float64, g.Volume)
	}
	return v
}

// NewMedium allocates a medium id array, every cell holding 0.
func (g *Grid) NewMedium() []int32 {
	return make([]int32, g.Volume)
}

// ScalarField is a cell-centred scalar over a Grid (halo included).
type ScalarField []float64

// VectorField stores the three velocity components as separate planes.
type VectorField [3][]float64

// Fill sets every value of the field.
func (s ScalarField) Fill(val float64) {
	for i := range s {
		s[i] = val
	}
}

// CopyFrom copies src into s.
func (s ScalarField) CopyFrom(src ScalarField) {
	copy(s, src)
}

// Clone returns an independent copy.
func (s ScalarField) Clone() ScalarField {
	c := make(ScalarField, len(s))
	copy(c, s)
	return c
}

// Fill sets every component of every cell.
func (v VectorField) Fill(u, w, x float64) {
	vals := [3]float64{u, w, x}
	for l := 0; l < 3; l++ {
		for i := range v[l] {
			v[l][i] = vals[l]
		}
	}
}

// CopyFrom copies src into v component by component.
func (v VectorField) CopyFrom(src VectorField) {
	for l := 0; l < 3; l++ {
		copy(v[l], src[l])
	}
}

// Clone returns an independent copy.
func (v VectorField) Clone() VectorField {
	var c VectorField
	for l := 0; l < 3; l++ {
		c[l] = make([]float64, len(v[l]))
		copy(c[l], v[l])
	}
	return c
}

// At returns the vector stored at a flat index.
func (v VectorField) At(idx int) [3]float64 {
	return [3]float64{v[0][idx], v[1][idx], v[2][idx]}
}
