package utils

import (
	"fmt"
)

// Face numbering shared by the halo exchange, boundary conditions and the
// cut codec: W, E, S, N, B, T.
const (
	XMinus = iota
	XPlus
	YMinus
	YPlus
	ZMinus
	ZPlus
	NumFaces
)

// FaceName returns a short label for a face number.
func FaceName(face int) string {
	switch face {
	case XMinus:
		return "X_MINUS"
	case XPlus:
		return "X_PLUS"
	case YMinus:
		return "Y_MINUS"
	case YPlus:
		return "Y_PLUS"
	case ZMinus:
		return "Z_MINUS"
	case ZPlus:
		return "Z_PLUS"
	}
	return fmt.Sprintf("face(%d)", face)
}

// OppositeFace returns the face on the other side of the same axis.
func OppositeFace(face int) int {
	return face ^ 1
}

// FaceConnector manages pick and place indices for the guide-cell exchange
// of one sub-domain. Pick lists gather the owned layers next to a face; place
// lists scatter received values into the halo layers of that face.
//
// Ordering is layer-major in increasing axis index followed by the two
// transverse axes, so the pick list of a face matches the place list of the
// opposite face of the neighbouring sub-domain entry for entry. The x faces
// cover the owned j,k range, the y faces the full i range and the z faces
// the full i,j range, which fills edge and corner halo cells when the axes
// are exchanged in x, y, z order.
//
// An axis thinner than the exchange width picks its layers modulo the axis
// length, so a self wrapping face still fills the whole halo. Such an axis
// cannot border another sub-domain.
type FaceConnector struct {
	Grid  *Grid
	Width int // layers exchanged per face, at most Grid.Guide

	PickIndices  [NumFaces]PickBuffer
	PlaceIndices [NumFaces]PlaceBuffer
}

// PickBuffer contains indices for gathering values to send
type PickBuffer struct {
	Indices []int
	Face    int
}

// PlaceBuffer contains indices for scattering received values
type PlaceBuffer struct {
	Indices []int
	Face    int
}

// NewFaceConnector creates a face connector for g exchanging width layers.
func NewFaceConnector(g *Grid, width int) (*FaceConnector, error) {
	if g == nil {
		return nil, fmt.Errorf("nil grid")
	}
	if width < 1 || width > g.Guide {
		return nil, fmt.Errorf("invalid exchange width %d for guide %d", width, g.Guide)
	}
	fc := &FaceConnector{
		Grid:  g,
		Width: width,
	}
	fc.BuildIndices()
	return fc, nil
}

// BuildIndices constructs pick and place indices for all six faces.
func (fc *FaceConnector) BuildIndices() {
	for face := 0; face < NumFaces; face++ {
		pick, place := fc.layerRanges(face)
		fc.PickIndices[face] = PickBuffer{Indices: fc.collect(face, pick, true), Face: face}
		fc.PlaceIndices[face] = PlaceBuffer{Indices: fc.collect(face, place, false), Face: face}
	}
}

// layerRanges returns the inclusive normal-axis ranges of the owned layers to
// send and the halo layers to fill on a face.
func (fc *FaceConnector) layerRanges(face int) (pick, place [2]int) {
	var (
		axis = face / 2
		n    = fc.Grid.Size[axis]
		w    = fc.Width
	)
	if face%2 == 0 {
		pick = [2]int{1, w}
		place = [2]int{1 - w, 0}
	} else {
		pick = [2]int{n - w + 1, n}
		place = [2]int{n + 1, n + w}
	}
	return
}

func (fc *FaceConnector) transverse(axis, t int) (lo, hi int) {
	g := fc.Grid
	// axes exchanged earlier contribute their halo to later faces
	if t < axis {
		return 1 - g.Guide, g.Size[t] + g.Guide
	}
	return 1, g.Size[t]
}

// Thin reports whether axis holds fewer cells than the exchange width.
func (fc *FaceConnector) Thin(axis int) bool {
	return fc.Grid.Size[axis] < fc.Width
}

func (fc *FaceConnector) collect(face int, layers [2]int, owned bool) []int {
	var (
		g      = fc.Grid
		axis   = face / 2
		t1, t2 int
	)
	switch axis {
	case 0:
		t1, t2 = 1, 2
	case 1:
		t1, t2 = 0, 2
	default:
		t1, t2 = 0, 1
	}
	lo1, hi1 := fc.transverse(axis, t1)
	lo2, hi2 := fc.transverse(axis, t2)
	indices := make([]int, 0, (layers[1]-layers[0]+1)*(hi1-lo1+1)*(hi2-lo2+1))
	var c [3]int
	n := g.Size[axis]
	for a := layers[0]; a <= layers[1]; a++ {
		c[axis] = a
		if owned {
			c[axis] = ((a-1)%n+n)%n + 1
		}
		for b := lo2; b <= hi2; b++ {
			c[t2] = b
			for d := lo1; d <= hi1; d++ {
				c[t1] = d
				indices = append(indices, g.Idx(c[0], c[1], c[2]))
			}
		}
	}
	return indices
}

// GetPickIndices returns pick indices for sending across a face
func (fc *FaceConnector) GetPickIndices(face int) []int {
	if face < 0 || face >= NumFaces {
		return nil
	}
	return fc.PickIndices[face].Indices
}

// GetPlaceIndices returns place indices for receiving across a face
func (fc *FaceConnector) GetPlaceIndices(face int) []int {
	if face < 0 || face >= NumFaces {
		return nil
	}
	return fc.PlaceIndices[face].Indices
}

// Verify checks index validity and correspondence properties
func (fc *FaceConnector) Verify() error {
	g := fc.Grid
	for face := 0; face < NumFaces; face++ {
		// Verify 1: picks are owned cells, places are halo cells
		for _, idx := range fc.PickIndices[face].Indices {
			i, j, k := g.Coords(idx)
			if idx < 0 || idx >= g.Volume {
				return fmt.Errorf("invalid pick index %d on %s", idx, FaceName(face))
			}
			if !fc.pickable(face, i, j, k) {
				return fmt.Errorf("pick index (%d,%d,%d) on %s is not an owned layer",
					i, j, k, FaceName(face))
			}
		}
		for _, idx := range fc.PlaceIndices[face].Indices {
			i, j, k := g.Coords(idx)
			if g.Owned(i, j, k) {
				return fmt.Errorf("place index (%d,%d,%d) on %s overwrites an owned cell",
					i, j, k, FaceName(face))
			}
		}
		// Verify 2: pick and place arrays of opposite faces have the same length
		opp := OppositeFace(face)
		pickLen := len(fc.PickIndices[face].Indices)
		placeLen := len(fc.PlaceIndices[opp].Indices)
		if pickLen != placeLen {
			return fmt.Errorf("length mismatch: pick[%s]=%d, place[%s]=%d",
				FaceName(face), pickLen, FaceName(opp), placeLen)
		}
	}
	return nil
}

func (fc *FaceConnector) pickable(face, i, j, k int) bool {
	c := [3]int{i, j, k}
	a := c[face/2]
	return a >= 1 && a <= fc.Grid.Size[face/2]
}

// Pick gathers src values of a face into buf, which must have the length of
// the pick list.
func (fc *FaceConnector) Pick(face int, src []float64, buf []float64) {
	for n, idx := range fc.PickIndices[face].Indices {
		buf[n] = src[idx]
	}
}

// Place scatters buf into the halo of dst across a face.
func (fc *FaceConnector) Place(face int, dst []float64, buf []float64) {
	for n, idx := range fc.PlaceIndices[face].Indices {
		dst[idx] = buf[n]
	}
}

// Wrap copies the owned layers next to face into the halo of the opposite
// face of the same grid, which is the periodic exchange of a sub-domain that
// is its own neighbour.
func (fc *FaceConnector) Wrap(face int, field []float64) {
	pick := fc.PickIndices[face].Indices
	place := fc.PlaceIndices[OppositeFace(face)].Indices
	for n, idx := range pick {
		field[place[n]] = field[idx]
	}
}
