// Package cutinfo packs per-direction boundary cut distances and boundary ids
// of a voxel cell into fixed-width bit fields.
//
// Layout of Cut (uint64), per direction d in [0,6):
//
//	bits 10*d+0 .. 10*d+8  quantized distance q in [0, 511]
//	bit  10*d+9            1 when a cut is recorded
//
// Layout of Bid (uint32), per direction d: bits 5*d .. 5*d+4 hold the
// boundary id in [1, 31]; 0 means none.
//
// The quantized distance q represents the fraction q/511 of the segment
// from the cell centre to the neighbour centre, so the quantization error is
// at most 1/1022.
package cutinfo

import (
	"errors"
	"fmt"
	"math"
)

// Direction names a cell face direction.
type Direction int

const (
	XMinus Direction = iota // W
	XPlus                   // E
	YMinus                  // S
	YPlus                   // N
	ZMinus                  // B
	ZPlus                   // T
)

// NumDirections per cell.
const NumDirections = 6

const (
	DistanceBits = 9
	FieldBits    = 10
	BidBits      = 5

	QuantizeMax uint16 = 1<<DistanceBits - 1 // 511
	BidMax             = 1<<BidBits - 1      // 31

	distanceMask = uint64(QuantizeMax)
	flagBit      = uint64(1) << DistanceBits
	fieldMask    = uint64(1)<<FieldBits - 1
	bidMask      = uint32(BidMax)
)

var offsets = [NumDirections][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// ErrBidOverflow is returned when a boundary id does not fit its bit field.
var ErrBidOverflow = errors.New("boundary id exceeds bit field")

// ErrDirection is returned for a direction outside [0,6).
var ErrDirection = errors.New("invalid cut direction")

// Opposite returns the direction pointing the other way on the same axis.
func (d Direction) Opposite() Direction { return d ^ 1 }

// Axis returns 0, 1 or 2.
func (d Direction) Axis() int { return int(d) / 2 }

// Sign returns -1 for the minus directions and +1 for the plus directions.
func (d Direction) Sign() int {
	if d%2 == 0 {
		return -1
	}
	return 1
}

// Offset returns the index offset of the neighbour in direction d.
func (d Direction) Offset() [3]int { return offsets[d] }

// Valid reports whether d is one of the six directions.
func (d Direction) Valid() bool { return d >= 0 && d < NumDirections }

func (d Direction) String() string {
	switch d {
	case XMinus:
		return "W"
	case XPlus:
		return "E"
	case YMinus:
		return "S"
	case YPlus:
		return "N"
	case ZMinus:
		return "B"
	case ZPlus:
		return "T"
	}
	return fmt.Sprintf("dir(%d)", int(d))
}

// Quantize maps a parametric distance in [0,1] to [0, QuantizeMax].
// Values outside the range are clamped.
func Quantize(t float64) uint16 {
	if !(t > 0) { // catches NaN too
		return 0
	}
	if t >= 1 {
		return QuantizeMax
	}
	return uint16(math.Floor(t*float64(QuantizeMax) + 0.5))
}

// Dequantize returns the distance represented by q.
func Dequantize(q uint16) float64 {
	return float64(q) / float64(QuantizeMax)
}

// Cut holds the quantized cut distances of the six directions of one cell.
type Cut uint64

// Bid holds the boundary ids of the six directions of one cell.
type Bid uint32

// Has reports whether a cut is recorded in direction d.
func (c Cut) Has(d Direction) bool {
	return uint64(c)>>(FieldBits*uint(d))&flagBit != 0
}

// Any reports whether any direction carries a cut.
func (c Cut) Any() bool {
	for d := Direction(0); d < NumDirections; d++ {
		if c.Has(d) {
			return true
		}
	}
	return false
}

// Quantized returns the raw quantized distance; QuantizeMax+1 when no cut is
// recorded, which compares greater than any valid distance.
func (c Cut) Quantized(d Direction) uint16 {
	if !c.Has(d) {
		return QuantizeMax + 1
	}
	return uint16(uint64(c) >> (FieldBits * uint(d)) & distanceMask)
}

// Distance returns the dequantized distance and whether one is recorded.
func (c Cut) Distance(d Direction) (float64, bool) {
	if !c.Has(d) {
		return 1, false
	}
	return Dequantize(c.Quantized(d)), true
}

// Set records quantized distance q in direction d.
func (c Cut) Set(d Direction, q uint16) Cut {
	if q > QuantizeMax {
		q = QuantizeMax
	}
	shift := FieldBits * uint(d)
	v := uint64(c) &^ (fieldMask << shift)
	v |= (uint64(q) | flagBit) << shift
	return Cut(v)
}

// Clear removes the record in direction d.
func (c Cut) Clear(d Direction) Cut {
	return Cut(uint64(c) &^ (fieldMask << (FieldBits * uint(d))))
}

// Get returns the boundary id in direction d, 0 when none.
func (b Bid) Get(d Direction) int {
	return int(uint32(b) >> (BidBits * uint(d)) & bidMask)
}

// Set stores boundary id id in direction d.
func (b Bid) Set(d Direction, id int) (Bid, error) {
	if id < 0 || id > BidMax {
		return b, fmt.Errorf("%w: id %d, %d bits hold at most %d", ErrBidOverflow, id, BidBits, BidMax)
	}
	shift := BidBits * uint(d)
	v := uint32(b) &^ (bidMask << shift)
	v |= uint32(id) << shift
	return Bid(v), nil
}

// Clear removes the id in direction d.
func (b Bid) Clear(d Direction) Bid {
	return Bid(uint32(b) &^ (bidMask << (BidBits * uint(d))))
}

// Encode packs one direction of a cut record.
func Encode(d Direction, distance float64, id int) (Cut, Bid, error) {
	if !d.Valid() {
		return 0, 0, fmt.Errorf("%w: %d", ErrDirection, d)
	}
	var b Bid
	b, err := b.Set(d, id)
	if err != nil {
		return 0, 0, err
	}
	return Cut(0).Set(d, Quantize(distance)), b, nil
}

// Decode unpacks direction d of a cut record.
func Decode(c Cut, b Bid, d Direction) (ok bool, distance float64, id int) {
	if !d.Valid() || !c.Has(d) {
		return false, 1, 0
	}
	distance, _ = c.Distance(d)
	return true, distance, b.Get(d)
}

// Update merges a candidate intersection at parametric distance t produced by
// boundary id into direction d. Candidates outside [0,1] are ignored; a
// recorded distance is only replaced by a strictly shorter quantized one.
// The returned count is 1 when d had no record before.
func Update(c *Cut, b *Bid, d Direction, t float64, id int) (count int, err error) {
	if !(t >= 0 && t <= 1) {
		return 0, nil
	}
	q := Quantize(t)
	record := false
	if !c.Has(d) {
		record = true
		count = 1
	} else if q < c.Quantized(d) {
		record = true
	}
	if !record {
		return 0, nil
	}
	nb, err := b.Set(d, id)
	if err != nil {
		return 0, err
	}
	*b = nb
	*c = c.Set(d, q)
	return count, nil
}

// Closest returns the recorded direction with the smallest quantized
// distance, lowest direction on ties, and false when c has no record.
func (c Cut) Closest() (Direction, bool) {
	best := Direction(-1)
	bq := QuantizeMax + 1
	for d := Direction(0); d < NumDirections; d++ {
		if q := c.Quantized(d); q < bq {
			best, bq = d, q
		}
	}
	return best, best >= 0
}
