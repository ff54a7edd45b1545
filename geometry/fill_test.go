package geometry

import (
	"testing"

	"github.com/notargets/FVKernel/cutinfo"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	air  int32 = 1
	iron int32 = 2
	lead int32 = 3
)

func testMedia() MediumList {
	return NewMediumList(
		Medium{Label: "air", State: Fluid},
		Medium{Label: "iron", State: Solid},
		Medium{Label: "lead", State: Solid},
	)
}

// solidBlock is an iron box from 2.2 to 5.8 on every axis inside an 8³ unit
// pitch domain, enclosing the centres of cells 3..6.
func solidBlock(t *testing.T) *TriangleSet {
	lib, err := NewTriangleSet(BoxSurface(r3.Vec{X: 2.2, Y: 2.2, Z: 2.2}, r3.Vec{X: 5.8, Y: 5.8, Z: 5.8}, 1, 0), 4)
	require.NoError(t, err)
	return lib
}

func allFaces() (f [utils.NumFaces]bool) {
	for n := range f {
		f[n] = true
	}
	return
}

func newBlockGeometry(t *testing.T, size [3]int, threads int) *Geometry {
	g, err := utils.NewGrid(size, 1)
	require.NoError(t, err)
	geom, err := NewGeometry(g, Params{
		GlobalSize:     size,
		Pitch:          1,
		GlobalFaces:    allFaces(),
		OuterFaces:     allFaces(),
		Media:          testMedia(),
		Groups:         []PolygonGroup{{ID: 1, Label: "block", Medium: iron}},
		Library:        solidBlock(t),
		ParallelDegree: threads,
	})
	require.NoError(t, err)
	return geom
}

func TestFillSolidBlock(t *testing.T) {
	for _, threads := range []int{1, 3} {
		geom := newBlockGeometry(t, [3]int{8, 8, 8}, threads)
		n, err := geom.QuantizeCut()
		require.NoError(t, err)
		assert.Greater(t, n, 0)

		stats, err := geom.Fill(partitions.NewSerial(nil), FillParams{FillID: air, SeedID: air, SeedFace: utils.XMinus})
		require.NoError(t, err)
		assert.Equal(t, 0, geom.CountCell(Undetermined, true))
		assert.Equal(t, 64, geom.CountCell(iron, true))
		assert.Equal(t, 448, geom.CountCell(air, true))
		assert.Equal(t, 56, stats.Substituted)
		assert.Equal(t, 152, stats.ByBid)
		assert.Equal(t, 152, geom.CountCut())

		g := geom.Grid
		for k := 1; k <= 8; k++ {
			for j := 1; j <= 8; j++ {
				for i := 1; i <= 8; i++ {
					inside := i >= 3 && i <= 6 && j >= 3 && j <= 6 && k >= 3 && k <= 6
					want := air
					if inside {
						want = iron
					}
					if got := geom.Mid[g.Idx(i, j, k)]; got != want {
						t.Fatalf("threads %d cell (%d,%d,%d): expected medium %d, got %d", threads, i, j, k, want, got)
					}
				}
			}
		}
		// outer halo copies the boundary layer
		assert.Equal(t, air, geom.Mid[g.Idx(0, 4, 4)])
		assert.Equal(t, air, geom.Mid[g.Idx(9, 9, 9)])
	}
}

func TestFillMultiRankMatchesSerial(t *testing.T) {
	size := [3]int{8, 8, 8}
	serial := newBlockGeometry(t, size, 1)
	_, err := serial.QuantizeCut()
	require.NoError(t, err)
	fp := FillParams{FillID: air, SeedID: air, SeedFace: utils.XPlus}
	want, err := serial.Fill(partitions.NewSerial(nil), fp)
	require.NoError(t, err)

	pb := &partitions.PartitionBuilder{GlobalSize: size, NumPartitions: 4, Divisions: [3]int{2, 2, 1}}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	buffers, err := partitions.BuildPartitionBuffers(layout, 1, 1)
	require.NoError(t, err)
	group, err := partitions.NewGroup(buffers)
	require.NoError(t, err)

	lib := solidBlock(t)
	geoms := make([]*Geometry, len(buffers))
	stats := make([]FillStats, len(buffers))
	err = group.Run(func(ep *partitions.Endpoint) error {
		buf := ep.Buffer()
		p := buf.Partition
		params := Params{
			Head:       p.Head,
			GlobalSize: size,
			Pitch:      1,
			Media:      testMedia(),
			Groups:     []PolygonGroup{{ID: 1, Label: "block", Medium: iron}},
			Library:    lib,
		}
		for face := 0; face < utils.NumFaces; face++ {
			params.GlobalFaces[face] = p.TouchesGlobalFace(face, size)
			params.OuterFaces[face] = p.IsOuterFace(face)
		}
		geom, err := NewGeometry(buf.Grid, params)
		if err != nil {
			return err
		}
		if _, err = geom.QuantizeCut(); err != nil {
			return err
		}
		geoms[ep.Rank()] = geom
		stats[ep.Rank()], err = geom.Fill(ep, fp)
		return err
	})
	require.NoError(t, err)

	for rank, geom := range geoms {
		assert.Equal(t, want.Substituted, stats[rank].Substituted)
		assert.Equal(t, want.ByBid, stats[rank].ByBid)
		h := geom.Head
		g := geom.Grid
		for k := 1; k <= g.Size[2]; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					exp := serial.Mid[serial.Grid.Idx(h[0]+i, h[1]+j, h[2]+k)]
					if got := geom.Mid[g.Idx(i, j, k)]; got != exp {
						t.Fatalf("rank %d cell (%d,%d,%d): expected %d, got %d", rank, i, j, k, exp, got)
					}
				}
			}
		}
	}
}

func TestFloodNeverOverwritesCuts(t *testing.T) {
	g, err := utils.NewGrid([3]int{5, 1, 1}, 1)
	require.NoError(t, err)
	geom, err := NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia()})
	require.NoError(t, err)

	// cut between cells 3 and 4, recorded on both sides
	geom.Cut[g.Idx(3, 1, 1)] = cutinfo.Cut(0).Set(cutinfo.XPlus, 255)
	geom.Cut[g.Idx(4, 1, 1)] = cutinfo.Cut(0).Set(cutinfo.XMinus, 256)
	geom.Mid[g.Idx(1, 1, 1)] = air

	assert.Equal(t, 1, geom.FillByMid(air))
	assert.Equal(t, air, geom.Mid[g.Idx(2, 1, 1)])
	assert.Equal(t, Undetermined, geom.Mid[g.Idx(3, 1, 1)])
	assert.Equal(t, Undetermined, geom.Mid[g.Idx(4, 1, 1)])
	assert.Equal(t, Undetermined, geom.Mid[g.Idx(5, 1, 1)])

	// a source cut blocks the face even when the target is uncut
	geom.Cut[g.Idx(4, 1, 1)] = 0
	geom.Mid[g.Idx(3, 1, 1)] = iron
	assert.Equal(t, 0, geom.FillByMid(iron))
	assert.Equal(t, Undetermined, geom.Mid[g.Idx(4, 1, 1)])
}

func TestModalSolidTieBreak(t *testing.T) {
	for _, threads := range []int{1, 3} {
		g, err := utils.NewGrid([3]int{3, 3, 3}, 1)
		require.NoError(t, err)
		geom, err := NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia(), ParallelDegree: threads})
		require.NoError(t, err)
		for n := range geom.Mid {
			geom.Mid[n] = air
		}
		geom.Mid[g.Idx(2, 2, 2)] = Undetermined
		geom.Mid[g.Idx(1, 2, 2)] = lead
		geom.Mid[g.Idx(3, 2, 2)] = lead
		geom.Mid[g.Idx(2, 1, 2)] = iron
		geom.Mid[g.Idx(2, 3, 2)] = iron

		assert.Equal(t, 1, geom.FillByModalSolid(air))
		assert.Equal(t, iron, geom.Mid[g.Idx(2, 2, 2)], "threads %d", threads)
	}
}

func TestModalID(t *testing.T) {
	tests := []struct {
		list []int32
		want int32
		ok   bool
	}{
		{[]int32{2, 2, 3, 3}, 2, true},
		{[]int32{3, 3, 2, 2}, 2, true},
		{[]int32{5, 3, 5}, 5, true},
		{[]int32{7}, 7, true},
		{nil, Undetermined, false},
	}
	for _, tt := range tests {
		got, ok := ModalID(tt.list)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got, "list %v", tt.list)
	}
}

func TestFillUnresolved(t *testing.T) {
	g, err := utils.NewGrid([3]int{3, 3, 3}, 1)
	require.NoError(t, err)
	geom, err := NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia()})
	require.NoError(t, err)
	_, err = geom.Fill(partitions.NewSerial(nil), FillParams{FillID: air, SeedFace: -1})
	assert.ErrorIs(t, err, ErrUnresolvedCells)
}

func TestFillSeedOnlyOnGlobalFace(t *testing.T) {
	g, err := utils.NewGrid([3]int{3, 4, 5}, 1)
	require.NoError(t, err)
	p := Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia()}
	p.GlobalFaces[utils.ZPlus] = true
	geom, err := NewGeometry(g, p)
	require.NoError(t, err)
	assert.Equal(t, 0, geom.FillSeed(utils.ZMinus, air))
	assert.Equal(t, 12, geom.FillSeed(utils.ZPlus, air))
	assert.Equal(t, air, geom.Mid[g.Idx(2, 3, 5)])
	// already painted cells are not counted twice
	assert.Equal(t, 0, geom.FillSeed(utils.ZPlus, iron))
}

func TestNewGeometryRejectsWideBid(t *testing.T) {
	g, err := utils.NewGrid([3]int{2, 2, 2}, 1)
	require.NoError(t, err)
	_, err = NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia(),
		Groups: []PolygonGroup{{ID: 32, Medium: iron}}})
	assert.ErrorIs(t, err, cutinfo.ErrBidOverflow)
	_, err = NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia(),
		Groups: []PolygonGroup{{ID: 3, Medium: air}}})
	assert.Error(t, err)
}

func TestSeedFilling(t *testing.T) {
	geom := newBlockGeometry(t, [3]int{8, 8, 8}, 2)
	_, err := geom.QuantizeCut()
	require.NoError(t, err)

	stats, err := geom.SeedFilling(partitions.NewSerial(nil), FillParams{FillID: air, SeedID: air, SeedFace: utils.XMinus}, iron)
	require.NoError(t, err)
	assert.Equal(t, 0, geom.CountCell(Undetermined, true))
	assert.Equal(t, 64, geom.CountCell(iron, true))
	assert.Equal(t, 448, geom.CountCell(air, true))
	// the interior 2³ cells are out of reach of the flood
	assert.Equal(t, 8, stats.Remainder)
	assert.Equal(t, 0, stats.Modal)

	_, err = geom.SeedFilling(partitions.NewSerial(nil), FillParams{FillID: air, SeedFace: utils.XMinus}, air)
	assert.Error(t, err)
	_, err = geom.SeedFilling(partitions.NewSerial(nil), FillParams{FillID: air, SeedFace: -1}, iron)
	assert.Error(t, err)
}

func TestFillByIDAndAssignVF(t *testing.T) {
	g, err := utils.NewGrid([3]int{4, 2, 2}, 1)
	require.NoError(t, err)
	geom, err := NewGeometry(g, Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia()})
	require.NoError(t, err)
	for j := 1; j <= 2; j++ {
		for k := 1; k <= 2; k++ {
			geom.Mid[g.Idx(1, j, k)] = air
		}
	}
	assert.Equal(t, 12, geom.FillByID(lead))
	assert.Equal(t, 0, geom.FillByID(iron))
	assert.Equal(t, lead, geom.Mid[g.Idx(4, 2, 2)])
	// halo cells are left alone
	assert.Equal(t, Undetermined, geom.Mid[g.Idx(0, 1, 1)])

	assert.Equal(t, 4, geom.AssignVF(air, 1))
	assert.Equal(t, 12, geom.AssignVF(lead, 0.25))
	assert.Equal(t, 1.0, geom.VF[g.Idx(1, 2, 1)])
	assert.Equal(t, 0.25, geom.VF[g.Idx(3, 1, 2)])
}

func TestFillSuppressStopsHaloFlood(t *testing.T) {
	for _, suppress := range []bool{false, true} {
		g, err := utils.NewGrid([3]int{3, 1, 1}, 1)
		require.NoError(t, err)
		p := Params{GlobalSize: g.Size, Pitch: 1, Media: testMedia()}
		p.GlobalFaces = allFaces()
		p.FillSuppress[0] = suppress
		geom, err := NewGeometry(g, p)
		require.NoError(t, err)
		// a periodic image of the fluid arrives in the x- halo
		geom.Mid[g.Idx(0, 1, 1)] = air
		if suppress {
			assert.Equal(t, 0, geom.FillByMid(air))
			assert.Equal(t, Undetermined, geom.Mid[g.Idx(1, 1, 1)])
		} else {
			assert.Equal(t, 3, geom.FillByMid(air))
			assert.Equal(t, air, geom.Mid[g.Idx(3, 1, 1)])
		}
	}
}
