package geometry

import (
	"testing"

	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPaintAnalytic(t *testing.T) {
	g, err := utils.NewGrid([3]int{4, 4, 2}, 2)
	require.NoError(t, err)
	geom, err := NewGeometry(g, Params{
		GlobalSize:     g.Size,
		Pitch:          1,
		OuterFaces:     allFaces(),
		GlobalFaces:    allFaces(),
		Media:          testMedia(),
		ParallelDegree: 2,
	})
	require.NoError(t, err)

	// iron below the plane x = 1.5, lead beyond x = 3
	shape := func(p r3.Vec) int32 {
		switch {
		case p.X < 1.5:
			return iron
		case p.X > 3:
			return lead
		}
		return air
	}
	mixed, err := geom.PaintAnalytic(partitions.NewSerial(nil), shape, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, mixed)

	assert.Equal(t, iron, geom.Mid[g.Idx(1, 1, 1)])
	assert.Equal(t, air, geom.Mid[g.Idx(2, 1, 1)])
	assert.Equal(t, air, geom.Mid[g.Idx(3, 2, 2)])
	assert.Equal(t, lead, geom.Mid[g.Idx(4, 4, 2)])
	assert.Equal(t, 0.0, geom.VF[g.Idx(1, 3, 1)])
	assert.Equal(t, 0.5, geom.VF[g.Idx(2, 3, 1)])
	assert.Equal(t, iron, geom.SolidSub[g.Idx(2, 3, 1)])
	assert.Equal(t, 1.0, geom.VF[g.Idx(3, 3, 1)])
	assert.Equal(t, Undetermined, geom.SolidSub[g.Idx(3, 3, 1)])
	assert.Equal(t, 0.0, geom.VF[g.Idx(4, 1, 1)])

	// guide cells carry the boundary layer
	assert.Equal(t, iron, geom.Mid[g.Idx(-1, 2, 1)])
	assert.Equal(t, lead, geom.Mid[g.Idx(6, 2, 1)])

	_, err = geom.PaintAnalytic(partitions.NewSerial(nil), func(r3.Vec) int32 { return 9 }, 1)
	assert.Error(t, err)
	_, err = geom.PaintAnalytic(partitions.NewSerial(nil), shape, 0)
	assert.Error(t, err)
}
