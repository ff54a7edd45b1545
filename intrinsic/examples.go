package intrinsic

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// base carries the control bound by InitializeDomain.
type base struct {
	c *config.Control
}

func (b *base) bind(c *config.Control) { b.c = c }

func (b *base) control() (*config.Control, error) {
	if b.c == nil {
		return nil, fmt.Errorf("example used before InitializeDomain")
	}
	return b.c, nil
}

// media returns the fill medium and the first solid of the medium table.
func (b *base) media(needSolid bool) (fluid, solid int32, err error) {
	c, err := b.control()
	if err != nil {
		return
	}
	if fluid, err = c.MediumID(c.Geometry.FillMedium); err != nil {
		return
	}
	for n, m := range c.Media {
		if strings.EqualFold(m.State, "solid") {
			return fluid, int32(n + 1), nil
		}
	}
	if needSolid {
		err = fmt.Errorf("%w: the example needs a solid medium", config.ErrConfig)
	}
	return
}

// paint classifies geom with shape sampled on the configured sub-division.
func (b *base) paint(geom *geometry.Geometry, comm partitions.Communicator, shape geometry.Shape) error {
	_, err := geom.PaintAnalytic(comm, shape, b.c.Geometry.SubDivision)
	return err
}

// allFluid fills geom with the fill medium.
func (b *base) allFluid(geom *geometry.Geometry, comm partitions.Communicator) error {
	fluid, _, err := b.media(false)
	if err != nil {
		return err
	}
	return b.paint(geom, comm, func(r3.Vec) int32 { return fluid })
}

// extent returns the global min corner and edge lengths of the domain.
func extent(geom *geometry.Geometry) (min, length r3.Vec) {
	n := geom.GlobalSize
	return geom.Origin, r3.Vec{
		X: float64(n[0]) * geom.Pitch,
		Y: float64(n[1]) * geom.Pitch,
		Z: float64(n[2]) * geom.Pitch,
	}
}

// channel sets a uniform inflow on x-, an outflow on x+ and the given
// condition on the four side faces.
func channel(c *config.Control, side config.OuterKind) {
	c.Outer.SetFace(utils.XMinus, config.OuterBC{Kind: config.SpecifiedVelocity, Velocity: [3]float64{c.Flow.RefVelocity, 0, 0}})
	c.Outer.SetFace(utils.XPlus, config.OuterBC{Kind: config.Outflow})
	for face := utils.YMinus; face <= utils.ZPlus; face++ {
		c.Outer.SetFace(face, config.OuterBC{Kind: side})
	}
}

// flatten collapses the listed axes to one cell.
func flatten(c *config.Control, axes ...int) error {
	for _, a := range axes {
		if c.Domain.Divisions[a] > 1 {
			return fmt.Errorf("%w: a flat axis %d cannot be divided %d ways", config.ErrConfig, a, c.Domain.Divisions[a])
		}
		c.Domain.Size[a] = 1
	}
	return nil
}

type duct struct{ base }

func (*duct) Kind() Kind { return Duct }

func (e *duct) InitializeDomain(c *config.Control) error {
	e.bind(c)
	channel(c, config.Wall)
	return nil
}

func (e *duct) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	return e.allFluid(geom, comm)
}

// cylinder places a solid circular cylinder along z, a quarter length
// downstream of the inflow.
type cylinder struct{ base }

func (*cylinder) Kind() Kind { return Cylinder }

func (e *cylinder) InitializeDomain(c *config.Control) error {
	e.bind(c)
	channel(c, config.Symmetric)
	return nil
}

func (e *cylinder) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	fluid, solid, err := e.media(true)
	if err != nil {
		return err
	}
	o, l := extent(geom)
	var (
		cx = o.X + 0.25*l.X
		cy = o.Y + 0.5*l.Y
		r  = 0.125 * l.Y
	)
	return e.paint(geom, comm, func(p r3.Vec) int32 {
		if math.Hypot(p.X-cx, p.Y-cy) < r {
			return solid
		}
		return fluid
	})
}

type sphere struct{ base }

func (*sphere) Kind() Kind { return Sphere }

func (e *sphere) InitializeDomain(c *config.Control) error {
	e.bind(c)
	channel(c, config.Symmetric)
	return nil
}

func (e *sphere) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	fluid, solid, err := e.media(true)
	if err != nil {
		return err
	}
	o, l := extent(geom)
	var (
		center = r3.Vec{X: o.X + 0.25*l.X, Y: o.Y + 0.5*l.Y, Z: o.Z + 0.5*l.Z}
		r      = 0.125 * math.Min(l.Y, l.Z)
	)
	return e.paint(geom, comm, func(p r3.Vec) int32 {
		if r3.Norm(r3.Sub(p, center)) < r {
			return solid
		}
		return fluid
	})
}

// step is the backward facing step: the lower half of the first quarter of
// the channel is solid.
type step struct{ base }

func (*step) Kind() Kind { return Step }

func (e *step) InitializeDomain(c *config.Control) error {
	e.bind(c)
	channel(c, config.Wall)
	c.Outer.SetFace(utils.ZMinus, config.OuterBC{Kind: config.Symmetric})
	c.Outer.SetFace(utils.ZPlus, config.OuterBC{Kind: config.Symmetric})
	return nil
}

func (e *step) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	fluid, solid, err := e.media(true)
	if err != nil {
		return err
	}
	o, l := extent(geom)
	return e.paint(geom, comm, func(p r3.Vec) int32 {
		if p.X-o.X < 0.25*l.X && p.Y-o.Y < 0.5*l.Y {
			return solid
		}
		return fluid
	})
}

// rect is the lid driven cavity.
type rect struct{ base }

func (*rect) Kind() Kind { return Rect }

func (e *rect) InitializeDomain(c *config.Control) error {
	e.bind(c)
	for face := 0; face < utils.NumFaces; face++ {
		c.Outer.SetFace(face, config.OuterBC{Kind: config.Wall})
	}
	c.Outer.SetFace(utils.YPlus, config.OuterBC{Kind: config.Wall, Velocity: [3]float64{c.Flow.RefVelocity, 0, 0}})
	return nil
}

func (e *rect) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	return e.allFluid(geom, comm)
}

// polygon classifies against the polygon groups of the geometry section.
type polygon struct{ base }

func (*polygon) Kind() Kind { return Polygon }

func (e *polygon) InitializeDomain(c *config.Control) error {
	e.bind(c)
	if len(c.Geometry.Polygons) == 0 {
		return fmt.Errorf("%w: the polygon example needs polygon groups", config.ErrConfig)
	}
	return nil
}

func (e *polygon) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	c, err := e.control()
	if err != nil {
		return err
	}
	gc := c.Geometry
	fp := geometry.FillParams{SeedFace: -1}
	if fp.FillID, err = c.MediumID(gc.FillMedium); err != nil {
		return err
	}
	if gc.SeedFace != "" {
		if fp.SeedFace, err = config.ParseFace(gc.SeedFace); err != nil {
			return err
		}
		if fp.SeedID, err = c.MediumID(gc.SeedMedium); err != nil {
			return err
		}
	}
	if _, err = geom.QuantizeCut(); err != nil {
		return err
	}
	if gc.FillMode == config.FillModeSeed {
		solid, err := c.MediumID(gc.Polygons[0].Medium)
		if err != nil {
			return err
		}
		if _, err = geom.SeedFilling(comm, fp, solid); err != nil {
			return err
		}
	} else if _, err = geom.Fill(comm, fp); err != nil {
		return err
	}
	return geom.SubSampling(gc.SubDivision)
}

// plates is the flow between two parallel plates in the x-y plane.
type plates struct{ base }

func (*plates) Kind() Kind { return PPLT2D }

func (e *plates) InitializeDomain(c *config.Control) error {
	e.bind(c)
	channel(c, config.Wall)
	c.Outer.SetFace(utils.ZMinus, config.OuterBC{Kind: config.Symmetric})
	c.Outer.SetFace(utils.ZPlus, config.OuterBC{Kind: config.Symmetric})
	return flatten(c, 2)
}

func (e *plates) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	return e.allFluid(geom, comm)
}

// column is a quiescent column along x, fluid in the lower half and solid
// in the upper half.
type column struct{ base }

func (*column) Kind() Kind { return SHC1D }

func (e *column) InitializeDomain(c *config.Control) error {
	e.bind(c)
	c.Outer.SetFace(utils.XMinus, config.OuterBC{Kind: config.Wall})
	c.Outer.SetFace(utils.XPlus, config.OuterBC{Kind: config.Wall})
	for face := utils.YMinus; face <= utils.ZPlus; face++ {
		c.Outer.SetFace(face, config.OuterBC{Kind: config.Symmetric})
	}
	c.Flow.Heat = true
	return flatten(c, 1, 2)
}

func (e *column) ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error {
	fluid, solid, err := e.media(true)
	if err != nil {
		return err
	}
	o, l := extent(geom)
	return e.paint(geom, comm, func(p r3.Vec) int32 {
		if p.X-o.X < 0.5*l.X {
			return fluid
		}
		return solid
	})
}

// perf is the cavity run with a fixed Poisson iteration count.
type perf struct{ rect }

func (*perf) Kind() Kind { return PMT }

func (e *perf) InitializeDomain(c *config.Control) error {
	if err := e.rect.InitializeDomain(c); err != nil {
		return err
	}
	c.PerformanceTest = true
	return nil
}
