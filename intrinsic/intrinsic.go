// Package intrinsic holds the built-in example problems. Each kind prepares
// the control of its domain and classifies the cells of a sub-domain; the
// kind is chosen once from the control file.
package intrinsic

import (
	"fmt"
	"log"
	"strings"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

type Kind int

const (
	Duct Kind = iota
	Cylinder
	Sphere
	Step
	Rect
	Polygon
	PPLT2D // parallel plates, one cell deep
	SHC1D  // fluid and solid column, one cell wide
	PMT    // performance measurement
)

var kindNames = []string{"duct", "cylinder", "sphere", "step", "rect", "polygon", "pplt2d", "shc1d", "pmt"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps an example name, case insensitive, to its kind.
func ParseKind(s string) (Kind, error) {
	for n, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(n), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown example %q", config.ErrConfig, s)
}

// Example is the capability every built-in problem provides.
type Example interface {
	Kind() Kind
	// InitializeDomain adjusts the outer conditions and flags of c for the
	// problem. It runs once, before validation and partitioning.
	InitializeDomain(c *config.Control) error
	// ClassifyMedium resolves the medium of every cell of geom, halo
	// included, and its volume fraction.
	ClassifyMedium(geom *geometry.Geometry, comm partitions.Communicator) error
}

// New returns the example named by name.
func New(name string) (Example, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Duct:
		return &duct{}, nil
	case Cylinder:
		return &cylinder{}, nil
	case Sphere:
		return &sphere{}, nil
	case Step:
		return &step{}, nil
	case Rect:
		return &rect{}, nil
	case Polygon:
		return &polygon{}, nil
	case PPLT2D:
		return &plates{}, nil
	case SHC1D:
		return &column{}, nil
	default:
		return &perf{}, nil
	}
}

// Setup holds the geometry tables shared by every rank of a run.
type Setup struct {
	Media   geometry.MediumList
	Groups  []geometry.PolygonGroup
	Library *geometry.TriangleSet // nil without polygon groups

	origin r3.Vec
	pitch  float64
	size   [3]int
	degree int
	// axes whose outer faces wrap or mirror, when fill suppression is on
	suppress [3]bool
}

// NewSetup builds the medium table and the polygon library of c.
func NewSetup(c *config.Control) (*Setup, error) {
	d := c.Domain
	st := &Setup{
		origin: r3.Vec{X: d.Origin[0], Y: d.Origin[1], Z: d.Origin[2]},
		pitch:  d.Pitch,
		size:   d.Size,
		degree: c.Threads,
	}
	for _, m := range c.Media {
		state := geometry.Fluid
		if strings.EqualFold(m.State, "solid") {
			state = geometry.Solid
		}
		st.Media = append(st.Media, geometry.Medium{Label: m.Label, State: state})
	}
	st.Media = geometry.NewMediumList(st.Media...)
	if c.Geometry.SuppressFill {
		for a := 0; a < 3; a++ {
			switch c.Outer.Face(2 * a).Kind {
			case config.Periodic, config.Symmetric:
				st.suppress[a] = true
			}
		}
	}

	var polys []geometry.Polygon
	for n, pc := range c.Geometry.Polygons {
		mid, err := c.MediumID(pc.Medium)
		if err != nil {
			return nil, fmt.Errorf("polygon group %q: %w", pc.Label, err)
		}
		group := n + 1
		st.Groups = append(st.Groups, geometry.PolygonGroup{ID: group, Label: pc.Label, Medium: mid})
		switch pc.Shape {
		case "box":
			polys = append(polys, geometry.BoxSurface(vec(pc.Min), vec(pc.Max), group, len(polys))...)
		case "sphere":
			bands := max(pc.Bands, 8)
			polys = append(polys, geometry.SphereSurface(vec(pc.Center), pc.Radius, bands, 2*bands, group, len(polys))...)
		default:
			return nil, fmt.Errorf("%w: polygon group %q: shape %q", config.ErrConfig, pc.Label, pc.Shape)
		}
	}
	if len(polys) > 0 {
		lib, err := geometry.NewTriangleSet(polys, max(c.Geometry.Bins, 1))
		if err != nil {
			return nil, err
		}
		st.Library = lib
	}
	return st, nil
}

// Params places partition p in the global domain.
func (st *Setup) Params(p *partitions.Partition, logger *log.Logger) geometry.Params {
	params := geometry.Params{
		Head:           p.Head,
		GlobalSize:     st.size,
		Origin:         st.origin,
		Pitch:          st.pitch,
		Media:          st.Media,
		Groups:         st.Groups,
		FillSuppress:   st.suppress,
		ParallelDegree: st.degree,
		Logger:         logger,
	}
	// a nil *TriangleSet must stay a nil interface
	if st.Library != nil {
		params.Library = st.Library
	}
	for face := 0; face < utils.NumFaces; face++ {
		params.GlobalFaces[face] = p.TouchesGlobalFace(face, st.size)
		params.OuterFaces[face] = p.IsOuterFace(face)
	}
	return params
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }
