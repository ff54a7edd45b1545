// Package config holds the immutable control snapshot of a run. A Control is
// built once, from Default or a YAML file, validated, and then only read.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfig reports an inconsistent or unsupported configuration.
	ErrConfig = errors.New("configuration error")
	// ErrNotImplemented reports a requested feature the solver does not have.
	ErrNotImplemented = errors.New("not implemented")
)

// FaceNames are the configuration names of the six outer faces, in face
// number order.
var FaceNames = [6]string{"x_minus", "x_plus", "y_minus", "y_plus", "z_minus", "z_plus"}

// ParseFace maps a face name to its number.
func ParseFace(s string) (int, error) {
	return parseEnum(FaceNames[:], "face", s)
}

type Control struct {
	Domain   Domain         `yaml:"domain"`
	Flow     Flow           `yaml:"flow"`
	Poisson  Iteration      `yaml:"poisson"`
	Viscous  Iteration      `yaml:"viscous"`
	Outer    Outer          `yaml:"outer"`
	Geometry GeometryConfig `yaml:"geometry"`

	Media      []Medium    `yaml:"media"`
	Components []Component `yaml:"components,omitempty"`

	DivergenceNorm   DivNorm `yaml:"divergence_norm"`
	ConvergenceCheck bool    `yaml:"convergence_check"`
	PerformanceTest  bool    `yaml:"performance_test"`

	Example     string `yaml:"example"`
	Steps       int    `yaml:"steps"`
	Threads     int    `yaml:"threads"` // goroutines per rank, 0 for NumCPU
	LogInterval int    `yaml:"log_interval"`
}

type Domain struct {
	Size      [3]int     `yaml:"size"`
	Guide     int        `yaml:"guide"`
	Origin    [3]float64 `yaml:"origin"`
	Pitch     float64    `yaml:"pitch"`
	Ranks     int        `yaml:"ranks"`
	Divisions [3]int     `yaml:"divisions"`
}

type Flow struct {
	DeltaT      float64          `yaml:"delta_t"`
	Reynolds    float64          `yaml:"reynolds"`
	Mach        float64          `yaml:"mach"`
	Grashof     float64          `yaml:"grashof"`
	RefVelocity float64          `yaml:"ref_velocity"`
	Equation    BasicEquation    `yaml:"equation"`
	Convection  ConvectionScheme `yaml:"convection"`
	Time        TimeScheme       `yaml:"time"`
	Buoyancy    Buoyancy         `yaml:"buoyancy"`
	Heat        bool             `yaml:"heat"`
	LES         bool             `yaml:"les"`
}

// Iteration configures one solve family.
type Iteration struct {
	Solver       LinearSolver `yaml:"solver"`
	MaxIteration int          `yaml:"max_iteration"`
	Tolerance    float64      `yaml:"tolerance"`
	Omega        float64      `yaml:"omega"`
	Norm         NormType     `yaml:"norm"`
}

type OuterBC struct {
	Kind     OuterKind  `yaml:"kind"`
	Velocity [3]float64 `yaml:"velocity"` // wall sliding or specified inflow velocity
}

type Outer struct {
	XMinus OuterBC `yaml:"x_minus"`
	XPlus  OuterBC `yaml:"x_plus"`
	YMinus OuterBC `yaml:"y_minus"`
	YPlus  OuterBC `yaml:"y_plus"`
	ZMinus OuterBC `yaml:"z_minus"`
	ZPlus  OuterBC `yaml:"z_plus"`
}

// Face returns the condition of a face number.
func (o *Outer) Face(face int) OuterBC {
	return *o.faces()[face]
}

// SetFace replaces the condition of a face number.
func (o *Outer) SetFace(face int, bc OuterBC) {
	*o.faces()[face] = bc
}

func (o *Outer) faces() [6]*OuterBC {
	return [6]*OuterBC{&o.XMinus, &o.XPlus, &o.YMinus, &o.YPlus, &o.ZMinus, &o.ZPlus}
}

// Component is one entry of the 1-indexed component list. Regions are in
// global cell indices, inclusive.
type Component struct {
	Label       string        `yaml:"label"`
	Kind        ComponentKind `yaml:"kind"`
	Lo          [3]int        `yaml:"lo"`
	Hi          [3]int        `yaml:"hi"`
	Direction   [3]float64    `yaml:"direction"`   // forcing direction, normalised on use
	Coefficient float64       `yaml:"coefficient"` // pressure loss coefficient
	Fraction    float64       `yaml:"fraction"`    // open area fraction
}

type Medium struct {
	Label string `yaml:"label"`
	State string `yaml:"state"` // fluid or solid
	// Temperature is the non-dimensional deviation from the reference
	// temperature the medium starts at.
	Temperature float64 `yaml:"temperature"`
}

type GeometryConfig struct {
	FillMedium  string          `yaml:"fill_medium"`
	SeedMedium  string          `yaml:"seed_medium"`
	SeedFace    string          `yaml:"seed_face"`
	SubDivision int             `yaml:"sub_division"`
	Bins        int             `yaml:"bins"`
	Polygons    []PolygonConfig `yaml:"polygons,omitempty"`

	// FillMode picks the medium fill: "bid" resolves solids from the cut
	// boundary ids, "seed" floods the fluid and paints every unreached cell
	// with the solid of the first polygon group.
	FillMode string `yaml:"fill_mode"`
	// SuppressFill keeps floods from wrapping through periodic or symmetric
	// outer faces.
	SuppressFill bool `yaml:"suppress_fill"`
}

const (
	FillModeBid  = "bid"
	FillModeSeed = "seed"
)

// PolygonConfig describes one polygon group by a generated closed surface.
type PolygonConfig struct {
	Label  string     `yaml:"label"`
	Medium string     `yaml:"medium"`
	Shape  string     `yaml:"shape"` // box or sphere
	Min    [3]float64 `yaml:"min"`
	Max    [3]float64 `yaml:"max"`
	Center [3]float64 `yaml:"center"`
	Radius float64    `yaml:"radius"`
	Bands  int        `yaml:"bands"`
}

// Default returns a single rank, incompressible, explicit Euler control on a
// 16³ unit cube with wall boundaries everywhere.
func Default() *Control {
	wall := OuterBC{Kind: Wall}
	return &Control{
		Domain: Domain{
			Size:  [3]int{16, 16, 16},
			Guide: 2,
			Pitch: 1. / 16.,
			Ranks: 1,
		},
		Flow: Flow{
			DeltaT:      0.01,
			Reynolds:    100,
			RefVelocity: 1,
			Equation:    Incompressible,
			Convection:  O3MUSCL,
			Time:        EulerExplicit,
		},
		Poisson: Iteration{Solver: SOR2SMA, MaxIteration: 100, Tolerance: 1.e-6, Omega: 1.1, Norm: ResRelB},
		Viscous: Iteration{Solver: SOR, MaxIteration: 20, Tolerance: 1.e-6, Omega: 1.0, Norm: ErrRel},
		Outer: Outer{
			XMinus: wall, XPlus: wall,
			YMinus: wall, YPlus: wall,
			ZMinus: wall, ZPlus: wall,
		},
		Geometry: GeometryConfig{
			FillMedium:  "air",
			SeedMedium:  "air",
			SeedFace:    FaceNames[0],
			SubDivision: 4,
			Bins:        16,
			FillMode:    FillModeBid,
		},
		Media: []Medium{
			{Label: "air", State: "fluid"},
			{Label: "iron", State: "solid"},
		},
		DivergenceNorm:   DivL2,
		ConvergenceCheck: true,
		Example:          "duct",
		Steps:            10,
		LogInterval:      1,
	}
}

// Load reads and validates a YAML control file.
func Load(path string) (*Control, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading control file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Control, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		if errors.Is(err, ErrConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal renders c as YAML.
func (c *Control) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// CheckConvergence reports whether the Poisson loop may stop before
// MaxIteration; performance tests always run every iteration.
func (c *Control) CheckConvergence() bool {
	return c.ConvergenceCheck && !c.PerformanceTest
}

// PeriodicAxes reports the axes with periodic outer faces.
func (c *Control) PeriodicAxes() (p [3]bool) {
	for d := 0; d < 3; d++ {
		p[d] = c.Outer.Face(2*d).Kind == Periodic
	}
	return
}

// MediumID returns the 1-based id of a medium label.
func (c *Control) MediumID(label string) (int32, error) {
	for n, m := range c.Media {
		if strings.EqualFold(m.Label, label) {
			return int32(n + 1), nil
		}
	}
	return 0, fmt.Errorf("%w: medium %q not in the medium table", ErrConfig, label)
}

// MediumTemperature returns the initial temperature of medium id, 0 for an
// id outside the medium table.
func (c *Control) MediumTemperature(id int32) float64 {
	if id < 1 || int(id) > len(c.Media) {
		return 0
	}
	return c.Media[id-1].Temperature
}

// IsFluidMedium reports whether a medium label names a fluid.
func (c *Control) IsFluidMedium(label string) bool {
	id, err := c.MediumID(label)
	return err == nil && strings.EqualFold(c.Media[id-1].State, "fluid")
}

// Compressibility returns the low-Mach coefficient (dh·M/dt)², 0 for the
// incompressible equations.
func (c *Control) Compressibility() float64 {
	if c.Flow.Equation != LowMach {
		return 0
	}
	r := c.Domain.Pitch * c.Flow.Mach / c.Flow.DeltaT
	return r * r
}

// Validate rejects inconsistent combinations.
func (c *Control) Validate() error {
	bad := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
	}
	d := c.Domain
	for a := 0; a < 3; a++ {
		if d.Size[a] < 1 {
			return bad("domain size %v", d.Size)
		}
	}
	if d.Guide < 1 {
		return bad("guide cell width %d, at least 1 required", d.Guide)
	}
	if d.Guide < 2 && (c.Flow.Convection == O3MUSCL || c.Flow.Convection == O4Central) {
		return bad("%v convection needs a guide width of 2, got %d", c.Flow.Convection, d.Guide)
	}
	if !(d.Pitch > 0) {
		return bad("cell pitch %v", d.Pitch)
	}
	if d.Ranks < 1 {
		return bad("rank count %d", d.Ranks)
	}
	if d.Divisions != [3]int{} && d.Divisions[0]*d.Divisions[1]*d.Divisions[2] != d.Ranks {
		return bad("divisions %v do not match %d ranks", d.Divisions, d.Ranks)
	}

	f := c.Flow
	if f.LES {
		return fmt.Errorf("%w: LES %w", ErrConfig, ErrNotImplemented)
	}
	if !(f.DeltaT > 0) || !(f.Reynolds > 0) {
		return bad("delta_t %v and reynolds %v must be positive", f.DeltaT, f.Reynolds)
	}
	if f.Equation == LowMach && !(f.Mach > 0) {
		return bad("LTDCMP equations need a positive Mach number")
	}
	if f.Buoyancy == Boussinesq && !f.Heat {
		return bad("Boussinesq buoyancy needs the heat problem")
	}
	if int(f.Convection) < 0 || int(f.Convection) >= len(convectionNames) {
		return bad("convection scheme %v", f.Convection)
	}
	if int(f.Time) < 0 || int(f.Time) >= len(timeNames) {
		return bad("time scheme %v", f.Time)
	}

	if err := c.Poisson.validate("poisson"); err != nil {
		return err
	}
	if f.Time == AdamsBashforthCN {
		if err := c.Viscous.validate("viscous"); err != nil {
			return err
		}
	}

	for a := 0; a < 3; a++ {
		lo, hi := c.Outer.Face(2*a).Kind, c.Outer.Face(2*a+1).Kind
		if (lo == Periodic) != (hi == Periodic) {
			return bad("axis %d: periodic on one face only", a)
		}
	}

	if len(c.Media) == 0 {
		return bad("empty medium table")
	}
	for _, m := range c.Media {
		if !strings.EqualFold(m.State, "fluid") && !strings.EqualFold(m.State, "solid") {
			return bad("medium %q: state %q", m.Label, m.State)
		}
	}
	g := c.Geometry
	if !c.IsFluidMedium(g.FillMedium) {
		return bad("fill medium %q is not a fluid of the medium table", g.FillMedium)
	}
	if _, err := c.MediumID(g.SeedMedium); err != nil {
		return err
	}
	if g.SeedFace != "" {
		if _, err := ParseFace(g.SeedFace); err != nil {
			return err
		}
	}
	if g.SubDivision < 1 {
		return bad("sub_division %d, at least 1 required", g.SubDivision)
	}
	switch g.FillMode {
	case "", FillModeBid:
	case FillModeSeed:
		if g.SeedFace == "" || len(g.Polygons) == 0 {
			return bad("seed fill needs a seed face and a polygon group")
		}
	default:
		return bad("fill_mode %q, want %q or %q", g.FillMode, FillModeBid, FillModeSeed)
	}
	for _, p := range g.Polygons {
		id, err := c.MediumID(p.Medium)
		if err != nil {
			return err
		}
		if !strings.EqualFold(c.Media[id-1].State, "solid") {
			return bad("polygon group %q: medium %q is not a solid", p.Label, p.Medium)
		}
		if p.Shape != "box" && p.Shape != "sphere" {
			return bad("polygon group %q: shape %q", p.Label, p.Shape)
		}
	}

	for n, cp := range c.Components {
		for a := 0; a < 3; a++ {
			if cp.Lo[a] < 1 || cp.Hi[a] > d.Size[a] || cp.Lo[a] > cp.Hi[a] {
				return bad("component %d %q: region %v..%v outside the domain", n+1, cp.Label, cp.Lo, cp.Hi)
			}
		}
		if cp.Kind == CompoForcing {
			dv := cp.Direction
			if math.Sqrt(dv[0]*dv[0]+dv[1]*dv[1]+dv[2]*dv[2]) == 0 {
				return bad("forcing component %d %q needs a direction", n+1, cp.Label)
			}
		}
		if cp.Kind == CompoFraction && (cp.Fraction < 0 || cp.Fraction > 1) {
			return bad("fraction component %d %q: fraction %v", n+1, cp.Label, cp.Fraction)
		}
	}
	if c.Steps < 0 || c.Threads < 0 {
		return bad("steps %d and threads %d must not be negative", c.Steps, c.Threads)
	}
	return nil
}

func (it Iteration) validate(family string) error {
	if int(it.Solver) < 0 || int(it.Solver) >= len(solverNames) {
		return fmt.Errorf("%w: %s: unknown linear solver %d", ErrConfig, family, int(it.Solver))
	}
	if it.MaxIteration < 1 {
		return fmt.Errorf("%w: %s: max_iteration %d", ErrConfig, family, it.MaxIteration)
	}
	if !(it.Omega > 0 && it.Omega < 2) {
		return fmt.Errorf("%w: %s: relaxation factor %v outside (0,2)", ErrConfig, family, it.Omega)
	}
	if !(it.Tolerance > 0) {
		return fmt.Errorf("%w: %s: tolerance %v", ErrConfig, family, it.Tolerance)
	}
	if int(it.Norm) < 0 || int(it.Norm) >= len(normNames) {
		return fmt.Errorf("%w: %s: norm type %d", ErrConfig, family, int(it.Norm))
	}
	return nil
}
