package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type ConvectionScheme int

const (
	O1Upwind ConvectionScheme = iota
	O2Central
	O3MUSCL
	O4Central
)

var convectionNames = []string{"O1_upwind", "O2_central", "O3_muscl", "O4_central"}

type TimeScheme int

const (
	EulerExplicit TimeScheme = iota
	AdamsBashforth2
	AdamsBashforthCN
)

var timeNames = []string{"Euler_explicit", "AB2", "AB_CN"}

type BasicEquation int

const (
	Incompressible BasicEquation = iota
	LowMach        // limited compressibility
)

var equationNames = []string{"INCMP", "LTDCMP"}

type LinearSolver int

const (
	SOR LinearSolver = iota
	SOR2SMA
)

var solverNames = []string{"SOR", "SOR2SMA"}

type NormType int

const (
	ResAbs NormType = iota
	ResRelB
	ResRelR0
	ErrRel
)

var normNames = []string{"res_abs", "res_rel_b", "res_rel_r0", "err_rel"}

type DivNorm int

const (
	DivL2 DivNorm = iota
	DivMax
)

var divNormNames = []string{"L2", "max"}

type Buoyancy int

const (
	NoBuoyancy Buoyancy = iota
	Boussinesq
)

var buoyancyNames = []string{"none", "boussinesq"}

type OuterKind int

const (
	Wall OuterKind = iota
	SpecifiedVelocity
	Outflow
	Symmetric
	Periodic
)

var outerNames = []string{"wall", "specified_velocity", "outflow", "symmetric", "periodic"}

type ComponentKind int

const (
	CompoOutflow ComponentKind = iota
	CompoForcing
	CompoPeriodic
	CompoFraction
)

var componentNames = []string{"outflow", "forcing", "periodic", "fraction"}

func enumName(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func parseEnum(names []string, what, s string) (int, error) {
	for n, name := range names {
		if strings.EqualFold(name, s) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q, valid: %s", ErrConfig, what, s, strings.Join(names, ", "))
}

func decodeEnum(value *yaml.Node, names []string, what string) (int, error) {
	var s string
	if err := value.Decode(&s); err != nil {
		return 0, fmt.Errorf("%w: line %d: %s must be a string: %v", ErrConfig, value.Line, what, err)
	}
	return parseEnum(names, what, s)
}

func (c ConvectionScheme) String() string { return enumName(convectionNames, int(c)) }
func (t TimeScheme) String() string       { return enumName(timeNames, int(t)) }
func (b BasicEquation) String() string    { return enumName(equationNames, int(b)) }
func (l LinearSolver) String() string     { return enumName(solverNames, int(l)) }
func (n NormType) String() string         { return enumName(normNames, int(n)) }
func (d DivNorm) String() string          { return enumName(divNormNames, int(d)) }
func (b Buoyancy) String() string         { return enumName(buoyancyNames, int(b)) }
func (o OuterKind) String() string        { return enumName(outerNames, int(o)) }
func (c ComponentKind) String() string    { return enumName(componentNames, int(c)) }

func (c ConvectionScheme) MarshalYAML() (interface{}, error) { return c.String(), nil }
func (t TimeScheme) MarshalYAML() (interface{}, error)       { return t.String(), nil }
func (b BasicEquation) MarshalYAML() (interface{}, error)    { return b.String(), nil }
func (l LinearSolver) MarshalYAML() (interface{}, error)     { return l.String(), nil }
func (n NormType) MarshalYAML() (interface{}, error)         { return n.String(), nil }
func (d DivNorm) MarshalYAML() (interface{}, error)          { return d.String(), nil }
func (b Buoyancy) MarshalYAML() (interface{}, error)         { return b.String(), nil }
func (o OuterKind) MarshalYAML() (interface{}, error)        { return o.String(), nil }
func (c ComponentKind) MarshalYAML() (interface{}, error)    { return c.String(), nil }

func (c *ConvectionScheme) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, convectionNames, "convection scheme")
	*c = ConvectionScheme(v)
	return err
}

func (t *TimeScheme) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, timeNames, "time scheme")
	*t = TimeScheme(v)
	return err
}

func (b *BasicEquation) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, equationNames, "basic equation")
	*b = BasicEquation(v)
	return err
}

func (l *LinearSolver) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, solverNames, "linear solver")
	*l = LinearSolver(v)
	return err
}

func (n *NormType) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, normNames, "norm type")
	*n = NormType(v)
	return err
}

func (d *DivNorm) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, divNormNames, "divergence norm")
	*d = DivNorm(v)
	return err
}

func (b *Buoyancy) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, buoyancyNames, "buoyancy model")
	*b = Buoyancy(v)
	return err
}

func (o *OuterKind) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, outerNames, "outer boundary kind")
	*o = OuterKind(v)
	return err
}

func (c *ComponentKind) UnmarshalYAML(value *yaml.Node) error {
	v, err := decodeEnum(value, componentNames, "component kind")
	*c = ComponentKind(v)
	return err
}

// ParseLinearSolver maps a solver selector to its kind.
func ParseLinearSolver(s string) (LinearSolver, error) {
	v, err := parseEnum(solverNames, "linear solver", s)
	return LinearSolver(v), err
}
