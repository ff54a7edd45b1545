package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channelYAML = `
domain:
  size: [32, 8, 8]
  guide: 2
  pitch: 0.125
  ranks: 2
  divisions: [2, 1, 1]
flow:
  delta_t: 0.005
  reynolds: 400
  equation: INCMP
  convection: O3_muscl
  time: AB2
poisson:
  solver: sor2sma
  max_iteration: 50
  tolerance: 1.0e-5
  omega: 1.2
  norm: res_rel_r0
outer:
  x_minus: {kind: specified_velocity, velocity: [1, 0, 0]}
  x_plus: {kind: outflow}
  z_minus: {kind: periodic}
  z_plus: {kind: periodic}
media:
  - {label: air, state: fluid, temperature: 0.25}
  - {label: iron, state: solid}
components:
  - {label: grid, kind: forcing, lo: [10, 1, 1], hi: [11, 8, 8], direction: [1, 0, 0], coefficient: 0.5}
example: duct
steps: 5
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(channelYAML))
	require.NoError(t, err)
	assert.Equal(t, [3]int{32, 8, 8}, c.Domain.Size)
	assert.Equal(t, AdamsBashforth2, c.Flow.Time)
	assert.Equal(t, SOR2SMA, c.Poisson.Solver)
	assert.Equal(t, ResRelR0, c.Poisson.Norm)
	assert.Equal(t, SpecifiedVelocity, c.Outer.Face(0).Kind)
	assert.Equal(t, Outflow, c.Outer.XPlus.Kind)
	// unspecified faces keep the default
	assert.Equal(t, Wall, c.Outer.YMinus.Kind)
	assert.Equal(t, [3]bool{false, false, true}, c.PeriodicAxes())
	require.Len(t, c.Components, 1)
	assert.Equal(t, CompoForcing, c.Components[0].Kind)
	assert.Equal(t, 0.25, c.MediumTemperature(1))
	assert.Zero(t, c.MediumTemperature(2))
	assert.Zero(t, c.MediumTemperature(0))
	assert.Zero(t, c.MediumTemperature(3))
	// defaults survive
	assert.Equal(t, 20, c.Viscous.MaxIteration)
	assert.True(t, c.CheckConvergence())
	assert.Zero(t, c.Compressibility())
}

func TestMarshalRoundTrip(t *testing.T) {
	c, err := Parse([]byte(channelYAML))
	require.NoError(t, err)
	data, err := c.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.yaml")
	require.NoError(t, os.WriteFile(path, []byte(channelYAML), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Steps)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Control)
		target error
	}{
		{"LES", func(c *Control) { c.Flow.LES = true }, ErrNotImplemented},
		{"GuideForMUSCL", func(c *Control) { c.Domain.Guide = 1 }, ErrConfig},
		{"LowMachWithoutMach", func(c *Control) { c.Flow.Equation = LowMach }, ErrConfig},
		{"RanksVsDivisions", func(c *Control) { c.Domain.Ranks = 3; c.Domain.Divisions = [3]int{2, 1, 1} }, ErrConfig},
		{"UnknownSolver", func(c *Control) { c.Poisson.Solver = LinearSolver(7) }, ErrConfig},
		{"ViscousForCN", func(c *Control) { c.Flow.Time = AdamsBashforthCN; c.Viscous.MaxIteration = 0 }, ErrConfig},
		{"OneSidedPeriodic", func(c *Control) { c.Outer.XMinus.Kind = Periodic }, ErrConfig},
		{"SolidFill", func(c *Control) { c.Geometry.FillMedium = "iron" }, ErrConfig},
		{"ZeroSubDivision", func(c *Control) { c.Geometry.SubDivision = 0 }, ErrConfig},
		{"UnknownFillMode", func(c *Control) { c.Geometry.FillMode = "flood" }, ErrConfig},
		{"SeedFillWithoutPolygons", func(c *Control) { c.Geometry.FillMode = FillModeSeed; c.Geometry.Polygons = nil }, ErrConfig},
		{"BoussinesqWithoutHeat", func(c *Control) { c.Flow.Buoyancy = Boussinesq }, ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.target)
		})
	}
}

func TestParseRejectsUnknownEnum(t *testing.T) {
	_, err := Parse([]byte("poisson:\n  solver: jacobi\n"))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = Parse([]byte("flow:\n  les: true\n"))
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = ParseLinearSolver("SOR2SMA")
	assert.NoError(t, err)
}

func TestPerformanceTestDisablesConvergence(t *testing.T) {
	c := Default()
	c.PerformanceTest = true
	assert.False(t, c.CheckConvergence())

	c = Default()
	c.Flow.Equation = LowMach
	c.Flow.Mach = 0.1
	c.Domain.Pitch = 0.5
	c.Flow.DeltaT = 0.01
	assert.InDelta(t, 25.0, c.Compressibility(), 1.e-12)
}
