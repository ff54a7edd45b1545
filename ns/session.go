// Package ns advances the incompressible or low Mach number Navier-Stokes
// equations on one sub-domain with a fractional step method: predictor,
// boundary conditions, halo synchronisation, Poisson source, pressure
// relaxation with projection, and monitoring.
package ns

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/notargets/FVKernel/bc"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/geometry"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/solver"
	"github.com/notargets/FVKernel/utils"
)

// ErrSessionFailed marks a session that stopped on a fatal error. Every
// later call returns the same error.
var ErrSessionFailed = errors.New("session failed")

// Session owns the fields of one sub-domain and the state carried between
// steps.
type Session struct {
	Control *config.Control
	Comm    partitions.Communicator
	Grid    *utils.Grid
	Geom    *geometry.Geometry
	BC      *bc.Boundary
	Logger  *log.Logger
	RunID   uuid.UUID

	V, V0, VC, WV, ABF   utils.VectorField
	P, P0, WS, SQ, B, DV utils.ScalarField
	T                    utils.ScalarField // temperature deviation of the medium, drives buoyancy

	CurrentStep int
	Time        float64

	PoissonCtl *solver.ItrCtl
	ViscousCtl *solver.ItrCtl // nil unless the time scheme is AB_CN

	fluid      []bool
	hasHistory bool
	poisson    *solver.Poisson
	viscous    *solver.Poisson
	rhs        utils.ScalarField
	diff       utils.VectorField
	compo      bc.CompoBuffer
	pm         *utils.PartitionMap
	failed     error
}

// NewSession binds a classified sub-domain to a validated control. The
// medium ids of geom must be resolved over the whole array, halo included,
// as Geometry.Fill leaves them.
func NewSession(c *config.Control, comm partitions.Communicator, geom *geometry.Geometry, logger *log.Logger) (*Session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g := geom.Grid
	if g.Guide < 2 && (c.Flow.Convection == config.O3MUSCL || c.Flow.Convection == config.O4Central) {
		return nil, fmt.Errorf("%w: %v convection on a guide width of %d", config.ErrConfig, c.Flow.Convection, g.Guide)
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	s := &Session{
		Control: c,
		Comm:    comm,
		Grid:    g,
		Geom:    geom,
		Logger:  logger,
		RunID:   uuid.New(),
		V:       g.NewVector(),
		V0:      g.NewVector(),
		VC:      g.NewVector(),
		WV:      g.NewVector(),
		ABF:     g.NewVector(),
		P:       g.NewScalar(),
		P0:      g.NewScalar(),
		WS:      g.NewScalar(),
		SQ:      g.NewScalar(),
		B:       g.NewScalar(),
		DV:      g.NewScalar(),
		T:       g.NewScalar(),
		fluid:   make([]bool, g.Volume),
		rhs:     g.NewScalar(),
		diff:    g.NewVector(),
		compo:   bc.NewCompoBuffer(len(c.Components)),
		pm:      utils.NewPartitionMap(c.Threads, g.Size[2]),
	}
	for idx, id := range geom.Mid {
		s.fluid[idx] = geom.Media.IsFluid(id)
		s.T[idx] = c.MediumTemperature(id)
	}

	var err error
	if s.BC, err = bc.NewBoundary(g, geom.Head, geom.Pitch, c.Outer, geom.OuterFaces, s.fluid, c.Components); err != nil {
		return nil, err
	}
	if err = s.setRegions(); err != nil {
		return nil, err
	}

	if s.PoissonCtl, err = solver.NewItrCtl(c.Poisson); err != nil {
		return nil, fmt.Errorf("poisson: %w", err)
	}
	if s.poisson, err = solver.NewPoisson(s.pressureOperator(), s.PoissonCtl, comm); err != nil {
		return nil, err
	}
	if c.Flow.Time == config.AdamsBashforthCN {
		if s.ViscousCtl, err = solver.NewItrCtl(c.Viscous); err != nil {
			return nil, fmt.Errorf("viscous: %w", err)
		}
		if s.viscous, err = solver.NewPoisson(s.viscousOperator(), s.ViscousCtl, comm); err != nil {
			return nil, err
		}
	}
	// the first predictor reads the boundary values of the initial field
	s.BC.OuterVBCFacePrep(s.V, s.V0, c.Flow.DeltaT)
	if err = comm.ExchangeVector(s.V); err != nil {
		return nil, err
	}
	if comm.Rank() == 0 {
		s.Logger.Printf("session %s: %d ranks, %v cells per rank, %v/%v, %s",
			s.RunID, comm.Size(), g.Size, c.Flow.Convection, c.Flow.Time, c.Poisson.Solver)
	}
	return s, nil
}

// pressureOperator links the faces that carry a pressure difference: fluid
// to fluid and outflow faces. Solid and prescribed velocity faces are
// Neumann.
func (s *Session) pressureOperator() *solver.Operator {
	g := s.Grid
	op := solver.NewOperator(g, s.Geom.Head, s.Control.Threads)
	s.forFluid(func(i, j, k, idx int) {
		var link uint8
		for d := 0; d < 6; d++ {
			switch s.BC.FaceKind(i, j, k, d) {
			case bc.FaceInterior, bc.FaceOutflow:
				link |= 1 << uint(d)
			}
		}
		op.SetCell(i, j, k, true, link)
	})
	return op
}

// viscousOperator links all faces of fluid cells; ghost and solid cells
// hold the boundary values of the velocity.
func (s *Session) viscousOperator() *solver.Operator {
	op := solver.NewOperator(s.Grid, s.Geom.Head, s.Control.Threads)
	s.forFluid(func(i, j, k, idx int) {
		op.SetCell(i, j, k, true, 0x3f)
	})
	return op
}

// setRegions reduces the component element counts and fraction values.
func (s *Session) setRegions() error {
	local := s.BC.RegionSums(s.Geom.VF)
	global := bc.NewCompoBuffer(s.BC.Compo.NoCompo())
	if err := s.Comm.AllReduceSum(local, global); err != nil {
		return err
	}
	s.BC.SetRegionSums(global)
	return nil
}

// forFluid visits the owned fluid cells sequentially.
func (s *Session) forFluid(fn func(i, j, k, idx int)) {
	g := s.Grid
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				if idx := g.Idx(i, j, k); s.fluid[idx] {
					fn(i, j, k, idx)
				}
			}
		}
	}
}

// IsFluid reports whether the cell at idx is a fluid cell.
func (s *Session) IsFluid(idx int) bool { return s.fluid[idx] }

// Failed returns the error that stopped the session, nil while it runs.
func (s *Session) Failed() error { return s.failed }

func (s *Session) fail(err error) error {
	s.failed = fmt.Errorf("%w: step %d: %w", ErrSessionFailed, s.CurrentStep+1, err)
	return s.failed
}

// Checkpoint is the state a session needs to continue a run.
type Checkpoint struct {
	Step       int
	Time       float64
	V, V0, ABF utils.VectorField
	P, P0      utils.ScalarField
	HasHistory bool
	Monitor    [6]float64
	Components bc.Components
}

// Checkpoint copies the restart state.
func (s *Session) Checkpoint() *Checkpoint {
	return &Checkpoint{
		Step:       s.CurrentStep,
		Time:       s.Time,
		V:          s.V.Clone(),
		V0:         s.V0.Clone(),
		ABF:        s.ABF.Clone(),
		P:          s.P.Clone(),
		P0:         s.P0.Clone(),
		HasHistory: s.hasHistory,
		Monitor:    s.BC.Monitor,
		Components: append(bc.Components(nil), s.BC.Compo...),
	}
}

// Resume restores a checkpoint of a session with the same decomposition.
// Without keepHistory the Adams-Bashforth history is dropped and the next
// step is explicit Euler.
func (s *Session) Resume(cp *Checkpoint, keepHistory bool) error {
	if s.failed != nil {
		return s.failed
	}
	if len(cp.P) != s.Grid.Volume || len(cp.Components) != len(s.BC.Compo) {
		return fmt.Errorf("checkpoint of %d cells and %d components, session has %d and %d",
			len(cp.P), len(cp.Components)-1, s.Grid.Volume, len(s.BC.Compo)-1)
	}
	s.CurrentStep, s.Time = cp.Step, cp.Time
	s.V.CopyFrom(cp.V)
	s.V0.CopyFrom(cp.V0)
	s.ABF.CopyFrom(cp.ABF)
	s.P.CopyFrom(cp.P)
	s.P0.CopyFrom(cp.P0)
	s.hasHistory = keepHistory && cp.HasHistory
	s.BC.Monitor = cp.Monitor
	copy(s.BC.Compo, cp.Components)
	return nil
}
