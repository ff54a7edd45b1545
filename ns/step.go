package ns

import (
	"github.com/notargets/FVKernel/bc"
	"github.com/notargets/FVKernel/config"
)

// StepResult summarises one time step.
type StepResult struct {
	Step              int
	Time              float64
	PoissonIterations int
	PoissonNorm       float64 // last norm of the pressure relaxation
	SourceNorm        float64 // L2 norm of the Poisson right hand side
	DivNorm           float64 // norm of the projected divergence
	ViscousIterations int
	Flop              float64
}

// Step advances the session by one time step. Any error stops the session:
// the same error, which wraps ErrSessionFailed and its cause, is returned
// by every later call.
func (s *Session) Step() (StepResult, error) {
	if s.failed != nil {
		return StepResult{}, s.failed
	}
	res, err := s.step()
	if err != nil {
		return res, s.fail(err)
	}
	s.CurrentStep++
	s.Time += s.Control.Flow.DeltaT
	res.Step, res.Time = s.CurrentStep, s.Time
	if s.Comm.Rank() == 0 && s.Control.LogInterval > 0 && s.CurrentStep%s.Control.LogInterval == 0 {
		s.Logger.Printf("step %d time %.6g: poisson %d itr norm %.4e, |b| %.4e, div %.4e",
			res.Step, res.Time, res.PoissonIterations, res.PoissonNorm, res.SourceNorm, res.DivNorm)
	}
	return res, nil
}

func (s *Session) step() (res StepResult, err error) {
	var (
		c      = s.Control
		flow   = c.Flow
		dt     = flow.DeltaT
		dh     = s.Geom.Pitch
		rei    = 1 / flow.Reynolds
		coef   = dh / dt
		lambda = c.Compressibility()
		b      = s.BC
		ic     = s.PoissonCtl
		flop   float64
	)
	forcing := b.Compo.HasKind(config.CompoForcing)
	outflow := b.Compo.HasKind(config.CompoOutflow)

	// 1. snapshot
	s.P0.CopyFrom(s.P)
	s.V0.CopyFrom(s.V)

	// 2. predictor
	res.Flop += s.predict(dt, rei)

	// 3. forcing direction, then buoyancy
	res.Flop += s.sources(dt, rei)

	// 4. outer, then inner periodic conditions
	res.Flop += b.OuterVBCFacePrep(s.VC, s.V0, dt)
	if flop, err = b.InnerVBCPeriodic(s.Comm, s.VC); err != nil {
		return
	}
	res.Flop += flop

	// 5. halo synchronisation of the pseudo-velocity
	if err = s.Comm.ExchangeVector(s.VC); err != nil {
		return
	}
	if flow.Time == config.AdamsBashforthCN {
		if res.ViscousIterations, err = s.crankNicolson(dt, rei); err != nil {
			return
		}
		res.Flop += b.OuterVBCFacePrep(s.VC, s.V0, dt)
		if err = s.Comm.ExchangeVector(s.VC); err != nil {
			return
		}
	}

	// 6. Poisson source and its norm
	res.Flop += s.divergence(s.WS, s.VC, coef)
	res.Flop += b.ModPsrcVBC(s.WS, coef)
	if res.SourceNorm, err = s.AssembleSource(s.B, s.WS, s.P0, lambda); err != nil {
		return
	}
	ic.BNorm = res.SourceNorm

	// 7. initial residual
	if ic.NormType == config.ResRelR0 {
		if err = s.poisson.InitialResidual(s.P, s.B, lambda); err != nil {
			return
		}
	}

	// 8. pressure relaxation with projection
	check := c.CheckConvergence()
	rhs := s.B
	for ic.LoopCount = 0; ic.LoopCount < ic.ItrMax; {
		s.SQ.Fill(0)
		if forcing {
			res.Flop += b.ModPsrcForcing(s.SQ, s.V, coef, dt)
			for idx := range s.rhs {
				s.rhs[idx] = s.B[idx] + s.SQ[idx]
			}
			rhs = s.rhs
		}
		if err = s.poisson.Iterate(s.P, rhs, lambda); err != nil {
			return
		}
		res.Flop += b.OuterPBC(s.P)
		res.Flop += s.project(s.V, s.VC, s.P, s.DV, dt, coef)

		s.compo.Reset()
		res.Flop += b.ModDivergence(s.DV, s.V, coef, s.compo)
		if outflow {
			if err = s.reduceCompo(); err != nil {
				return
			}
			b.SetOutflow(s.compo)
		}
		if forcing {
			s.compo.Reset()
			res.Flop += b.ModVdivForcing(s.V, s.DV, s.SQ, dt, s.compo)
			if err = s.reduceCompo(); err != nil {
				return
			}
			b.SetForcing(s.compo)
		}
		if flop, err = b.InnerVBCPeriodic(s.Comm, s.V); err != nil {
			return
		}
		res.Flop += flop

		if res.DivNorm, err = s.divNorm(s.DV); err != nil {
			return
		}
		if check && ic.Converged() {
			break
		}
	}
	res.PoissonIterations = ic.LoopCount
	res.PoissonNorm = ic.NormValue

	// 9. final synchronisation and the monitors of the next step
	res.Flop += b.OuterVBCFacePrep(s.V, s.V0, dt)
	if err = s.Comm.ExchangeVector(s.V); err != nil {
		return
	}
	err = s.monitor()
	return
}

// reduceCompo sums the component buffer over the ranks in place.
func (s *Session) reduceCompo() error {
	if s.Comm.Size() == 1 {
		return nil
	}
	global := bc.NewCompoBuffer(s.BC.Compo.NoCompo())
	if err := s.Comm.AllReduceSum(s.compo, global); err != nil {
		return err
	}
	copy(s.compo, global)
	return nil
}

// monitor reduces the outer face velocities used by the outflow conditions
// of the next step.
func (s *Session) monitor() error {
	local, _ := s.BC.DomainMonitor(s.V)
	global := make([]float64, len(local))
	if err := s.Comm.AllReduceSum(local, global); err != nil {
		return err
	}
	s.BC.SetMonitor(global)
	return nil
}
