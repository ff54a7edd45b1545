package ns

import (
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/floats"
)

// gradient returns the upwind or central derivative of the component field
// phi along the stride st at idx, with u the transport velocity. Only the
// third and fourth order schemes read the second neighbours.
func gradient(scheme config.ConvectionScheme, phi []float64, idx, st int, u, dh float64) float64 {
	switch scheme {
	case config.O1Upwind:
		if u >= 0 {
			return (phi[idx] - phi[idx-st]) / dh
		}
		return (phi[idx+st] - phi[idx]) / dh
	case config.O2Central:
		return (phi[idx+st] - phi[idx-st]) / (2 * dh)
	case config.O3MUSCL:
		if u >= 0 {
			return (2*phi[idx+st] + 3*phi[idx] - 6*phi[idx-st] + phi[idx-2*st]) / (6 * dh)
		}
		return (-phi[idx+2*st] + 6*phi[idx+st] - 3*phi[idx] - 2*phi[idx-st]) / (6 * dh)
	}
	return (-phi[idx+2*st] + 8*phi[idx+st] - 8*phi[idx-st] + phi[idx-2*st]) / (12 * dh)
}

// pvec computes the convective flux -(u.grad)u of v into conv and the
// viscous flux rei*lap(u) into diff for every owned fluid cell.
func (s *Session) pvec(conv, diff, v utils.VectorField, rei float64) (flop float64) {
	var (
		g      = s.Grid
		dh     = s.Geom.Pitch
		scheme = s.Control.Flow.Convection
		cf     = rei / (dh * dh)
		planes = make([]float64, g.Size[2])
	)
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			cells := 0
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !s.fluid[idx] {
						for c := 0; c < 3; c++ {
							conv[c][idx], diff[c][idx] = 0, 0
						}
						continue
					}
					u := v.At(idx)
					for c := 0; c < 3; c++ {
						var adv, lap float64
						for a := 0; a < 3; a++ {
							st := g.Stride(a)
							adv += u[a] * gradient(scheme, v[c], idx, st, u[a], dh)
							lap += v[c][idx+st] + v[c][idx-st] - 2*v[c][idx]
						}
						conv[c][idx] = -adv
						diff[c][idx] = cf * lap
					}
					cells++
				}
			}
			planes[k-1] = float64(cells)
		}
	})
	for _, n := range planes {
		flop += 60 * n
	}
	return
}

// integrate advances vc = v0 + dt*rate over the owned fluid cells, and
// zeroes the pseudo-velocity of solid cells.
func (s *Session) integrate(vc, v0 utils.VectorField, dt float64, rate func(c, idx int) float64) (flop float64) {
	g := s.Grid
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					for c := 0; c < 3; c++ {
						if s.fluid[idx] {
							vc[c][idx] = v0[c][idx] + dt*rate(c, idx)
						} else {
							vc[c][idx] = 0
						}
					}
				}
			}
		}
	})
	return 6 * float64(g.Cells())
}

// predict runs the predictor stage: fluxes, their boundary correction and the
// time integration into VC. The first step without history is explicit
// Euler; every step stores its flux as the history of the next one. Under
// AB_CN the history is the convective flux only and half of the viscous
// flux is left to crankNicolson.
func (s *Session) predict(dt, rei float64) (flop float64) {
	var (
		flow = s.Control.Flow
		cn   = flow.Time == config.AdamsBashforthCN
		ab2  = s.hasHistory && flow.Time != config.EulerExplicit
		diff = s.diff
	)
	flop += s.pvec(s.WV, diff, s.V0, rei)
	flop += s.BC.ModPvecFlux(diff, s.V0, rei)
	if !cn {
		for c := 0; c < 3; c++ {
			floats.Add(s.WV[c], diff[c])
		}
	}
	flop += s.integrate(s.VC, s.V0, dt, func(c, idx int) float64 {
		f := s.WV[c][idx]
		if ab2 {
			f = 1.5*f - 0.5*s.ABF[c][idx]
		}
		if cn {
			f += 0.5 * diff[c][idx]
		}
		return f
	})
	s.ABF.CopyFrom(s.WV)
	s.hasHistory = true
	return
}

// sources turns the pseudo-velocity of forcing regions into the component
// direction and then adds the buoyancy, so the buoyancy survives inside a
// forcing region.
func (s *Session) sources(dt, rei float64) (flop float64) {
	flow := s.Control.Flow
	if s.BC.Compo.HasKind(config.CompoForcing) {
		flop += s.BC.ModPvecForcing(s.VC)
	}
	if flow.Heat && flow.Buoyancy == config.Boussinesq {
		flop += s.buoyancy(dt, rei)
	}
	return
}

// buoyancy adds the Boussinesq source dt*Gr/Re²*T along z.
func (s *Session) buoyancy(dt, rei float64) (flop float64) {
	dgr := dt * s.Control.Flow.Grashof * rei * rei
	s.forFluid(func(i, j, k, idx int) {
		s.VC[2][idx] += dgr * s.T[idx]
		flop += 2
	})
	return
}

// crankNicolson solves (1 - dt/(2Re) lap) vc = wv per component, with wv
// the explicit pseudo-velocity and the halo values of vc as boundary values.
func (s *Session) crankNicolson(dt, rei float64) (loops int, err error) {
	var (
		dh     = s.Geom.Pitch
		lambda = 2 * dh * dh / (dt * rei)
	)
	s.WV.CopyFrom(s.VC)
	for c := 0; c < 3; c++ {
		for idx := range s.rhs {
			s.rhs[idx] = -lambda * s.WV[c][idx]
		}
		if err = s.viscous.Solve(s.VC[c], s.rhs, lambda); err != nil {
			return
		}
		loops += s.ViscousCtl.LoopCount
	}
	return
}
