package ns

import (
	"math"

	"github.com/notargets/FVKernel/bc"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/floats"
)

// neighbor returns the index across face d and the outward sign of d.
func neighbor(g *utils.Grid, idx, d int) (nb int, sgn float64) {
	st := g.Stride(d / 2)
	if d%2 == 0 {
		return idx - st, -1
	}
	return idx + st, 1
}

// divergence writes coef times the outward flux of the face averaged
// pseudo-velocity into ws, over the fluid and outflow faces of every owned
// fluid cell. Prescribed velocity faces are added by ModPsrcVBC, solid faces
// carry no flux.
func (s *Session) divergence(ws utils.ScalarField, vc utils.VectorField, coef float64) (flop float64) {
	g := s.Grid
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					ws[idx] = 0
					if !s.fluid[idx] {
						continue
					}
					var div float64
					for d := 0; d < 6; d++ {
						switch s.BC.FaceKind(i, j, k, d) {
						case bc.FaceInterior, bc.FaceOutflow:
							nb, sgn := neighbor(g, idx, d)
							a := d / 2
							div += sgn * 0.5 * (vc[a][idx] + vc[a][nb])
						}
					}
					ws[idx] = coef * div
				}
			}
		}
	})
	return 18 * float64(g.Cells())
}

// AssembleSource builds the Poisson right hand side b = ws - lambda*p0 of
// the owned fluid cells and returns its global L2 norm. lambda is zero for
// the incompressible equations.
func (s *Session) AssembleSource(b, ws, p0 utils.ScalarField, lambda float64) (float64, error) {
	var (
		g      = s.Grid
		planes = make([]float64, g.Size[2])
	)
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var acc float64
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !s.fluid[idx] {
						b[idx] = 0
						continue
					}
					b[idx] = ws[idx] - lambda*p0[idx]
					acc += b[idx] * b[idx]
				}
			}
			planes[k-1] = acc
		}
	})
	sum, err := partitions.AllReduceScalar(s.Comm, floats.Sum(planes))
	if err != nil {
		return 0, err
	}
	return math.Sqrt(sum), nil
}

// project corrects the cell velocity with the central pressure gradient and
// writes the divergence of the corrected face velocities into dv, scaled
// like the Poisson source. Unlinked faces see a mirrored pressure.
func (s *Session) project(v, vc utils.VectorField, p, dv utils.ScalarField, dt, coef float64) (flop float64) {
	var (
		g    = s.Grid
		dh   = s.Geom.Pitch
		link = s.poisson.Op.Link
	)
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !s.fluid[idx] {
						for c := 0; c < 3; c++ {
							v[c][idx] = 0
						}
						dv[idx] = 0
						continue
					}
					var (
						pf  [6]float64
						div float64
					)
					for d := 0; d < 6; d++ {
						pf[d] = p[idx]
						if link[idx]&(1<<uint(d)) == 0 {
							continue
						}
						nb, sgn := neighbor(g, idx, d)
						pf[d] = p[nb]
						a := d / 2
						div += coef*sgn*0.5*(vc[a][idx]+vc[a][nb]) - (p[nb] - p[idx])
					}
					for a := 0; a < 3; a++ {
						v[a][idx] = vc[a][idx] - dt*(pf[2*a+1]-pf[2*a])/(2*dh)
					}
					dv[idx] = div
				}
			}
		}
	})
	return 40 * float64(g.Cells())
}

// divNorm reduces the configured norm of the divergence field.
func (s *Session) divNorm(dv utils.ScalarField) (float64, error) {
	var (
		g      = s.Grid
		planes = make([]float64, g.Size[2])
		useMax = s.Control.DivergenceNorm == config.DivMax
	)
	utils.ParallelK(s.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var acc float64
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					d := dv[g.Idx(i, j, k)]
					if useMax {
						acc = math.Max(acc, math.Abs(d))
					} else {
						acc += d * d
					}
				}
			}
			planes[k-1] = acc
		}
	})
	if useMax {
		return partitions.AllReduceMax(s.Comm, floats.Max(planes))
	}
	sum, err := partitions.AllReduceScalar(s.Comm, floats.Sum(planes))
	return math.Sqrt(sum), err
}
