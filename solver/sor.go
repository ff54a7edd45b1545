// Package solver relaxes the 7-point system
//
//	sum over linked faces (x_nb - x) - lambda*x = b
//
// of one sub-domain with point or two colour SOR. Unlinked faces are
// homogeneous Neumann; a linked face reads whatever value the neighbour or
// halo cell holds, so Dirichlet conditions are imposed by filling the halo.
package solver

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/floats"
)

// Operator holds the face links of every owned cell.
type Operator struct {
	Grid   *utils.Grid
	Head   [3]int // global offset, fixes the colouring across ranks
	Link   []uint8
	Active []bool

	pm *utils.PartitionMap
}

// NewOperator returns an operator without any active cell.
func NewOperator(g *utils.Grid, head [3]int, threads int) *Operator {
	return &Operator{
		Grid:   g,
		Head:   head,
		Link:   make([]uint8, g.Volume),
		Active: make([]bool, g.Volume),
		pm:     utils.NewPartitionMap(threads, g.Size[2]),
	}
}

// SetCell marks an owned cell active with the given face link bits, bit d
// for direction d in W, E, S, N, B, T order.
func (op *Operator) SetCell(i, j, k int, active bool, link uint8) {
	idx := op.Grid.Idx(i, j, k)
	op.Active[idx] = active
	op.Link[idx] = link
}

// LinkAll activates every owned cell with all six faces linked.
func (op *Operator) LinkAll() {
	g := op.Grid
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				op.SetCell(i, j, k, true, 0x3f)
			}
		}
	}
}

func (op *Operator) stencil(idx int, x []float64) (sum float64, n int) {
	var (
		g    = op.Grid
		link = op.Link[idx]
	)
	for d := 0; d < 6; d++ {
		if link&(1<<uint(d)) == 0 {
			continue
		}
		s := g.Stride(d / 2)
		if d%2 == 0 {
			s = -s
		}
		sum += x[idx+s]
		n++
	}
	return
}

// relax updates one cell and returns its contributions to the norms.
func (op *Operator) relax(idx int, x, b []float64, lambda, omega float64) (dp2, p2, r2 float64) {
	sum, n := op.stencil(idx, x)
	diag := float64(n) + lambda
	if diag == 0 {
		return
	}
	old := x[idx]
	r := sum - diag*old - b[idx]
	dp := omega * ((sum-b[idx])/diag - old)
	x[idx] = old + dp
	return dp * dp, x[idx] * x[idx], r * r
}

// Apply writes the left hand side of every active owned cell into out.
func (op *Operator) Apply(x, out []float64, lambda float64) {
	g := op.Grid
	utils.ParallelK(op.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !op.Active[idx] {
						continue
					}
					sum, n := op.stencil(idx, x)
					out[idx] = sum - (float64(n)+lambda)*x[idx]
				}
			}
		}
	})
}

// Residual returns the local sum of squared residuals.
func (op *Operator) Residual(x, b []float64, lambda float64) float64 {
	var (
		g     = op.Grid
		plane = make([]float64, g.Size[2])
	)
	utils.ParallelK(op.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var acc float64
			for j := 1; j <= g.Size[1]; j++ {
				for i := 1; i <= g.Size[0]; i++ {
					idx := g.Idx(i, j, k)
					if !op.Active[idx] {
						continue
					}
					sum, n := op.stencil(idx, x)
					r := sum - (float64(n)+lambda)*x[idx] - b[idx]
					acc += r * r
				}
			}
			plane[k-1] = acc
		}
	})
	return floats.Sum(plane)
}

// Poisson couples an operator with its iteration control and the rank
// collaborator that refreshes halos and reduces the norms.
type Poisson struct {
	Op   *Operator
	Ctl  *ItrCtl
	Comm partitions.Communicator
}

// NewPoisson checks the solver kind of ic.
func NewPoisson(op *Operator, ic *ItrCtl, comm partitions.Communicator) (*Poisson, error) {
	switch ic.Solver {
	case config.SOR, config.SOR2SMA:
	default:
		return nil, fmt.Errorf("%w: unknown linear solver %d", config.ErrConfig, int(ic.Solver))
	}
	return &Poisson{Op: op, Ctl: ic, Comm: comm}, nil
}

// Sweep advances x in place by one relaxation sweep and returns the local
// sums of the squared increment, solution and residual. The halo of x is
// exchanged after each colour.
func (ps *Poisson) Sweep(x, b utils.ScalarField, lambda float64) (Norms, error) {
	switch ps.Ctl.Solver {
	case config.SOR:
		n := ps.sweepSOR(x, b, lambda)
		return n, ps.Comm.ExchangeScalar(x)
	case config.SOR2SMA:
		var n Norms
		for color := 0; color < 2; color++ {
			c := ps.sweepColor(x, b, lambda, color)
			n.DP2 += c.DP2
			n.P2 += c.P2
			n.R2 += c.R2
			if err := ps.Comm.ExchangeScalar(x); err != nil {
				return n, err
			}
		}
		return n, nil
	}
	return Norms{}, fmt.Errorf("%w: unknown linear solver %d", config.ErrConfig, int(ps.Ctl.Solver))
}

// sweepSOR is the lexicographic point SOR, sequential by construction.
func (ps *Poisson) sweepSOR(x, b []float64, lambda float64) (n Norms) {
	var (
		op = ps.Op
		g  = op.Grid
	)
	for k := 1; k <= g.Size[2]; k++ {
		for j := 1; j <= g.Size[1]; j++ {
			for i := 1; i <= g.Size[0]; i++ {
				idx := g.Idx(i, j, k)
				if !op.Active[idx] {
					continue
				}
				dp2, p2, r2 := op.relax(idx, x, b, lambda, ps.Ctl.Omega)
				n.DP2 += dp2
				n.P2 += p2
				n.R2 += r2
			}
		}
	}
	return
}

// sweepColor relaxes the cells whose global index sum has the given parity.
// Cells of one colour only read the other colour, so planes run in parallel.
func (ps *Poisson) sweepColor(x, b []float64, lambda float64, color int) Norms {
	var (
		op    = ps.Op
		g     = op.Grid
		h     = op.Head
		sums  = make([]Norms, g.Size[2])
		omega = ps.Ctl.Omega
	)
	utils.ParallelK(op.pm, func(kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var acc Norms
			for j := 1; j <= g.Size[1]; j++ {
				start := 1 + (h[0]+1+h[1]+j+h[2]+k+color)%2
				for i := start; i <= g.Size[0]; i += 2 {
					idx := g.Idx(i, j, k)
					if !op.Active[idx] {
						continue
					}
					dp2, p2, r2 := op.relax(idx, x, b, lambda, omega)
					acc.DP2 += dp2
					acc.P2 += p2
					acc.R2 += r2
				}
			}
			sums[k-1] = acc
		}
	})
	var n Norms
	for _, s := range sums {
		n.DP2 += s.DP2
		n.P2 += s.P2
		n.R2 += s.R2
	}
	return n
}

// Reduce sums local norms over all ranks.
func (ps *Poisson) Reduce(local Norms) (Norms, error) {
	out := make([]float64, 3)
	if err := ps.Comm.AllReduceSum([]float64{local.DP2, local.P2, local.R2}, out); err != nil {
		return Norms{}, err
	}
	return Norms{DP2: out[0], P2: out[1], R2: out[2]}, nil
}

// Iterate runs one sweep, reduces its norms, records the norm selected by
// the control and counts the iteration.
func (ps *Poisson) Iterate(x, b utils.ScalarField, lambda float64) error {
	local, err := ps.Sweep(x, b, lambda)
	if err != nil {
		return err
	}
	global, err := ps.Reduce(local)
	if err != nil {
		return err
	}
	ps.Ctl.record(global)
	ps.Ctl.LoopCount++
	return nil
}

// InitialResidual stores the global residual of the current x in Ctl.R0.
func (ps *Poisson) InitialResidual(x, b utils.ScalarField, lambda float64) error {
	r2, err := partitions.AllReduceScalar(ps.Comm, ps.Op.Residual(x, b, lambda))
	if err != nil {
		return err
	}
	ps.Ctl.R0 = math.Sqrt(r2)
	return nil
}

// Solve iterates until convergence or ItrMax sweeps.
func (ps *Poisson) Solve(x, b utils.ScalarField, lambda float64) error {
	ps.Ctl.LoopCount = 0
	if ps.Ctl.NormType == config.ResRelR0 {
		if err := ps.InitialResidual(x, b, lambda); err != nil {
			return err
		}
	}
	for ps.Ctl.LoopCount < ps.Ctl.ItrMax {
		if err := ps.Iterate(x, b, lambda); err != nil {
			return err
		}
		if ps.Ctl.Converged() {
			break
		}
	}
	return nil
}
