package solver

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/config"
)

// ItrCtl is the iteration control record of one solve family. It is created
// once, reused every step and updated every iteration.
type ItrCtl struct {
	Solver    config.LinearSolver
	ItrMax    int
	LoopCount int
	NormType  config.NormType
	Eps       float64
	Omega     float64
	NormValue float64

	// Reference magnitudes of the relative norms
	BNorm float64 // L2 of the right hand side
	R0    float64 // initial residual
}

// NewItrCtl builds a control record from a solve family configuration.
func NewItrCtl(it config.Iteration) (*ItrCtl, error) {
	switch it.Solver {
	case config.SOR, config.SOR2SMA:
	default:
		return nil, fmt.Errorf("%w: unknown linear solver %d", config.ErrConfig, int(it.Solver))
	}
	switch it.Norm {
	case config.ResAbs, config.ResRelB, config.ResRelR0, config.ErrRel:
	default:
		return nil, fmt.Errorf("%w: unknown norm type %d", config.ErrConfig, int(it.Norm))
	}
	if it.MaxIteration < 1 {
		return nil, fmt.Errorf("%w: max iteration %d", config.ErrConfig, it.MaxIteration)
	}
	return &ItrCtl{
		Solver:   it.Solver,
		ItrMax:   it.MaxIteration,
		NormType: it.Norm,
		Eps:      it.Tolerance,
		Omega:    it.Omega,
	}, nil
}

// IsResConverged reports convergence of a residual based norm.
func (ic *ItrCtl) IsResConverged() bool {
	switch ic.NormType {
	case config.ResAbs, config.ResRelB, config.ResRelR0:
		return ic.NormValue < ic.Eps
	}
	return false
}

// IsErrConverged reports convergence of the relative increment norm.
func (ic *ItrCtl) IsErrConverged() bool {
	return ic.NormType == config.ErrRel && ic.NormValue < ic.Eps
}

// Converged reports convergence for the configured norm.
func (ic *ItrCtl) Converged() bool {
	return ic.IsResConverged() || ic.IsErrConverged()
}

// Norms are the globally reduced sums of one sweep.
type Norms struct {
	DP2, P2, R2 float64
}

// record stores the norm selected by NormType.
func (ic *ItrCtl) record(n Norms) {
	res := math.Sqrt(n.R2)
	switch ic.NormType {
	case config.ResAbs:
		ic.NormValue = res
	case config.ResRelB:
		ic.NormValue = relative(res, ic.BNorm)
	case config.ResRelR0:
		ic.NormValue = relative(res, ic.R0)
	case config.ErrRel:
		ic.NormValue = relative(math.Sqrt(n.DP2), math.Sqrt(n.P2))
	}
}

func relative(v, ref float64) float64 {
	if ref == 0 {
		return v
	}
	return v / ref
}
