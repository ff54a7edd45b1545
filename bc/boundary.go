// Package bc applies outer face and component conditions to the fields of
// one sub-domain. Every hook returns an estimate of its floating point
// operations for instrumentation.
package bc

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/utils"
)

// FaceType tells the orchestrator how a cell face takes part in the
// divergence and the pressure stencil.
type FaceType uint8

const (
	// Both sides are fluid cells, owned or halo.
	FaceInterior FaceType = iota
	// Fluid against solid: zero flux, Neumann pressure.
	FaceSolid
	// Outer face with a prescribed velocity: flux from the condition,
	// Neumann pressure.
	FaceVelocity
	// Outer outflow face: flux from the ghost velocity, Dirichlet pressure.
	FaceOutflow
)

// Boundary holds the conditions of one sub-domain.
type Boundary struct {
	Grid  *utils.Grid
	Head  [3]int
	Pitch float64
	Outer [6]config.OuterBC
	// IsOuter marks the faces of the sub-domain that lie on the global
	// boundary without a periodic partner.
	IsOuter [6]bool
	// Fluid marks fluid cells over the whole array, halo included.
	Fluid []bool
	Compo Components

	// Monitor holds the mean outward velocity of each outer face, measured
	// at the end of the previous step.
	Monitor [6]float64
}

// NewBoundary checks the fluid mask against the grid and normalises the
// component directions.
func NewBoundary(g *utils.Grid, head [3]int, pitch float64, outer config.Outer, isOuter [6]bool,
	fluid []bool, comps []config.Component) (*Boundary, error) {
	if len(fluid) != g.Volume {
		return nil, fmt.Errorf("fluid mask length %d, grid volume %d", len(fluid), g.Volume)
	}
	b := &Boundary{
		Grid:    g,
		Head:    head,
		Pitch:   pitch,
		IsOuter: isOuter,
		Fluid:   fluid,
		Compo:   NewComponents(comps),
	}
	for face := 0; face < 6; face++ {
		b.Outer[face] = outer.Face(face)
	}
	return b, nil
}

// FaceKind classifies face d of the owned cell (i,j,k).
func (b *Boundary) FaceKind(i, j, k, d int) FaceType {
	var (
		g    = b.Grid
		axis = d / 2
		c    = [3]int{i, j, k}
	)
	if b.IsOuter[d] && ((d%2 == 0 && c[axis] == 1) || (d%2 == 1 && c[axis] == g.Size[axis])) {
		switch b.Outer[d].Kind {
		case config.Outflow:
			return FaceOutflow
		case config.Periodic:
			return FaceInterior
		default:
			return FaceVelocity
		}
	}
	s := g.Stride(axis)
	if d%2 == 0 {
		s = -s
	}
	if !b.Fluid[g.Idx(i, j, k)+s] {
		return FaceSolid
	}
	return FaceInterior
}

// FaceVelocity returns the prescribed velocity on an outer face. Walls
// slide tangentially, symmetry planes carry no normal velocity.
func (b *Boundary) FaceVelocity(face int) (u [3]float64) {
	obc := b.Outer[face]
	switch obc.Kind {
	case config.Wall:
		u = obc.Velocity
		u[face/2] = 0
	case config.SpecifiedVelocity:
		u = obc.Velocity
	}
	return
}

// faceSign is +1 on the plus faces, where the outward normal points along
// the axis.
func faceSign(face int) float64 {
	if face%2 == 1 {
		return 1
	}
	return -1
}

// layer maps a ghost layer l (1..Guide) of an outer face and the interior
// layer it mirrors to their coordinates along the face axis. On an axis
// thinner than the halo the mirror stops at the last owned layer.
func (b *Boundary) layer(face, l int) (ghost, mirror, edge int) {
	n := b.Grid.Size[face/2]
	if face%2 == 0 {
		return 1 - l, min(l, n), 1
	}
	return n + l, max(n+1-l, 1), n
}

// forFace visits the owned transverse cells of an outer face with their
// index along the face axis left to the caller.
func (b *Boundary) forFace(face int, fn func(idx func(a int) int)) {
	var (
		g    = b.Grid
		axis = face / 2
		t1   = (axis + 1) % 3
		t2   = (axis + 2) % 3
	)
	for q := 1; q <= g.Size[t2]; q++ {
		for p := 1; p <= g.Size[t1]; p++ {
			fn(func(a int) int {
				var c [3]int
				c[axis], c[t1], c[t2] = a, p, q
				return g.Idx(c[0], c[1], c[2])
			})
		}
	}
}

// OuterVBCFacePrep fills the velocity ghost layers of the outer faces.
// Velocity faces mirror so the face value equals the prescribed velocity,
// symmetry planes mirror the normal component, outflow faces advect the
// previous ghost value with the monitored outflow speed.
func (b *Boundary) OuterVBCFacePrep(vc, v0 utils.VectorField, dt float64) (flop float64) {
	g := b.Grid
	for face := 0; face < 6; face++ {
		if !b.IsOuter[face] {
			continue
		}
		axis := face / 2
		switch b.Outer[face].Kind {
		case config.Wall, config.SpecifiedVelocity:
			ub := b.FaceVelocity(face)
			b.forFace(face, func(idx func(a int) int) {
				for l := 1; l <= g.Guide; l++ {
					ghost, mirror, _ := b.layer(face, l)
					gi, mi := idx(ghost), idx(mirror)
					for c := 0; c < 3; c++ {
						vc[c][gi] = 2*ub[c] - vc[c][mi]
					}
				}
				flop += 6 * float64(g.Guide)
			})
		case config.Symmetric:
			b.forFace(face, func(idx func(a int) int) {
				for l := 1; l <= g.Guide; l++ {
					ghost, mirror, _ := b.layer(face, l)
					gi, mi := idx(ghost), idx(mirror)
					for c := 0; c < 3; c++ {
						vc[c][gi] = vc[c][mi]
					}
					vc[axis][gi] = -vc[axis][mi]
				}
				flop += float64(g.Guide)
			})
		case config.Outflow:
			r := math.Max(0, math.Min(1, b.Monitor[face]*dt/b.Pitch))
			b.forFace(face, func(idx func(a int) int) {
				g1, _, edge := b.layer(face, 1)
				gi, ei := idx(g1), idx(edge)
				for c := 0; c < 3; c++ {
					vc[c][gi] = v0[c][gi] - r*(v0[c][gi]-v0[c][ei])
				}
				for l := 2; l <= g.Guide; l++ {
					ghost, _, _ := b.layer(face, l)
					for c := 0; c < 3; c++ {
						vc[c][idx(ghost)] = vc[c][gi]
					}
				}
				flop += 9
			})
		}
	}
	return
}

// OuterPBC fills the pressure ghost layers of the outer faces: zero on
// outflow faces, a mirror of the interior elsewhere.
func (b *Boundary) OuterPBC(p utils.ScalarField) (flop float64) {
	g := b.Grid
	for face := 0; face < 6; face++ {
		if !b.IsOuter[face] || b.Outer[face].Kind == config.Periodic {
			continue
		}
		outflow := b.Outer[face].Kind == config.Outflow
		b.forFace(face, func(idx func(a int) int) {
			for l := 1; l <= g.Guide; l++ {
				ghost, mirror, _ := b.layer(face, l)
				if outflow {
					p[idx(ghost)] = 0
				} else {
					p[idx(ghost)] = p[idx(mirror)]
				}
			}
		})
	}
	return
}

// ModPvecFlux removes the viscous flux through outflow faces from the
// pseudo-velocity flux of the adjacent cells.
func (b *Boundary) ModPvecFlux(flux, v0 utils.VectorField, rei float64) (flop float64) {
	cf := rei / (b.Pitch * b.Pitch)
	for face := 0; face < 6; face++ {
		if !b.IsOuter[face] || b.Outer[face].Kind != config.Outflow {
			continue
		}
		b.forFace(face, func(idx func(a int) int) {
			g1, _, edge := b.layer(face, 1)
			gi, ei := idx(g1), idx(edge)
			if !b.Fluid[ei] {
				return
			}
			for c := 0; c < 3; c++ {
				flux[c][ei] -= cf * (v0[c][gi] - v0[c][ei])
			}
			flop += 9
		})
	}
	return
}

// vbcFlux adds coef times the outward flux of every prescribed velocity
// face to the owned fluid cells behind it.
func (b *Boundary) vbcFlux(s utils.ScalarField, coef float64) (flop float64) {
	for face := 0; face < 6; face++ {
		if !b.IsOuter[face] {
			continue
		}
		switch b.Outer[face].Kind {
		case config.Outflow, config.Periodic:
			continue
		}
		un := faceSign(face) * b.FaceVelocity(face)[face/2]
		if un == 0 {
			continue
		}
		b.forFace(face, func(idx func(a int) int) {
			_, _, edge := b.layer(face, 1)
			ei := idx(edge)
			if b.Fluid[ei] {
				s[ei] += coef * un
				flop += 2
			}
		})
	}
	return
}

// ModPsrcVBC adds the prescribed face fluxes to the Poisson source, which
// was assembled from the cell velocities across non velocity faces only.
func (b *Boundary) ModPsrcVBC(ws utils.ScalarField, coef float64) float64 {
	return b.vbcFlux(ws, coef)
}

// ModDivergence adds the prescribed face fluxes to the divergence of the
// projected velocity and accumulates the velocity sum and cell count of
// every outflow component into buf.
func (b *Boundary) ModDivergence(dv utils.ScalarField, v utils.VectorField, coef float64, buf CompoBuffer) (flop float64) {
	flop = b.vbcFlux(dv, coef)
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoOutflow {
			continue
		}
		b.forRegion(cmp, func(idx int) {
			un := v[0][idx]*cmp.Dir[0] + v[1][idx]*cmp.Dir[1] + v[2][idx]*cmp.Dir[2]
			buf.Add(n, un, 1)
			flop += 6
		})
	}
	return
}

// MonitorLength is the length of the DomainMonitor buffer, a (sum, count)
// pair per outer face.
const MonitorLength = 12

// DomainMonitor sums the outward normal velocity of the fluid cells next to
// each outer face. The reduced buffer goes to SetMonitor.
func (b *Boundary) DomainMonitor(v utils.VectorField) (local []float64, flop float64) {
	local = make([]float64, MonitorLength)
	for face := 0; face < 6; face++ {
		if !b.IsOuter[face] {
			continue
		}
		sg := faceSign(face)
		b.forFace(face, func(idx func(a int) int) {
			_, _, edge := b.layer(face, 1)
			ei := idx(edge)
			if b.Fluid[ei] {
				local[2*face] += sg * v[face/2][ei]
				local[2*face+1]++
				flop += 2
			}
		})
	}
	return
}

// SetMonitor stores the mean outward velocity of each face from a reduced
// DomainMonitor buffer.
func (b *Boundary) SetMonitor(global []float64) {
	for face := 0; face < 6; face++ {
		if n := global[2*face+1]; n > 0 {
			b.Monitor[face] = global[2*face] / n
		} else {
			b.Monitor[face] = 0
		}
	}
}
