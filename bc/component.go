package bc

import (
	"math"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/floats"
)

// Component is a configured region with its run time values.
type Component struct {
	config.Component
	Dir [3]float64 // unit direction

	Elements int     // global fluid cell count of the region
	Velocity float64 // mean velocity along Dir
	Pressure float64 // mean pressure loss
	Value    float64 // mean volume fraction of a fraction component
}

// Components is 1-indexed, slot 0 is unused.
type Components []Component

// NewComponents copies the configured list behind an empty slot 0.
func NewComponents(list []config.Component) Components {
	cs := make(Components, len(list)+1)
	for n, c := range list {
		cs[n+1].Component = c
		d := c.Direction
		if l := floats.Norm(d[:], 2); l > 0 {
			floats.ScaleTo(cs[n+1].Dir[:], 1/l, d[:])
		}
	}
	return cs
}

// NoCompo returns the number of components.
func (cs Components) NoCompo() int { return len(cs) - 1 }

// HasKind reports whether any component is of kind k.
func (cs Components) HasKind(k config.ComponentKind) bool {
	for n := 1; n < len(cs); n++ {
		if cs[n].Kind == k {
			return true
		}
	}
	return false
}

// CompoBuffer is the per-component reduction buffer: 2*(NoCompo+1) values,
// a pair per component, pair 0 unused.
type CompoBuffer []float64

func NewCompoBuffer(noCompo int) CompoBuffer {
	return make(CompoBuffer, 2*(noCompo+1))
}

func (cb CompoBuffer) Add(n int, a, b float64) {
	cb[2*n] += a
	cb[2*n+1] += b
}

func (cb CompoBuffer) Pair(n int) (a, b float64) {
	return cb[2*n], cb[2*n+1]
}

func (cb CompoBuffer) Reset() {
	for i := range cb {
		cb[i] = 0
	}
}

// forRegion visits the owned fluid cells of a component region.
func (b *Boundary) forRegion(cmp *Component, fn func(idx int)) {
	var (
		g      = b.Grid
		lo, hi [3]int
	)
	for a := 0; a < 3; a++ {
		lo[a] = max(cmp.Lo[a]-b.Head[a], 1)
		hi[a] = min(cmp.Hi[a]-b.Head[a], g.Size[a])
		if lo[a] > hi[a] {
			return
		}
	}
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				if idx := g.Idx(i, j, k); b.Fluid[idx] {
					fn(idx)
				}
			}
		}
	}
}

// RegionSums accumulates the fluid cell count and the volume fraction sum of
// every component. The reduced buffer goes to SetRegionSums.
func (b *Boundary) RegionSums(vf []float64) CompoBuffer {
	buf := NewCompoBuffer(b.Compo.NoCompo())
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		b.forRegion(&b.Compo[n], func(idx int) {
			buf.Add(n, 1, vf[idx])
		})
	}
	return buf
}

// SetRegionSums stores the global element counts and fraction values.
func (b *Boundary) SetRegionSums(global CompoBuffer) {
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cnt, sum := global.Pair(n)
		cmp := &b.Compo[n]
		cmp.Elements = int(cnt)
		if cnt > 0 && cmp.Kind == config.CompoFraction {
			cmp.Value = sum / cnt
		}
	}
}

// loss is the pressure loss acceleration -c|u|u along the direction.
func loss(cmp *Component, v utils.VectorField, idx int) (un float64, f [3]float64) {
	un = v[0][idx]*cmp.Dir[0] + v[1][idx]*cmp.Dir[1] + v[2][idx]*cmp.Dir[2]
	a := -cmp.Coefficient * math.Abs(un) * un
	for c := 0; c < 3; c++ {
		f[c] = a * cmp.Dir[c]
	}
	return
}

// ModPvecForcing turns the pseudo-velocity of forcing regions into the
// component direction.
func (b *Boundary) ModPvecForcing(vc utils.VectorField) (flop float64) {
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoForcing {
			continue
		}
		b.forRegion(cmp, func(idx int) {
			un := vc[0][idx]*cmp.Dir[0] + vc[1][idx]*cmp.Dir[1] + vc[2][idx]*cmp.Dir[2]
			for c := 0; c < 3; c++ {
				vc[c][idx] = un * cmp.Dir[c]
			}
			flop += 8
		})
	}
	return
}

// ModPsrcForcing adds coef*dt times the divergence of the pressure loss of
// v to the iteration source sq.
func (b *Boundary) ModPsrcForcing(sq utils.ScalarField, v utils.VectorField, coef, dt float64) (flop float64) {
	g := b.Grid
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoForcing {
			continue
		}
		inside := func(idx int) bool {
			i, j, k := g.Coords(idx)
			for a, c := range [3]int{i, j, k} {
				gc := c + b.Head[a]
				if gc < cmp.Lo[a] || gc > cmp.Hi[a] {
					return false
				}
			}
			return b.Fluid[idx]
		}
		b.forRegion(cmp, func(idx int) {
			_, fc := loss(cmp, v, idx)
			var div float64
			for d := 0; d < 6; d++ {
				a := d / 2
				s := g.Stride(a)
				if d%2 == 0 {
					s = -s
				}
				var fn float64
				if inside(idx + s) {
					_, f := loss(cmp, v, idx+s)
					fn = f[a]
				}
				div += faceSign(d) * 0.5 * (fc[a] + fn)
			}
			sq[idx] += coef * dt * div
			flop += 40
		})
	}
	return
}

// ModVdivForcing applies the pressure loss to the projected velocity of
// forcing regions, adds the matching source to the divergence and
// accumulates the directional velocity and loss sums into buf.
func (b *Boundary) ModVdivForcing(v utils.VectorField, dv, sq utils.ScalarField, dt float64, buf CompoBuffer) (flop float64) {
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoForcing {
			continue
		}
		b.forRegion(cmp, func(idx int) {
			un, f := loss(cmp, v, idx)
			for c := 0; c < 3; c++ {
				v[c][idx] += dt * f[c]
			}
			dv[idx] += sq[idx]
			buf.Add(n, un, cmp.Coefficient*math.Abs(un)*un)
			flop += 16
		})
	}
	return
}

// SetForcing stores the mean velocity and loss of the forcing components
// from a reduced buffer.
func (b *Boundary) SetForcing(global CompoBuffer) {
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoForcing || cmp.Elements == 0 {
			continue
		}
		vs, ps := global.Pair(n)
		cmp.Velocity = vs / float64(cmp.Elements)
		cmp.Pressure = ps / float64(cmp.Elements)
	}
}

// SetOutflow stores the mean velocity of the outflow components from a
// reduced buffer.
func (b *Boundary) SetOutflow(global CompoBuffer) {
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoOutflow {
			continue
		}
		if vs, cnt := global.Pair(n); cnt > 0 {
			cmp.Velocity = vs / cnt
		}
	}
}

// InnerVBCPeriodic copies the last plane of every periodic component region
// onto the plane upstream of it, along the dominant axis of its direction.
// The source plane is gathered over all ranks with a sum, so the two planes
// may lie on different sub-domains. Every rank must call it.
func (b *Boundary) InnerVBCPeriodic(comm partitions.Communicator, v utils.VectorField) (flop float64, err error) {
	g := b.Grid
	for n := 1; n <= b.Compo.NoCompo(); n++ {
		cmp := &b.Compo[n]
		if cmp.Kind != config.CompoPeriodic {
			continue
		}
		axis := 0
		for a := 1; a < 3; a++ {
			if math.Abs(cmp.Dir[a]) > math.Abs(cmp.Dir[axis]) {
				axis = a
			}
		}
		src, dst := cmp.Hi[axis], cmp.Lo[axis]-1
		if cmp.Dir[axis] < 0 {
			src, dst = cmp.Lo[axis], cmp.Hi[axis]+1
		}
		src -= b.Head[axis]
		dst -= b.Head[axis]

		// plane of the region across axis in global coordinates, 3 components
		var (
			ext, lo, hi [3]int
			offset      = func(c [3]int) int {
				m, stride := 0, 1
				for a := 0; a < 3; a++ {
					if a == axis {
						continue
					}
					m += (c[a] + b.Head[a] - cmp.Lo[a]) * stride
					stride *= ext[a]
				}
				return m
			}
		)
		size := 1
		for a := 0; a < 3; a++ {
			ext[a] = 1
			if a != axis {
				ext[a] = cmp.Hi[a] - cmp.Lo[a] + 1
			}
			size *= ext[a]
			lo[a] = max(cmp.Lo[a]-b.Head[a], 1)
			hi[a] = min(cmp.Hi[a]-b.Head[a], g.Size[a])
		}
		lo[axis], hi[axis] = 1, 1
		send := make([]float64, 3*size)
		if src >= 1 && src <= g.Size[axis] {
			b.forPlane(axis, src, lo, hi, func(c [3]int, idx int) {
				m := offset(c)
				for l := 0; l < 3; l++ {
					send[l*size+m] = v[l][idx]
				}
			})
		}
		recv := make([]float64, len(send))
		if err = comm.AllReduceSum(send, recv); err != nil {
			return
		}
		if dst < 1-g.Guide || dst > g.Size[axis]+g.Guide {
			continue
		}
		b.forPlane(axis, dst, lo, hi, func(c [3]int, idx int) {
			m := offset(c)
			for l := 0; l < 3; l++ {
				v[l][idx] = recv[l*size+m]
			}
			flop++
		})
	}
	return
}

// forPlane visits the cells of the local box lo..hi with the axis
// coordinate replaced by a.
func (b *Boundary) forPlane(axis, a int, lo, hi [3]int, fn func(c [3]int, idx int)) {
	g := b.Grid
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				c := [3]int{i, j, k}
				c[axis] = a
				fn(c, g.Idx(c[0], c[1], c[2]))
			}
		}
	}
}
