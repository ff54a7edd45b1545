package partitions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrCollective is returned by every pending and later collective once any
// rank of a group has failed.
var ErrCollective = errors.New("collective operation aborted")

// Communicator is the per-rank view of the halo exchange and reduction
// collaborator. All ranks must call the collectives in the same order.
type Communicator interface {
	Rank() int
	Size() int
	// ExchangeScalar fills the halo of f from the neighbouring partitions and
	// wraps periodic faces that connect a partition to itself.
	ExchangeScalar(f utils.ScalarField) error
	ExchangeVector(v utils.VectorField) error
	// AllReduceSum leaves in recv the element-wise sum of send over all ranks.
	// The summation order is fixed by rank, so results do not depend on
	// scheduling.
	AllReduceSum(send, recv []float64) error
}

// AllReduceMax returns the maximum of v over all ranks using a sum over a
// buffer with one slot per rank.
func AllReduceMax(c Communicator, v float64) (float64, error) {
	slots := make([]float64, c.Size())
	slots[c.Rank()] = v
	out := make([]float64, len(slots))
	if err := c.AllReduceSum(slots, out); err != nil {
		return 0, err
	}
	m := out[0]
	for _, s := range out[1:] {
		if s > m {
			m = s
		}
	}
	return m, nil
}

// AllReduceScalar sums one value over all ranks.
func AllReduceScalar(c Communicator, v float64) (float64, error) {
	out := []float64{0}
	if err := c.AllReduceSum([]float64{v}, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

// Serial is the single-rank communicator. Its exchange only wraps periodic
// faces that connect the partition to itself.
type Serial struct {
	Buffer *PartitionBuffer // nil when no periodic face is present
}

// NewSerial returns a single-rank communicator.
func NewSerial(buf *PartitionBuffer) *Serial {
	return &Serial{Buffer: buf}
}

func (s *Serial) Rank() int { return 0 }
func (s *Serial) Size() int { return 1 }

func (s *Serial) ExchangeScalar(f utils.ScalarField) error {
	if s.Buffer != nil {
		wrapSelf(s.Buffer, 0, []float64(f))
	}
	return nil
}

func (s *Serial) ExchangeVector(v utils.VectorField) error {
	if s.Buffer != nil {
		for l := 0; l < 3; l++ {
			wrapSelf(s.Buffer, 0, v[l])
		}
	}
	return nil
}

func (s *Serial) AllReduceSum(send, recv []float64) error {
	if len(send) != len(recv) {
		return fmt.Errorf("%w: send length %d, recv length %d", ErrCollective, len(send), len(recv))
	}
	copy(recv, send)
	return nil
}

func wrapSelf(buf *PartitionBuffer, rank int, field []float64) {
	for face := 0; face < utils.NumFaces; face++ {
		if buf.RemotePartitions[face].PartitionID == rank {
			buf.Connector.Wrap(face, field)
		}
	}
}

type link struct{ from, to, face int }

// Group runs one goroutine per rank inside the process and connects them with
// channels. It stands in for a message passing runtime with the same
// collective semantics.
type Group struct {
	Buffers []*PartitionBuffer

	links map[link]chan []float64
	done  chan struct{}

	abortOnce sync.Once
	mu        sync.Mutex
	cond      *sync.Cond
	err       error

	// reduction state, guarded by mu
	parts      [][]float64
	arrived    int
	generation int
	result     []float64
}

// NewGroup connects the partitions described by buffers.
func NewGroup(buffers []*PartitionBuffer) (*Group, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("empty partition group")
	}
	g := &Group{
		Buffers: buffers,
		links:   make(map[link]chan []float64),
		done:    make(chan struct{}),
		parts:   make([][]float64, len(buffers)),
	}
	g.cond = sync.NewCond(&g.mu)
	for rank, buf := range buffers {
		for face, rp := range buf.RemotePartitions {
			if rp.PartitionID == NoNeighbor || rp.PartitionID == rank {
				continue
			}
			if rp.PartitionID >= len(buffers) {
				return nil, fmt.Errorf("partition %d: neighbour %d outside group of %d",
					rank, rp.PartitionID, len(buffers))
			}
			g.links[link{rank, rp.PartitionID, face}] = make(chan []float64, 1)
		}
	}
	return g, nil
}

// Endpoint returns the communicator of one rank.
func (g *Group) Endpoint(rank int) *Endpoint {
	return &Endpoint{group: g, rank: rank}
}

// Abort fails the group: every blocked and later collective returns
// ErrCollective wrapping err.
func (g *Group) Abort(err error) {
	g.abortOnce.Do(func() {
		g.mu.Lock()
		g.err = err
		close(g.done)
		g.cond.Broadcast()
		g.mu.Unlock()
	})
}

func (g *Group) abortErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Errorf("%w: %v", ErrCollective, g.err)
}

// Run executes fn on every rank concurrently and returns the first error.
// A failing rank aborts the group so its peers do not block.
func (g *Group) Run(fn func(ep *Endpoint) error) error {
	var (
		wg    sync.WaitGroup
		errs  = make([]error, len(g.Buffers))
		first error
	)
	for rank := range g.Buffers {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := fn(g.Endpoint(rank)); err != nil {
				errs[rank] = err
				g.Abort(fmt.Errorf("rank %d: %w", rank, err))
			}
		}(rank)
	}
	wg.Wait()
	// prefer the originating failure over the ErrCollective of its peers
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil || (errors.Is(first, ErrCollective) && !errors.Is(err, ErrCollective)) {
			first = err
		}
	}
	return first
}

func (g *Group) send(l link, msg []float64) error {
	select {
	case g.links[l] <- msg:
		return nil
	case <-g.done:
		return g.abortErr()
	}
}

func (g *Group) recv(l link) ([]float64, error) {
	select {
	case msg := <-g.links[l]:
		return msg, nil
	case <-g.done:
		return nil, g.abortErr()
	}
}

// exchange runs the axis ordered halo exchange of ncomp fields of one rank.
func (g *Group) exchange(rank int, fields ...[]float64) error {
	var (
		buf = g.Buffers[rank]
		fc  = buf.Connector
	)
	for axis := 0; axis < 3; axis++ {
		faces := [2]int{2 * axis, 2*axis + 1}
		// sends first, every message is a fresh slice
		for _, face := range faces {
			nb := buf.RemotePartitions[face].PartitionID
			if nb == NoNeighbor {
				continue
			}
			if nb == rank {
				for _, f := range fields {
					fc.Wrap(face, f)
				}
				continue
			}
			n := len(fc.GetPickIndices(face))
			msg := make([]float64, n*len(fields))
			for c, f := range fields {
				fc.Pick(face, f, msg[c*n:(c+1)*n])
			}
			if err := g.send(link{rank, nb, face}, msg); err != nil {
				return err
			}
		}
		for _, face := range faces {
			nb := buf.RemotePartitions[face].PartitionID
			if nb == NoNeighbor || nb == rank {
				continue
			}
			msg, err := g.recv(link{nb, rank, utils.OppositeFace(face)})
			if err != nil {
				return err
			}
			n := len(fc.GetPlaceIndices(face))
			if len(msg) != n*len(fields) {
				g.Abort(fmt.Errorf("rank %d: %s received %d values, expected %d",
					rank, utils.FaceName(face), len(msg), n*len(fields)))
				return g.abortErr()
			}
			for c, f := range fields {
				fc.Place(face, f, msg[c*n:(c+1)*n])
			}
		}
	}
	return nil
}

func (g *Group) allReduceSum(rank int, send, recv []float64) error {
	if len(send) != len(recv) {
		err := fmt.Errorf("rank %d: send length %d, recv length %d", rank, len(send), len(recv))
		g.Abort(err)
		return g.abortErr()
	}
	part := make([]float64, len(send))
	copy(part, send)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return fmt.Errorf("%w: %v", ErrCollective, g.err)
	}
	gen := g.generation
	g.parts[rank] = part
	g.arrived++
	if g.arrived == len(g.parts) {
		result, err := sumParts(g.parts)
		if err != nil {
			g.mu.Unlock()
			g.Abort(err)
			g.mu.Lock()
			return fmt.Errorf("%w: %v", ErrCollective, err)
		}
		g.result = result
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
	}
	for g.generation == gen && g.err == nil {
		g.cond.Wait()
	}
	if g.generation == gen {
		return fmt.Errorf("%w: %v", ErrCollective, g.err)
	}
	copy(recv, g.result)
	return nil
}

// sumParts adds the rank contributions in rank order.
func sumParts(parts [][]float64) ([]float64, error) {
	n := len(parts[0])
	for rank, p := range parts {
		if len(p) != n {
			return nil, fmt.Errorf("rank %d contributed %d values, rank 0 %d", rank, len(p), n)
		}
	}
	if n == 0 {
		return []float64{}, nil
	}
	sum := mat.NewVecDense(n, nil)
	for _, p := range parts {
		sum.AddVec(sum, mat.NewVecDense(n, p))
	}
	return sum.RawVector().Data, nil
}

// Endpoint is the Communicator of one rank of a Group.
type Endpoint struct {
	group *Group
	rank  int
}

func (ep *Endpoint) Rank() int { return ep.rank }
func (ep *Endpoint) Size() int { return len(ep.group.Buffers) }

// Buffer returns the exchange plan of this rank.
func (ep *Endpoint) Buffer() *PartitionBuffer { return ep.group.Buffers[ep.rank] }

func (ep *Endpoint) ExchangeScalar(f utils.ScalarField) error {
	return ep.group.exchange(ep.rank, f)
}

func (ep *Endpoint) ExchangeVector(v utils.VectorField) error {
	return ep.group.exchange(ep.rank, v[0], v[1], v[2])
}

func (ep *Endpoint) AllReduceSum(send, recv []float64) error {
	return ep.group.allReduceSum(ep.rank, send, recv)
}

// Abort fails the whole group from this rank.
func (ep *Endpoint) Abort(err error) {
	ep.group.Abort(fmt.Errorf("rank %d: %w", ep.rank, err))
}
