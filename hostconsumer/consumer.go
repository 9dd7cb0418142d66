// Package hostconsumer implements the privileged host-side half of the
// transport (spec.md §4.6): a single goroutine draining the command
// ring in order, dispatching each record into a Renderer, publishing
// fence completions, and tracking the device's lifecycle state.
// Grounded on fuse.MountState's loop/handleRequest drain-and-dispatch
// pair and fuse/opcode.go's opcode->handler table, adapted from FUSE's
// one-goroutine-per-request model to a single consumer goroutine since
// the ring is SPSC (§5).
package hostconsumer

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/templarsco/pvgpu/fence"
	"github.com/templarsco/pvgpu/hostconsumer/restable"
	"github.com/templarsco/pvgpu/ring"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/wire"
)

// Stats accumulates host-side diagnostic counters, grounded on the
// same rationale as userproducer.Stats and ring.Stats.
type Stats struct {
	CommandsExecuted uint64
	CommandErrors    uint64
	FatalErrors      uint64
}

// Consumer is the host consumer's runtime state: the ring reader, the
// fence tracker's host-side half, the resource tables, and the
// Renderer it dispatches into.
type Consumer struct {
	region   *shmregion.Region
	ctrl     *wire.ControlRegion
	reader   *ring.Reader
	fences   *fence.Tracker
	heap     []byte
	heapOff  uint32
	objects  *restable.Table
	renderer Renderer
	doorbell <-chan struct{}

	mu     sync.Mutex
	state  State
	cancel <-chan struct{} // set for the duration of Run, used by blocking handlers

	stats Stats
}

// New builds a Consumer over region, reading from the ring it shares
// with the kernel agent and dispatching into renderer. doorbell is the
// kernel agent's Doorbell() channel.
func New(region *shmregion.Region, doorbell <-chan struct{}, renderer Renderer) *Consumer {
	ctrl := region.Control()
	r := ring.New(region.Ring(), &ctrl.Producer, &ctrl.Consumer)
	return &Consumer{
		region:   region,
		ctrl:     ctrl,
		reader:   ring.NewReader(r, int(ctrl.RingSize)),
		fences:   fence.NewTracker(ctrl),
		heap:     region.Heap(),
		heapOff:  ctrl.HeapOffset,
		objects:  restable.New(),
		renderer: renderer,
		doorbell: doorbell,
		state:    StateInit,
	}
}

// Fences exposes the host-side fence tracker, e.g. for a test harness
// that wants to observe publishes independently of WaitFence.
func (c *Consumer) Fences() *fence.Tracker { return c.fences }

// Objects exposes the resource table, mainly for tests and for
// introspection tooling.
func (c *Consumer) Objects() *restable.Table { return c.objects }

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Stats returns a snapshot of the diagnostic counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		CommandsExecuted: atomic.LoadUint64(&c.stats.CommandsExecuted),
		CommandErrors:    atomic.LoadUint64(&c.stats.CommandErrors),
		FatalErrors:      atomic.LoadUint64(&c.stats.FatalErrors),
	}
}

func (c *Consumer) orStatusBits(bits uint32) {
	for {
		old := atomic.LoadUint32(&c.ctrl.Status)
		if atomic.CompareAndSwapUint32(&c.ctrl.Status, old, old|bits) {
			return
		}
	}
}

func (c *Consumer) clearStatusBits(bits uint32) {
	for {
		old := atomic.LoadUint32(&c.ctrl.Status)
		if atomic.CompareAndSwapUint32(&c.ctrl.Status, old, old&^bits) {
			return
		}
	}
}

// Run attaches the device (INIT -> READY), then drives the doorbell-wait
// and drain goroutines as an errgroup.Group so that ctx cancellation
// (device shutdown) tears both down together (§5). It blocks until ctx
// is canceled or a device-fatal error occurs, at which point it leaves
// the device in STOPPED or LOST and returns the terminating error.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateReady)
	c.orStatusBits(wire.StatusReady)

	g, gctx := errgroup.WithContext(ctx)
	c.mu.Lock()
	c.cancel = gctx.Done()
	c.mu.Unlock()

	work := make(chan struct{}, 1)

	g.Go(func() error { return c.waitLoop(gctx, work) })
	g.Go(func() error { return c.drainLoop(gctx, work) })

	c.setState(StateRunning)
	err := g.Wait()

	c.mu.Lock()
	if c.state != StateLost {
		c.state = StateStopped
	}
	c.mu.Unlock()
	c.orStatusBits(wire.StatusShutdown)
	return err
}

// waitLoop bridges the doorbell channel (§6.4 "writing the doorbell at
// any value wakes the host consumer") to a coalesced work signal the
// drain loop consumes; a full work channel means a drain is already
// pending, so an extra doorbell ring is redundant.
func (c *Consumer) waitLoop(ctx context.Context, work chan<- struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.doorbell:
			select {
			case work <- struct{}{}:
			default:
			}
		}
	}
}

// drainLoop executes one drain pass up front (covering any backlog
// submitted before Run started, or a doorbell ring that raced the
// start of waitLoop) and then on every subsequent work signal.
func (c *Consumer) drainLoop(ctx context.Context, work <-chan struct{}) error {
	if err := c.drainOnce(); err != nil {
		c.markLost()
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-work:
			if err := c.drainOnce(); err != nil {
				c.markLost()
				return err
			}
		}
	}
}

func (c *Consumer) markLost() {
	c.setState(StateLost)
	c.orStatusBits(wire.StatusDeviceLost)
	atomic.AddUint64(&c.stats.FatalErrors, 1)
}

// drainOnce reads and executes every currently-available record,
// stopping (device-fatal) on a ring framing error or a Fatal command
// result, per spec.md §4.2 "Failure" and §7's stop-on-device-fatal
// partition. Per-command errors are recorded and dispatch continues.
func (c *Consumer) drainOnce() error {
	for {
		rec, ok, err := c.reader.Read()
		if err != nil {
			c.reportError(wire.ErrInvalidCommand)
			return err
		}
		if !ok {
			return nil
		}

		hdr := wire.GetHeader(rec)
		kind := c.dispatch(hdr, rec)
		c.reader.Advance(hdr.TotalSize)

		switch {
		case kind == wire.Success:
			atomic.AddUint64(&c.stats.CommandsExecuted, 1)
		case kind.Fatal():
			c.reportError(kind)
			return kind
		default:
			atomic.AddUint64(&c.stats.CommandErrors, 1)
			c.reportError(kind)
		}
	}
}

func (c *Consumer) reportError(kind wire.ErrorKind) {
	atomic.StoreUint32(&c.ctrl.ErrorCode, uint32(kind))
	c.orStatusBits(wire.StatusError)
}

// heapSlice resolves a heap-relative (offset, size) pair the way
// SubmitCommands resolves a batch offset in kernelagent, rejecting
// ranges outside the heap segment (§4.3, §6.2).
func (c *Consumer) heapSlice(offset, size uint32) ([]byte, wire.ErrorKind) {
	if size == 0 {
		return nil, wire.Success
	}
	if offset < c.heapOff {
		return nil, wire.ErrInvalidParameter
	}
	rel := offset - c.heapOff
	if rel > uint32(len(c.heap)) || size > uint32(len(c.heap))-rel {
		return nil, wire.ErrInvalidParameter
	}
	return c.heap[rel : rel+size], wire.Success
}

func (c *Consumer) cancelChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel
}
