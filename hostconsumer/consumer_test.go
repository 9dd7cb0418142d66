package hostconsumer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/templarsco/pvgpu/escape/inproc"
	"github.com/templarsco/pvgpu/hostconsumer/nullrenderer"
	"github.com/templarsco/pvgpu/kernelagent"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/userproducer"
	"github.com/templarsco/pvgpu/wire"
)

// countingRenderer wraps nullrenderer.Renderer and counts Draw and
// Present calls, for assertions that don't care about per-command
// payloads.
type countingRenderer struct {
	*nullrenderer.Renderer
	draws    atomic.Uint64
	presents atomic.Uint64
}

func newCountingRenderer() *countingRenderer {
	return &countingRenderer{Renderer: nullrenderer.New(false)}
}

func (r *countingRenderer) Draw(kind wire.CommandType, payload []byte) wire.ErrorKind {
	r.draws.Add(1)
	return r.Renderer.Draw(kind, payload)
}

func (r *countingRenderer) Present(p wire.Present) wire.ErrorKind {
	r.presents.Add(1)
	return r.Renderer.Present(p)
}

type harness struct {
	region   *shmregion.Region
	agent    *kernelagent.Agent
	producer *userproducer.Producer
	consumer *Consumer
	renderer *countingRenderer
}

func newHarness(t *testing.T, ringSize uint32) *harness {
	t.Helper()
	size := int(wire.ControlSize) + int(ringSize) + 64<<10
	if size < shmregion.MinSize {
		size = shmregion.MinSize
	}
	region, err := shmregion.New(size, ringSize)
	if err != nil {
		t.Fatalf("shmregion.New: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	agent, err := kernelagent.New(region, kernelagent.Caps{MaxTextureSize: 16384})
	if err != nil {
		t.Fatalf("kernelagent.New: %v", err)
	}
	gw := inproc.New(agent)
	producer := userproducer.New(gw, region.Control(), region.Heap())
	renderer := newCountingRenderer()
	consumer := New(region, agent.Doorbell(), renderer)

	return &harness{region: region, agent: agent, producer: producer, consumer: consumer, renderer: renderer}
}

func (h *harness) run(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.consumer.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop after cancel")
		}
	}
}

// TestCleanInitReachesRunning is §8 scenario 1.
func TestCleanInitReachesRunning(t *testing.T) {
	h := newHarness(t, 64<<10)
	stop := h.run(t)
	defer stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.consumer.State() == StateRunning {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("consumer state = %v, want RUNNING", h.consumer.State())
}

// TestDrawThenFencePublishesCompletion is §8 scenario 2 end to end:
// the producer stages DRAW+FENCE, the consumer executes DRAW against
// the renderer and publishes the fence, and the producer's WaitFence
// observes completion.
func TestDrawThenFencePublishesCompletion(t *testing.T) {
	h := newHarness(t, 64<<10)
	stop := h.run(t)
	defer stop()

	fenceVal := h.producer.Dispense()
	if err := userproducer.Stage(h.producer, wire.CmdDraw, 1, 0, wire.Draw{VertexCount: 3}); err != nil {
		t.Fatalf("Stage draw: %v", err)
	}
	if err := userproducer.Stage(h.producer, wire.CmdFence, 0, 0, wire.Fence{Value: fenceVal}); err != nil {
		t.Fatalf("Stage fence: %v", err)
	}
	if err := h.producer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := h.producer.WaitFence(fenceVal, 2*time.Second); got != wire.Success {
		t.Fatalf("WaitFence = %v, want SUCCESS", got)
	}
	if h.renderer.draws.Load() != 1 {
		t.Fatalf("draws = %d, want 1", h.renderer.draws.Load())
	}
}

// TestRingWrapDrainsAllRecords is §8 scenario 3: enough small batches
// to wrap a small ring at least once, verifying every draw still
// reaches the renderer exactly once (the draw count is checked, not
// the order).
func TestRingWrapDrainsAllRecords(t *testing.T) {
	h := newHarness(t, 4096) // small ring forces several wraps
	stop := h.run(t)
	defer stop()

	const batches = 200
	var lastFence uint64
	for i := 0; i < batches; i++ {
		lastFence = h.producer.Dispense()
		if err := userproducer.Stage(h.producer, wire.CmdDraw, uint32(i%7+1), 0, wire.Draw{VertexCount: uint32(i)}); err != nil {
			t.Fatalf("Stage draw %d: %v", i, err)
		}
		if err := userproducer.Stage(h.producer, wire.CmdFence, 0, 0, wire.Fence{Value: lastFence}); err != nil {
			t.Fatalf("Stage fence %d: %v", i, err)
		}
		if err := h.producer.Flush(); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	if got := h.producer.WaitFence(lastFence, 5*time.Second); got != wire.Success {
		t.Fatalf("WaitFence = %v, want SUCCESS", got)
	}
	if h.renderer.draws.Load() != batches {
		t.Fatalf("draws = %d, want %d", h.renderer.draws.Load(), batches)
	}
}

// TestUnknownResourceContinuesWithoutStoppingDevice exercises the
// supplemented resource-table validation: a MAP_RESOURCE against an
// id that was never created fails RESOURCE_NOT_FOUND but leaves the
// device RUNNING so later commands still execute (§7 "continue on
// per-command error").
func TestUnknownResourceContinuesWithoutStoppingDevice(t *testing.T) {
	h := newHarness(t, 64<<10)
	stop := h.run(t)
	defer stop()

	if err := userproducer.Stage(h.producer, wire.CmdMapResource, 999, 0, wire.MapResource{}); err != nil {
		t.Fatalf("Stage map: %v", err)
	}
	fenceVal := h.producer.Dispense()
	if err := userproducer.Stage(h.producer, wire.CmdDraw, 1, 0, wire.Draw{VertexCount: 1}); err != nil {
		t.Fatalf("Stage draw: %v", err)
	}
	if err := userproducer.Stage(h.producer, wire.CmdFence, 0, 0, wire.Fence{Value: fenceVal}); err != nil {
		t.Fatalf("Stage fence: %v", err)
	}
	if err := h.producer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := h.producer.WaitFence(fenceVal, 2*time.Second); got != wire.Success {
		t.Fatalf("WaitFence = %v, want SUCCESS (device should not have stopped)", got)
	}
	if h.consumer.State() != StateRunning {
		t.Fatalf("state = %v, want RUNNING", h.consumer.State())
	}
	if h.consumer.Stats().CommandErrors == 0 {
		t.Fatal("expected CommandErrors to be recorded for the unknown resource")
	}
}

// TestConcurrentProducersSerializeThroughRing is §8 scenario 6: many
// goroutines submit through the same Producer/Agent pair concurrently;
// every command must still reach the renderer exactly once.
func TestConcurrentProducersSerializeThroughRing(t *testing.T) {
	h := newHarness(t, 64<<10)
	stop := h.run(t)
	defer stop()

	const goroutines = 16
	const perGoroutine = 20
	var wg sync.WaitGroup
	fences := make([]uint64, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			var last uint64
			for i := 0; i < perGoroutine; i++ {
				last = h.producer.Dispense()
				if err := userproducer.Stage(h.producer, wire.CmdDraw, uint32(g+1), 0, wire.Draw{VertexCount: uint32(i)}); err != nil {
					t.Errorf("goroutine %d Stage: %v", g, err)
					return
				}
				if err := userproducer.Stage(h.producer, wire.CmdFence, 0, 0, wire.Fence{Value: last}); err != nil {
					t.Errorf("goroutine %d Stage fence: %v", g, err)
					return
				}
				if err := h.producer.Flush(); err != nil {
					t.Errorf("goroutine %d Flush: %v", g, err)
					return
				}
			}
			fences[g] = last
		}(g)
	}
	wg.Wait()

	for g, f := range fences {
		if got := h.producer.WaitFence(f, 5*time.Second); got != wire.Success {
			t.Fatalf("goroutine %d WaitFence = %v, want SUCCESS", g, got)
		}
	}
	if got := h.renderer.draws.Load(); got != uint64(goroutines*perGoroutine) {
		t.Fatalf("draws = %d, want %d", got, goroutines*perGoroutine)
	}
}
