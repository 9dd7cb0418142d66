package kernelagent

import (
	"testing"
	"time"

	"github.com/templarsco/pvgpu/escape"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/wire"
)

func newTestAgent(t *testing.T) (*Agent, *shmregion.Region) {
	t.Helper()
	region, err := shmregion.New(shmregion.MinSize, 64<<10)
	if err != nil {
		t.Fatalf("shmregion.New: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	a, err := New(region, Caps{MaxTextureSize: 16384, MaxRenderTargets: 8})
	if err != nil {
		t.Fatalf("kernelagent.New: %v", err)
	}
	return a, region
}

func TestGetShmemInfo(t *testing.T) {
	a, region := newTestAgent(t)
	var m escape.GetShmemInfo
	if err := a.GetShmemInfo(&m); err != nil {
		t.Fatalf("GetShmemInfo: %v", err)
	}
	if m.Result() != wire.Success {
		t.Fatalf("Status = %v", m.Result())
	}
	if m.RingSize != 64<<10 {
		t.Fatalf("RingSize = %d, want %d", m.RingSize, 64<<10)
	}
	if m.BaseAddress != region.BaseAddress() {
		t.Fatalf("BaseAddress mismatch")
	}
}

func TestAllocFreeHeapRoundTrip(t *testing.T) {
	a, _ := newTestAgent(t)
	alloc := escape.AllocHeap{Size: 256, Alignment: 1}
	if err := a.AllocHeap(&alloc); err != nil {
		t.Fatalf("AllocHeap: %v", err)
	}
	if alloc.Result() != wire.Success {
		t.Fatalf("AllocHeap status = %v", alloc.Result())
	}
	free := escape.FreeHeap{Offset: alloc.Offset, Size: alloc.AllocatedSize}
	if err := a.FreeHeap(&free); err != nil {
		t.Fatalf("FreeHeap: %v", err)
	}
	if free.Result() != wire.Success {
		t.Fatalf("FreeHeap status = %v", free.Result())
	}
}

func TestFreeHeapDoubleFreeReportsInvalidParameter(t *testing.T) {
	a, _ := newTestAgent(t)
	alloc := escape.AllocHeap{Size: 256, Alignment: 1}
	if err := a.AllocHeap(&alloc); err != nil {
		t.Fatalf("AllocHeap: %v", err)
	}
	free := escape.FreeHeap{Offset: alloc.Offset, Size: alloc.AllocatedSize}
	if err := a.FreeHeap(&free); err != nil || free.Result() != wire.Success {
		t.Fatalf("first FreeHeap failed: err=%v status=%v", err, free.Result())
	}
	if err := a.FreeHeap(&free); err != nil {
		t.Fatalf("FreeHeap: %v", err)
	}
	if free.Result() != wire.ErrInvalidParameter {
		t.Fatalf("double free status = %v, want INVALID_PARAMETER", free.Result())
	}
}

// TestSingleCommandRoundTrip is §8 scenario 2: a DRAW then FENCE(1)
// submitted as one batch, executed by hand here (no hostconsumer yet)
// to exercise SubmitCommands + WaitFence together.
func TestSingleCommandRoundTrip(t *testing.T) {
	a, region := newTestAgent(t)

	alloc := escape.AllocHeap{Size: 64, Alignment: 16}
	if err := a.AllocHeap(&alloc); err != nil || alloc.Result() != wire.Success {
		t.Fatalf("AllocHeap: err=%v status=%v", err, alloc.Result())
	}

	batch := region.Heap()[alloc.Offset-a.ctrl.HeapOffset:]
	n := len(wire.EncodeCommand(batch, wire.CmdDraw, 1, 0, wire.Draw{VertexCount: 3}))
	n += len(wire.EncodeCommand(batch[n:], wire.CmdFence, 0, 0, wire.Fence{Value: 1}))

	submit := escape.SubmitCommands{HeapOffset: alloc.Offset, Size: uint32(n), Fence: 1}
	if err := a.SubmitCommands(&submit); err != nil || submit.Result() != wire.Success {
		t.Fatalf("SubmitCommands: err=%v status=%v", err, submit.Result())
	}
	if submit.Producer != uint64(n) {
		t.Fatalf("Producer = %d, want %d", submit.Producer, n)
	}

	select {
	case <-a.Doorbell():
	default:
		t.Fatal("doorbell was not rung by SubmitCommands")
	}

	// Simulate the host consumer executing the FENCE command.
	a.Fences().Publish(1)

	wf := escape.WaitFence{FenceValue: 1, TimeoutMS: 1000}
	if err := a.WaitFence(&wf); err != nil {
		t.Fatalf("WaitFence: %v", err)
	}
	if wf.Result() != wire.Success {
		t.Fatalf("WaitFence status = %v", wf.Result())
	}
}

func TestOperationsRejectedAfterDeviceLost(t *testing.T) {
	a, _ := newTestAgent(t)
	a.ctrl.Status = wire.StatusDeviceLost

	alloc := escape.AllocHeap{Size: 64, Alignment: 1}
	if err := a.AllocHeap(&alloc); err != nil {
		t.Fatalf("AllocHeap: %v", err)
	}
	if alloc.Result() != wire.ErrDeviceLost {
		t.Fatalf("AllocHeap after DEVICE_LOST = %v, want DEVICE_LOST", alloc.Result())
	}

	submit := escape.SubmitCommands{HeapOffset: a.ctrl.HeapOffset, Size: 16}
	if err := a.SubmitCommands(&submit); err != nil {
		t.Fatalf("SubmitCommands: %v", err)
	}
	if submit.Result() != wire.ErrDeviceLost {
		t.Fatalf("SubmitCommands after DEVICE_LOST = %v, want DEVICE_LOST", submit.Result())
	}
}

func TestSetDisplayModeValidatesNonzero(t *testing.T) {
	a, _ := newTestAgent(t)
	m := escape.SetDisplayMode{Width: 0, Height: 1080, RefreshRate: 60}
	if err := a.SetDisplayMode(&m); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	if m.Result() != wire.ErrInvalidParameter {
		t.Fatalf("SetDisplayMode with zero width = %v, want INVALID_PARAMETER", m.Result())
	}

	good := escape.SetDisplayMode{Width: 1920, Height: 1080, RefreshRate: 60}
	if err := a.SetDisplayMode(&good); err != nil || good.Result() != wire.Success {
		t.Fatalf("SetDisplayMode: err=%v status=%v", err, good.Result())
	}
	caps := escape.GetCaps{}
	if err := a.GetCaps(&caps); err != nil {
		t.Fatalf("GetCaps: %v", err)
	}
	if caps.Display.Width != 1920 || caps.Display.Height != 1080 {
		t.Fatalf("GetCaps did not reflect SetDisplayMode: %+v", caps.Display)
	}
}

// TestResetFreesHeapAndRewindsCursors covers §9's reset-register
// decision: outstanding allocations are freed and cursors/fences
// return to zero.
func TestResetFreesHeapAndRewindsCursors(t *testing.T) {
	a, _ := newTestAgent(t)

	alloc := escape.AllocHeap{Size: 256, Alignment: 1}
	if err := a.AllocHeap(&alloc); err != nil || alloc.Result() != wire.Success {
		t.Fatalf("AllocHeap: err=%v status=%v", err, alloc.Result())
	}
	a.ctrl.Producer = 128
	a.ctrl.Consumer = 64
	a.fences.Publish(9)

	if err := a.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if a.ctrl.Producer != 0 || a.ctrl.Consumer != 0 {
		t.Fatalf("Reset left cursors nonzero: producer=%d consumer=%d", a.ctrl.Producer, a.ctrl.Consumer)
	}
	if a.fences.Completed() != 0 {
		t.Fatalf("Reset left host_fence_completed = %d, want 0", a.fences.Completed())
	}
	if a.fences.Dispense() != 1 {
		t.Fatalf("Reset did not rewind the dispense counter")
	}

	// The whole heap should be available again.
	full := escape.AllocHeap{Size: a.ctrl.HeapSize, Alignment: 1}
	if err := a.AllocHeap(&full); err != nil || full.Result() != wire.Success {
		t.Fatalf("AllocHeap(whole heap) after Reset: err=%v status=%v", err, full.Result())
	}
}

func TestWaitFenceBlocksUntilPublished(t *testing.T) {
	a, _ := newTestAgent(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		a.Fences().Publish(3)
	}()
	wf := escape.WaitFence{FenceValue: 3, TimeoutMS: 2000}
	if err := a.WaitFence(&wf); err != nil {
		t.Fatalf("WaitFence: %v", err)
	}
	if wf.Result() != wire.Success {
		t.Fatalf("WaitFence status = %v", wf.Result())
	}
}
