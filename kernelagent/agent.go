// Package kernelagent implements the privileged guest-side half of the
// transport (spec.md §"Kernel Agent"): it owns the shared memory
// mapping, the heap allocator, the ring writer, and the doorbell
// register, and exposes them to the unprivileged user producer only
// through the escape.Gateway interface. It is grounded on
// vhostuser.Device, which plays the identical role of "owns the
// regions and virtqueues, dispatches privileged requests from an
// unprivileged peer via a Server".
package kernelagent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/templarsco/pvgpu/escape"
	"github.com/templarsco/pvgpu/fence"
	"github.com/templarsco/pvgpu/heap"
	"github.com/templarsco/pvgpu/ring"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/wire"
)

// Caps carries the static adapter limits GET_CAPS reports (§4.5). The
// host consumer's renderer backend is the natural owner of these
// numbers; the kernel agent just relays them.
type Caps struct {
	MaxTextureSize     uint32
	MaxRenderTargets   uint32
	MaxVertexStreams   uint32
	MaxConstantBuffers uint32
}

// Agent is the kernel agent's in-process state: the shared region, the
// ring writer, the heap allocator, the fence tracker, and the
// exclusion locks spec.md §5 requires ("ring lock", "heap lock").
type Agent struct {
	region *shmregion.Region
	ctrl   *wire.ControlRegion
	ring   *ring.Ring
	writer *ring.Writer
	fences *fence.Tracker
	caps   Caps

	ringMu sync.Mutex // serializes SUBMIT_COMMANDS / RING_DOORBELL (§4.2, §5)
	heapMu sync.Mutex // serializes ALLOC_HEAP / FREE_HEAP / reset (§4.3, §5)
	heap   *heap.Allocator

	doorbell chan struct{} // buffered 1: doorbell register (§6.4)
}

// New wires an Agent over region, with caps reported by GET_CAPS.
func New(region *shmregion.Region, caps Caps) (*Agent, error) {
	ctrl := region.Control()
	r := ring.New(region.Ring(), &ctrl.Producer, &ctrl.Consumer)
	h, err := heap.New(ctrl.HeapOffset, ctrl.HeapSize, heap.DefaultBlockSize)
	if err != nil {
		return nil, fmt.Errorf("kernelagent: %w", err)
	}
	return &Agent{
		region:   region,
		ctrl:     ctrl,
		ring:     r,
		writer:   ring.NewWriter(r),
		fences:   fence.NewTracker(ctrl),
		caps:     caps,
		heap:     h,
		doorbell: make(chan struct{}, 1),
	}, nil
}

// Doorbell returns the channel the host consumer selects on to wake
// from an idle wait when the kernel agent rings it (§6.4 "Writing the
// doorbell at any value wakes the host consumer").
func (a *Agent) Doorbell() <-chan struct{} { return a.doorbell }

// Fences exposes the agent's fence tracker. Publish on it stores into
// the same host_fence_completed field the WAIT_FENCE handler reads; the
// host consumer publishes through its own Tracker over that field.
func (a *Agent) Fences() *fence.Tracker { return a.fences }

func (a *Agent) ringDoorbell() {
	select {
	case a.doorbell <- struct{}{}:
	default:
	}
}

func (a *Agent) deviceFatal() (wire.ErrorKind, bool) {
	st := atomic.LoadUint32(&a.ctrl.Status)
	switch {
	case st&wire.StatusDeviceLost != 0:
		return wire.ErrDeviceLost, true
	case st&wire.StatusShutdown != 0:
		return wire.ErrBackendDisconnected, true
	default:
		return wire.Success, false
	}
}

// GetShmemInfo returns the region layout. BaseAddress is only
// meaningful to a caller sharing this process's address space
// (escape/inproc); see shmregion.Region.BaseAddress.
func (a *Agent) GetShmemInfo(m *escape.GetShmemInfo) error {
	m.Status = uint32(wire.Success)
	m.BaseAddress = a.region.BaseAddress()
	m.ControlOffset = 0
	m.ControlSize = wire.ControlSize
	m.RingOffset = a.ctrl.RingOffset
	m.RingSize = a.ctrl.RingSize
	m.HeapOffset = a.ctrl.HeapOffset
	m.HeapSize = a.ctrl.HeapSize
	m.FeatureBitmap = a.ctrl.FeatureBits
	return nil
}

// AllocHeap wraps heap.Allocator.Allocate (§4.3, §4.5).
func (a *Agent) AllocHeap(m *escape.AllocHeap) error {
	if kind, lost := a.deviceFatal(); lost {
		m.Status = uint32(kind)
		return nil
	}
	a.heapMu.Lock()
	defer a.heapMu.Unlock()

	off, size, err := a.heap.Allocate(m.Size, m.Alignment)
	if err != nil {
		m.Status = uint32(wire.ErrHeapExhausted)
		return nil
	}
	m.Status = uint32(wire.Success)
	m.Offset = off
	m.AllocatedSize = size
	return nil
}

// FreeHeap wraps heap.Allocator.Free (§4.3, §4.5).
func (a *Agent) FreeHeap(m *escape.FreeHeap) error {
	if kind, lost := a.deviceFatal(); lost {
		m.Status = uint32(kind)
		return nil
	}
	a.heapMu.Lock()
	defer a.heapMu.Unlock()

	if err := a.heap.Free(m.Offset, m.Size); err != nil {
		m.Status = uint32(wire.ErrInvalidParameter)
		return nil
	}
	m.Status = uint32(wire.Success)
	return nil
}

// SubmitCommands copies the batch the producer staged into the heap at
// HeapOffset/Size into the ring and rings the doorbell (§4.5). Writing
// guest_fence_request is the producer's own responsibility once this
// call returns (§4.4 step 3 attributes that write to the guest side,
// not the kernel agent); see userproducer.Producer.Flush.
func (a *Agent) SubmitCommands(m *escape.SubmitCommands) error {
	if kind, lost := a.deviceFatal(); lost {
		m.Status = uint32(kind)
		return nil
	}
	heapOff := m.HeapOffset - a.ctrl.HeapOffset
	heapLen := uint32(len(a.region.Heap()))
	if m.Size == 0 || heapOff > heapLen || m.Size > heapLen-heapOff {
		m.Status = uint32(wire.ErrInvalidParameter)
		return nil
	}
	rec := a.region.Heap()[heapOff : heapOff+m.Size]

	a.ringMu.Lock()
	err := a.writer.Write(rec, nil)
	a.ringMu.Unlock()
	if err != nil {
		m.Status = uint32(wire.ErrRingFull)
		return nil
	}

	a.ringDoorbell()

	m.Status = uint32(wire.Success)
	m.Producer = a.ring.Producer()
	return nil
}

// RingDoorbell wakes the host consumer without submitting (§4.5
// "best-effort fallback").
func (a *Agent) RingDoorbell(m *escape.RingDoorbell) error {
	if kind, lost := a.deviceFatal(); lost {
		m.Status = uint32(kind)
		return nil
	}
	a.ringDoorbell()
	m.Status = uint32(wire.Success)
	return nil
}

// WaitFence blocks per §4.4 and reports the outcome.
func (a *Agent) WaitFence(m *escape.WaitFence) error {
	kind := a.fences.WaitFence(m.FenceValue, time.Duration(m.TimeoutMS)*time.Millisecond)
	m.Status = uint32(kind)
	m.CompletedFence = a.fences.Completed()
	return nil
}

// GetCaps reports adapter limits and the current display geometry.
func (a *Agent) GetCaps(m *escape.GetCaps) error {
	m.Status = uint32(wire.Success)
	m.MaxTextureSize = a.caps.MaxTextureSize
	m.MaxRenderTargets = a.caps.MaxRenderTargets
	m.MaxVertexStreams = a.caps.MaxVertexStreams
	m.MaxConstantBuffers = a.caps.MaxConstantBuffers
	m.Display = a.ctrl.Display
	m.FeatureBitmap = a.ctrl.FeatureBits
	return nil
}

// SetDisplayMode validates and updates the control region's display
// geometry (§4.5 "validates nonzero").
func (a *Agent) SetDisplayMode(m *escape.SetDisplayMode) error {
	if m.Width == 0 || m.Height == 0 || m.RefreshRate == 0 {
		m.Status = uint32(wire.ErrInvalidParameter)
		return nil
	}
	a.ctrl.Display = wire.DisplayGeometry{Width: m.Width, Height: m.Height, RefreshRate: m.RefreshRate}
	m.Status = uint32(wire.Success)
	return nil
}

// Reset implements the §6.4/§9 reset register: it frees all
// outstanding heap allocations, reinitializes the ring cursors and
// fence counters, and clears status/error -- the Open Question
// decision recorded in DESIGN.md.
func (a *Agent) Reset() error {
	a.ringMu.Lock()
	a.heapMu.Lock()
	defer a.heapMu.Unlock()
	defer a.ringMu.Unlock()

	h, err := heap.New(a.ctrl.HeapOffset, a.ctrl.HeapSize, heap.DefaultBlockSize)
	if err != nil {
		return fmt.Errorf("kernelagent: reset: %w", err)
	}
	a.heap = h
	a.fences.Reset()
	a.region.Reset()
	return nil
}

var _ escape.Gateway = (*Agent)(nil)
