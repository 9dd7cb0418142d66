// Package userproducer implements the unprivileged guest-side half of
// the transport (spec.md §4.1): a process-local staging buffer that
// batches command records, periodic escape-driven submission, and the
// wait_fence fast path. It is grounded on fuse/bufferpool.go's
// fixed-size buffer discipline (one reusable buffer, reset between
// uses rather than reallocated) and on fuse/mountstate.go's
// guarded-shared-state-plus-counters pattern for the Stats() surface.
package userproducer

import (
	"errors"
	"sync"
	"time"

	"github.com/templarsco/pvgpu/escape"
	"github.com/templarsco/pvgpu/fence"
	"github.com/templarsco/pvgpu/wire"
)

// DefaultStagingSize is the staging buffer's minimum capacity (§9
// "staging buffer ≥256KiB").
const DefaultStagingSize = 256 << 10

// ErrBufferFull is returned by Stage when a record does not fit even
// after a flush (§4.1).
var ErrBufferFull = errors.New("userproducer: record does not fit after flush")

// Stats accumulates the diagnostic counters of §4.1's supplemented
// introspection surface, grounded on fuse.Server.DebugData/LatencyMap.
type Stats struct {
	Flushes          uint64
	BytesStaged      uint64
	BytesSubmitted   uint64
	FenceWaits       uint64
	FenceWaitTimeout uint64
}

// Producer is the user-mode driver's staging/submission state. It
// holds direct write access to the shared heap segment -- the whole
// point of a shared-memory transport is that bulk payload bytes move
// without crossing the escape boundary -- but every control operation
// (allocate, free, submit, wait) goes through gw.
type Producer struct {
	gw      escape.Gateway
	fences  *fence.Tracker
	heap    []byte // the shared heap segment
	heapOff uint32 // heap segment's global offset (ctrl.HeapOffset)

	mu      sync.Mutex
	staging []byte
	used    int
	pending uint64 // most recently staged FENCE value, 0 if none pending

	disconnectMu sync.Mutex
	disconnected wire.ErrorKind // Success if still connected

	stats Stats
}

// New builds a Producer. heap must be the same backing slice the
// kernel agent allocates from (shmregion.Region.Heap()); ctrl is the
// control region the kernel agent and host consumer also share.
func New(gw escape.Gateway, ctrl *wire.ControlRegion, heap []byte) *Producer {
	return &Producer{
		gw:      gw,
		fences:  fence.NewTracker(ctrl),
		heap:    heap,
		heapOff: ctrl.HeapOffset,
		staging: make([]byte, DefaultStagingSize),
	}
}

// Stats returns a snapshot of the diagnostic counters.
func (p *Producer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Producer) lastError() wire.ErrorKind {
	p.disconnectMu.Lock()
	defer p.disconnectMu.Unlock()
	return p.disconnected
}

func (p *Producer) latch(kind wire.ErrorKind) {
	if !kind.Fatal() {
		return
	}
	p.disconnectMu.Lock()
	if p.disconnected == wire.Success {
		p.disconnected = kind
	}
	p.disconnectMu.Unlock()
}

// Stage appends a command record to the staging buffer, triggering a
// flush if it doesn't currently fit, and failing with ErrBufferFull if
// it still doesn't fit after that flush (§4.1).
func Stage[T any](p *Producer, typ wire.CommandType, resourceID, flags uint32, payload T) error {
	if kind := p.lastError(); kind != wire.Success {
		return kind
	}
	size := wire.RecordSize[T]()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.used+size > len(p.staging) {
		if err := p.flushLocked(); err != nil {
			return err
		}
	}
	if size > len(p.staging) {
		return ErrBufferFull
	}

	wire.EncodeCommand(p.staging[p.used:], typ, resourceID, flags, payload)
	p.used += size
	p.stats.BytesStaged += uint64(size)
	if typ == wire.CmdFence {
		if f, ok := any(payload).(wire.Fence); ok {
			p.pending = f.Value
		}
	}
	return nil
}

// Flush submits the staging buffer via the escape gateway, blocking
// only inside the kernel agent's ring-space wait, then resets the
// buffer for reuse (§4.1).
func (p *Producer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Producer) flushLocked() error {
	if p.used == 0 {
		return nil
	}
	if kind := p.lastError(); kind != wire.Success {
		return kind
	}

	alloc := escape.AllocHeap{Size: uint32(p.used), Alignment: wire.CommandAlign}
	if err := p.gw.AllocHeap(&alloc); err != nil {
		return err
	}
	if alloc.Result() != wire.Success {
		p.latch(alloc.Result())
		return alloc.Result()
	}

	copy(p.heap[alloc.Offset-p.heapOff:], p.staging[:p.used])

	submit := escape.SubmitCommands{HeapOffset: alloc.Offset, Size: uint32(p.used), Fence: p.pending}
	submitErr := p.gw.SubmitCommands(&submit)

	// SubmitCommands copies the record into the ring; the staging block
	// has no referents left either way and must go back to the pool.
	free := escape.FreeHeap{Offset: alloc.Offset, Size: alloc.AllocatedSize}
	if err := p.gw.FreeHeap(&free); err != nil {
		return err
	}
	if free.Result() != wire.Success {
		p.latch(free.Result())
		return free.Result()
	}

	if submitErr != nil {
		return submitErr
	}
	if submit.Result() != wire.Success {
		p.latch(submit.Result())
		return submit.Result()
	}

	if p.pending != 0 {
		p.fences.RecordRequest(p.pending)
		p.pending = 0
	}

	p.stats.Flushes++
	p.stats.BytesSubmitted += uint64(p.used)
	p.used = 0
	return nil
}

// HeapAlloc is a thin wrapper over the ALLOC_HEAP escape for bulk
// payloads staged commands reference by offset (§4.1, §4.5).
func (p *Producer) HeapAlloc(size, alignment uint32) (offset, allocatedSize uint32, err error) {
	if kind := p.lastError(); kind != wire.Success {
		return 0, 0, kind
	}
	m := escape.AllocHeap{Size: size, Alignment: alignment}
	if err := p.gw.AllocHeap(&m); err != nil {
		return 0, 0, err
	}
	if m.Result() != wire.Success {
		p.latch(m.Result())
		return 0, 0, m.Result()
	}
	return m.Offset, m.AllocatedSize, nil
}

// HeapBytes returns the writable slice of shared heap memory backing
// a prior HeapAlloc's offset/size, for copying bulk payload in before
// citing the offset in a staged command.
func (p *Producer) HeapBytes(offset, size uint32) []byte {
	rel := offset - p.heapOff
	return p.heap[rel : rel+size]
}

// HeapFree is a thin wrapper over the FREE_HEAP escape (§4.1, §4.5).
func (p *Producer) HeapFree(offset, size uint32) error {
	if kind := p.lastError(); kind != wire.Success {
		return kind
	}
	m := escape.FreeHeap{Offset: offset, Size: size}
	if err := p.gw.FreeHeap(&m); err != nil {
		return err
	}
	if m.Result() != wire.Success {
		p.latch(m.Result())
		return m.Result()
	}
	return nil
}

// Dispense mints the next fence value from the local monotonic counter
// (§3 "Fence value").
func (p *Producer) Dispense() uint64 {
	return p.fences.Dispense()
}

// WaitFence checks host_fence_completed directly first (fast path);
// if not yet satisfied, it escalates to the escape gateway's blocking
// wait (§4.1, §4.4).
func (p *Producer) WaitFence(value uint64, timeout time.Duration) wire.ErrorKind {
	if p.fences.Completed() >= value {
		return wire.Success
	}
	if kind := p.lastError(); kind != wire.Success {
		return kind
	}

	p.mu.Lock()
	p.stats.FenceWaits++
	p.mu.Unlock()

	m := escape.WaitFence{FenceValue: value, TimeoutMS: uint32(timeout.Milliseconds())}
	if err := p.gw.WaitFence(&m); err != nil {
		return wire.ErrInternal
	}
	kind := m.Result()
	if kind == wire.ErrTimeout {
		p.mu.Lock()
		p.stats.FenceWaitTimeout++
		p.mu.Unlock()
	}
	p.latch(kind)
	return kind
}
