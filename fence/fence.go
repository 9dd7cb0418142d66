// Package fence implements the fence/doorbell/interrupt synchronization
// protocol of spec.md §4.4: a monotonic completion counter shared
// across the trust boundary, a waiter fast path, and cancellation that
// wakes every present and future waiter on shutdown or device loss. It
// is grounded on vhostuser/device.go's kickMe/queueNotify doorbell pair
// and reuses ring.Wait for the blocking path, since both are the same
// "hybrid wait checking shared state on each iteration" idiom.
package fence

import (
	"sync/atomic"
	"time"

	"github.com/templarsco/pvgpu/ring"
	"github.com/templarsco/pvgpu/wire"
)

// Tracker wires the three control-region fields fence synchronization
// touches: the informational guest_fence_request, the authoritative
// host_fence_completed, and status (read for SHUTDOWN/DEVICE_LOST,
// never written here -- ownership of status belongs to the host
// consumer / kernel agent per spec.md §3).
type Tracker struct {
	guestRequest *uint64
	hostDone     *uint64
	status       *uint32

	counter uint64 // local monotonic dispenser, starts at 1 (guest side only)
}

// NewTracker builds a Tracker over a live control region. The kernel
// agent, the host consumer and the user producer each build their own
// Tracker over the same ControlRegion: the fence and status fields are
// shared through it, while the dispense counter belongs to the
// individual Tracker.
func NewTracker(ctrl *wire.ControlRegion) *Tracker {
	return &Tracker{
		guestRequest: &ctrl.GuestFenceRequest,
		hostDone:     &ctrl.HostFenceCompleted,
		status:       &ctrl.Status,
		counter:      0,
	}
}

// Dispense mints the next fence value from the guest-local monotonic
// counter, starting at 1 (spec.md §3 "Fence value").
func (t *Tracker) Dispense() uint64 {
	return atomic.AddUint64(&t.counter, 1)
}

// RecordRequest writes v into guest_fence_request after the producer
// has submitted the FENCE command carrying it into the ring. This
// field is purely informational (§4.4 step 3) -- ordering is carried
// by the ring itself, not by this store.
func (t *Tracker) RecordRequest(v uint64) {
	atomic.StoreUint64(t.guestRequest, v)
}

// GuestRequested returns the current guest_fence_request value. The
// host consumer's ring-carried WAIT_FENCE command (distinct from the
// WAIT_FENCE escape) polls this to block on a value a cross-queue
// producer is expected to request, per wire.WaitFence's doc comment.
func (t *Tracker) GuestRequested() uint64 {
	return atomic.LoadUint64(t.guestRequest)
}

// Completed returns the current host_fence_completed value (acquire
// load, paired with the host's release store in Publish).
func (t *Tracker) Completed() uint64 {
	return atomic.LoadUint64(t.hostDone)
}

// Publish is called by the host consumer after executing a FENCE
// command: it stores v into host_fence_completed with release
// semantics (§4.4 step 4, §9 barrier requirement). The "raise an
// interrupt" half of §4.4 is represented by the caller subsequently
// waking any goroutines blocked in WaitFence, which happens simply by
// virtue of those waiters polling this field -- there is no separate
// doorbell object to ring in-process.
func (t *Tracker) Publish(v uint64) {
	atomic.StoreUint64(t.hostDone, v)
}

// Reset rewinds the local dispense counter so the next Dispense
// returns 1 again, matching a device reset reinitializing
// guest_fence_request/host_fence_completed to zero (§9 "Reset
// register"). The shared-memory fields themselves are the caller's
// responsibility (shmregion.Region.Reset), since Tracker only holds
// pointers into them.
func (t *Tracker) Reset() {
	atomic.StoreUint64(&t.counter, 0)
}

func (t *Tracker) statusBits() uint32 {
	return atomic.LoadUint32(t.status)
}

// WaitFence blocks until host_fence_completed reaches target, timeout
// elapses, or the device enters shutdown or loss, per spec.md §4.4's
// waiter fast path and bounded sleep-and-retry escalation (the same
// policy ring.Wait implements for the ring's full/empty wait).
//
// A zero timeout is poll-only: this module's documented resolution of
// the "wait_fence(v, 0)" open question (§9) -- it checks once and
// returns ErrTimeout rather than blocking forever.
func (t *Tracker) WaitFence(target uint64, timeout time.Duration) wire.ErrorKind {
	if t.Completed() >= target {
		return wire.Success
	}
	if st := t.statusBits(); st&wire.StatusDeviceLost != 0 {
		return wire.ErrDeviceLost
	} else if st&wire.StatusShutdown != 0 {
		return wire.ErrBackendDisconnected
	}
	if timeout <= 0 {
		return wire.ErrTimeout
	}

	cancel := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(cancel) })
	defer timer.Stop()

	var stats ring.Stats
	ring.Wait(func() bool {
		if t.statusBits()&(wire.StatusDeviceLost|wire.StatusShutdown) != 0 {
			return true
		}
		return t.Completed() >= target
	}, t.Completed, cancel, &stats)

	st := t.statusBits()
	switch {
	case st&wire.StatusDeviceLost != 0:
		return wire.ErrDeviceLost
	case st&wire.StatusShutdown != 0:
		return wire.ErrBackendDisconnected
	case t.Completed() >= target:
		return wire.Success
	default:
		return wire.ErrTimeout
	}
}
