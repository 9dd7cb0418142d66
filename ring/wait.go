package ring

import (
	"runtime"
	"time"
)

// hybrid wait tuning from spec.md §4.2: spin for the first ~100
// iterations (sub-microsecond contention), yield to the scheduler for
// ~500 iterations, then sleep in 1ms ticks. Grounded on the teacher's
// own bounded-retry idiom in vhostuser's WAIT_FENCE handling and
// fuse.Server's readRequest/loop blocking-then-retry structure,
// generalized into a single reusable policy used by both the ring's
// full/empty wait and fence.WaitFence's blocking path.
const (
	spinIterations  = 100
	yieldIterations = 500
	sleepInterval   = time.Millisecond
)

// Stats accumulates wait-policy counters for diagnostics (§4.1/§4.2
// "Stats()", grounded on fuse.Server.DebugData's counter surface).
type Stats struct {
	Spins  uint64
	Yields uint64
	Sleeps uint64
}

// Wait repeatedly calls done until it returns true, escalating from
// spin to yield to sleep. progress reports a monotonically
// non-decreasing marker (e.g. the peer's cursor); whenever it moves,
// the escalation counter resets, per §4.2's "reset the counter after
// each forward progress" -- a reader that's slowly draining the ring
// should keep the caller near the cheap spin/yield tiers instead of
// falling into 1ms sleeps just because the wait has run long in wall
// time. Returns false if cancel fires first. Exported so fence.WaitFence
// can reuse the identical escalation policy instead of duplicating it
// (spec.md §4.4 groups the ring's full/empty wait and wait_fence's
// blocking path under one "hybrid wait" concept).
func Wait(done func() bool, progress func() uint64, cancel <-chan struct{}, stats *Stats) bool {
	iter := 0
	last := progress()
	for {
		if done() {
			return true
		}
		select {
		case <-cancel:
			return false
		default:
		}

		if cur := progress(); cur != last {
			last = cur
			iter = 0
		}

		switch {
		case iter < spinIterations:
			if stats != nil {
				stats.Spins++
			}
		case iter < spinIterations+yieldIterations:
			runtime.Gosched()
			if stats != nil {
				stats.Yields++
			}
		default:
			time.Sleep(sleepInterval)
			if stats != nil {
				stats.Sleeps++
			}
		}
		iter++
	}
}
