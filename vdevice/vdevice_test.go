package vdevice

import (
	"testing"
	"time"

	"github.com/templarsco/pvgpu/escape"
	"github.com/templarsco/pvgpu/kernelagent"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/wire"
)

func newTestConfig(t *testing.T) (*Config, *kernelagent.Agent, *shmregion.Region) {
	t.Helper()
	region, err := shmregion.New(shmregion.MinSize, 64<<10)
	if err != nil {
		t.Fatalf("shmregion.New: %v", err)
	}
	t.Cleanup(func() { region.Close() })

	agent, err := kernelagent.New(region, kernelagent.Caps{MaxTextureSize: 16384})
	if err != nil {
		t.Fatalf("kernelagent.New: %v", err)
	}
	return New(DefaultIdentity(), agent, region), agent, region
}

func TestIdentityAndSizesReadThroughControlRegion(t *testing.T) {
	cfg, _, region := newTestConfig(t)
	if cfg.Identity != DefaultIdentity() {
		t.Fatalf("Identity = %+v, want %+v", cfg.Identity, DefaultIdentity())
	}
	if cfg.RingSize() != 64<<10 {
		t.Fatalf("RingSize = %d, want %d", cfg.RingSize(), 64<<10)
	}
	if cfg.ShmemSize() != uint64(len(region.Bytes())) {
		t.Fatalf("ShmemSize = %d, want %d", cfg.ShmemSize(), len(region.Bytes()))
	}
	if cfg.Version() != wire.CurrentVersion {
		t.Fatalf("Version = %#x, want %#x", cfg.Version(), wire.CurrentVersion)
	}
}

func TestWriteDoorbellWakesAgent(t *testing.T) {
	cfg, agent, _ := newTestConfig(t)
	if kind := cfg.WriteDoorbell(1); kind != wire.Success {
		t.Fatalf("WriteDoorbell = %v, want SUCCESS", kind)
	}
	select {
	case <-agent.Doorbell():
	case <-time.After(time.Second):
		t.Fatal("doorbell channel never signaled")
	}
}

func TestWriteResetFreesHeapAndClearsStatus(t *testing.T) {
	cfg, agent, region := newTestConfig(t)

	alloc := escape.AllocHeap{Size: 4096, Alignment: 1}
	if err := agent.AllocHeap(&alloc); err != nil || alloc.Result() != wire.Success {
		t.Fatalf("AllocHeap: err=%v status=%v", err, alloc.Result())
	}
	region.Control().Status = wire.StatusError | wire.StatusReady

	if err := cfg.WriteReset(0); err != nil {
		t.Fatalf("WriteReset: %v", err)
	}
	if got := cfg.Status(); got != 0 {
		t.Fatalf("Status after reset = %#x, want 0", got)
	}

	// The freed range should be fully allocatable again.
	alloc2 := escape.AllocHeap{Size: region.Control().HeapSize, Alignment: 1}
	if err := agent.AllocHeap(&alloc2); err != nil || alloc2.Result() != wire.Success {
		t.Fatalf("AllocHeap after reset: err=%v status=%v", err, alloc2.Result())
	}
}

func TestInterruptMaskSuppressesStatusBits(t *testing.T) {
	cfg, _, region := newTestConfig(t)
	region.Control().Status = wire.StatusReady | wire.StatusError

	cfg.SetInterruptMask(wire.StatusError)
	if got := cfg.InterruptStatus(); got != wire.StatusReady {
		t.Fatalf("InterruptStatus = %#x, want %#x", got, wire.StatusReady)
	}

	cfg.SetInterruptMask(0)
	if got := cfg.InterruptStatus(); got != wire.StatusReady|wire.StatusError {
		t.Fatalf("InterruptStatus = %#x, want %#x", got, wire.StatusReady|wire.StatusError)
	}
}
