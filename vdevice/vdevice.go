// Package vdevice models the virtual GPU device's identity and
// configuration-register surface (spec.md §6.4): a vendor/device/
// revision/class identity tuple and a small config-register region
// exposing version, feature bitmap, status, a write-only doorbell, an
// interrupt status/mask pair, the shared-memory and ring sizes, and a
// write-only reset register. It is grounded on vhostuser.Device, which
// plays the identical role of "the thing a guest driver probes and
// pokes to find and control the backing device", generalized from
// vhostuser's per-virtqueue enable/kick surface to PVGPU's single
// device-wide register file.
package vdevice

import (
	"sync"
	"sync/atomic"

	"github.com/templarsco/pvgpu/escape"
	"github.com/templarsco/pvgpu/kernelagent"
	"github.com/templarsco/pvgpu/shmregion"
	"github.com/templarsco/pvgpu/wire"
)

// Identity is the vendor/device/revision/class tuple a guest probes at
// attach (§6.4). Values are PVGPU's own, not borrowed from any real
// vendor's ID space.
type Identity struct {
	VendorID  uint16
	DeviceID  uint16
	Revision  uint8
	ClassCode uint32 // PCI-style class/subclass/prog-if, display class
}

// DefaultIdentity is the identity this module's implementations report.
func DefaultIdentity() Identity {
	return Identity{
		VendorID:  0x5047, // "PG"
		DeviceID:  0x5001,
		Revision:  1,
		ClassCode: 0x030200, // display controller, 3D controller subclass
	}
}

// ConfigSize is the fixed size of the config-register region (§6.4).
const ConfigSize = 4096

// Config is the config-register surface in front of a kernelagent.Agent
// and the shmregion.Region it owns. It does not duplicate any field the
// control region already carries (version, feature bitmap, status,
// sizes) -- those are read straight through -- but owns the two
// registers with no home in wire.ControlRegion: the interrupt mask (a
// guest-local register, never shared with the host) and the doorbell/
// reset write paths, which translate a raw register write into the
// corresponding kernelagent call the way a real device's doorbell poke
// would trap into the hypervisor.
type Config struct {
	Identity Identity

	agent  *kernelagent.Agent
	region *shmregion.Region
	ctrl   *wire.ControlRegion

	mu       sync.Mutex
	intrMask uint32
}

// New builds a Config over an already-wired Agent/Region pair.
func New(identity Identity, agent *kernelagent.Agent, region *shmregion.Region) *Config {
	return &Config{
		Identity: identity,
		agent:    agent,
		region:   region,
		ctrl:     region.Control(),
		intrMask: 0xFFFFFFFF, // interrupts masked until the driver unmasks them
	}
}

// Version reads the protocol version field (§6.1 "major<<16|minor").
func (c *Config) Version() uint32 { return atomic.LoadUint32(&c.ctrl.VersionPacked) }

// FeatureBitmap reads the negotiated feature bitmap.
func (c *Config) FeatureBitmap() uint64 { return atomic.LoadUint64(&c.ctrl.FeatureBits) }

// Status reads the current status bits (wire.StatusBits).
func (c *Config) Status() uint32 { return atomic.LoadUint32(&c.ctrl.Status) }

// ShmemSize reports the size of the entire mapped shared region, the
// value a guest reads back after attach to validate its own mapping.
func (c *Config) ShmemSize() uint64 { return uint64(len(c.region.Bytes())) }

// RingSize reads the configured ring size.
func (c *Config) RingSize() uint32 { return atomic.LoadUint32(&c.ctrl.RingSize) }

// WriteDoorbell rings the device doorbell. Per §6.4 "writing the
// doorbell at any value wakes the host consumer", the written value
// carries no meaning; this is the same wake path RING_DOORBELL's
// escape call uses, since both represent the identical hardware
// action -- a raw register poke versus a routed escape call are just
// two transports reaching the same kernelagent.Agent.
func (c *Config) WriteDoorbell(_ uint32) wire.ErrorKind {
	m := escape.RingDoorbell{}
	if err := c.agent.RingDoorbell(&m); err != nil {
		return wire.ErrInternal
	}
	return m.Result()
}

// WriteReset re-initializes the control region, frees all outstanding
// heap allocations, and clears status/error -- the §9 Open Question
// ("should outstanding heap allocations be freed or leaked") resolved
// in DESIGN.md as "freed", delegated entirely to
// kernelagent.Agent.Reset so there is exactly one reset implementation.
func (c *Config) WriteReset(_ uint32) error {
	return c.agent.Reset()
}

// SetInterruptMask sets which status bits are suppressed from
// InterruptStatus. It is guest-local state: nothing in wire.ControlRegion
// represents it, since the host consumer never needs to know which
// interrupts the guest currently cares about.
func (c *Config) SetInterruptMask(mask uint32) {
	c.mu.Lock()
	c.intrMask = mask
	c.mu.Unlock()
}

// InterruptMask returns the currently configured mask.
func (c *Config) InterruptMask() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intrMask
}

// InterruptStatus reports which status bits are both asserted and
// unmasked -- the guest-visible IRQ cause register a real device would
// expose instead of the raw wire.ControlRegion.Status word, since a
// masked bit should never surface as a pending interrupt.
func (c *Config) InterruptStatus() uint32 {
	c.mu.Lock()
	mask := c.intrMask
	c.mu.Unlock()
	return c.Status() &^ mask
}
