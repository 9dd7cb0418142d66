// Package shmregion maps and carves up the PVGPU shared memory region:
// a single contiguous byte range split into the control region, the
// command ring, and the resource heap (spec.md §3). It is grounded on
// vhostuser/deviceregion.go's mmap+madvise of a guest memory region,
// generalized from "map a region the driver already described" to
// "create and describe the region", since PVGPU's host consumer (not
// a separate guest driver) is the side that creates the mapping at
// device attach (spec.md §3 "Lifecycle").
package shmregion

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/templarsco/pvgpu/wire"
)

// DefaultSize is the spec's default shared region size (§3).
const DefaultSize = 256 << 20

// DefaultRingSize is the spec's default ring size (§3).
const DefaultRingSize = 16 << 20

// MinSize is the smallest region New accepts: a control region plus
// 64 KiB for the ring plus 64 KiB for the heap.
const MinSize = wire.ControlSize + 64<<10 + 64<<10

// Region is a mapped shared-memory region with its three segments.
type Region struct {
	data []byte
}

// New creates an anonymous, shared mapping of size bytes and
// initializes its control region with ringSize bytes given to the
// ring (the remainder becomes the heap), mirroring
// vhostuser/deviceregion.go's Mmap+Madvise sequence but against an
// anonymous mapping rather than a guest-supplied fd, since in this
// Go module both trust-boundary halves can live in one address space
// (see escape/inproc) or be wired over escape/rpc to separate
// processes sharing a memfd via Open.
func New(size int, ringSize uint32) (*Region, error) {
	if size < MinSize {
		return nil, fmt.Errorf("shmregion: size %d below minimum %d", size, MinSize)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("shmregion: mmap: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		// Best effort, same as the teacher: core-dump hygiene, not correctness.
		_ = err
	}
	r := &Region{data: data}
	if err := r.initControl(ringSize); err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return r, nil
}

// Open maps an existing file descriptor (e.g. a memfd shared between
// processes) of the given size without reinitializing its control
// region -- the attaching side reads whatever the creator already
// wrote, per §3's "Layout fields are written once" invariant.
func Open(fd int, size int) (*Region, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmregion: mmap fd %d: %w", fd, err)
	}
	r := &Region{data: data}
	if r.Control().Magic != wire.Magic {
		unix.Munmap(data)
		return nil, fmt.Errorf("shmregion: magic mismatch: got 0x%x, want 0x%x", r.Control().Magic, wire.Magic)
	}
	return r, nil
}

func (r *Region) initControl(ringSize uint32) error {
	if ringSize == 0 || ringSize&(ringSize-1) != 0 {
		return fmt.Errorf("shmregion: ring size %d must be a nonzero power of two", ringSize)
	}
	ringOffset := uint32(wire.ControlSize)
	heapOffset := ringOffset + ringSize
	if int(heapOffset) >= len(r.data) {
		return fmt.Errorf("shmregion: ring size %d leaves no room for heap in region of %d bytes", ringSize, len(r.data))
	}
	heapSize := uint32(len(r.data)) - heapOffset

	c := r.Control()
	*c = wire.ControlRegion{}
	c.Magic = wire.Magic
	c.VersionPacked = wire.CurrentVersion
	c.RingOffset = ringOffset
	c.RingSize = ringSize
	c.HeapOffset = heapOffset
	c.HeapSize = heapSize
	return nil
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// Bytes returns the entire mapped region.
func (r *Region) Bytes() []byte { return r.data }

// BaseAddress returns the mapping's address as seen by this process,
// for GET_SHMEM_INFO's "user-visible base address" field (§4.5). It is
// only meaningful to a caller that shares this process's address
// space (escape/inproc); escape/rpc callers map the region themselves
// via Open and ignore this field.
func (r *Region) BaseAddress() uint64 {
	if len(r.data) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&r.data[0])))
}

// Control returns a pointer to the control region overlaying the start
// of the mapping.
func (r *Region) Control() *wire.ControlRegion {
	return (*wire.ControlRegion)(unsafe.Pointer(&r.data[0]))
}

// Ring returns the ring segment.
func (r *Region) Ring() []byte {
	c := r.Control()
	return r.data[c.RingOffset : c.RingOffset+c.RingSize]
}

// Heap returns the heap segment.
func (r *Region) Heap() []byte {
	c := r.Control()
	return r.data[c.HeapOffset : c.HeapOffset+c.HeapSize]
}

// Reset reinitializes cursors, fences, and status to their startup
// values, leaving magic/version/layout untouched (§9 "Reset register").
// Heap bitmap reset is the caller's responsibility (kernelagent owns
// both the heap and the decision documented in DESIGN.md).
func (r *Region) Reset() {
	c := r.Control()
	c.Producer = 0
	c.Consumer = 0
	c.GuestFenceRequest = 0
	c.HostFenceCompleted = 0
	c.Status = 0
	c.ErrorCode = 0
	c.ErrorData = 0
}
