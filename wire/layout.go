// Package wire defines the binary, cross-implementation layout of the
// PVGPU shared memory region: the control region, the command record
// header, and the command payloads. The layout here is
// the source of truth for three independent implementations (virtual
// device, guest kernel driver, host consumer); field offsets are fixed
// by spec and verified at the byte level in layout_test.go, the same
// way the teacher pins FUSE's wire structs in raw/types.go.
package wire

import "unsafe"

// Magic identifies a correctly initialized control region.
const Magic uint32 = 0x50564750

// Version packs major<<16|minor.
func Version(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

func VersionMajor(v uint32) uint16 { return uint16(v >> 16) }
func VersionMinor(v uint32) uint16 { return uint16(v) }

// CurrentVersion is the protocol version this module implements.
var CurrentVersion = Version(1, 0)

// ControlSize is the fixed size of the control region (§6.1).
const ControlSize = 4096

// CacheLine is the padding unit separating hot cursors/fences to avoid
// false sharing (§9 "Cache-line padding").
const CacheLine = 64

// Required byte offsets from the control region base (§6.1). These are
// part of the cross-implementation protocol contract, not merely
// "on separate lines" -- do not reorder ControlRegion's fields without
// updating these and the offset assertions in layout_test.go.
const (
	OffMagic           = 0x00
	OffVersion         = 0x04
	OffFeatureBitmap   = 0x08
	OffRingOffset      = 0x10
	OffRingSize        = 0x14
	OffHeapOffset      = 0x18
	OffHeapSize        = 0x1C
	OffProducer        = 0x20
	OffConsumer        = 0x60
	OffGuestFenceReq   = 0xA0
	OffHostFenceDone   = 0xE0
	OffStatus          = 0x120
	OffErrorCode       = 0x124
	OffErrorData       = 0x128
	OffDisplayGeometry = 0x130
)

// StatusBits (§6.5).
const (
	StatusReady       uint32 = 1 << 0
	StatusError       uint32 = 1 << 1
	StatusDeviceLost  uint32 = 1 << 2
	StatusBackendBusy uint32 = 1 << 3
	StatusResizing    uint32 = 1 << 4
	StatusRecovery    uint32 = 1 << 5
	StatusShutdown    uint32 = 1 << 6
)

// DisplayGeometry is the bidirectional display-mode field (§6.1).
type DisplayGeometry struct {
	Width       uint32
	Height      uint32
	RefreshRate uint32
	_           uint32 // reserved, must be written zero
}

// ControlRegion is the 4096-byte header at the start of the shared
// region. Field tags document the required byte offset; the layout is
// verified against the offsets above in layout_test.go rather than
// relied upon implicitly, because natural Go struct layout is not
// guaranteed to match across compilers (spec.md §9).
type ControlRegion struct {
	Magic         uint32 // 0x00, init
	VersionPacked uint32 // 0x04, init
	FeatureBits   uint64 // 0x08, init

	RingOffset uint32 // 0x10, init
	RingSize   uint32 // 0x14, init
	HeapOffset uint32 // 0x18, init
	HeapSize   uint32 // 0x1C, init

	_ [OffProducer - 0x20]byte // reserved padding to first cache line

	Producer uint64   // 0x20, guest -> host, own cache line
	_        [56]byte // pad to next cache line

	Consumer uint64   // 0x60, host -> guest, own cache line
	_        [56]byte

	GuestFenceRequest uint64 // 0xA0, guest -> host, own cache line
	_                 [56]byte

	HostFenceCompleted uint64 // 0xE0, host -> guest, own cache line
	_                  [56]byte

	_ [OffStatus - 0x120]byte // reserved padding (none at present)

	Status    uint32 // 0x120, host -> guest
	ErrorCode uint32 // 0x124, host -> guest
	ErrorData uint32 // 0x128, host -> guest
	_         uint32 // reserved, must be written zero

	Display DisplayGeometry // 0x130, bidirectional

	_ [ControlSize - OffDisplayGeometry - 16]byte // tail reserved bytes, must be zero
}

// Compile-time assertion that ControlRegion has not drifted from the
// protocol's fixed size: either array bound below is negative (a
// compile error) if the sizes disagree.
var _ [int(unsafe.Sizeof(ControlRegion{})) - ControlSize]byte
var _ [ControlSize - int(unsafe.Sizeof(ControlRegion{}))]byte
