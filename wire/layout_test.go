package wire

import (
	"testing"
	"unsafe"
)

// TestControlRegionOffsets pins every field required by §6.1 to its
// exact byte offset, the same guarantee fuse/opcode.go's
// unsafe.Sizeof(raw.XxxIn{}) table gives the FUSE wire structs.
func TestControlRegionOffsets(t *testing.T) {
	var c ControlRegion
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"Magic", unsafe.Offsetof(c.Magic), OffMagic},
		{"VersionPacked", unsafe.Offsetof(c.VersionPacked), OffVersion},
		{"FeatureBits", unsafe.Offsetof(c.FeatureBits), OffFeatureBitmap},
		{"RingOffset", unsafe.Offsetof(c.RingOffset), OffRingOffset},
		{"RingSize", unsafe.Offsetof(c.RingSize), OffRingSize},
		{"HeapOffset", unsafe.Offsetof(c.HeapOffset), OffHeapOffset},
		{"HeapSize", unsafe.Offsetof(c.HeapSize), OffHeapSize},
		{"Producer", unsafe.Offsetof(c.Producer), OffProducer},
		{"Consumer", unsafe.Offsetof(c.Consumer), OffConsumer},
		{"GuestFenceRequest", unsafe.Offsetof(c.GuestFenceRequest), OffGuestFenceReq},
		{"HostFenceCompleted", unsafe.Offsetof(c.HostFenceCompleted), OffHostFenceDone},
		{"Status", unsafe.Offsetof(c.Status), OffStatus},
		{"ErrorCode", unsafe.Offsetof(c.ErrorCode), OffErrorCode},
		{"ErrorData", unsafe.Offsetof(c.ErrorData), OffErrorData},
		{"Display", unsafe.Offsetof(c.Display), OffDisplayGeometry},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s offset = 0x%x, want 0x%x", tc.name, tc.got, tc.want)
		}
	}
	if sz := unsafe.Sizeof(c); sz != ControlSize {
		t.Errorf("ControlRegion size = %d, want %d", sz, ControlSize)
	}
}

func TestCacheLineSeparation(t *testing.T) {
	var c ControlRegion
	offs := []uintptr{
		unsafe.Offsetof(c.Producer),
		unsafe.Offsetof(c.Consumer),
		unsafe.Offsetof(c.GuestFenceRequest),
		unsafe.Offsetof(c.HostFenceCompleted),
	}
	for i, a := range offs {
		for j, b := range offs {
			if i == j {
				continue
			}
			if a/CacheLine == b/CacheLine {
				t.Errorf("offsets 0x%x and 0x%x share a cache line", a, b)
			}
		}
	}
}

func TestVersionPacking(t *testing.T) {
	v := Version(1, 2)
	if VersionMajor(v) != 1 || VersionMinor(v) != 2 {
		t.Fatalf("Version(1,2) round-trip = major %d minor %d", VersionMajor(v), VersionMinor(v))
	}
}
