package escape

import "github.com/templarsco/pvgpu/wire"

// Header is the fixed {escape_code, status} prefix every escape
// message carries (§6.3). Status is a wire.ErrorKind; wire.Success
// means the request completed normally.
type Header struct {
	Code   Code
	Status uint32
}

// Result reads Status as a wire.ErrorKind.
func (h Header) Result() wire.ErrorKind { return wire.ErrorKind(h.Status) }

// GetShmemInfo returns the caller-visible region layout. Called once
// per device at init (§4.5).
type GetShmemInfo struct {
	Header
	BaseAddress   uint64
	ControlOffset uint32
	ControlSize   uint32
	RingOffset    uint32
	RingSize      uint32
	HeapOffset    uint32
	HeapSize      uint32
	FeatureBitmap uint64
}

// AllocHeap is a thin wrapper over the §4.3 bitmap allocator.
type AllocHeap struct {
	Header
	Size          uint32
	Alignment     uint32
	Offset        uint32 // out
	AllocatedSize uint32 // out
}

// FreeHeap is a thin wrapper over the §4.3 free path.
type FreeHeap struct {
	Header
	Offset uint32
	Size   uint32
}

// SubmitCommands copies Size bytes addressed by HeapOffset into the
// ring atomically with respect to other submissions, advances the
// producer, and rings the doorbell (§4.5). Producer is the updated
// producer cursor, returned for diagnostics.
type SubmitCommands struct {
	Header
	HeapOffset uint32
	Size       uint32
	Fence      uint64
	Producer   uint64 // out
}

// RingDoorbell wakes the host consumer without submitting new data, a
// best-effort fallback for a producer that already copied directly
// into the ring (§4.5).
type RingDoorbell struct {
	Header
}

// WaitFence blocks per §4.4 until CompletedFence >= FenceValue,
// TimeoutMS elapses, or the device enters shutdown/loss.
type WaitFence struct {
	Header
	FenceValue     uint64
	TimeoutMS      uint32
	CompletedFence uint64 // out
}

// GetCaps returns adapter limits and current display geometry.
type GetCaps struct {
	Header
	MaxTextureSize     uint32
	MaxRenderTargets   uint32
	MaxVertexStreams   uint32
	MaxConstantBuffers uint32
	Display            wire.DisplayGeometry
	FeatureBitmap      uint64
}

// SetDisplayMode updates the control region's display geometry; all
// three fields must be nonzero (§4.5).
type SetDisplayMode struct {
	Header
	Width       uint32
	Height      uint32
	RefreshRate uint32
}
