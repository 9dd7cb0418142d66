package wire

// Payload structs for the command categories enumerated in §6.2. Each
// struct is the exact in-memory wire representation that follows a
// Header in the ring; EncodeCommand rounds TotalSize up with AlignUp
// and pads the remainder with zero bytes (§3 "tail padding").
//
// Resource kinds, formats, and bind flags are left as opaque uint32
// codes here -- the concrete D3D11 enumerations are owned by the
// user-mode driver translator this transport sits underneath (out of
// scope per spec.md §1); this package only needs them to round-trip.

// ResourceDesc is the CREATE_RESOURCE payload.
type ResourceDesc struct {
	Kind       uint32 // buffer, texture1d/2d/3d
	Width      uint32
	Height     uint32
	Depth      uint32
	MipLevels  uint32
	ArraySize  uint32
	Format     uint32
	BindFlags  uint32
	Usage      uint32
	InitOffset uint32 // heap offset of initial data, 0 if none
	InitSize   uint32
}

// MapResource is the MAP_RESOURCE payload.
type MapResource struct {
	Access     uint32 // READ, WRITE, READ_WRITE, WRITE_DISCARD
	Subresource uint32
	HeapOffset uint32
	HeapSize   uint32
}

// UpdateResource is the UPDATE_RESOURCE payload: the bytes at
// [HeapOffset, HeapOffset+HeapSize) replace the destination region
// starting at (DstX, DstY, DstZ).
type UpdateResource struct {
	HeapOffset uint32
	HeapSize   uint32
	DstX       uint32
	DstY       uint32
	DstZ       uint32
}

// CopyResource is the COPY_RESOURCE payload; the destination resource
// id is carried in the command Header.
type CopyResource struct {
	SrcResourceID uint32
}

// OpenResource is the OPEN_RESOURCE payload: a semantic-name string
// staged in the heap, used to look up a resource shared by name.
type OpenResource struct {
	NameOffset uint32
	NameSize   uint32
}

// StateDesc is shared by every CREATE_*_STATE / CREATE_INPUT_LAYOUT /
// CREATE_SHADER command: a serialized description blob staged in the
// heap. Stage distinguishes shader stages for CREATE_SHADER and is
// unused (zero) for state objects.
type StateDesc struct {
	Stage      uint32
	HeapOffset uint32
	HeapSize   uint32
}

// ViewDesc is shared by CREATE_RTV/DSV/SRV/UAV: the id of the resource
// the view is created over, plus a serialized view-description blob.
type ViewDesc struct {
	ResourceID uint32
	HeapOffset uint32
	HeapSize   uint32
}

// BindSlot is the payload shape shared by the single-slot SET_*
// commands (shader, sampler, constant buffer, vertex/index buffer,
// input layout, shader resource): bind the object named by ID at Slot.
// A zero ID unbinds the slot (§3 "Resource handle", 0 is reserved).
type BindSlot struct {
	Slot uint32
	ID   uint32
}

const maxRenderTargets = 8

// SetRenderTargets is the SET_RENDER_TARGETS payload.
type SetRenderTargets struct {
	Count          uint32
	DepthStencilID uint32
	IDs            [maxRenderTargets]uint32
}

// SetViewport is the SET_VIEWPORT payload.
type SetViewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

// SetScissor is the SET_SCISSOR payload.
type SetScissor struct {
	Left, Top, Right, Bottom int32
}

// SetBlendState is the SET_BLEND_STATE payload.
type SetBlendState struct {
	ID           uint32
	SampleMask   uint32
	BlendFactor  [4]float32
}

// SetDepthStencilState is the SET_DEPTH_STENCIL_STATE payload.
type SetDepthStencilState struct {
	ID         uint32
	StencilRef uint32
}

// SetPrimitiveTopology is the SET_PRIMITIVE_TOPOLOGY payload.
type SetPrimitiveTopology struct {
	Topology uint32
}

// Draw is the DRAW payload.
type Draw struct {
	VertexCount uint32
	StartVertex uint32
}

// DrawIndexed is the DRAW_INDEXED payload.
type DrawIndexed struct {
	IndexCount uint32
	StartIndex uint32
	BaseVertex int32
}

// DrawInstanced is the DRAW_INSTANCED payload.
type DrawInstanced struct {
	VertexCountPerInstance uint32
	InstanceCount          uint32
	StartVertex            uint32
	StartInstance          uint32
}

// DrawIndexedInstanced is the DRAW_INDEXED_INSTANCED payload.
type DrawIndexedInstanced struct {
	IndexCountPerInstance uint32
	InstanceCount         uint32
	StartIndex            uint32
	BaseVertex            int32
	StartInstance         uint32
}

// Dispatch is the DISPATCH payload.
type Dispatch struct {
	ThreadGroupX uint32
	ThreadGroupY uint32
	ThreadGroupZ uint32
}

// ClearRenderTargetView is the CLEAR_RTV payload; the view id is
// carried in the command Header's ResourceID.
type ClearRenderTargetView struct {
	Color [4]float32
}

// ClearDepthStencilView is the CLEAR_DSV payload.
type ClearDepthStencilView struct {
	Flags   uint32 // bit0 clear depth, bit1 clear stencil
	Depth   float32
	Stencil uint32
}

// Fence is the FENCE payload (§4.4).
type Fence struct {
	Value uint64
}

// Present is the PRESENT payload.
type Present struct {
	SyncInterval uint32
	Flags        uint32
}

// WaitFence is the ring-carried WAIT_FENCE payload (distinct from the
// escape of the same name, §4.5/§6.2 both list a wait-fence primitive;
// this one lets a command batch block the host's own execution on a
// value, e.g. waiting on a cross-queue producer).
type WaitFence struct {
	Value uint64
}

// ResizeBuffers is the RESIZE_BUFFERS payload.
type ResizeBuffers struct {
	Width  uint32
	Height uint32
	Format uint32
}
