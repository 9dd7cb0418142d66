package hostconsumer

import (
	"github.com/templarsco/pvgpu/hostconsumer/restable"
	"github.com/templarsco/pvgpu/ring"
	"github.com/templarsco/pvgpu/wire"
)

type handlerFunc func(*Consumer, wire.Header, []byte) wire.ErrorKind

// commandHandlers mirrors fuse/opcode.go's operationHandlers dispatch
// table, built as a map literal the same way that table's init()
// populates its slice from a `map[int32]operationFunc` literal. A
// single handler often serves several CommandType entries that share a
// payload shape (state objects, views, pipeline binds, draw variants);
// hdr.Type tells the handler which one it was.
var commandHandlers = map[wire.CommandType]handlerFunc{
	wire.CmdCreateResource:  (*Consumer).handleCreateResource,
	wire.CmdDestroyResource: (*Consumer).handleDestroyResource,
	wire.CmdMapResource:     (*Consumer).handleMapResource,
	wire.CmdUnmapResource:   (*Consumer).handleUnmapResource,
	wire.CmdUpdateResource:  (*Consumer).handleUpdateResource,
	wire.CmdCopyResource:    (*Consumer).handleCopyResource,
	wire.CmdOpenResource:    (*Consumer).handleOpenResource,

	wire.CmdCreateBlendState:        (*Consumer).handleCreateState,
	wire.CmdDestroyBlendState:       (*Consumer).handleDestroyState,
	wire.CmdCreateRasterizerState:   (*Consumer).handleCreateState,
	wire.CmdDestroyRasterizerState:  (*Consumer).handleDestroyState,
	wire.CmdCreateDepthStencilState: (*Consumer).handleCreateState,
	wire.CmdDestroyDepthStencilState: (*Consumer).handleDestroyState,
	wire.CmdCreateSamplerState:      (*Consumer).handleCreateState,
	wire.CmdDestroySamplerState:     (*Consumer).handleDestroyState,
	wire.CmdCreateInputLayout:       (*Consumer).handleCreateState,
	wire.CmdDestroyInputLayout:      (*Consumer).handleDestroyState,

	wire.CmdCreateRenderTargetView:    (*Consumer).handleCreateView,
	wire.CmdDestroyRenderTargetView:   (*Consumer).handleDestroyView,
	wire.CmdCreateDepthStencilView:    (*Consumer).handleCreateView,
	wire.CmdDestroyDepthStencilView:   (*Consumer).handleDestroyView,
	wire.CmdCreateShaderResourceView:  (*Consumer).handleCreateView,
	wire.CmdDestroyShaderResourceView: (*Consumer).handleDestroyView,
	wire.CmdCreateUnorderedAccessView: (*Consumer).handleCreateView,
	wire.CmdDestroyUnorderedAccessView: (*Consumer).handleDestroyView,

	wire.CmdCreateShader:  (*Consumer).handleCreateShader,
	wire.CmdDestroyShader: (*Consumer).handleDestroyShader,

	wire.CmdSetRenderTargets:     (*Consumer).handleBind,
	wire.CmdSetViewport:          (*Consumer).handleBind,
	wire.CmdSetScissor:           (*Consumer).handleBind,
	wire.CmdSetBlendState:        (*Consumer).handleBind,
	wire.CmdSetRasterizerState:   (*Consumer).handleBind,
	wire.CmdSetDepthStencilState: (*Consumer).handleBind,
	wire.CmdSetShader:            (*Consumer).handleBind,
	wire.CmdSetSampler:           (*Consumer).handleBind,
	wire.CmdSetConstantBuffer:    (*Consumer).handleBind,
	wire.CmdSetVertexBuffer:      (*Consumer).handleBind,
	wire.CmdSetIndexBuffer:       (*Consumer).handleBind,
	wire.CmdSetInputLayout:       (*Consumer).handleBind,
	wire.CmdSetPrimitiveTopology: (*Consumer).handleBind,
	wire.CmdSetShaderResource:    (*Consumer).handleBind,

	wire.CmdDraw:                 (*Consumer).handleDraw,
	wire.CmdDrawIndexed:          (*Consumer).handleDraw,
	wire.CmdDrawInstanced:        (*Consumer).handleDraw,
	wire.CmdDrawIndexedInstanced: (*Consumer).handleDraw,
	wire.CmdDispatch:             (*Consumer).handleDraw,

	wire.CmdClearRenderTargetView: (*Consumer).handleClear,
	wire.CmdClearDepthStencilView: (*Consumer).handleClear,

	wire.CmdFence:         (*Consumer).handleFence,
	wire.CmdPresent:       (*Consumer).handlePresent,
	wire.CmdFlush:         (*Consumer).handleFlush,
	wire.CmdWaitFence:     (*Consumer).handleWaitFence,
	wire.CmdResizeBuffers: (*Consumer).handleResizeBuffers,
}

// dispatch looks up and executes the handler for hdr.Type. ring.Reader
// already rejects unknown types during framing (§4.2 step 4), so a
// miss here means a type the catalogue defines but no handler covers
// -- a programming error, reported the same way a renderer-side one
// would be rather than panicking.
func (c *Consumer) dispatch(hdr wire.Header, rec []byte) wire.ErrorKind {
	h, ok := commandHandlers[hdr.Type]
	if !ok {
		return wire.ErrInvalidCommand
	}
	return h(c, hdr, rec)
}

func (c *Consumer) handleCreateResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	desc := wire.GetPayload[wire.ResourceDesc](rec)
	var initData []byte
	if desc.InitSize > 0 {
		data, kind := c.heapSlice(desc.InitOffset, desc.InitSize)
		if kind != wire.Success {
			return kind
		}
		initData = data
	}
	if kind := c.objects.CreateResource(hdr.ResourceID, desc); kind != wire.Success {
		return kind
	}
	if kind := c.renderer.CreateResource(hdr.ResourceID, desc, initData); kind != wire.Success {
		c.objects.DestroyResource(hdr.ResourceID)
		return kind
	}
	return wire.Success
}

func (c *Consumer) handleDestroyResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	if kind := c.objects.DestroyResource(hdr.ResourceID); kind != wire.Success {
		return kind
	}
	return c.renderer.DestroyResource(hdr.ResourceID)
}

func (c *Consumer) handleMapResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	if !c.objects.Exists(restable.CategoryResource, hdr.ResourceID) {
		return wire.ErrResourceNotFound
	}
	return c.renderer.MapResource(hdr.ResourceID, wire.GetPayload[wire.MapResource](rec))
}

func (c *Consumer) handleUnmapResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	if !c.objects.Exists(restable.CategoryResource, hdr.ResourceID) {
		return wire.ErrResourceNotFound
	}
	return c.renderer.UnmapResource(hdr.ResourceID)
}

func (c *Consumer) handleUpdateResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	if !c.objects.Exists(restable.CategoryResource, hdr.ResourceID) {
		return wire.ErrResourceNotFound
	}
	u := wire.GetPayload[wire.UpdateResource](rec)
	data, kind := c.heapSlice(u.HeapOffset, u.HeapSize)
	if kind != wire.Success {
		return kind
	}
	return c.renderer.UpdateResource(hdr.ResourceID, u, data)
}

func (c *Consumer) handleCopyResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	if !c.objects.Exists(restable.CategoryResource, hdr.ResourceID) {
		return wire.ErrResourceNotFound
	}
	cp := wire.GetPayload[wire.CopyResource](rec)
	if !c.objects.Exists(restable.CategoryResource, cp.SrcResourceID) {
		return wire.ErrResourceNotFound
	}
	return c.renderer.CopyResource(hdr.ResourceID, cp.SrcResourceID)
}

func (c *Consumer) handleOpenResource(hdr wire.Header, rec []byte) wire.ErrorKind {
	op := wire.GetPayload[wire.OpenResource](rec)
	data, kind := c.heapSlice(op.NameOffset, op.NameSize)
	if kind != wire.Success {
		return kind
	}
	name := string(data)
	if kind := c.objects.CreateResource(hdr.ResourceID, wire.ResourceDesc{}); kind != wire.Success {
		return kind
	}
	if kind := c.renderer.OpenResource(hdr.ResourceID, name); kind != wire.Success {
		c.objects.DestroyResource(hdr.ResourceID)
		return kind
	}
	return wire.Success
}

func (c *Consumer) handleCreateState(hdr wire.Header, rec []byte) wire.ErrorKind {
	desc := wire.GetPayload[wire.StateDesc](rec)
	blob, kind := c.heapSlice(desc.HeapOffset, desc.HeapSize)
	if kind != wire.Success {
		return kind
	}
	if kind := c.objects.CreateState(hdr.Type, hdr.ResourceID); kind != wire.Success {
		return kind
	}
	if kind := c.renderer.CreateState(hdr.Type, hdr.ResourceID, blob); kind != wire.Success {
		c.objects.DestroyState(hdr.ResourceID)
		return kind
	}
	return wire.Success
}

func (c *Consumer) handleDestroyState(hdr wire.Header, rec []byte) wire.ErrorKind {
	if kind := c.objects.DestroyState(hdr.ResourceID); kind != wire.Success {
		return kind
	}
	return c.renderer.DestroyState(hdr.Type, hdr.ResourceID)
}

func (c *Consumer) handleCreateView(hdr wire.Header, rec []byte) wire.ErrorKind {
	v := wire.GetPayload[wire.ViewDesc](rec)
	if !c.objects.Exists(restable.CategoryResource, v.ResourceID) {
		return wire.ErrResourceNotFound
	}
	blob, kind := c.heapSlice(v.HeapOffset, v.HeapSize)
	if kind != wire.Success {
		return kind
	}
	if kind := c.objects.CreateView(hdr.Type, hdr.ResourceID); kind != wire.Success {
		return kind
	}
	if kind := c.renderer.CreateView(hdr.Type, hdr.ResourceID, v, blob); kind != wire.Success {
		c.objects.DestroyView(hdr.ResourceID)
		return kind
	}
	return wire.Success
}

func (c *Consumer) handleDestroyView(hdr wire.Header, rec []byte) wire.ErrorKind {
	if kind := c.objects.DestroyView(hdr.ResourceID); kind != wire.Success {
		return kind
	}
	return c.renderer.DestroyView(hdr.Type, hdr.ResourceID)
}

func (c *Consumer) handleCreateShader(hdr wire.Header, rec []byte) wire.ErrorKind {
	s := wire.GetPayload[wire.StateDesc](rec)
	code, kind := c.heapSlice(s.HeapOffset, s.HeapSize)
	if kind != wire.Success {
		return kind
	}
	if kind := c.objects.CreateShader(hdr.ResourceID, s); kind != wire.Success {
		return kind
	}
	if kind := c.renderer.CreateShader(hdr.ResourceID, s, code); kind != wire.Success {
		c.objects.DestroyShader(hdr.ResourceID)
		return kind
	}
	return wire.Success
}

func (c *Consumer) handleDestroyShader(hdr wire.Header, rec []byte) wire.ErrorKind {
	if kind := c.objects.DestroyShader(hdr.ResourceID); kind != wire.Success {
		return kind
	}
	return c.renderer.DestroyShader(hdr.ResourceID)
}

// bindCategory names which resource table a CmdSetXxx command's
// BindSlot.ID refers to, for the supplemented existence check (§3
// "Resource tracking"). Commands whose payload isn't BindSlot-shaped
// (SetRenderTargets, SetViewport, SetScissor, SetBlendState,
// SetRasterizerState, SetDepthStencilState, SetPrimitiveTopology) are
// passed straight
// through to the renderer without this check.
func bindCategory(t wire.CommandType) (restable.Category, bool) {
	switch t {
	case wire.CmdSetShader:
		return restable.CategoryShader, true
	case wire.CmdSetSampler, wire.CmdSetInputLayout:
		return restable.CategoryState, true
	case wire.CmdSetShaderResource:
		return restable.CategoryView, true
	case wire.CmdSetConstantBuffer, wire.CmdSetVertexBuffer, wire.CmdSetIndexBuffer:
		return restable.CategoryResource, true
	default:
		return 0, false
	}
}

func (c *Consumer) handleBind(hdr wire.Header, rec []byte) wire.ErrorKind {
	payload := rec[wire.HeaderSize:]
	if cat, ok := bindCategory(hdr.Type); ok {
		b := wire.GetPayload[wire.BindSlot](rec)
		if b.ID != 0 && !c.objects.Exists(cat, b.ID) {
			return wire.ErrResourceNotFound
		}
	}
	return c.renderer.Bind(hdr.Type, payload)
}

func (c *Consumer) handleDraw(hdr wire.Header, rec []byte) wire.ErrorKind {
	return c.renderer.Draw(hdr.Type, rec[wire.HeaderSize:])
}

func (c *Consumer) handleClear(hdr wire.Header, rec []byte) wire.ErrorKind {
	if !c.objects.Exists(restable.CategoryView, hdr.ResourceID) {
		return wire.ErrResourceNotFound
	}
	return c.renderer.Clear(hdr.Type, hdr.ResourceID, rec[wire.HeaderSize:])
}

func (c *Consumer) handleFence(hdr wire.Header, rec []byte) wire.ErrorKind {
	f := wire.GetPayload[wire.Fence](rec)
	c.fences.Publish(f.Value)
	return wire.Success
}

func (c *Consumer) handlePresent(hdr wire.Header, rec []byte) wire.ErrorKind {
	return c.renderer.Present(wire.GetPayload[wire.Present](rec))
}

func (c *Consumer) handleFlush(hdr wire.Header, rec []byte) wire.ErrorKind {
	return wire.Success
}

// handleWaitFence blocks the single consumer goroutine until the
// ring-carried WAIT_FENCE's target value has been requested by the
// guest (wire.WaitFence's cross-queue-producer use case), or cancel
// fires. Blocking here is intentional: the ring is processed strictly
// in order (§5), so later commands in the same batch are meant to wait
// too.
func (c *Consumer) handleWaitFence(hdr wire.Header, rec []byte) wire.ErrorKind {
	wf := wire.GetPayload[wire.WaitFence](rec)
	if c.fences.GuestRequested() >= wf.Value {
		return wire.Success
	}
	var stats ring.Stats
	ok := ring.Wait(func() bool { return c.fences.GuestRequested() >= wf.Value }, c.fences.GuestRequested, c.cancelChan(), &stats)
	if !ok {
		return wire.ErrTimeout
	}
	return wire.Success
}

func (c *Consumer) handleResizeBuffers(hdr wire.Header, rec []byte) wire.ErrorKind {
	c.setState(StateResizing)
	c.orStatusBits(wire.StatusResizing)
	defer c.clearStatusBits(wire.StatusResizing)

	kind := c.renderer.ResizeSwapChain(wire.GetPayload[wire.ResizeBuffers](rec))
	if kind == wire.Success {
		c.setState(StateRunning)
	}
	return kind
}
