// Package nullrenderer provides a logging, always-succeeding
// implementation of hostconsumer.Renderer: every method logs the
// command it received and returns wire.Success without touching any
// real GPU state. It exists so the transport can be driven end to end
// (tests, local development, the cmd/pvgpu-hostd entrypoint without a
// D3D11 backend attached) without a real renderer, the same role
// fuse.NewDefaultRawFileSystem's method-per-operation stub and
// vhostuser.Server's Debug-gated log.Printf tracing play together in
// the teacher.
package nullrenderer

import (
	"log"

	"github.com/templarsco/pvgpu/hostconsumer"
	"github.com/templarsco/pvgpu/wire"
)

// Renderer is the no-op logging stub. Debug gates per-command tracing
// the same way vhostuser.Server.Debug and fuse.Server.debug do.
type Renderer struct {
	Debug bool
}

// New builds a Renderer. debug enables per-command log.Printf tracing.
func New(debug bool) *Renderer {
	return &Renderer{Debug: debug}
}

func (r *Renderer) logf(format string, args ...any) {
	if r.Debug {
		log.Printf(format, args...)
	}
}

func (r *Renderer) CreateResource(id uint32, desc wire.ResourceDesc, initData []byte) wire.ErrorKind {
	r.logf("nullrenderer: CreateResource id=%d kind=%d %dx%dx%d initBytes=%d", id, desc.Kind, desc.Width, desc.Height, desc.Depth, len(initData))
	return wire.Success
}

func (r *Renderer) DestroyResource(id uint32) wire.ErrorKind {
	r.logf("nullrenderer: DestroyResource id=%d", id)
	return wire.Success
}

func (r *Renderer) MapResource(id uint32, m wire.MapResource) wire.ErrorKind {
	r.logf("nullrenderer: MapResource id=%d access=%d sub=%d", id, m.Access, m.Subresource)
	return wire.Success
}

func (r *Renderer) UnmapResource(id uint32) wire.ErrorKind {
	r.logf("nullrenderer: UnmapResource id=%d", id)
	return wire.Success
}

func (r *Renderer) UpdateResource(id uint32, u wire.UpdateResource, data []byte) wire.ErrorKind {
	r.logf("nullrenderer: UpdateResource id=%d bytes=%d at (%d,%d,%d)", id, len(data), u.DstX, u.DstY, u.DstZ)
	return wire.Success
}

func (r *Renderer) CopyResource(dstID, srcID uint32) wire.ErrorKind {
	r.logf("nullrenderer: CopyResource dst=%d src=%d", dstID, srcID)
	return wire.Success
}

func (r *Renderer) OpenResource(id uint32, name string) wire.ErrorKind {
	r.logf("nullrenderer: OpenResource id=%d name=%q", id, name)
	return wire.Success
}

func (r *Renderer) CreateState(kind wire.CommandType, id uint32, desc []byte) wire.ErrorKind {
	r.logf("nullrenderer: CreateState kind=%s id=%d bytes=%d", kind, id, len(desc))
	return wire.Success
}

func (r *Renderer) DestroyState(kind wire.CommandType, id uint32) wire.ErrorKind {
	r.logf("nullrenderer: DestroyState kind=%s id=%d", kind, id)
	return wire.Success
}

func (r *Renderer) CreateView(kind wire.CommandType, id uint32, v wire.ViewDesc, desc []byte) wire.ErrorKind {
	r.logf("nullrenderer: CreateView kind=%s id=%d resource=%d bytes=%d", kind, id, v.ResourceID, len(desc))
	return wire.Success
}

func (r *Renderer) DestroyView(kind wire.CommandType, id uint32) wire.ErrorKind {
	r.logf("nullrenderer: DestroyView kind=%s id=%d", kind, id)
	return wire.Success
}

func (r *Renderer) CreateShader(id uint32, s wire.StateDesc, code []byte) wire.ErrorKind {
	r.logf("nullrenderer: CreateShader id=%d stage=%d bytes=%d", id, s.Stage, len(code))
	return wire.Success
}

func (r *Renderer) DestroyShader(id uint32) wire.ErrorKind {
	r.logf("nullrenderer: DestroyShader id=%d", id)
	return wire.Success
}

func (r *Renderer) Bind(kind wire.CommandType, payload []byte) wire.ErrorKind {
	r.logf("nullrenderer: Bind kind=%s bytes=%d", kind, len(payload))
	return wire.Success
}

func (r *Renderer) Draw(kind wire.CommandType, payload []byte) wire.ErrorKind {
	r.logf("nullrenderer: Draw kind=%s bytes=%d", kind, len(payload))
	return wire.Success
}

func (r *Renderer) Clear(kind wire.CommandType, viewID uint32, payload []byte) wire.ErrorKind {
	r.logf("nullrenderer: Clear kind=%s view=%d", kind, viewID)
	return wire.Success
}

func (r *Renderer) Present(p wire.Present) wire.ErrorKind {
	r.logf("nullrenderer: Present syncInterval=%d flags=%d", p.SyncInterval, p.Flags)
	return wire.Success
}

func (r *Renderer) ResizeSwapChain(rb wire.ResizeBuffers) wire.ErrorKind {
	r.logf("nullrenderer: ResizeSwapChain %dx%d format=%d", rb.Width, rb.Height, rb.Format)
	return wire.Success
}

var _ hostconsumer.Renderer = (*Renderer)(nil)
