package hostconsumer

import "github.com/templarsco/pvgpu/wire"

// Renderer is the pass-through seam to the external D3D11 renderer
// backend (spec.md §1's explicit external collaborator). The host
// consumer decodes ring records and resolves resource-table lookups;
// everything beyond that — actually creating GPU objects, issuing draw
// calls, presenting a swap chain — belongs to a real renderer, which
// this module never provides. One method per command category, not
// per CommandType: the categories that only differ in which object
// kind they create or bind (state objects, views, pipeline Set*
// commands, draw variants) are passed their wire.CommandType as a
// discriminator plus their raw payload bytes, matching how a real
// translator layer would switch on the same enumeration internally.
type Renderer interface {
	CreateResource(id uint32, desc wire.ResourceDesc, initData []byte) wire.ErrorKind
	DestroyResource(id uint32) wire.ErrorKind
	MapResource(id uint32, m wire.MapResource) wire.ErrorKind
	UnmapResource(id uint32) wire.ErrorKind
	UpdateResource(id uint32, u wire.UpdateResource, data []byte) wire.ErrorKind
	CopyResource(dstID, srcID uint32) wire.ErrorKind
	OpenResource(id uint32, name string) wire.ErrorKind

	CreateState(kind wire.CommandType, id uint32, desc []byte) wire.ErrorKind
	DestroyState(kind wire.CommandType, id uint32) wire.ErrorKind
	CreateView(kind wire.CommandType, id uint32, v wire.ViewDesc, desc []byte) wire.ErrorKind
	DestroyView(kind wire.CommandType, id uint32) wire.ErrorKind
	CreateShader(id uint32, s wire.StateDesc, code []byte) wire.ErrorKind
	DestroyShader(id uint32) wire.ErrorKind

	Bind(kind wire.CommandType, payload []byte) wire.ErrorKind
	Draw(kind wire.CommandType, payload []byte) wire.ErrorKind
	Clear(kind wire.CommandType, viewID uint32, payload []byte) wire.ErrorKind
	Present(p wire.Present) wire.ErrorKind
	ResizeSwapChain(r wire.ResizeBuffers) wire.ErrorKind
}
