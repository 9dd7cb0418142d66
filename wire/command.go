package wire

import "unsafe"

// CommandAlign is the mandatory alignment for every ring record,
// including its header (§3 "Command record").
const CommandAlign = 16

// CommandFlags (§3).
const (
	FlagSync    uint32 = 1 << 0
	FlagNoFence uint32 = 1 << 1
)

// Header is the 16-byte record header prefixing every command in the
// ring (§3, §6.2). TotalSize includes the header and is a multiple of
// CommandAlign.
type Header struct {
	Type       CommandType
	TotalSize  uint32
	ResourceID uint32
	Flags      uint32
}

const HeaderSize = int(unsafe.Sizeof(Header{}))

// CommandType enumerates every ring command category from §6.2. Values
// are stable across implementations; never renumber an existing entry.
type CommandType uint32

const (
	CmdUnknown CommandType = iota

	// Resources.
	CmdCreateResource
	CmdDestroyResource
	CmdMapResource
	CmdUnmapResource
	CmdUpdateResource
	CmdCopyResource
	CmdOpenResource

	// State-object / view / shader create+destroy.
	CmdCreateBlendState
	CmdDestroyBlendState
	CmdCreateRasterizerState
	CmdDestroyRasterizerState
	CmdCreateDepthStencilState
	CmdDestroyDepthStencilState
	CmdCreateSamplerState
	CmdDestroySamplerState
	CmdCreateInputLayout
	CmdDestroyInputLayout
	CmdCreateRenderTargetView
	CmdDestroyRenderTargetView
	CmdCreateDepthStencilView
	CmdDestroyDepthStencilView
	CmdCreateShaderResourceView
	CmdDestroyShaderResourceView
	CmdCreateUnorderedAccessView
	CmdDestroyUnorderedAccessView
	CmdCreateShader
	CmdDestroyShader

	// Pipeline binding ("set") commands.
	CmdSetRenderTargets
	CmdSetViewport
	CmdSetScissor
	CmdSetBlendState
	CmdSetRasterizerState
	CmdSetDepthStencilState
	CmdSetShader
	CmdSetSampler
	CmdSetConstantBuffer
	CmdSetVertexBuffer
	CmdSetIndexBuffer
	CmdSetInputLayout
	CmdSetPrimitiveTopology
	CmdSetShaderResource

	// Draw / dispatch / clear.
	CmdDraw
	CmdDrawIndexed
	CmdDrawInstanced
	CmdDrawIndexedInstanced
	CmdDispatch
	CmdClearRenderTargetView
	CmdClearDepthStencilView

	// Sync / present.
	CmdFence
	CmdPresent
	CmdFlush
	CmdWaitFence
	CmdResizeBuffers

	cmdTypeCount
)

var commandNames = [cmdTypeCount]string{
	CmdUnknown:                   "UNKNOWN",
	CmdCreateResource:            "CREATE_RESOURCE",
	CmdDestroyResource:           "DESTROY_RESOURCE",
	CmdMapResource:               "MAP_RESOURCE",
	CmdUnmapResource:             "UNMAP_RESOURCE",
	CmdUpdateResource:            "UPDATE_RESOURCE",
	CmdCopyResource:              "COPY_RESOURCE",
	CmdOpenResource:              "OPEN_RESOURCE",
	CmdCreateBlendState:          "CREATE_BLEND_STATE",
	CmdDestroyBlendState:         "DESTROY_BLEND_STATE",
	CmdCreateRasterizerState:     "CREATE_RASTERIZER_STATE",
	CmdDestroyRasterizerState:    "DESTROY_RASTERIZER_STATE",
	CmdCreateDepthStencilState:   "CREATE_DEPTH_STENCIL_STATE",
	CmdDestroyDepthStencilState:  "DESTROY_DEPTH_STENCIL_STATE",
	CmdCreateSamplerState:        "CREATE_SAMPLER_STATE",
	CmdDestroySamplerState:       "DESTROY_SAMPLER_STATE",
	CmdCreateInputLayout:         "CREATE_INPUT_LAYOUT",
	CmdDestroyInputLayout:        "DESTROY_INPUT_LAYOUT",
	CmdCreateRenderTargetView:    "CREATE_RTV",
	CmdDestroyRenderTargetView:   "DESTROY_RTV",
	CmdCreateDepthStencilView:    "CREATE_DSV",
	CmdDestroyDepthStencilView:   "DESTROY_DSV",
	CmdCreateShaderResourceView:  "CREATE_SRV",
	CmdDestroyShaderResourceView: "DESTROY_SRV",
	CmdCreateUnorderedAccessView: "CREATE_UAV",
	CmdDestroyUnorderedAccessView: "DESTROY_UAV",
	CmdCreateShader:              "CREATE_SHADER",
	CmdDestroyShader:             "DESTROY_SHADER",
	CmdSetRenderTargets:          "SET_RENDER_TARGETS",
	CmdSetViewport:               "SET_VIEWPORT",
	CmdSetScissor:                "SET_SCISSOR",
	CmdSetBlendState:             "SET_BLEND_STATE",
	CmdSetRasterizerState:        "SET_RASTERIZER_STATE",
	CmdSetDepthStencilState:      "SET_DEPTH_STENCIL_STATE",
	CmdSetShader:                 "SET_SHADER",
	CmdSetSampler:                "SET_SAMPLER",
	CmdSetConstantBuffer:         "SET_CONSTANT_BUFFER",
	CmdSetVertexBuffer:           "SET_VERTEX_BUFFER",
	CmdSetIndexBuffer:            "SET_INDEX_BUFFER",
	CmdSetInputLayout:            "SET_INPUT_LAYOUT",
	CmdSetPrimitiveTopology:      "SET_PRIMITIVE_TOPOLOGY",
	CmdSetShaderResource:         "SET_SHADER_RESOURCE",
	CmdDraw:                      "DRAW",
	CmdDrawIndexed:               "DRAW_INDEXED",
	CmdDrawInstanced:             "DRAW_INSTANCED",
	CmdDrawIndexedInstanced:      "DRAW_INDEXED_INSTANCED",
	CmdDispatch:                  "DISPATCH",
	CmdClearRenderTargetView:     "CLEAR_RTV",
	CmdClearDepthStencilView:     "CLEAR_DSV",
	CmdFence:                     "FENCE",
	CmdPresent:                   "PRESENT",
	CmdFlush:                     "FLUSH",
	CmdWaitFence:                 "WAIT_FENCE",
	CmdResizeBuffers:             "RESIZE_BUFFERS",
}

// String names a command type for debug/log output, mirroring the
// teacher's operationName(opcode) helper in fuse/opcode.go.
func (t CommandType) String() string {
	if t < cmdTypeCount {
		if n := commandNames[t]; n != "" {
			return n
		}
	}
	return "INVALID"
}

// Known reports whether t is a type this implementation recognizes.
// An unknown type is a fatal protocol error at the host (§4.2, §6.2).
func (t CommandType) Known() bool {
	return t > CmdUnknown && t < cmdTypeCount && commandNames[t] != ""
}

// AlignUp rounds n up to the next multiple of CommandAlign.
func AlignUp(n int) int {
	return (n + CommandAlign - 1) &^ (CommandAlign - 1)
}
