// Package escape defines the request/response catalogue of spec.md
// §4.5/§6.3: the privileged call boundary between the unprivileged
// user producer and the kernel agent. Every request is a fixed-size
// struct starting with {escape_code, status}; the caller fills in the
// code and input fields, the callee fills in status and any output
// fields, mirroring vhostuser's header-then-payload request/reply
// structs in server.go's oneRequest.
package escape

// Code identifies an escape request (§4.5).
type Code uint32

const (
	CodeGetShmemInfo Code = iota + 1
	CodeAllocHeap
	CodeFreeHeap
	CodeSubmitCommands
	CodeRingDoorbell
	CodeWaitFence
	CodeGetCaps
	CodeSetDisplayMode

	codeCount
)

var codeNames = [...]string{
	CodeGetShmemInfo:   "GET_SHMEM_INFO",
	CodeAllocHeap:      "ALLOC_HEAP",
	CodeFreeHeap:       "FREE_HEAP",
	CodeSubmitCommands: "SUBMIT_COMMANDS",
	CodeRingDoorbell:   "RING_DOORBELL",
	CodeWaitFence:      "WAIT_FENCE",
	CodeGetCaps:        "GET_CAPS",
	CodeSetDisplayMode: "SET_DISPLAY_MODE",
}

func (c Code) String() string {
	if c > 0 && int(c) < len(codeNames) && codeNames[c] != "" {
		return codeNames[c]
	}
	return "UNKNOWN_ESCAPE"
}
