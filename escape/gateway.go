package escape

// Gateway is implemented by the kernel agent: one method per escape
// code (§4.5). A method returns a non-nil error only for a transport
// or programming fault; ordinary protocol failures (resource not
// found, heap exhausted, device lost, ...) are reported by writing the
// corresponding wire.ErrorKind into the message's Status field, the
// same "status travels in the payload" contract vhostuser's reply
// structs use.
type Gateway interface {
	GetShmemInfo(*GetShmemInfo) error
	AllocHeap(*AllocHeap) error
	FreeHeap(*FreeHeap) error
	SubmitCommands(*SubmitCommands) error
	RingDoorbell(*RingDoorbell) error
	WaitFence(*WaitFence) error
	GetCaps(*GetCaps) error
	SetDisplayMode(*SetDisplayMode) error
}
