package wire

// ErrorKind enumerates the error kinds of §6.5. The kind, not a string,
// is what crosses the trust boundary; the kernel agent translates it
// to its platform's error conventions but must preserve the kind
// itself (§7 "Propagation policy"), mirroring how fuse.Status crosses
// the FUSE kernel/userspace boundary in the teacher.
type ErrorKind uint32

const (
	Success ErrorKind = iota
	ErrInvalidCommand
	ErrResourceNotFound
	ErrOutOfMemory
	ErrShaderCompile
	ErrDeviceLost
	ErrInvalidParameter
	ErrUnsupportedFormat
	ErrBackendDisconnected
	ErrRingFull
	ErrTimeout
	ErrHeapExhausted
	ErrInternal
	ErrUnknown
)

var errorKindNames = [...]string{
	Success:                "SUCCESS",
	ErrInvalidCommand:      "INVALID_COMMAND",
	ErrResourceNotFound:    "RESOURCE_NOT_FOUND",
	ErrOutOfMemory:         "OUT_OF_MEMORY",
	ErrShaderCompile:       "SHADER_COMPILE",
	ErrDeviceLost:          "DEVICE_LOST",
	ErrInvalidParameter:    "INVALID_PARAMETER",
	ErrUnsupportedFormat:   "UNSUPPORTED_FORMAT",
	ErrBackendDisconnected: "BACKEND_DISCONNECTED",
	ErrRingFull:            "RING_FULL",
	ErrTimeout:             "TIMEOUT",
	ErrHeapExhausted:       "HEAP_EXHAUSTED",
	ErrInternal:            "INTERNAL",
	ErrUnknown:             "UNKNOWN",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) && errorKindNames[k] != "" {
		return errorKindNames[k]
	}
	return "UNKNOWN"
}

// Error implements the error interface so ErrorKind can be returned
// directly from Go APIs that need a plain error as well as a wire kind.
func (k ErrorKind) Error() string { return k.String() }

// Fatal reports whether kind is device-fatal per §7's partition:
// DEVICE_LOST and BACKEND_DISCONNECTED taint the device for good.
// Corrupt framing and magic mismatch are also device-fatal but are
// reported structurally (ring validation failure), not as an
// ErrorKind returned to a caller.
func (k ErrorKind) Fatal() bool {
	return k == ErrDeviceLost || k == ErrBackendDisconnected
}

// Recoverable reports whether kind is local/recoverable via
// wait-and-retry per §7.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrHeapExhausted, ErrRingFull, ErrTimeout:
		return true
	default:
		return false
	}
}
