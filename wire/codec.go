package wire

import "unsafe"

// PutHeader writes h into the first HeaderSize bytes of buf.
func PutHeader(buf []byte, h Header) {
	*(*Header)(unsafe.Pointer(&buf[0])) = h
}

// GetHeader reads a Header from the first HeaderSize bytes of buf. buf
// must be at least HeaderSize bytes; callers validate this before
// calling (ring.Reader does, per §4.2 step 4).
func GetHeader(buf []byte) Header {
	return *(*Header)(unsafe.Pointer(&buf[0]))
}

// PutPayload writes v immediately after the header in buf, the same
// unsafe-cast idiom the teacher uses throughout raw/ and vhostuser/ to
// move fixed C-ABI-compatible structs into and out of a byte buffer.
// It panics if buf is too small, matching the teacher's assumption
// that callers size buffers from Sizeof before writing into them.
func PutPayload[T any](buf []byte, v T) {
	n := int(unsafe.Sizeof(v))
	if n == 0 {
		return // e.g. Flush, UnmapResource: header-only commands
	}
	if len(buf) < HeaderSize+n {
		panic("wire: payload does not fit in buffer")
	}
	*(*T)(unsafe.Pointer(&buf[HeaderSize])) = v
}

// GetPayload reads a T starting at HeaderSize in buf.
func GetPayload[T any](buf []byte) T {
	var v T
	if unsafe.Sizeof(v) == 0 {
		return v
	}
	return *(*T)(unsafe.Pointer(&buf[HeaderSize]))
}

// PayloadSize returns the in-memory size of a payload type T.
func PayloadSize[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// EncodeCommand lays out a complete ring record (header + payload,
// padded to CommandAlign) into dst and returns the slice actually
// used. dst must have length >= RecordSize[T](); the trailing pad
// bytes are explicitly zeroed (§3: "no padding bytes... other than
// explicit tail padding").
func EncodeCommand[T any](dst []byte, typ CommandType, resourceID, flags uint32, payload T) []byte {
	size := RecordSize[T]()
	if len(dst) < size {
		panic("wire: record does not fit in buffer")
	}
	rec := dst[:size]
	PutHeader(rec, Header{
		Type:       typ,
		TotalSize:  uint32(size),
		ResourceID: resourceID,
		Flags:      flags,
	})
	PutPayload(rec, payload)
	for i := HeaderSize + PayloadSize[T](); i < size; i++ {
		rec[i] = 0
	}
	return rec
}

// RecordSize returns the 16-byte-aligned total size of a record
// carrying a T payload, including its header.
func RecordSize[T any]() int {
	return AlignUp(HeaderSize + PayloadSize[T]())
}

// DecodeCommand splits rec (a single already-reassembled record;
// ring.Reader.Read reassembles the wrap case) into its header and a
// typed payload.
func DecodeCommand[T any](rec []byte) (Header, T) {
	return GetHeader(rec), GetPayload[T](rec)
}
