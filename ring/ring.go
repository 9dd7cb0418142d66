// Package ring implements the single-producer/single-consumer command
// ring of spec.md §4.2: a lock-free byte stream over a shared-memory
// segment, with monotone cursors, wrap-aware record copies, and the
// hybrid spin/yield/sleep wait policy. It is grounded on
// vhostuser/device.go's popQueue/pushQueue index arithmetic and on
// cloudwego-gopkg/container/ring's flat-slice ring indexing, adapted
// here to a byte-stream ring with atomic cursors crossing a trust
// boundary (spec.md §9 "Volatile vs atomic on shared memory").
package ring

import (
	"errors"
	"sync/atomic"

	"github.com/templarsco/pvgpu/wire"
)

// ErrValidation is returned by Reader.Read when a record fails the
// structural checks of §4.2 step 4. The caller (hostconsumer) treats
// this as device-fatal per §4.2 "Failure" / §7.
var ErrValidation = errors.New("ring: invalid command framing")

// Ring is a fixed-size power-of-two byte ring living inside a shared
// memory segment, with its producer/consumer cursors living in the
// control region (so both sides of the trust boundary see the same
// memory, per spec.md §3).
type Ring struct {
	buf      []byte
	size     uint64
	producer *uint64
	consumer *uint64
}

// New wraps buf (the ring segment) with cursors backed by producer and
// consumer, which must point at the control region's Producer and
// Consumer fields so that writes are visible across the trust boundary.
func New(buf []byte, producer, consumer *uint64) *Ring {
	n := uint64(len(buf))
	if n == 0 || n&(n-1) != 0 {
		panic("ring: size must be a nonzero power of two")
	}
	return &Ring{buf: buf, size: n, producer: producer, consumer: consumer}
}

func (r *Ring) mask(v uint64) uint64 { return v & (r.size - 1) }

// Producer and Consumer expose the live cursors for diagnostics and
// for the producer cursor SUBMIT_COMMANDS reports back.
func (r *Ring) Producer() uint64 { return atomic.LoadUint64(r.producer) }
func (r *Ring) Consumer() uint64 { return atomic.LoadUint64(r.consumer) }

// Backlog returns producer - consumer: bytes written but not yet
// consumed.
func (r *Ring) Backlog() uint64 { return r.Producer() - r.Consumer() }

// copyAt copies src into the ring at logical offset pos, splitting the
// write at the wrap point if pos+len(src) exceeds r.size (§3 "Entries
// may wrap").
func (r *Ring) copyAt(pos uint64, src []byte) {
	start := r.mask(pos)
	n := copy(r.buf[start:], src)
	if n < len(src) {
		copy(r.buf[0:], src[n:])
	}
}

// readAt reassembles len(dst) bytes starting at logical offset pos
// into dst, handling wrap the same way copyAt does (§8 "Round-trip").
func (r *Ring) readAt(pos uint64, dst []byte) {
	start := r.mask(pos)
	n := copy(dst, r.buf[start:])
	if n < len(dst) {
		copy(dst[n:], r.buf[0:])
	}
}

// Writer is the single logical writer of a Ring (owned by the kernel
// agent; callers are responsible for serializing concurrent guest
// submissions with their own lock, per §4.2 "within the kernel agent,
// an exclusive lock serializes concurrent guest submissions").
type Writer struct {
	r     *Ring
	stats Stats
}

func NewWriter(r *Ring) *Writer { return &Writer{r: r} }

func (w *Writer) Stats() Stats { return w.stats }

// Space returns the number of bytes currently free for writing.
func (w *Writer) Space() uint64 {
	return w.r.size - (w.r.Producer() - w.r.Consumer())
}

// Write blocks (per the hybrid wait policy) until there is room for
// rec, then copies it into the ring and advances the producer cursor
// with a release store, steps 1-6 of §4.2's write protocol. len(rec)
// must already be CommandAlign-aligned; callers build records with
// wire.EncodeCommand, which guarantees this.
func (w *Writer) Write(rec []byte, cancel <-chan struct{}) error {
	needed := uint64(len(rec))
	if needed == 0 || needed%wire.CommandAlign != 0 {
		return errors.New("ring: record size must be a nonzero multiple of 16")
	}
	if needed > w.r.size {
		return errors.New("ring: record larger than ring")
	}

	ok := Wait(
		func() bool { return w.Space() >= needed },
		w.r.Consumer,
		cancel,
		&w.stats,
	)
	if !ok {
		return errors.New("ring: write canceled")
	}

	producer := w.r.Producer()
	w.r.copyAt(producer, rec) // payload stores
	atomic.StoreUint64(w.r.producer, producer+needed) // release: publish new producer
	return nil
}

// Reader is the single logical reader of a Ring (owned by the host
// consumer, which is single-threaded with respect to ring consumption
// per §5).
type Reader struct {
	r      *Ring
	stats  Stats
	buf    []byte
	maxRec int
}

// NewReader builds a Reader with a reusable scratch buffer large
// enough to reassemble the largest record the ring will ever carry.
// maxRecordSize should be the ring size at minimum to guarantee any
// well-formed record fits.
func NewReader(r *Ring, maxRecordSize int) *Reader {
	return &Reader{r: r, buf: make([]byte, maxRecordSize), maxRec: maxRecordSize}
}

func (rd *Reader) Stats() Stats { return rd.stats }

// Idle reports whether the ring currently has nothing to consume
// (§4.2 read step 2).
func (rd *Reader) Idle() bool { return rd.r.Producer() == rd.r.Consumer() }

// WaitNotEmpty blocks with the hybrid policy until the ring has data
// or cancel fires.
func (rd *Reader) WaitNotEmpty(cancel <-chan struct{}) bool {
	return Wait(func() bool { return !rd.Idle() }, rd.r.Producer, cancel, &rd.stats)
}

// Read performs one §4.2 read-protocol pass: if the ring is empty it
// returns (nil, false, nil); otherwise it reassembles, validates, and
// returns the next record without advancing the consumer (callers call
// Advance after executing the command, per step 6-7 -- "execute" must
// happen before the consumer moves so a crash mid-dispatch doesn't
// silently drop work the guest thinks is still pending).
func (rd *Reader) Read() (rec []byte, ok bool, err error) {
	producer := rd.r.Producer() // acquire
	consumer := rd.r.Consumer()
	if producer == consumer {
		return nil, false, nil
	}

	hdrBuf := rd.buf[:wire.HeaderSize]
	rd.r.readAt(consumer, hdrBuf)
	hdr := wire.GetHeader(hdrBuf)

	backlog := producer - consumer
	if !hdr.Type.Known() ||
		hdr.TotalSize < uint32(wire.HeaderSize) ||
		uint64(hdr.TotalSize) > backlog ||
		hdr.TotalSize%wire.CommandAlign != 0 ||
		int(hdr.TotalSize) > rd.maxRec {
		return nil, false, ErrValidation
	}

	out := rd.buf[:hdr.TotalSize]
	rd.r.readAt(consumer, out)
	return out, true, nil
}

// Advance retires n bytes (the TotalSize of the record just executed)
// from the ring with a release store of the new consumer cursor
// (§4.2 step 7).
func (rd *Reader) Advance(n uint32) {
	atomic.StoreUint64(rd.r.consumer, rd.r.Consumer()+uint64(n))
}
