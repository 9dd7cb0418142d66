package ring

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/templarsco/pvgpu/wire"
)

func newTestRing(size int) (*Ring, *uint64, *uint64) {
	var producer, consumer uint64
	buf := make([]byte, size)
	return New(buf, &producer, &consumer), &producer, &consumer
}

func TestWriteReadRoundTrip(t *testing.T) {
	r, _, _ := newTestRing(4096)
	w := NewWriter(r)
	rd := NewReader(r, 4096)

	buf := make([]byte, 64)
	want := wire.EncodeCommand(buf, wire.CmdDraw, 1, 0, wire.Draw{VertexCount: 3})

	if err := w.Write(want, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok, err := rd.Read()
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Read returned %v, want %v", got, want)
	}
	rd.Advance(uint32(len(want)))
	if rd.r.Consumer() != uint64(len(want)) {
		t.Fatalf("consumer = %d, want %d", rd.r.Consumer(), len(want))
	}
}

// TestWrapBoundary is scenario 3 of §8: a record whose start offset +
// total_size exactly equals ring_size is written without wrap; one
// byte more (here, one CommandAlign unit more) triggers a wrap.
func TestWrapBoundary(t *testing.T) {
	const size = 256
	r, producer, consumer := newTestRing(size)
	w := NewWriter(r)
	rd := NewReader(r, size)

	// Advance both cursors to size-16 without touching ring bytes, so the
	// next 16-byte record ends exactly at the boundary.
	*producer = size - 16
	*consumer = size - 16

	buf := make([]byte, 32)
	rec := wire.EncodeCommand(buf, wire.CmdFlush, 0, 0, struct{}{})
	if len(rec) != 16 {
		t.Fatalf("expected a bare 16-byte record, got %d", len(rec))
	}
	if err := w.Write(rec, nil); err != nil {
		t.Fatalf("Write at boundary: %v", err)
	}
	if r.Producer() != size {
		t.Fatalf("producer = %d, want %d (no wrap yet)", r.Producer(), size)
	}

	got, ok, err := rd.Read()
	if err != nil || !ok {
		t.Fatalf("Read at boundary: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, rec) {
		t.Fatalf("boundary record mismatch")
	}
	rd.Advance(16)

	// Move both cursors back to a tail position (size-16 within the
	// ring), then write a 32-byte record that must wrap: 16 bytes at the
	// tail, 16 bytes at offset 0.
	*producer = 2*size - 16
	*consumer = 2*size - 16
	rec2 := wire.EncodeCommand(buf, wire.CmdFence, 0, 0, wire.Fence{Value: 7})
	if len(rec2) != 32 {
		t.Fatalf("Fence record size = %d, want 32", len(rec2))
	}
	if err := w.Write(rec2, nil); err != nil {
		t.Fatalf("Write wrapping: %v", err)
	}
	if r.Producer() != 2*size+16 {
		t.Fatalf("producer after wrap = %d, want %d", r.Producer(), 2*size+16)
	}

	got2, ok2, err2 := rd.Read()
	if err2 != nil || !ok2 {
		t.Fatalf("Read wrapping: ok=%v err=%v", ok2, err2)
	}
	if !bytes.Equal(got2, rec2) {
		t.Fatalf("wrapped record mismatch: got %v want %v", got2, rec2)
	}
}

func TestReadInvalidFraming(t *testing.T) {
	r, producer, _ := newTestRing(256)
	// Fabricate a header claiming an unknown type.
	wire.PutHeader(r.buf, wire.Header{Type: wire.CommandType(9999), TotalSize: 16})
	*producer = 16

	rd := NewReader(r, 256)
	_, ok, err := rd.Read()
	if ok || err != ErrValidation {
		t.Fatalf("Read of corrupt header = ok=%v err=%v, want ErrValidation", ok, err)
	}
}

// TestConcurrentProducerConsumer exercises §8's universal invariant
// 0 <= producer-consumer <= ring_size under real goroutine concurrency
// (run with -race).
func TestConcurrentProducerConsumer(t *testing.T) {
	r, _, _ := newTestRing(4096)
	w := NewWriter(r)
	rd := NewReader(r, 4096)

	const n = 2000
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 32)
		for i := 0; i < n; i++ {
			rec := wire.EncodeCommand(buf, wire.CmdFence, 0, 0, wire.Fence{Value: uint64(i)})
			if err := w.Write(rec, done); err != nil {
				t.Errorf("Write %d: %v", i, err)
				return
			}
		}
	}()

	seen := 0
	deadline := time.After(10 * time.Second)
	for seen < n {
		select {
		case <-deadline:
			t.Fatalf("timed out after reading %d/%d records", seen, n)
		default:
		}
		rec, ok, err := rd.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !ok {
			continue
		}
		_, fence := wire.DecodeCommand[wire.Fence](rec)
		if fence.Value != uint64(seen) {
			t.Fatalf("out of order: got %d, want %d", fence.Value, seen)
		}
		rd.Advance(uint32(len(rec)))
		seen++
	}
	wg.Wait()
}
