// Package heap implements the bitmap block allocator of spec.md §4.3:
// fixed-size blocks tracked by a bitmap, served first-fit. It is
// grounded on fuse/bufferpool.go's fixed-size-class pooled buffers and
// splice/pool.go's free-list recycling, adapted from process-local
// pools to a bitmap over a shared byte range, because an allocation
// here must be expressible as a guest-visible offset rather than a Go
// slice header.
package heap

import "fmt"

// DefaultBlockSize is the spec's default block size (§4.3).
const DefaultBlockSize = 4096

// Allocator partitions a heap segment's byte range into fixed-size
// blocks and tracks occupancy with a bitmap. It is not safe for
// concurrent use by itself; the kernel agent guards it with an
// exclusive critical section (§4.3 "Concurrency"), which is
// kernelagent's responsibility, not this package's.
type Allocator struct {
	base      uint32 // heap segment's global offset
	blockSize uint32
	blocks    uint32
	bitmap    []uint64 // one bit per block, 1 = allocated
	free      uint32
}

// New creates an allocator over a heap segment of heapSize bytes
// starting at base (the region's heap_offset field), with the given
// block size. The block count is heapSize/blockSize, truncated down;
// any remainder is unused, matching §4.3's "rounds size up to a whole
// block count" framing for allocations, not for the segment itself.
func New(base, heapSize, blockSize uint32) (*Allocator, error) {
	if blockSize == 0 || heapSize < blockSize {
		return nil, fmt.Errorf("heap: invalid block size %d for heap of %d bytes", blockSize, heapSize)
	}
	blocks := heapSize / blockSize
	words := (blocks + 63) / 64
	return &Allocator{
		base:      base,
		blockSize: blockSize,
		blocks:    blocks,
		bitmap:    make([]uint64, words),
		free:      blocks,
	}, nil
}

// BlockSize, Blocks, and FreeBlocks report the allocator's
// configuration and live free-block count (for diagnostics and tests).
func (a *Allocator) BlockSize() uint32  { return a.blockSize }
func (a *Allocator) Blocks() uint32     { return a.blocks }
func (a *Allocator) FreeBlocks() uint32 { return a.free }

// Allocate reserves the first run of contiguous clear bits long enough
// to hold size bytes, respecting alignment (finer-than-block
// alignments collapse to block alignment, §4.3). It returns the global
// heap offset of the allocation. ErrHeapExhausted is the expected
// "no room" signal; the caller (kernelagent / userproducer) treats it
// as transient back-pressure per §4.3's fragmentation policy note.
func (a *Allocator) Allocate(size, alignment uint32) (offset uint32, allocatedSize uint32, err error) {
	if size == 0 {
		return 0, 0, fmt.Errorf("heap: zero-size allocation")
	}
	blockAlignStride := uint32(1)
	if alignment > a.blockSize {
		// A request coarser than block size must start on a multiple of
		// however many blocks that alignment spans.
		blockAlignStride = (alignment + a.blockSize - 1) / a.blockSize
	}
	need := (size + a.blockSize - 1) / a.blockSize

	start, ok := a.firstFitRun(need, blockAlignStride)
	if !ok {
		return 0, 0, errHeapExhausted
	}
	a.setRun(start, need)
	a.free -= need
	return a.base + start*a.blockSize, need * a.blockSize, nil
}

// errHeapExhausted is a sentinel distinct from wire.ErrHeapExhausted so
// this package has no import-cycle dependency on wire; kernelagent
// translates it at the escape boundary.
var errHeapExhausted = fmt.Errorf("heap: exhausted")

// ErrHeapExhausted is the sentinel Allocate returns when no run of
// free blocks satisfies the request.
var ErrHeapExhausted = errHeapExhausted

// Free releases the run of blocks covering [offset, offset+size).
// offset and size must exactly match a prior Allocate's return values;
// a mismatch or double-free returns ErrInvalidParameter without
// mutating the bitmap (§4.3 "does not corrupt the bitmap").
func (a *Allocator) Free(offset, size uint32) error {
	if offset < a.base || size == 0 || size%a.blockSize != 0 {
		return ErrInvalidParameter
	}
	rel := offset - a.base
	if rel%a.blockSize != 0 {
		return ErrInvalidParameter
	}
	start := rel / a.blockSize
	n := size / a.blockSize
	if start+n > a.blocks {
		return ErrInvalidParameter
	}
	if !a.runAllocated(start, n) {
		return ErrInvalidParameter
	}
	a.clearRun(start, n)
	a.free += n
	return nil
}

// ErrInvalidParameter mirrors wire.ErrInvalidParameter's meaning for
// this package without importing wire (see errHeapExhausted).
var ErrInvalidParameter = fmt.Errorf("heap: invalid parameter")

func (a *Allocator) bitSet(i uint32) bool {
	return a.bitmap[i/64]&(1<<(i%64)) != 0
}

func (a *Allocator) setRun(start, n uint32) {
	for i := start; i < start+n; i++ {
		a.bitmap[i/64] |= 1 << (i % 64)
	}
}

func (a *Allocator) clearRun(start, n uint32) {
	for i := start; i < start+n; i++ {
		a.bitmap[i/64] &^= 1 << (i % 64)
	}
}

func (a *Allocator) runAllocated(start, n uint32) bool {
	for i := start; i < start+n; i++ {
		if !a.bitSet(i) {
			return false
		}
	}
	return true
}

// firstFitRun scans for the first run of n contiguous clear bits whose
// start index is a multiple of stride (§4.3 "first-fit only"). It
// skips whole fully-occupied words in one step before falling back to
// a bit-by-bit check of the candidate run, so a mostly full heap
// doesn't cost a per-bit loop over its entire span.
func (a *Allocator) firstFitRun(n, stride uint32) (uint32, bool) {
	if n == 0 || n > a.blocks {
		return 0, false
	}
	for start := uint32(0); start+n <= a.blocks; {
		word := a.bitmap[start/64]
		if word == ^uint64(0) {
			// Whole word occupied: skip to the next word boundary aligned
			// to stride.
			next := (start/64 + 1) * 64
			start = alignUpStride(next, stride)
			continue
		}
		if a.runClear(start, n) {
			return start, true
		}
		start += stride
	}
	return 0, false
}

func alignUpStride(v, stride uint32) uint32 {
	if stride <= 1 {
		return v
	}
	return ((v + stride - 1) / stride) * stride
}

func (a *Allocator) runClear(start, n uint32) bool {
	for i := start; i < start+n; i++ {
		if a.bitSet(i) {
			return false
		}
	}
	return true
}
