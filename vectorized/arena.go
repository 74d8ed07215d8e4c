package vectorized

import (
	"unsafe"
)

// Memory layout constants for vector buffers
const (
	// CACHE_LINE_SIZE is the alignment of every buffer handed out by an Arena
	CACHE_LINE_SIZE = 64

	// DEFAULT_ARENA_CHUNK is the chunk size used when an arena outgrows its
	// initial allocation
	DEFAULT_ARENA_CHUNK = 64 * 1024

	wordBytes = 8
)

// Arena is a recyclable bump allocator for pointer-free vector buffers.
// Memory is carved out of word-sized chunks with cache-line alignment.
// Reset rewinds the arena and keeps its chunks for the next batch; Release
// drops them.
type Arena struct {
	chunks    [][]uint64
	cur       int // index of the chunk being carved
	off       int // next free word within chunks[cur]
	chunkSize int // bytes per additional chunk
	used      int // bytes handed out since the last reset
	resets    int
}

// NewArena creates an arena whose first chunk holds initialBytes.
func NewArena(initialBytes int) *Arena {
	if initialBytes < CACHE_LINE_SIZE {
		initialBytes = CACHE_LINE_SIZE
	}
	a := &Arena{chunkSize: DEFAULT_ARENA_CHUNK}
	a.chunks = append(a.chunks, make([]uint64, (initialBytes+wordBytes-1)/wordBytes))
	return a
}

// alloc returns a zeroed, cache-line aligned region of at least size bytes.
func (a *Arena) alloc(size int) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	words := (size + wordBytes - 1) / wordBytes
	for {
		chunk := a.chunks[a.cur]
		base := uintptr(unsafe.Pointer(&chunk[0]))
		addr := base + uintptr(a.off*wordBytes)
		aligned := (addr + CACHE_LINE_SIZE - 1) &^ (CACHE_LINE_SIZE - 1)
		start := int(aligned-base) / wordBytes
		if start+words <= len(chunk) {
			region := chunk[start : start+words]
			clear(region)
			a.off = start + words
			a.used += words * wordBytes
			return unsafe.Pointer(&region[0])
		}
		a.nextChunk(words)
	}
}

// nextChunk moves to the next retained chunk that can hold words plus
// alignment slack, appending a new one when none is left.
func (a *Arena) nextChunk(words int) {
	need := words + CACHE_LINE_SIZE/wordBytes
	for a.cur+1 < len(a.chunks) {
		a.cur++
		a.off = 0
		if len(a.chunks[a.cur]) >= need {
			return
		}
	}
	size := a.chunkSize / wordBytes
	if size < need {
		size = need
	}
	a.chunks = append(a.chunks, make([]uint64, size))
	a.cur = len(a.chunks) - 1
	a.off = 0
}

func (a *Arena) Int16s(n int) []int16 {
	return unsafe.Slice((*int16)(a.alloc(n*2)), n)
}

func (a *Arena) Int32s(n int) []int32 {
	return unsafe.Slice((*int32)(a.alloc(n*4)), n)
}

func (a *Arena) Int64s(n int) []int64 {
	return unsafe.Slice((*int64)(a.alloc(n*8)), n)
}

func (a *Arena) Float32s(n int) []float32 {
	return unsafe.Slice((*float32)(a.alloc(n*4)), n)
}

func (a *Arena) Float64s(n int) []float64 {
	return unsafe.Slice((*float64)(a.alloc(n*8)), n)
}

func (a *Arena) Bools(n int) []bool {
	return unsafe.Slice((*bool)(a.alloc(n)), n)
}

// Words returns n zeroed 64-bit words, used for bitmaps.
func (a *Arena) Words(n int) []uint64 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(a.alloc(n*wordBytes)), n)
}

// Reset makes all memory available again without returning it to the runtime.
// Buffers handed out before the reset must not be used afterwards.
func (a *Arena) Reset() {
	a.cur = 0
	a.off = 0
	a.used = 0
	a.resets++
}

// Release drops every chunk. The arena must not be used afterwards.
func (a *Arena) Release() {
	a.chunks = nil
	a.cur = 0
	a.off = 0
	a.used = 0
}

// Used returns the bytes handed out since the last reset.
func (a *Arena) Used() int {
	return a.used
}

// Capacity returns the bytes currently retained by the arena.
func (a *Arena) Capacity() int {
	total := 0
	for _, c := range a.chunks {
		total += len(c) * wordBytes
	}
	return total
}

// Resets returns how many times the arena has been recycled.
func (a *Arena) Resets() int {
	return a.resets
}

// IsAligned reports whether p sits on a cache line boundary.
func IsAligned(p unsafe.Pointer) bool {
	return uintptr(p)%CACHE_LINE_SIZE == 0
}
