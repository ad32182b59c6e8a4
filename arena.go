package containers

import "unsafe"

// Arena is a bump allocator over one fixed buffer. Allocations advance a
// cursor; individual allocations cannot be freed. Reset rewinds the cursor
// to zero, invalidating every pointer previously handed out.
//
// Arena implements Allocator, so the other containers in this package can
// be arena-backed. Not goroutine-safe.
type Arena struct {
	buf     []byte
	cursor  uintptr
	padding uintptr
}

// NewArenaBuffer creates an Arena over a caller-supplied buffer. The arena
// borrows the buffer; Destroy does not free it.
func NewArenaBuffer(buf []byte) Arena {
	return Arena{buf: buf}
}

// Allocate returns a pointer to size bytes aligned to align, or nil if the
// remaining buffer cannot fit the request. Alignment padding is consumed
// from the buffer and accumulated in a diagnostic counter (see Padding).
func (a *Arena) Allocate(tag Tag, size, align uintptr) unsafe.Pointer {
	a.panicIfDestroyed()
	align = checkAlign(align)
	if size == 0 {
		size = 1 // zero-size allocations still get a unique pointer
	}
	if len(a.buf) == 0 {
		return nil
	}

	base := uintptr(unsafe.Pointer(&a.buf[0]))
	pad := alignUp(base+a.cursor, align) - (base + a.cursor)
	if a.cursor+pad+size > uintptr(len(a.buf)) {
		return nil
	}
	p := unsafe.Pointer(&a.buf[a.cursor+pad])
	a.cursor += pad + size
	a.padding += pad
	return p
}

// Deallocate is a no-op: arena memory is reclaimed only by Reset.
func (a *Arena) Deallocate(ptr unsafe.Pointer) {}

// Reset rewinds the cursor to zero. O(1). Every pointer previously returned
// by Allocate is invalid afterwards; the memory is not zeroed.
func (a *Arena) Reset() {
	a.panicIfDestroyed()
	a.cursor = 0
	a.padding = 0
}

// SizeInUse returns the number of buffer bytes consumed so far, alignment
// padding included.
func (a *Arena) SizeInUse() int {
	return int(a.cursor)
}

// Capacity returns the size of the backing buffer in bytes.
func (a *Arena) Capacity() int {
	return len(a.buf)
}

// Padding returns the total bytes lost to alignment since the last Reset.
func (a *Arena) Padding() int {
	return int(a.padding)
}

// Utilization returns the ratio of bytes in use to capacity (0.0 to 1.0).
// Returns 0.0 if the arena has no capacity.
func (a *Arena) Utilization() float64 {
	if len(a.buf) == 0 {
		return 0
	}
	return float64(a.cursor) / float64(len(a.buf))
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() ArenaMetrics {
	return ArenaMetrics{
		SizeInUse:   a.SizeInUse(),
		Capacity:    a.Capacity(),
		Padding:     a.Padding(),
		Utilization: a.Utilization(),
	}
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	SizeInUse   int     // bytes consumed, padding included
	Capacity    int     // buffer size in bytes
	Padding     int     // bytes lost to alignment
	Utilization float64 // SizeInUse / Capacity (0.0-1.0)
}

// Move transfers ownership of the arena state to the returned value and
// leaves the receiver destroyed.
func (a *Arena) Move() Arena {
	moved := *a
	*a = Arena{}
	return moved
}

// Destroy detaches the arena from its buffer. The buffer itself belongs to
// the caller (or to ArenaHeap). Idempotent; any subsequent Allocate or
// Reset panics.
func (a *Arena) Destroy() {
	*a = Arena{}
}

func (a *Arena) panicIfDestroyed() {
	if a.buf == nil {
		panic("containers: arena used after Destroy")
	}
}

// ArenaHeap is an Arena whose buffer comes from an upstream allocator as a
// single block. Destroy tears the arena down and returns the block.
type ArenaHeap struct {
	Arena
	upstream Allocator
}

// NewArenaHeap allocates a capacity-byte buffer from upstream and builds an
// Arena over it. Returns false if upstream is exhausted.
func NewArenaHeap(capacity int, upstream Allocator, tag Tag) (ArenaHeap, bool) {
	buf := AllocSlice[byte](upstream, tag, capacity)
	if buf == nil {
		return ArenaHeap{}, false
	}
	return ArenaHeap{Arena: NewArenaBuffer(buf), upstream: upstream}, true
}

// Move transfers ownership to the returned value and leaves the receiver
// destroyed.
func (h *ArenaHeap) Move() ArenaHeap {
	moved := ArenaHeap{Arena: h.Arena.Move(), upstream: h.upstream}
	h.upstream = nil
	return moved
}

// Destroy tears down the arena and frees the one upstream block. Idempotent.
func (h *ArenaHeap) Destroy() {
	if h.upstream == nil {
		return
	}
	buf := h.buf
	h.Arena.Destroy()
	FreeSlice(h.upstream, buf)
	h.upstream = nil
}
