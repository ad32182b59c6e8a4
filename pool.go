package containers

import "unsafe"

const (
	poolVersionMask = 0x7f // low 7 bits of slot metadata
	poolActiveBit   = 0x80 // high bit: slot currently holds a live value
	poolMaxVersion  = 127  // versions wrap 127 -> 1; 0 means "never issued"
)

// Handle names a value inside a Pool. It is produced by Alloc and validated
// by Get and Free: the version lets a lookup detect that the slot it names
// has been recycled since the handle was issued. The zero Handle is never
// valid (version 0 is reserved).
type Handle struct {
	Index   uint32
	Version uint8
}

// Pool is a fixed-capacity container issuing stable-address, version-checked
// handles. Values are never relocated once allocated, so a *T returned by
// Get stays valid for the life of the pool, but every access must
// revalidate the handle, because the slot may have been freed and handed to
// a different logical value in the interim. The pool never grows.
//
// Not goroutine-safe.
type Pool[T any] struct {
	block unsafe.Pointer // combined allocation; holds only meta+free when T is traced
	items []T            // dense values; addresses stable
	meta  []uint8        // per-slot active bit + 7-bit version
	free  []uint32       // free-index stack storage

	issued  int  // slots ever handed out; dense high-water mark
	freeLen int  // live entries on the free stack
	traced  bool // T contains pointers; items are a typed allocation
	alloc   Allocator
	tag     Tag
}

// NewPool creates a pool of exactly capacity slots backed by a. Capacity is
// fixed for the life of the pool; allocator exhaustion at construction is a
// hard fault.
func NewPool[T any](capacity int, a Allocator, tag Tag) Pool[T] {
	if a == nil {
		panic("containers: nil allocator")
	}
	if capacity <= 0 {
		panic("containers: pool capacity must be positive")
	}

	var (
		zeroItem T
		itemSize = unsafe.Sizeof(zeroItem)
	)
	n := uintptr(capacity)
	p := Pool[T]{traced: elemHasPointers[T](), alloc: a, tag: tag}

	// Values the garbage collector must trace live in a typed allocation;
	// the combined block then carries only the metadata regions.
	itemsOff := uintptr(0)
	if p.traced {
		p.items = AllocSlice[T](a, tag, capacity)
	} else {
		itemsOff = alignUp(n*itemSize, 1)
	}
	freeOff := alignUp(itemsOff+n, unsafe.Alignof(uint32(0)))
	total := freeOff + n*unsafe.Sizeof(uint32(0))

	align := unsafe.Alignof(zeroItem)
	if unsafe.Alignof(uint32(0)) > align {
		align = unsafe.Alignof(uint32(0))
	}

	block := a.Allocate(tag, total, align)
	if block == nil {
		panic("containers: pool allocation failed")
	}

	p.block = block
	if !p.traced {
		p.items = unsafe.Slice((*T)(block), capacity)
	}
	p.meta = unsafe.Slice((*uint8)(unsafe.Add(block, itemsOff)), capacity)
	p.free = unsafe.Slice((*uint32)(unsafe.Add(block, freeOff)), capacity)
	clear(p.meta) // allocators may hand back dirty memory (arena reuse)
	return p
}

// Len returns the number of live values.
func (p *Pool[T]) Len() int { return p.issued - p.freeLen }

// Cap returns the fixed capacity.
func (p *Pool[T]) Cap() int { return len(p.items) }

// Alloc stores v in a slot and returns its handle. Returns false when the
// pool is at capacity. The slot's version is bumped (wrapping 127 -> 1) so
// the handle can never collide with handles issued for earlier occupants of
// the same slot.
func (p *Pool[T]) Alloc(v T) (Handle, bool) {
	p.mustBeInitialized()

	var idx uint32
	if p.freeLen > 0 {
		p.freeLen--
		idx = p.free[p.freeLen]
	} else {
		if p.issued == len(p.items) {
			return Handle{}, false
		}
		idx = uint32(p.issued)
		p.issued++
	}

	p.items[idx] = v
	version := p.meta[idx]&poolVersionMask + 1
	if version > poolMaxVersion {
		version = 1
	}
	p.meta[idx] = poolActiveBit | version
	return Handle{Index: idx, Version: version}, true
}

// Get returns a pointer to the value named by h, or nil if h is stale: the
// index was never issued, the slot is not active, or the slot has been
// recycled since h was issued. This is the sole validity check.
func (p *Pool[T]) Get(h Handle) *T {
	if int(h.Index) >= p.issued {
		return nil
	}
	m := p.meta[h.Index]
	if m&poolActiveBit == 0 || m&poolVersionMask != h.Version {
		return nil
	}
	return &p.items[h.Index]
}

// Alive reports whether h still names a live value.
func (p *Pool[T]) Alive(h Handle) bool { return p.Get(h) != nil }

// Free releases the slot named by h, overwriting the value with the zero
// value of T. Passing a stale or already-freed handle is a programmer error
// and panics.
func (p *Pool[T]) Free(h Handle) {
	var zero T
	p.FreeEmpty(h, zero)
}

// FreeEmpty releases the slot named by h, assigning empty into the slot so
// no stale references are retained by value. The slot's version is kept
// (the next Alloc bumps it), the active bit is cleared, and the index is
// pushed on the free stack.
func (p *Pool[T]) FreeEmpty(h Handle, empty T) {
	p.mustBeInitialized()
	if int(h.Index) >= p.issued {
		panic("containers: pool free with out-of-range handle")
	}
	m := p.meta[h.Index]
	if m&poolActiveBit == 0 {
		panic("containers: pool double free")
	}
	if m&poolVersionMask != h.Version {
		panic("containers: pool free with stale handle")
	}

	p.items[h.Index] = empty
	p.meta[h.Index] = m &^ poolActiveBit
	p.free[p.freeLen] = h.Index
	p.freeLen++
}

// Move transfers ownership of the pool to the returned value and leaves the
// receiver uninitialized (allocator-less).
func (p *Pool[T]) Move() Pool[T] {
	moved := *p
	*p = Pool[T]{}
	return moved
}

// Destroy zeroes the issued values, frees the backing storage, and clears
// the allocator reference. Every outstanding handle becomes invalid.
// Idempotent.
func (p *Pool[T]) Destroy() {
	if p.alloc == nil {
		return
	}
	clear(p.items[:p.issued])
	if p.traced {
		FreeSlice(p.alloc, p.items)
	}
	p.alloc.Deallocate(p.block)
	*p = Pool[T]{}
}

func (p *Pool[T]) mustBeInitialized() {
	if p.alloc == nil {
		panic("containers: pool used before init or after Destroy")
	}
}
