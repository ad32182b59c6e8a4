package containers

import "sync/atomic"

// cursorBias is the starting value of both ring cursors. Starting halfway
// through the uint64 range lets AddFirst decrement the head cursor below
// its start without unsigned wraparound for the practical lifetime of the
// buffer. Deliberate; not a bug.
const cursorBias uint64 = 1 << 63

// RingBuffer is a fixed-capacity double-ended queue. The head and tail
// cursors run freely and are reduced modulo the capacity for physical
// storage, so full and empty are distinguished by comparing the cursors
// themselves rather than physical indices.
//
// Concurrency contract: exactly one producer thread and one consumer thread
// may operate on opposite verbs concurrently without locks: Add with Pop,
// or AddFirst with PopLast. Each slot is written before the corresponding
// cursor is published and cleared before the cursor is retired, so each
// side only observes the other's update after the element transfer has
// fully completed. Two threads calling the same verb concurrently must be
// serialized externally.
type RingBuffer[T any] struct {
	first uint64 // accessed atomically
	last  uint64 // accessed atomically

	items []T
	alloc Allocator
	tag   Tag
}

// NewRingBuffer creates a ring buffer of exactly capacity slots backed by
// a. Capacity is fixed and must be positive; allocator exhaustion at
// construction is a hard fault.
func NewRingBuffer[T any](capacity int, a Allocator, tag Tag) RingBuffer[T] {
	if a == nil {
		panic("containers: nil allocator")
	}
	if capacity <= 0 {
		panic("containers: ring buffer capacity must be positive")
	}
	items := AllocSlice[T](a, tag, capacity)
	if items == nil {
		panic("containers: ring buffer allocation failed")
	}
	return RingBuffer[T]{
		first: cursorBias,
		last:  cursorBias,
		items: items,
		alloc: a,
		tag:   tag,
	}
}

// Len returns the number of buffered elements.
func (r *RingBuffer[T]) Len() int {
	return int(atomic.LoadUint64(&r.last) - atomic.LoadUint64(&r.first))
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int { return len(r.items) }

// Add appends v at the tail. Returns false if the buffer is full. Producer
// side of the Add+Pop pairing.
func (r *RingBuffer[T]) Add(v T) bool {
	r.mustBeInitialized()
	last := atomic.LoadUint64(&r.last)
	first := atomic.LoadUint64(&r.first)
	if last-first == uint64(len(r.items)) {
		return false
	}
	r.items[last%uint64(len(r.items))] = v
	// Publish only after the slot is fully written.
	atomic.StoreUint64(&r.last, last+1)
	return true
}

// AddFirst prepends v at the head. Returns false if the buffer is full.
// Producer side of the AddFirst+PopLast pairing.
func (r *RingBuffer[T]) AddFirst(v T) bool {
	r.mustBeInitialized()
	first := atomic.LoadUint64(&r.first)
	last := atomic.LoadUint64(&r.last)
	if last-first == uint64(len(r.items)) {
		return false
	}
	r.items[(first-1)%uint64(len(r.items))] = v
	atomic.StoreUint64(&r.first, first-1)
	return true
}

// Pop removes and returns the head element. Returns false if the buffer is
// empty. Consumer side of the Add+Pop pairing.
func (r *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	r.mustBeInitialized()
	first := atomic.LoadUint64(&r.first)
	last := atomic.LoadUint64(&r.last)
	if first == last {
		return zero, false
	}
	i := first % uint64(len(r.items))
	v := r.items[i]
	r.items[i] = zero
	// Retire the slot only after it no longer references the element.
	atomic.StoreUint64(&r.first, first+1)
	return v, true
}

// PopLast removes and returns the tail element. Returns false if the buffer
// is empty. Consumer side of the AddFirst+PopLast pairing.
func (r *RingBuffer[T]) PopLast() (T, bool) {
	var zero T
	r.mustBeInitialized()
	last := atomic.LoadUint64(&r.last)
	first := atomic.LoadUint64(&r.first)
	if first == last {
		return zero, false
	}
	i := (last - 1) % uint64(len(r.items))
	v := r.items[i]
	r.items[i] = zero
	atomic.StoreUint64(&r.last, last-1)
	return v, true
}

// First returns the head element without removing it. Returns false if the
// buffer is empty. Only safe on the consumer side of the Add+Pop pairing.
func (r *RingBuffer[T]) First() (T, bool) {
	var zero T
	r.mustBeInitialized()
	first := atomic.LoadUint64(&r.first)
	if first == atomic.LoadUint64(&r.last) {
		return zero, false
	}
	return r.items[first%uint64(len(r.items))], true
}

// Last returns the tail element without removing it. Returns false if the
// buffer is empty. Only safe on the consumer side of the AddFirst+PopLast
// pairing.
func (r *RingBuffer[T]) Last() (T, bool) {
	var zero T
	r.mustBeInitialized()
	last := atomic.LoadUint64(&r.last)
	if last == atomic.LoadUint64(&r.first) {
		return zero, false
	}
	return r.items[(last-1)%uint64(len(r.items))], true
}

// Move transfers ownership of the buffer to the returned value and leaves
// the receiver uninitialized (allocator-less). Must not race with any other
// operation.
func (r *RingBuffer[T]) Move() RingBuffer[T] {
	moved := RingBuffer[T]{
		first: atomic.LoadUint64(&r.first),
		last:  atomic.LoadUint64(&r.last),
		items: r.items,
		alloc: r.alloc,
		tag:   r.tag,
	}
	*r = RingBuffer[T]{}
	return moved
}

// Destroy zeroes the buffered elements, frees the backing storage, and
// clears the allocator reference. Idempotent. Must not race with any other
// operation.
func (r *RingBuffer[T]) Destroy() {
	if r.alloc == nil {
		return
	}
	clear(r.items)
	FreeSlice(r.alloc, r.items)
	*r = RingBuffer[T]{}
}

func (r *RingBuffer[T]) mustBeInitialized() {
	if r.items == nil {
		panic("containers: ring buffer used before init or after Destroy")
	}
}
