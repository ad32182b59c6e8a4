package containers

import "math"

const (
	// defaultArrayCapacity is the floor applied the first time an array
	// grows from zero capacity.
	defaultArrayCapacity = 64

	// growthNum/growthDen express the 1.75x geometric growth factor.
	growthNum = 7
	growthDen = 4

	// maxArrayCapacity keeps capacity*1.75 representable in 32 bits.
	maxArrayCapacity = int64(math.MaxUint32) * int64(growthDen) / int64(growthNum)
)

// Array is a growable, contiguous, typed sequence. Elements [0,Len) are
// live; the remainder of the backing buffer is unspecified memory. Growth
// is geometric and invalidates pointers previously returned by At.
//
// Not goroutine-safe.
type Array[T any] struct {
	items []T // backing buffer; len(items) is the capacity
	size  int
	alloc Allocator
	tag   Tag
}

// NewArray creates an array backed by a. With capacity == 0 no buffer is
// allocated until the first growth. Allocator exhaustion at construction is
// a hard fault (panic).
func NewArray[T any](capacity int, a Allocator, tag Tag) Array[T] {
	if a == nil {
		panic("containers: nil allocator")
	}
	arr := Array[T]{alloc: a, tag: tag}
	if capacity > 0 {
		arr.items = AllocSlice[T](a, tag, capacity)
		if arr.items == nil {
			panic("containers: array allocation failed")
		}
	}
	return arr
}

// Len returns the number of live elements.
func (arr *Array[T]) Len() int { return arr.size }

// Cap returns the capacity of the backing buffer.
func (arr *Array[T]) Cap() int { return len(arr.items) }

// At returns a pointer to the element at index i. The pointer is valid only
// until the next growth. Panics if i is out of bounds.
func (arr *Array[T]) At(i int) *T {
	arr.checkBounds(i)
	return &arr.items[i]
}

// Get returns the element at index i. Panics if i is out of bounds.
func (arr *Array[T]) Get(i int) T {
	arr.checkBounds(i)
	return arr.items[i]
}

// Set overwrites the element at index i. Panics if i is out of bounds.
func (arr *Array[T]) Set(i int, v T) {
	arr.checkBounds(i)
	arr.items[i] = v
}

// Slice returns the live elements as a slice view into the backing buffer.
// The view is invalidated by any growth.
func (arr *Array[T]) Slice() []T { return arr.items[:arr.size] }

// Add appends v, growing if needed.
func (arr *Array[T]) Add(v T) {
	arr.growIfNeeded(arr.size + 1)
	arr.items[arr.size] = v
	arr.size++
}

// AddMany appends every value in vs, growing at most once.
func (arr *Array[T]) AddMany(vs ...T) {
	if len(vs) == 0 {
		return
	}
	arr.growIfNeeded(arr.size + len(vs))
	copy(arr.items[arr.size:], vs)
	arr.size += len(vs)
}

// Insert places v at index pos, shifting the elements at [pos,Len) up by
// one. pos == Len appends. Panics if pos is out of [0,Len].
func (arr *Array[T]) Insert(pos int, v T) {
	if pos < 0 || pos > arr.size {
		panic("containers: array insert out of bounds")
	}
	arr.growIfNeeded(arr.size + 1)
	copy(arr.items[pos+1:arr.size+1], arr.items[pos:arr.size])
	arr.items[pos] = v
	arr.size++
}

// Remove deletes the n elements at [pos,pos+n), shifting the trailing
// elements down and preserving their relative order. Vacated slots are
// zeroed. Panics if the range is out of bounds.
func (arr *Array[T]) Remove(pos, n int) {
	if pos < 0 || n < 0 || pos+n > arr.size {
		panic("containers: array remove out of bounds")
	}
	if n == 0 {
		return
	}
	copy(arr.items[pos:], arr.items[pos+n:arr.size])
	clear(arr.items[arr.size-n : arr.size])
	arr.size -= n
}

// RemoveQuickSwap deletes the element at pos by moving the last element
// into its place and truncating. O(1) but does not preserve order. Panics
// if pos is out of bounds.
func (arr *Array[T]) RemoveQuickSwap(pos int) {
	arr.checkBounds(pos)
	last := arr.size - 1
	arr.items[pos] = arr.items[last]
	clear(arr.items[last : last+1])
	arr.size = last
}

// Find returns the index of the first live element satisfying pred.
func (arr *Array[T]) Find(pred func(T) bool) (int, bool) {
	for i := 0; i < arr.size; i++ {
		if pred(arr.items[i]) {
			return i, true
		}
	}
	return 0, false
}

// FindLast returns the index of the last live element satisfying pred.
func (arr *Array[T]) FindLast(pred func(T) bool) (int, bool) {
	for i := arr.size - 1; i >= 0; i-- {
		if pred(arr.items[i]) {
			return i, true
		}
	}
	return 0, false
}

// Clear removes every element without releasing the backing buffer.
func (arr *Array[T]) Clear() {
	clear(arr.items[:arr.size])
	arr.size = 0
}

// Move transfers ownership of the array to the returned value and leaves
// the receiver uninitialized (allocator-less).
func (arr *Array[T]) Move() Array[T] {
	moved := *arr
	*arr = Array[T]{}
	return moved
}

// Destroy zeroes the live elements, frees the backing buffer, and clears
// the allocator reference. Idempotent.
func (arr *Array[T]) Destroy() {
	if arr.alloc == nil {
		return
	}
	clear(arr.items[:arr.size])
	FreeSlice(arr.alloc, arr.items)
	*arr = Array[T]{}
}

// growIfNeeded ensures capacity for at least required elements. The new
// capacity is max(capacity*1.75, required), floored at defaultArrayCapacity
// when growing from zero. Exhaustion during growth is a hard fault.
func (arr *Array[T]) growIfNeeded(required int) {
	if required <= len(arr.items) {
		return
	}
	if arr.alloc == nil {
		panic("containers: array used before init or after Destroy")
	}

	newCap := len(arr.items) * growthNum / growthDen
	if len(arr.items) == 0 && newCap < defaultArrayCapacity {
		newCap = defaultArrayCapacity
	}
	if newCap < required {
		newCap = required
	}
	if int64(newCap) > maxArrayCapacity {
		panic("containers: array capacity limit exceeded")
	}

	grown := AllocSlice[T](arr.alloc, arr.tag, newCap)
	if grown == nil {
		panic("containers: array growth failed")
	}
	copy(grown, arr.items[:arr.size])
	if arr.items != nil {
		clear(arr.items[:arr.size])
		FreeSlice(arr.alloc, arr.items)
	}
	arr.items = grown
}

func (arr *Array[T]) checkBounds(i int) {
	if i < 0 || i >= arr.size {
		panic("containers: array index out of bounds")
	}
}
