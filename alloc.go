package containers

import (
	"reflect"
	"sync"
	"unsafe"
)

// Tag labels an allocation for diagnostics. Allocators may use it for
// accounting (see TrackingAllocator); it never affects placement.
type Tag string

// Allocator is the capability every container in this package consumes.
//
// Allocate returns nil on exhaustion; it never panics for lack of memory.
// align must be zero (meaning pointer alignment) or a power of two.
// Deallocate of nil is a no-op. Deallocate of a pointer not produced by the
// same allocator is a programmer error.
//
// Memory returned by Allocate is untyped: the garbage collector does not
// trace pointers stored in it. Element types that contain pointers (string,
// slices, maps, anything with a pointer field) must be served by a
// TracedAllocator instead; AllocSlice picks the right path automatically.
type Allocator interface {
	Allocate(tag Tag, size, align uintptr) unsafe.Pointer
	Deallocate(ptr unsafe.Pointer)
}

// TracedAllocator is an optional Allocator capability: Pin retains obj, a
// typed Go allocation of size bytes starting at ptr, until ptr is passed to
// Deallocate. Because the allocation is typed, the garbage collector keeps
// tracing pointers stored in it, so pointer-containing elements keep their
// pointees alive for as long as the container does.
type TracedAllocator interface {
	Allocator
	Pin(tag Tag, ptr unsafe.Pointer, size uintptr, obj any)
}

// ptrAlign is the alignment used when a caller passes align == 0.
const ptrAlign = unsafe.Alignof(uintptr(0))

// alignUp rounds n up to the next multiple of align (a power of two).
func alignUp(n, align uintptr) uintptr {
	mask := align - 1
	return (n + mask) &^ mask
}

// checkAlign normalizes and validates an alignment request.
func checkAlign(align uintptr) uintptr {
	if align == 0 {
		return ptrAlign
	}
	if align&(align-1) != 0 {
		panic("containers: alignment must be a power of two")
	}
	return align
}

// elemHasPointers reports whether the garbage collector must trace values
// of type T.
func elemHasPointers[T any]() bool {
	var zero T
	return typeHasPointers(reflect.TypeOf(&zero).Elem())
}

func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && typeHasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeHasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// Ptr, String, Slice, Map, Chan, Func, Interface, UnsafePointer.
		return true
	}
}

// HeapAllocator is an Allocator backed by the Go heap. It retains every
// live allocation in an internal registry so the memory stays reachable
// until Deallocate, which makes leaks observable (see Live) instead of
// silently collected. It also implements TracedAllocator, so containers of
// pointer-containing element types can be heap-backed.
//
// HeapAllocator is safe for concurrent use. The containers built on top of
// it are not; see the package documentation.
type HeapAllocator struct {
	mu   sync.Mutex
	live map[unsafe.Pointer]any
}

// NewHeapAllocator returns an empty heap allocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{live: make(map[unsafe.Pointer]any)}
}

// Allocate returns a pointer to size bytes aligned to align. The memory is
// zeroed and untyped. Returns nil only if the runtime itself cannot satisfy
// the request.
func (h *HeapAllocator) Allocate(tag Tag, size, align uintptr) unsafe.Pointer {
	align = checkAlign(align)
	if size == 0 {
		size = 1 // zero-size allocations still get a unique pointer
	}
	buf := make([]byte, size+align-1)
	base := uintptr(unsafe.Pointer(&buf[0]))
	off := alignUp(base, align) - base
	p := unsafe.Pointer(&buf[off])

	h.mu.Lock()
	h.live[p] = buf
	h.mu.Unlock()
	return p
}

// Pin retains a typed allocation until Deallocate is called on ptr.
func (h *HeapAllocator) Pin(tag Tag, ptr unsafe.Pointer, size uintptr, obj any) {
	h.mu.Lock()
	h.live[ptr] = obj
	h.mu.Unlock()
}

// Deallocate releases ptr. Passing nil is a no-op; passing a pointer this
// allocator does not own panics.
func (h *HeapAllocator) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[ptr]; !ok {
		panic("containers: heap deallocate of unknown pointer")
	}
	delete(h.live, ptr)
}

// Live returns the number of allocations that have not been deallocated.
func (h *HeapAllocator) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// AllocSlice allocates a slice of n elements of type T from a. Pointer-free
// element types are carved out of raw allocator memory; element types the
// garbage collector must trace are allocated as typed storage and pinned in
// the allocator, which therefore has to implement TracedAllocator (the
// Arena does not: arena-backed containers are restricted to pointer-free
// element types, and violating that panics here).
//
// Raw element memory is zeroed when a allocates fresh heap memory, but an
// Arena that has been Reset hands back dirty memory; callers that need
// zeroed elements should clear the slice themselves. Returns nil if n <= 0
// or on exhaustion.
func AllocSlice[T any](a Allocator, tag Tag, n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero) * uintptr(n)

	if elemHasPointers[T]() {
		traced, ok := a.(TracedAllocator)
		if !ok {
			panic("containers: pointer-containing element type requires a traced allocator")
		}
		s := make([]T, n)
		traced.Pin(tag, unsafe.Pointer(&s[0]), size, s)
		return s
	}

	p := a.Allocate(tag, size, unsafe.Alignof(zero))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*T)(p), n)
}

// FreeSlice returns a slice obtained from AllocSlice to its allocator.
// Passing nil is a no-op.
func FreeSlice[T any](a Allocator, s []T) {
	if len(s) == 0 {
		return
	}
	a.Deallocate(unsafe.Pointer(&s[0]))
}
