// Package containers implements an allocator-aware generic container core:
// a bump (arena) allocator, a growable dynamic array, an open-addressing
// hash map, a generational object pool, and a bounded double-ended ring
// buffer.
//
// # Overview
//
// Every container consumes an explicit Allocator capability instead of
// allocating behind the caller's back. This is aimed at workloads that want
// tight control over memory layout and lifetime:
//
//   - Frame- or request-scoped allocation with batch cleanup
//   - Entity/component stores that need stable addresses and cheap handles
//   - Producer/consumer queues between exactly two threads
//   - Reducing garbage collection pressure in hot loops
//
// # Basic Usage
//
//	heap := containers.NewHeapAllocator()
//
//	arr := containers.NewArray[int](0, heap, "scratch")
//	defer arr.Destroy()
//	arr.Add(42)
//
//	m := containers.NewMap[string, int](0, heap, "lookup")
//	defer m.Destroy()
//	m.Put("answer", 42)
//
// # Arena Allocation
//
// The Arena is itself an Allocator, so any container can be arena-backed:
//
//	buf := make([]byte, 1<<20)
//	arena := containers.NewArenaBuffer(buf)
//
//	tmp := containers.NewArray[float32](256, &arena, "frame")
//	// ... use tmp ...
//	arena.Reset() // O(1) cleanup; every pointer handed out is now invalid
//
// # Ownership and Lifecycle
//
// Each container exclusively owns one backing allocation and holds one
// allocator reference. Destroy releases the backing storage and clears the
// allocator reference; it is safe to call twice. Move transfers ownership
// and leaves the source in the uninitialized state. Containers are never
// implicitly copied; treat the value returned by a constructor or Move as
// the single live instance.
//
// # Error Model
//
// Two tiers, deliberately distinct:
//
//   - Programmer errors (out-of-bounds index, use after Destroy, stale pool
//     handle passed to Free) panic immediately.
//   - Resource exhaustion (allocator returns nil, pool or ring buffer at
//     capacity) is reported through a boolean or nil return that the caller
//     must check.
//
// No operation returns an error value and no operation retries internally.
//
// # Thread Safety
//
// The arena, array, map, and pool provide no internal synchronization;
// concurrent mutation requires external locking. The ring buffer is the one
// concurrency-aware type: it is safe for exactly one producer and one
// consumer operating on opposite ends (Add+Pop, or AddFirst+PopLast)
// without locks. See RingBuffer for the full contract.
//
// # Important Notes
//
//   - Memory handed out by an Arena is only valid until the next Reset.
//   - Element types the garbage collector must trace (string, slices,
//     anything with a pointer field) require an allocator implementing
//     TracedAllocator, such as HeapAllocator. The Arena serves untyped
//     memory only: arena-backed containers are restricted to pointer-free
//     element types, and AllocSlice panics if that is violated.
//   - Hash map growth invalidates every pointer previously returned by the
//     map; see Map.Put.
package containers
