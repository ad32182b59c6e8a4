package containers

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// churnHeap forces several collection cycles under allocation pressure, so
// storage the collector cannot see into would be reclaimed and reused.
func churnHeap() {
	for round := 0; round < 5; round++ {
		runtime.GC()
		churn := make([][]byte, 256)
		for i := range churn {
			churn[i] = make([]byte, 2048)
			churn[i][0] = byte(i)
		}
		runtime.KeepAlive(churn)
	}
}

func TestHeapAllocatorAlignment(t *testing.T) {
	tests := []struct {
		name  string
		size  uintptr
		align uintptr
	}{
		{"pointer alignment by default", 100, 0},
		{"byte aligned", 3, 1},
		{"word aligned", 24, 8},
		{"cache line aligned", 100, 64},
		{"page aligned", 1, 4096},
	}

	h := NewHeapAllocator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.Allocate("test", tt.size, tt.align)
			require.NotNil(t, p)
			want := tt.align
			if want == 0 {
				want = ptrAlign
			}
			require.Zero(t, uintptr(p)%want, "pointer not aligned to %d", want)
			h.Deallocate(p)
		})
	}
	require.Zero(t, h.Live())
}

func TestHeapAllocatorLive(t *testing.T) {
	h := NewHeapAllocator()

	p1 := h.Allocate("a", 16, 0)
	p2 := h.Allocate("b", 16, 0)
	require.Equal(t, 2, h.Live())

	h.Deallocate(p1)
	require.Equal(t, 1, h.Live())
	h.Deallocate(p2)
	require.Zero(t, h.Live())

	// nil is a no-op
	h.Deallocate(nil)
	require.Zero(t, h.Live())
}

func TestHeapAllocatorZeroSize(t *testing.T) {
	h := NewHeapAllocator()
	p1 := h.Allocate("zero", 0, 0)
	p2 := h.Allocate("zero", 0, 0)
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	require.NotEqual(t, p1, p2, "zero-size allocations must be distinct")
}

func TestHeapAllocatorUnknownPointerPanics(t *testing.T) {
	h := NewHeapAllocator()
	var x int
	require.Panics(t, func() { h.Deallocate(unsafe.Pointer(&x)) })
}

func TestAllocateBadAlignmentPanics(t *testing.T) {
	h := NewHeapAllocator()
	require.Panics(t, func() { h.Allocate("bad", 8, 3) })
}

func TestAllocSlice(t *testing.T) {
	h := NewHeapAllocator()

	s := AllocSlice[int64](h, "ints", 10)
	require.Len(t, s, 10)
	for i := range s {
		s[i] = int64(i)
	}
	require.Equal(t, int64(9), s[9])

	require.Nil(t, AllocSlice[int64](h, "ints", 0))
	require.Nil(t, AllocSlice[int64](h, "ints", -1))

	FreeSlice(h, s)
	FreeSlice[int64](h, nil) // no-op
	require.Zero(t, h.Live())
}

func TestAllocSliceAlignment(t *testing.T) {
	type vec4 struct{ x, y, z, w float32 }
	h := NewHeapAllocator()
	s := AllocSlice[vec4](h, "verts", 7)
	require.Len(t, s, 7)
	require.Zero(t, uintptr(unsafe.Pointer(&s[0]))%unsafe.Alignof(vec4{}))
	FreeSlice(h, s)
}

func TestAllocSliceExhaustion(t *testing.T) {
	arena := NewArenaBuffer(make([]byte, 16))
	require.Nil(t, AllocSlice[int64](&arena, "big", 100))
}

func TestElemHasPointers(t *testing.T) {
	type pod struct {
		a int64
		b [4]float32
	}
	type named struct {
		pod
		name string
	}

	require.False(t, elemHasPointers[int]())
	require.False(t, elemHasPointers[[8]byte]())
	require.False(t, elemHasPointers[pod]())
	require.False(t, elemHasPointers[struct{}]())

	require.True(t, elemHasPointers[string]())
	require.True(t, elemHasPointers[[]byte]())
	require.True(t, elemHasPointers[*int]())
	require.True(t, elemHasPointers[named]())
	require.True(t, elemHasPointers[[2]string]())
	require.True(t, elemHasPointers[map[int]int]())
}

func TestAllocSliceTraced(t *testing.T) {
	h := NewHeapAllocator()

	s := AllocSlice[string](h, "strs", 4)
	require.Len(t, s, 4)
	require.Equal(t, 1, h.Live(), "typed allocations are pinned in the registry")

	s[0] = "hello"
	FreeSlice(h, s)
	require.Zero(t, h.Live())
}

func TestAllocSliceRejectsUntracedPointers(t *testing.T) {
	arena := NewArenaBuffer(make([]byte, 4096))

	require.Panics(t, func() { AllocSlice[string](&arena, "test", 4) })
	require.Panics(t, func() { NewArray[[]byte](4, &arena, "test") })

	// Pointer-free element types still come straight out of the arena.
	require.NotNil(t, AllocSlice[uint64](&arena, "test", 4))
}
