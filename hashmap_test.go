package containers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapPutGet(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("a", 1)
	m.Put("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = m.Get("c")
	require.False(t, ok)
	require.Nil(t, m.GetPtr("c"))
	require.Equal(t, 2, m.Len())
}

func TestMapOverwrite(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("k", 1)
	m.Put("k", 2)
	require.Equal(t, 1, m.Len())

	v, _ := m.Get("k")
	require.Equal(t, 2, v)
}

func TestMapRemoveRoundTrip(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("k1", 1)
	m.Put("k2", 2)

	require.True(t, m.Remove("k1"))
	require.False(t, m.Remove("k1"), "second remove reports absence")

	_, ok := m.Get("k1")
	require.False(t, ok)
	v, ok := m.Get("k2")
	require.True(t, ok)
	require.Equal(t, 2, v, "removal must not disturb other keys")

	// Reinsert reuses the tombstoned bucket.
	require.Equal(t, 1, m.Tombstones())
	m.Put("k1", 10)
	require.Zero(t, m.Tombstones())
	v, ok = m.Get("k1")
	require.True(t, ok)
	require.Equal(t, 10, v)
}

func TestMapRehashRetainsEntries(t *testing.T) {
	h := NewHeapAllocator()
	m := NewMap[string, int](8, h, "test")
	defer m.Destroy()

	const n = 500 // forces several capacity-growing rehashes
	for i := 0; i < n; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, n, m.Len())
	require.Greater(t, m.Cap(), 8)

	for i := 0; i < n; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok, "key-%d lost in rehash", i)
		require.Equal(t, i, v)
	}
	// String keys are traced, so the map holds three live regions: the raw
	// slot table, the pinned key array, and the raw value array.
	require.Equal(t, 3, h.Live(), "rehash must free the previous generation's regions")
}

func TestMapCollisions(t *testing.T) {
	// A constant hash degenerates every operation into a linear probe,
	// exercising tombstone traversal and slot reuse.
	m := NewMapHasher[int, string](0, NewHeapAllocator(), "test", func(int) uint64 { return 42 })
	defer m.Destroy()

	for i := 0; i < 10; i++ {
		m.Put(i, fmt.Sprintf("v%d", i))
	}
	require.True(t, m.Remove(3))
	require.True(t, m.Remove(7))

	for i := 0; i < 10; i++ {
		v, ok := m.Get(i)
		if i == 3 || i == 7 {
			require.False(t, ok)
			continue
		}
		require.True(t, ok, "key %d must survive probing past tombstones", i)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}

	m.Put(3, "back")
	v, ok := m.Get(3)
	require.True(t, ok)
	require.Equal(t, "back", v)
}

func TestMapDenseRemovalSwapsLast(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	// Removing a middle entry moves the last dense pair into its place;
	// iteration order reflects the perturbation.
	require.True(t, m.Remove("a"))

	var keys []string
	m.Each(func(k string, v int) bool {
		keys = append(keys, k)
		return true
	})
	require.Equal(t, []string{"c", "b"}, keys)
}

func TestMapEachInsertionOrder(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("x", 1)
	m.Put("y", 2)
	m.Put("z", 3)

	var got []string
	m.Each(func(k string, v int) bool {
		got = append(got, k)
		return true
	})
	require.Equal(t, []string{"x", "y", "z"}, got, "dense order is insertion order before any removal")

	got = got[:0]
	m.Each(func(k string, v int) bool {
		got = append(got, k)
		return false
	})
	require.Len(t, got, 1, "Each stops when fn returns false")
}

func TestMapAltKey(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("needle", 7)

	v, ok := m.GetAlt(BytesKey("needle"))
	require.True(t, ok)
	require.Equal(t, 7, v)

	_, ok = m.GetAlt(BytesKey("haystack"))
	require.False(t, ok)

	require.True(t, m.RemoveAlt(BytesKey("needle")))
	_, ok = m.Get("needle")
	require.False(t, ok)
}

func TestMapClear(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	m.Put("a", 1)
	m.Put("b", 2)
	m.Remove("a")

	m.Clear()
	require.Zero(t, m.Len())
	require.Zero(t, m.Tombstones())
	_, ok := m.Get("b")
	require.False(t, ok)

	m.Put("a", 3)
	v, _ := m.Get("a")
	require.Equal(t, 3, v)
}

func TestMapMoveAndDestroy(t *testing.T) {
	h := NewHeapAllocator()
	m := NewMap[string, int](0, h, "test")
	m.Put("k", 1)

	moved := m.Move()
	require.Equal(t, 1, moved.Len())
	require.Panics(t, func() { m.Put("x", 2) }, "moved-from map is uninitialized")

	m.Destroy() // no-op on moved-from value
	require.Equal(t, 3, h.Live(), "slot table plus traced key and value regions")

	moved.Destroy()
	require.Zero(t, h.Live())
	moved.Destroy() // idempotent
}

func TestMapReadsNeverAllocate(t *testing.T) {
	h := NewHeapAllocator()
	m := NewMap[string, int](0, h, "test")
	defer m.Destroy()

	_, ok := m.Get("missing")
	require.False(t, ok)
	require.False(t, m.Remove("missing"))
	require.Zero(t, h.Live(), "get/remove on an empty map must not allocate")
}

func TestMapStringKeysSurviveCollection(t *testing.T) {
	m := NewMap[string, int](0, NewHeapAllocator(), "test")
	defer m.Destroy()

	const n = 2000
	for i := 0; i < n; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}

	// Nothing but the map references the key storage now; it must keep
	// that storage alive through collection on its own.
	churnHeap()

	for i := 0; i < n; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok, "key-%d lost after collection", i)
		require.Equal(t, i, v)
	}
	require.Equal(t, n, m.Len())
}

func TestMapStructValues(t *testing.T) {
	type entity struct {
		id   uint32
		name string
	}
	m := NewMap[uint64, entity](0, NewHeapAllocator(), "entities")
	defer m.Destroy()

	m.Put(99, entity{id: 1, name: "player"})
	p := m.GetPtr(99)
	require.NotNil(t, p)
	p.name = "renamed"

	v, _ := m.Get(99)
	require.Equal(t, "renamed", v.name)
}
