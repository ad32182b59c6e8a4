package containers

import (
	"hash/maphash"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

const (
	// minMapCapacity is the smallest slot table a rehash will produce.
	minMapCapacity = 16

	// maxMapLoadNum/maxMapLoadDen express the 0.80 load factor at which
	// Put rehashes, counting tombstones as load.
	maxMapLoadNum = 4
	maxMapLoadDen = 5
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

// mapSlot is one entry of the probe table: a state and, when occupied, the
// index of the pair in the dense key/value arrays.
type mapSlot struct {
	state slotState
	index uint32
}

// AltKey is an alternate lookup key for a map keyed by K: a cheaper
// stand-in (for example a borrowed byte view for a string-keyed map) that
// hashes and compares identically to the primary key it represents. The
// caller is responsible for that consistency; see BytesKey.
type AltKey[K any] interface {
	Hash() uint64
	EqualKey(K) bool
}

// BytesKey adapts a borrowed byte slice as an AltKey for string-keyed maps
// using the default hasher, avoiding a string allocation per lookup.
type BytesKey []byte

// Hash returns the same value the default string hasher produces for
// string(b).
func (b BytesKey) Hash() uint64 { return xxhash.Sum64(b) }

// EqualKey reports whether b spells the key s.
func (b BytesKey) EqualKey(s string) bool { return string(b) == s }

// Map is a capacity-bounded open-addressing hash map: a slot table plus
// dense key and value arrays; live pairs occupy the dense arrays
// contiguously at [0,Len). With pointer-free key and value types all three
// regions are carved out of one combined allocation; when either type must
// be traced by the garbage collector, the dense arrays are allocated as
// typed storage instead (see AllocSlice).
//
// Put may grow the map, which invalidates every pointer previously returned
// by GetPtr. Iteration order is dense-array order: insertion order until a
// removal perturbs it.
//
// Not goroutine-safe.
type Map[K comparable, V any] struct {
	block unsafe.Pointer // the combined allocation; nil when regions are typed
	slots []mapSlot
	keys  []K
	vals  []V

	size       int
	tombstones int
	typed      bool // keys or values contain pointers
	hash       func(K) uint64
	alloc      Allocator
	tag        Tag
}

// NewMap creates a map backed by a with the default hasher: xxhash for
// string keys, hash/maphash for every other comparable key type. With
// capacity == 0 no buffer is allocated until the first Put.
func NewMap[K comparable, V any](capacity int, a Allocator, tag Tag) Map[K, V] {
	return NewMapHasher[K, V](capacity, a, tag, defaultHasher[K]())
}

// NewMapHasher creates a map using a caller-supplied hash function. The
// function must be deterministic for the life of the map.
func NewMapHasher[K comparable, V any](capacity int, a Allocator, tag Tag, hash func(K) uint64) Map[K, V] {
	if a == nil {
		panic("containers: nil allocator")
	}
	if hash == nil {
		panic("containers: nil hash function")
	}
	m := Map[K, V]{
		typed: elemHasPointers[K]() || elemHasPointers[V](),
		hash:  hash,
		alloc: a,
		tag:   tag,
	}
	if capacity > 0 {
		m.reallocate(capacity)
	}
	return m
}

// defaultHasher picks a hash function for K: xxhash for strings (so byte
// views can reproduce it, see BytesKey), a seeded maphash for everything
// else.
func defaultHasher[K comparable]() func(K) uint64 {
	var zero K
	if _, ok := any(zero).(string); ok {
		return func(k K) uint64 { return xxhash.Sum64String(any(k).(string)) }
	}
	seed := maphash.MakeSeed()
	return func(k K) uint64 { return maphash.Comparable(seed, k) }
}

// Len returns the number of live pairs.
func (m *Map[K, V]) Len() int { return m.size }

// Cap returns the current slot-table capacity.
func (m *Map[K, V]) Cap() int { return len(m.slots) }

// Tombstones returns the number of slots consumed by removals since the
// last rehash.
func (m *Map[K, V]) Tombstones() int { return m.tombstones }

// Get returns the value for key and whether it was present. Never mutates
// the map.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if p := m.GetPtr(key); p != nil {
		return *p, true
	}
	var zero V
	return zero, false
}

// GetPtr returns a pointer to the value for key, or nil if absent. The
// pointer is valid only until the next Put or Remove. Never mutates the
// map.
func (m *Map[K, V]) GetPtr(key K) *V {
	if m.size == 0 {
		return nil
	}
	occ, _ := m.findSlot(m.hash(key), func(k K) bool { return k == key })
	if occ < 0 {
		return nil
	}
	return &m.vals[m.slots[occ].index]
}

// GetAlt looks key up through an alternate key without materializing a K.
func (m *Map[K, V]) GetAlt(alt AltKey[K]) (V, bool) {
	var zero V
	if m.size == 0 {
		return zero, false
	}
	occ, _ := m.findSlot(alt.Hash(), alt.EqualKey)
	if occ < 0 {
		return zero, false
	}
	return m.vals[m.slots[occ].index], true
}

// Put inserts or overwrites the value for key. If the table is at the 0.80
// load factor (tombstones included) the map first rehashes into a table
// grown by 1.75x, invalidating every previously returned pointer.
// Allocator exhaustion during growth is a hard fault.
func (m *Map[K, V]) Put(key K, value V) {
	m.mustBeInitialized()
	if m.slots == nil {
		m.reallocate(minMapCapacity)
	}
	if (m.size+m.tombstones)*maxMapLoadDen >= len(m.slots)*maxMapLoadNum {
		m.rehash(grownMapCapacity(len(m.slots)))
	}

	occ, ins := m.findSlot(m.hash(key), func(k K) bool { return k == key })
	if occ >= 0 {
		m.vals[m.slots[occ].index] = value
		return
	}

	s := &m.slots[ins]
	if s.state == slotTombstone {
		m.tombstones--
	}
	s.state = slotOccupied
	s.index = uint32(m.size)
	m.keys[m.size] = key
	m.vals[m.size] = value
	m.size++
}

// Remove deletes key, reporting whether it was present. O(1) amortized: the
// removed pair is swapped with the last dense pair and the freed slot is
// tombstoned. Never rehashes.
func (m *Map[K, V]) Remove(key K) bool {
	if m.size == 0 {
		return false
	}
	occ, _ := m.findSlot(m.hash(key), func(k K) bool { return k == key })
	return m.removeSlot(occ)
}

// RemoveAlt deletes the key identified by an alternate key.
func (m *Map[K, V]) RemoveAlt(alt AltKey[K]) bool {
	if m.size == 0 {
		return false
	}
	occ, _ := m.findSlot(alt.Hash(), alt.EqualKey)
	return m.removeSlot(occ)
}

func (m *Map[K, V]) removeSlot(occ int) bool {
	if occ < 0 {
		return false
	}
	di := int(m.slots[occ].index)
	last := m.size - 1

	if di != last {
		// Move the last dense pair into the vacated dense position and
		// repoint the slot that referenced it. Keys are unique, so probing
		// for keys[last] finds exactly that slot.
		lastKey := m.keys[last]
		lastOcc, _ := m.findSlot(m.hash(lastKey), func(k K) bool { return k == lastKey })
		m.keys[di] = m.keys[last]
		m.vals[di] = m.vals[last]
		m.slots[lastOcc].index = uint32(di)
	}

	clear(m.keys[last : last+1])
	clear(m.vals[last : last+1])
	m.size = last
	m.slots[occ].state = slotTombstone
	m.tombstones++
	return true
}

// Each calls fn for every live pair in dense order, stopping early if fn
// returns false. The map must not be mutated during iteration.
func (m *Map[K, V]) Each(fn func(K, V) bool) {
	for i := 0; i < m.size; i++ {
		if !fn(m.keys[i], m.vals[i]) {
			return
		}
	}
}

// Clear removes every pair and resets every slot to empty without
// releasing the backing allocation.
func (m *Map[K, V]) Clear() {
	for i := range m.slots {
		m.slots[i] = mapSlot{}
	}
	clear(m.keys[:m.size])
	clear(m.vals[:m.size])
	m.size = 0
	m.tombstones = 0
}

// Move transfers ownership of the map to the returned value and leaves the
// receiver uninitialized (allocator-less).
func (m *Map[K, V]) Move() Map[K, V] {
	moved := *m
	*m = Map[K, V]{}
	return moved
}

// Destroy zeroes the live pairs, frees the backing storage, and clears the
// allocator reference. Idempotent.
func (m *Map[K, V]) Destroy() {
	if m.alloc == nil {
		return
	}
	clear(m.keys[:m.size])
	clear(m.vals[:m.size])
	m.release(m.block, m.slots, m.keys, m.vals)
	*m = Map[K, V]{}
}

// findSlot probes linearly from hash mod capacity. It returns the index of
// the occupied slot whose key satisfies eq (or -1), and the first
// non-occupied slot seen along the probe (the insertion point, or -1 if the
// match was found first). Probing stops at the first empty slot: with load
// factor < 1 a present key is always found before any empty slot beyond it.
func (m *Map[K, V]) findSlot(hash uint64, eq func(K) bool) (occ, ins int) {
	capacity := len(m.slots)
	occ, ins = -1, -1
	i := int(hash % uint64(capacity))
	for probed := 0; probed < capacity; probed++ {
		s := &m.slots[i]
		switch s.state {
		case slotEmpty:
			if ins < 0 {
				ins = i
			}
			return occ, ins
		case slotTombstone:
			if ins < 0 {
				ins = i
			}
		case slotOccupied:
			if eq(m.keys[s.index]) {
				occ = i
				return occ, ins
			}
		}
		i++
		if i == capacity {
			i = 0
		}
	}
	return occ, ins
}

// grownMapCapacity implements the (capacity+1) * 1.75 growth schedule with
// the minimum floor. The +1 guarantees strict growth at tiny capacities.
func grownMapCapacity(capacity int) int {
	grown := (capacity + 1) * growthNum / growthDen
	if grown < minMapCapacity {
		grown = minMapCapacity
	}
	return grown
}

// rehash moves the map into a freshly allocated table of newCapacity slots:
// every slot is reset to empty, live pairs keep their dense order and are
// reinserted, and tombstones are discarded.
func (m *Map[K, V]) rehash(newCapacity int) {
	oldBlock, oldSlots := m.block, m.slots
	oldKeys, oldVals, oldSize := m.keys, m.vals, m.size

	m.reallocate(newCapacity)
	copy(m.keys, oldKeys[:oldSize])
	copy(m.vals, oldVals[:oldSize])
	m.size = oldSize
	m.tombstones = 0

	for i := 0; i < oldSize; i++ {
		_, ins := m.findSlot(m.hash(m.keys[i]), func(K) bool { return false })
		m.slots[ins] = mapSlot{state: slotOccupied, index: uint32(i)}
	}

	if oldSlots != nil {
		clear(oldKeys[:oldSize])
		clear(oldVals[:oldSize])
		m.release(oldBlock, oldSlots, oldKeys, oldVals)
	}
}

// reallocate replaces the map's backing storage with capacity slots. With
// pointer-free keys and values one combined allocation is carved into the
// three regions; otherwise the dense arrays go through AllocSlice so the
// garbage collector keeps tracing them. The slot table is cleared
// explicitly because allocators may hand back dirty memory (arena reuse).
func (m *Map[K, V]) reallocate(capacity int) {
	if m.typed {
		slots := AllocSlice[mapSlot](m.alloc, m.tag, capacity)
		keys := AllocSlice[K](m.alloc, m.tag, capacity)
		vals := AllocSlice[V](m.alloc, m.tag, capacity)
		if slots == nil || keys == nil || vals == nil {
			panic("containers: map allocation failed")
		}
		m.block = nil
		m.slots, m.keys, m.vals = slots, keys, vals
	} else {
		var (
			zeroSlot mapSlot
			zeroKey  K
			zeroVal  V
		)
		slotSize, slotAlign := unsafe.Sizeof(zeroSlot), unsafe.Alignof(zeroSlot)
		keySize, keyAlign := unsafe.Sizeof(zeroKey), unsafe.Alignof(zeroKey)
		valSize, valAlign := unsafe.Sizeof(zeroVal), unsafe.Alignof(zeroVal)

		n := uintptr(capacity)
		keyOff := alignUp(n*slotSize, keyAlign)
		valOff := alignUp(keyOff+n*keySize, valAlign)
		total := valOff + n*valSize

		align := slotAlign
		if keyAlign > align {
			align = keyAlign
		}
		if valAlign > align {
			align = valAlign
		}

		block := m.alloc.Allocate(m.tag, total, align)
		if block == nil {
			panic("containers: map allocation failed")
		}
		m.block = block
		m.slots = unsafe.Slice((*mapSlot)(block), capacity)
		m.keys = unsafe.Slice((*K)(unsafe.Add(block, keyOff)), capacity)
		m.vals = unsafe.Slice((*V)(unsafe.Add(block, valOff)), capacity)
	}

	for i := range m.slots {
		m.slots[i] = mapSlot{}
	}
	m.size = 0
	m.tombstones = 0
}

// release frees one generation of backing storage: the combined block when
// there is one, the three separate regions otherwise.
func (m *Map[K, V]) release(block unsafe.Pointer, slots []mapSlot, keys []K, vals []V) {
	if block != nil {
		m.alloc.Deallocate(block)
		return
	}
	FreeSlice(m.alloc, slots)
	FreeSlice(m.alloc, keys)
	FreeSlice(m.alloc, vals)
}

func (m *Map[K, V]) mustBeInitialized() {
	if m.alloc == nil {
		panic("containers: map used before init or after Destroy")
	}
}
