package containers

import (
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// TagStats is an accounting snapshot for one allocation tag.
type TagStats struct {
	LiveCount  int // allocations not yet deallocated
	LiveBytes  int // bytes held by live allocations
	TotalCount int // allocations ever made under this tag
}

// TrackingAllocator wraps another Allocator and accounts for every
// allocation per Tag. Destroy reports whatever is still live through the
// injected logger, which makes it a cheap leak detector to wire into tests
// and debug builds.
//
// TrackingAllocator is safe for concurrent use if the wrapped allocator is.
type TrackingAllocator struct {
	inner Allocator
	log   logrus.FieldLogger

	mu    sync.Mutex
	byTag map[Tag]TagStats
	byPtr map[unsafe.Pointer]allocRecord
}

type allocRecord struct {
	tag  Tag
	size uintptr
}

// NewTrackingAllocator wraps inner. log may be nil, in which case leaks are
// still counted by Destroy but nothing is reported.
func NewTrackingAllocator(inner Allocator, log logrus.FieldLogger) *TrackingAllocator {
	return &TrackingAllocator{
		inner: inner,
		log:   log,
		byTag: make(map[Tag]TagStats),
		byPtr: make(map[unsafe.Pointer]allocRecord),
	}
}

// Allocate forwards to the wrapped allocator and records the result.
func (t *TrackingAllocator) Allocate(tag Tag, size, align uintptr) unsafe.Pointer {
	p := t.inner.Allocate(tag, size, align)
	if p == nil {
		return nil
	}
	t.mu.Lock()
	s := t.byTag[tag]
	s.LiveCount++
	s.LiveBytes += int(size)
	s.TotalCount++
	t.byTag[tag] = s
	t.byPtr[p] = allocRecord{tag: tag, size: size}
	t.mu.Unlock()
	return p
}

// Pin forwards a typed allocation to the wrapped allocator, which must
// itself implement TracedAllocator, and records it like any other
// allocation.
func (t *TrackingAllocator) Pin(tag Tag, ptr unsafe.Pointer, size uintptr, obj any) {
	traced, ok := t.inner.(TracedAllocator)
	if !ok {
		panic("containers: pointer-containing element type requires a traced allocator")
	}
	traced.Pin(tag, ptr, size, obj)

	t.mu.Lock()
	s := t.byTag[tag]
	s.LiveCount++
	s.LiveBytes += int(size)
	s.TotalCount++
	t.byTag[tag] = s
	t.byPtr[ptr] = allocRecord{tag: tag, size: size}
	t.mu.Unlock()
}

// Deallocate forwards to the wrapped allocator and settles the record.
func (t *TrackingAllocator) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	t.mu.Lock()
	rec, ok := t.byPtr[ptr]
	if !ok {
		t.mu.Unlock()
		panic("containers: tracking deallocate of unknown pointer")
	}
	delete(t.byPtr, ptr)
	s := t.byTag[rec.tag]
	s.LiveCount--
	s.LiveBytes -= int(rec.size)
	t.byTag[rec.tag] = s
	t.mu.Unlock()

	t.inner.Deallocate(ptr)
}

// Stats returns the accounting snapshot for tag.
func (t *TrackingAllocator) Stats(tag Tag) TagStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byTag[tag]
}

// LiveCount returns the total number of live allocations across all tags.
func (t *TrackingAllocator) LiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byPtr)
}

// Destroy reports every still-live allocation as a leak and returns the
// leak count. The wrapped allocator is left untouched; Destroy only settles
// the books. Idempotent.
func (t *TrackingAllocator) Destroy() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaks := len(t.byPtr)
	if t.log != nil {
		for tag, s := range t.byTag {
			if s.LiveCount == 0 {
				continue
			}
			t.log.WithFields(logrus.Fields{
				"tag":   string(tag),
				"count": s.LiveCount,
				"bytes": s.LiveBytes,
			}).Warn("allocation leak")
		}
	}
	t.byTag = make(map[Tag]TagStats)
	t.byPtr = make(map[unsafe.Pointer]allocRecord)
	return leaks
}
