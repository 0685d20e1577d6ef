package storage

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/mnohosten/colstore/pkg/concurrent"
)

// BufferPool caches at most capacity Frames, evicting the least recently
// used unpinned frame when full (spec.md §4.2), keyed by the
// (table, page_range_id, page_id, kind) identity spec.md §4.2 requires.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	frames   map[Identity]*Frame
	lruList  *list.List
	lruNode  map[Identity]*list.Element
	disk     *DiskManager
	clock    int64

	hits      *concurrent.Counter
	misses    *concurrent.Counter
	evictions *concurrent.Counter
}

// NewBufferPool creates a pool of the given frame capacity backed by disk.
func NewBufferPool(capacity int, disk *DiskManager) *BufferPool {
	return &BufferPool{
		capacity:  capacity,
		frames:    make(map[Identity]*Frame, capacity),
		lruList:   list.New(),
		lruNode:   make(map[Identity]*list.Element),
		disk:      disk,
		hits:      concurrent.NewCounter(),
		misses:    concurrent.NewCounter(),
		evictions: concurrent.NewCounter(),
	}
}

// Pin returns the frame for id, pinning it. If the identity is resident
// it is returned directly; otherwise a frame is allocated (evicting if
// necessary), loaded from disk if a copy exists there, or initialized
// empty otherwise.
func (bp *BufferPool) Pin(id Identity, numUserCol int) (*Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if f, ok := bp.frames[id]; ok {
		bp.lruList.MoveToFront(bp.lruNode[id])
		f.pinCount++
		bp.clock++
		f.access = bp.clock
		bp.hits.Inc()
		return f, nil
	}

	bp.misses.Inc()

	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	f := &Frame{Identity: id}
	switch id.Kind {
	case KindBase:
		bp_, _, err := bp.disk.ReadBase(id, numUserCol)
		if err != nil && !IsKind(err, KindNotFound) {
			return nil, err
		}
		if err == nil {
			f.Base = bp_
		} else {
			f.Base = NewBasePage(numUserCol)
		}
	case KindTail:
		tp, _, err := bp.disk.ReadTail(id, numUserCol)
		if err != nil && !IsKind(err, KindNotFound) {
			return nil, err
		}
		if err == nil {
			f.Tail = tp
		} else {
			f.Tail = NewTailPage(numUserCol)
		}
	default:
		return nil, NewError("buffer_pool.pin", KindArgument, fmt.Errorf("invalid frame kind %s", id.Kind))
	}

	f.pinCount = 1
	bp.clock++
	f.access = bp.clock
	bp.frames[id] = f
	bp.lruNode[id] = bp.lruList.PushFront(id)
	return f, nil
}

// Unpin decrements id's pin count; it never goes below zero. If dirty is
// true the frame is also marked dirty.
func (bp *BufferPool) Unpin(id Identity, dirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	f, ok := bp.frames[id]
	if !ok {
		return NewError("buffer_pool.unpin", KindInvariant, fmt.Errorf("%s not resident", id))
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	if dirty {
		f.dirty = true
	}
	return nil
}

// MarkDirty sets id's dirty flag without changing its pin count.
func (bp *BufferPool) MarkDirty(id Identity) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return NewError("buffer_pool.mark_dirty", KindInvariant, fmt.Errorf("%s not resident", id))
	}
	f.dirty = true
	return nil
}

// Flush writes id's frame to disk if dirty, then clears the dirty flag.
func (bp *BufferPool) Flush(id Identity) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return nil
	}
	return bp.flushFrameLocked(f)
}

func (bp *BufferPool) flushFrameLocked(f *Frame) error {
	if !f.dirty {
		return nil
	}
	var err error
	switch f.Identity.Kind {
	case KindBase:
		err = bp.disk.WriteBase(f.Identity, f.Base, 0)
	case KindTail:
		err = bp.disk.WriteTail(f.Identity, f.Tail, 0)
	}
	if err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// SwapBase replaces id's resident base page with newBase and marks the
// frame dirty, without touching its pin count. Used by merge to publish a
// consolidated base page atomically under the pool's single mutex (spec.md
// §4.4: "Publishes the new base page atomically").
func (bp *BufferPool) SwapBase(id Identity, newBase *BasePage) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return NewError("buffer_pool.swap_base", KindInvariant, fmt.Errorf("%s not resident", id))
	}
	f.Base = newBase
	f.dirty = true
	return nil
}

// Close flushes every dirty frame belonging to table.
func (bp *BufferPool) Close(table string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for id, f := range bp.frames {
		if id.Table != table {
			continue
		}
		if err := bp.flushFrameLocked(f); err != nil {
			return err
		}
	}
	return nil
}

// evictLocked removes the least-recently-used unpinned frame, flushing it
// if dirty. Must be called with bp.mu held.
func (bp *BufferPool) evictLocked() error {
	for elem := bp.lruList.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(Identity)
		f := bp.frames[id]
		if f.IsPinned() {
			continue
		}
		if err := bp.flushFrameLocked(f); err != nil {
			return err
		}
		bp.lruList.Remove(elem)
		delete(bp.lruNode, id)
		delete(bp.frames, id)
		bp.evictions.Inc()
		return nil
	}
	return NewError("buffer_pool.evict", KindCapacity, fmt.Errorf("no unpinned frames available, pool exhausted at capacity %d", bp.capacity))
}

// Stats returns hit/miss/eviction counters for introspection and for
// S5-style eviction tests.
func (bp *BufferPool) Stats() map[string]interface{} {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	hits, misses := bp.hits.Load(), bp.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return map[string]interface{}{
		"capacity":  bp.capacity,
		"size":      len(bp.frames),
		"hits":      hits,
		"misses":    misses,
		"evictions": bp.evictions.Load(),
		"hit_rate":  hitRate,
	}
}
