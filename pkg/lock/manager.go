// Package lock implements record-granularity shared/exclusive locking
// with no-wait semantics (spec.md §4.5): a request that conflicts with
// any other holder returns failure immediately instead of blocking, so
// the caller can abort rather than stall.
package lock

import (
	"hash/fnv"
	"sync"

	"github.com/mnohosten/colstore/pkg/storage"
)

// TxnID identifies the transaction requesting or holding a lock.
type TxnID uint64

// Mode is the lock mode a caller requests: Shared for reads, Exclusive
// for writes/deletes/inserts (spec.md §4.5/§4.6).
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// DefaultStripes is the number of lock-table shards.
const DefaultStripes = 256

// entry tracks one RID's current holders. Exactly one of "exclusive" or
// "shared" describes the lock's state at any moment — original_source's
// lock_manager.py's lockEntry carries the same shape (a shared holder
// set plus a single exclusive holder).
type entry struct {
	mu        sync.Mutex
	shared    map[TxnID]bool
	exclusive TxnID
	hasExcl   bool
}

func newEntry() *entry {
	return &entry{shared: make(map[TxnID]bool)}
}

// empty reports whether no transaction holds this entry in any mode.
func (e *entry) empty() bool {
	return !e.hasExcl && len(e.shared) == 0
}

type stripe struct {
	mu      sync.Mutex
	entries map[storage.RID]*entry
}

// Manager is a striped, no-wait shared/exclusive lock table keyed by RID:
// a sharded map of RID to holder set, generalized from a blocking
// RWMutex-per-key scheme to explicit no-wait holder sets
// (original_source/lstore/lock_manager.py), matching spec.md §4.5's
// compatibility matrix exactly.
type Manager struct {
	stripes []*stripe

	heldMu sync.Mutex
	held   map[TxnID]map[storage.RID]bool
}

// NewManager creates a lock table with the given number of stripes (a
// power of two is not required but recommended for distribution).
func NewManager(numStripes int) *Manager {
	if numStripes <= 0 {
		numStripes = DefaultStripes
	}
	m := &Manager{
		stripes: make([]*stripe, numStripes),
		held:    make(map[TxnID]map[storage.RID]bool),
	}
	for i := range m.stripes {
		m.stripes[i] = &stripe{entries: make(map[storage.RID]*entry)}
	}
	return m
}

func (m *Manager) stripeFor(rid storage.RID) *stripe {
	h := fnv.New32a()
	h.Write([]byte(rid.String()))
	return m.stripes[int(h.Sum32())%len(m.stripes)]
}

func (s *stripe) entryFor(rid storage.RID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	if !ok {
		e = newEntry()
		s.entries[rid] = e
	}
	return e
}

func (m *Manager) recordHeld(txn TxnID, rid storage.RID) {
	m.heldMu.Lock()
	defer m.heldMu.Unlock()
	set, ok := m.held[txn]
	if !ok {
		set = make(map[storage.RID]bool)
		m.held[txn] = set
	}
	set[rid] = true
}

func (m *Manager) forgetHeld(txn TxnID, rid storage.RID) {
	m.heldMu.Lock()
	defer m.heldMu.Unlock()
	if set, ok := m.held[txn]; ok {
		delete(set, rid)
		if len(set) == 0 {
			delete(m.held, txn)
		}
	}
}

// AcquireShared requests S on rid for txn. Returns false (no-wait
// rejection) only when another transaction holds X. A transaction's own
// locks never conflict with itself (spec.md §4.5).
func (m *Manager) AcquireShared(rid storage.RID, txn TxnID) bool {
	e := m.stripeFor(rid).entryFor(rid)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasExcl && e.exclusive != txn {
		return false
	}
	e.shared[txn] = true
	m.recordHeld(txn, rid)
	return true
}

// AcquireExclusive requests X on rid for txn. Grants immediately if txn
// already holds X. Grants (as an upgrade) if txn is the sole shared
// holder. Rejects if any other transaction holds S or X.
func (m *Manager) AcquireExclusive(rid storage.RID, txn TxnID) bool {
	e := m.stripeFor(rid).entryFor(rid)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasExcl {
		if e.exclusive == txn {
			return true
		}
		return false
	}

	for holder := range e.shared {
		if holder != txn {
			return false
		}
	}

	delete(e.shared, txn)
	e.hasExcl = true
	e.exclusive = txn
	m.recordHeld(txn, rid)
	return true
}

// Release drops txn's hold (shared or exclusive) on rid. The entry is
// pruned from the stripe once both holder sets are empty.
func (m *Manager) Release(rid storage.RID, txn TxnID) {
	s := m.stripeFor(rid)
	e := s.entryFor(rid)

	e.mu.Lock()
	if e.hasExcl && e.exclusive == txn {
		e.hasExcl = false
		e.exclusive = 0
	}
	delete(e.shared, txn)
	isEmpty := e.empty()
	e.mu.Unlock()

	m.forgetHeld(txn, rid)

	if isEmpty {
		s.mu.Lock()
		if cur, ok := s.entries[rid]; ok && cur == e {
			cur.mu.Lock()
			if cur.empty() {
				delete(s.entries, rid)
			}
			cur.mu.Unlock()
		}
		s.mu.Unlock()
	}
}

// ReleaseAll drops every lock txn currently holds (transaction commit or
// abort, spec.md §4.6: "release all locks").
func (m *Manager) ReleaseAll(txn TxnID) {
	m.heldMu.Lock()
	rids := make([]storage.RID, 0, len(m.held[txn]))
	for rid := range m.held[txn] {
		rids = append(rids, rid)
	}
	m.heldMu.Unlock()

	for _, rid := range rids {
		m.Release(rid, txn)
	}
}

// Holds reports whether txn currently holds any lock on rid (test/debug
// helper).
func (m *Manager) Holds(rid storage.RID, txn TxnID) bool {
	e := m.stripeFor(rid).entryFor(rid)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shared[txn] || (e.hasExcl && e.exclusive == txn)
}
