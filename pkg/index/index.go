// Package index implements the per-column ordered indices that back a
// Table's locate/locate_range operations. Each indexed column owns one
// B+ tree (see btree.go) mapping that column's int64 values to the set
// of RIDs currently carrying that value.
package index

import (
	"sync"

	"github.com/mnohosten/colstore/pkg/storage"
)

// ridSet is the value stored at each B-tree key: every RID whose column
// value equals that key. Modeled on index.py's dict-of-sets, which maps
// a column value to the set of RIDs sharing it (duplicate values are the
// common case once updates chain through tail records).
type ridSet map[storage.RID]struct{}

func newRIDSet(rid storage.RID) ridSet {
	s := make(ridSet, 1)
	s[rid] = struct{}{}
	return s
}

func (s ridSet) slice() []storage.RID {
	out := make([]storage.RID, 0, len(s))
	for rid := range s {
		out = append(out, rid)
	}
	return out
}

// Index maintains one B+ tree per indexed column of a table. Column
// numbers are the table's logical column positions (0-based, user
// columns only — metadata such as RID/indirection/schema encoding is
// never indexed).
type Index struct {
	mu      sync.RWMutex
	byCol   map[int]*BTree
	order   int
	columns int
}

// NewIndex creates an index over the given number of columns. order is
// the B-tree order used for every column's tree (32 is a reasonable
// choice absent other guidance).
func NewIndex(columns, order int) *Index {
	if order < 3 {
		order = 32
	}
	idx := &Index{
		byCol:   make(map[int]*BTree, columns),
		order:   order,
		columns: columns,
	}
	for col := 0; col < columns; col++ {
		idx.byCol[col] = NewBTree(order)
	}
	return idx
}

// CreateColumn lazily adds a tree for a column number beyond the initial
// range passed to NewIndex (mirrors index.py's create_index(column)).
func (idx *Index) CreateColumn(col int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.byCol[col]; !ok {
		idx.byCol[col] = NewBTree(idx.order)
	}
}

// DropColumn removes a column's tree entirely (drop_index).
func (idx *Index) DropColumn(col int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byCol, col)
}

func (idx *Index) tree(col int) (*BTree, bool) {
	t, ok := idx.byCol[col]
	return t, ok
}

// Insert records that column col now holds value v for rid.
func (idx *Index) Insert(col int, v int64, rid storage.RID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t, ok := idx.tree(col)
	if !ok {
		return
	}
	if existing, found := t.Search(v); found {
		existing.(ridSet)[rid] = struct{}{}
		return
	}
	_ = t.Insert(v, newRIDSet(rid))
}

// Remove drops rid from the entry for value v in column col. If rid was
// the last member of that value's set, the key itself is removed.
func (idx *Index) Remove(col int, v int64, rid storage.RID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t, ok := idx.tree(col)
	if !ok {
		return
	}
	existing, found := t.Search(v)
	if !found {
		return
	}
	set := existing.(ridSet)
	delete(set, rid)
	if len(set) == 0 {
		_ = t.Delete(v)
	}
}

// Update moves rid from oldV's entry to newV's entry in column col. Used
// when a tail record supersedes the value an index previously saw for a
// chain (Table.Update replacing the locatable value for a RID).
func (idx *Index) Update(col int, oldV, newV int64, rid storage.RID) {
	if oldV == newV {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if t, ok := idx.tree(col); ok {
		if existing, found := t.Search(oldV); found {
			set := existing.(ridSet)
			delete(set, rid)
			if len(set) == 0 {
				_ = t.Delete(oldV)
			}
		}
	}

	t, ok := idx.tree(col)
	if !ok {
		return
	}
	if existing, found := t.Search(newV); found {
		existing.(ridSet)[rid] = struct{}{}
		return
	}
	_ = t.Insert(newV, newRIDSet(rid))
}

// Locate returns every RID recorded against value v in column col.
func (idx *Index) Locate(col int, v int64) []storage.RID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	t, ok := idx.tree(col)
	if !ok {
		return nil
	}
	existing, found := t.Search(v)
	if !found {
		return nil
	}
	return existing.(ridSet).slice()
}

// LocateRange returns every RID recorded against any value in
// column col within the inclusive range [lo, hi].
func (idx *Index) LocateRange(col int, lo, hi int64) []storage.RID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	t, ok := idx.tree(col)
	if !ok {
		return nil
	}
	_, values := t.RangeScan(&lo, &hi)

	var out []storage.RID
	for _, v := range values {
		out = append(out, v.(ridSet).slice()...)
	}
	return out
}

// HasColumn reports whether col currently has a tree.
func (idx *Index) HasColumn(col int) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byCol[col]
	return ok
}

// Size returns the number of distinct values indexed for col.
func (idx *Index) Size(col int) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.tree(col)
	if !ok {
		return 0
	}
	return t.Size()
}
