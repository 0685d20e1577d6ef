package table

import (
	"github.com/mnohosten/colstore/pkg/lock"
	"github.com/mnohosten/colstore/pkg/storage"
	"github.com/mnohosten/colstore/pkg/txn"
)

// InsertQuery inserts a new row when run inside a Transaction. The row's
// RID does not exist before Run executes, so it requires no pre-acquired
// lock (spec.md §4.6 names X locks for "inserts of a freshly allocated
// RID" — there is nothing to lock until the RID is allocated).
type InsertQuery struct {
	Table  *Table
	Values []int64

	rid     storage.RID
	applied bool
}

func (q *InsertQuery) Locks() []txn.LockRequest { return nil }

func (q *InsertQuery) Run() (bool, error) {
	rid, err := q.Table.Insert(q.Values)
	if err != nil {
		return false, err
	}
	q.rid = rid
	q.applied = true
	return true, nil
}

func (q *InsertQuery) Undo() {
	if !q.applied {
		return
	}
	_ = q.Table.deleteByRID(q.rid, q.Values)
}

// RID returns the RID allocated by a successful Run.
func (q *InsertQuery) RID() storage.RID { return q.rid }

// SelectQuery point-selects keyVal under a shared lock.
type SelectQuery struct {
	Table      *Table
	Key        int64
	Projection []bool
	Version    int

	Result *Record
}

func (q *SelectQuery) Locks() []txn.LockRequest {
	rid, ok := q.Table.LookupBaseRID(q.Key)
	if !ok {
		return nil
	}
	return []txn.LockRequest{{RID: rid, Mode: lock.Shared}}
}

func (q *SelectQuery) Run() (bool, error) {
	rec, err := q.Table.Select(q.Key, q.Projection, q.Version)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	q.Result = rec
	return true, nil
}

func (q *SelectQuery) Undo() {} // read-only, nothing to compensate

// SumQuery range-sums col over [Lo, Hi] under shared locks on every
// candidate RID.
type SumQuery struct {
	Table    *Table
	Lo, Hi   int64
	Column   int
	Version  int
	resolved []storage.RID

	Result int64
}

func (q *SumQuery) Locks() []txn.LockRequest {
	q.resolved = q.Table.LookupRangeRIDs(q.Lo, q.Hi)
	reqs := make([]txn.LockRequest, len(q.resolved))
	for i, rid := range q.resolved {
		reqs[i] = txn.LockRequest{RID: rid, Mode: lock.Shared}
	}
	return reqs
}

func (q *SumQuery) Run() (bool, error) {
	sum, err := q.Table.SumVersion(q.Lo, q.Hi, q.Column, q.Version)
	if err != nil {
		return false, err
	}
	q.Result = sum
	return true, nil
}

func (q *SumQuery) Undo() {}

// IncrementQuery adds 1 to a row's column under an exclusive lock,
// reusing Update's compensating action since Increment is just an Update
// of one column (spec.md §6 increment).
type IncrementQuery struct {
	Table  *Table
	Key    int64
	Column int

	baseRID   storage.RID
	havePrev  bool
	prevIndir storage.RID
	applied   bool
}

func (q *IncrementQuery) Locks() []txn.LockRequest {
	rid, ok := q.Table.LookupBaseRID(q.Key)
	if !ok {
		return nil
	}
	q.baseRID = rid
	if ind, err := q.Table.indirectionOf(rid); err == nil {
		q.prevIndir = ind
		q.havePrev = true
	}
	return []txn.LockRequest{{RID: rid, Mode: lock.Exclusive}}
}

func (q *IncrementQuery) Run() (bool, error) {
	ok, err := q.Table.Increment(q.Key, q.Column)
	if err != nil {
		return false, err
	}
	q.applied = ok
	return ok, nil
}

func (q *IncrementQuery) Undo() {
	if !q.applied || !q.havePrev {
		return
	}
	_ = q.Table.setIndirection(q.baseRID, q.prevIndir)
}

// UpdateQuery updates keyVal's row under an exclusive lock, capturing the
// pre-update indirection so abort can restore it (spec.md §4.6 step 3:
// "for updates, reset base indirection to the previous value captured at
// lock time").
type UpdateQuery struct {
	Table     *Table
	Key       int64
	NewValues []*int64

	baseRID   storage.RID
	havePrev  bool
	prevIndir storage.RID
	applied   bool
}

func (q *UpdateQuery) Locks() []txn.LockRequest {
	rid, ok := q.Table.LookupBaseRID(q.Key)
	if !ok {
		return nil
	}
	q.baseRID = rid
	if ind, err := q.Table.indirectionOf(rid); err == nil {
		q.prevIndir = ind
		q.havePrev = true
	}
	return []txn.LockRequest{{RID: rid, Mode: lock.Exclusive}}
}

func (q *UpdateQuery) Run() (bool, error) {
	ok, err := q.Table.Update(q.Key, q.NewValues)
	if err != nil {
		return false, err
	}
	q.applied = ok
	return ok, nil
}

func (q *UpdateQuery) Undo() {
	if !q.applied || !q.havePrev {
		return
	}
	_ = q.Table.setIndirection(q.baseRID, q.prevIndir)
}

// DeleteQuery deletes keyVal's row under an exclusive lock, capturing the
// pre-delete indirection and column values so abort can restore both the
// indirection pointer and the index entries Delete removed (spec.md §4.6
// step 3: "for deletes, restore indirection"; spec.md §8: the index must
// map exactly to live, non-deleted records, including after a rolled-back
// delete).
type DeleteQuery struct {
	Table *Table
	Key   int64

	baseRID    storage.RID
	havePrev   bool
	prevIndir  storage.RID
	prevValues []int64
	applied    bool
}

func (q *DeleteQuery) Locks() []txn.LockRequest {
	rid, ok := q.Table.LookupBaseRID(q.Key)
	if !ok {
		return nil
	}
	q.baseRID = rid
	if ind, err := q.Table.indirectionOf(rid); err == nil {
		q.prevIndir = ind
		q.havePrev = true
	}
	if row, _, err := q.Table.readVersion(rid, 0); err == nil {
		q.prevValues = row
	}
	return []txn.LockRequest{{RID: rid, Mode: lock.Exclusive}}
}

func (q *DeleteQuery) Run() (bool, error) {
	ok, err := q.Table.Delete(q.Key)
	if err != nil {
		return false, err
	}
	q.applied = ok
	return ok, nil
}

func (q *DeleteQuery) Undo() {
	if !q.applied || !q.havePrev || q.prevValues == nil {
		return
	}
	_ = q.Table.restoreDeleted(q.baseRID, q.prevIndir, q.prevValues)
}
