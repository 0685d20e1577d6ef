// Package txn implements ordered, two-phase-locked transactions over a
// set of table queries (spec.md §4.6) and the workers that run them
// (spec.md §4.7).
package txn

import (
	"sync/atomic"

	"github.com/mnohosten/colstore/pkg/lock"
	"github.com/mnohosten/colstore/pkg/storage"
)

// LockRequest names one RID and the mode a query needs to touch it.
type LockRequest struct {
	RID  storage.RID
	Mode lock.Mode
}

// Query is one operation bound to its table and arguments. Transaction is
// deliberately unaware of pkg/table's concrete operations — a Table
// builds Query values closing over its own state so pkg/txn never
// imports pkg/table (spec.md treats the Table as an external collaborator
// of the transaction layer, §2).
type Query interface {
	// Locks returns the RIDs this query must hold before Run executes,
	// and the mode required for each. Resolved just before execution so a
	// query can depend on effects of earlier queries in the same
	// transaction (spec.md §4.6 step 1: "queries observe all effects of
	// previous queries").
	Locks() []LockRequest
	// Run performs the operation. ok=false is a recoverable failure
	// (NotFound/Argument) that aborts the transaction; err signals a
	// fatal storage error (Invariant/IO, spec.md §7).
	Run() (ok bool, err error)
	// Undo reverses Run's effects. Only called for queries that already
	// executed successfully, in reverse order (spec.md §4.6 step 3).
	Undo()
}

var nextTxnID uint64

func allocTxnID() lock.TxnID {
	return lock.TxnID(atomic.AddUint64(&nextTxnID, 1))
}

// Transaction is an ordered sequence of queries executed under strict
// two-phase locking with no-wait abort (spec.md §4.6).
type Transaction struct {
	ID      lock.TxnID
	queries []Query
}

// New creates an empty transaction with a freshly allocated ID.
func New() *Transaction {
	return &Transaction{ID: allocTxnID()}
}

// AddQuery appends a query to the transaction's ordered sequence.
func (t *Transaction) AddQuery(q Query) {
	t.queries = append(t.queries, q)
}

// Run executes every query in order against lm, acquiring locks per
// spec.md §4.6 before each query's data access. Returns true on commit,
// false on abort. A NotFound, Conflict or Argument error from a query
// aborts exactly like ok=false; any other (fatal) error still aborts the
// transaction but is also returned so callers can distinguish a
// caller-retriable false from a structural failure.
func (t *Transaction) Run(lm *lock.Manager) (bool, error) {
	applied := make([]Query, 0, len(t.queries))

	for _, q := range t.queries {
		for _, req := range q.Locks() {
			var granted bool
			switch req.Mode {
			case lock.Shared:
				granted = lm.AcquireShared(req.RID, t.ID)
			case lock.Exclusive:
				granted = lm.AcquireExclusive(req.RID, t.ID)
			}
			if !granted {
				t.abort(lm, applied)
				return false, nil
			}
		}

		ok, err := q.Run()
		if err != nil {
			t.abort(lm, applied)
			if storage.IsKind(err, storage.KindNotFound) ||
				storage.IsKind(err, storage.KindConflict) ||
				storage.IsKind(err, storage.KindArgument) {
				return false, nil
			}
			return false, err
		}
		if !ok {
			t.abort(lm, applied)
			return false, nil
		}
		applied = append(applied, q)
	}

	lm.ReleaseAll(t.ID)
	return true, nil
}

func (t *Transaction) abort(lm *lock.Manager, applied []Query) {
	for i := len(applied) - 1; i >= 0; i-- {
		applied[i].Undo()
	}
	lm.ReleaseAll(t.ID)
}
