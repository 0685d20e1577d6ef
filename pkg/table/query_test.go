package table

import (
	"testing"

	"github.com/mnohosten/colstore/pkg/lock"
	"github.com/mnohosten/colstore/pkg/txn"
)

func TestTransactionInsertSelectCommit(t *testing.T) {
	tbl := newTestTable(t, 64)
	lm := lock.NewManager(8)

	insert := &InsertQuery{Table: tbl, Values: []int64{1, 10, 20}}
	tx := txn.New()
	tx.AddQuery(insert)

	committed, err := tx.Run(lm)
	if err != nil || !committed {
		t.Fatalf("insert txn.Run() = %v, %v", committed, err)
	}

	sel := &SelectQuery{Table: tbl, Key: 1}
	tx2 := txn.New()
	tx2.AddQuery(sel)
	committed, err = tx2.Run(lm)
	if err != nil || !committed {
		t.Fatalf("select txn.Run() = %v, %v", committed, err)
	}
	if sel.Result.Columns[1] != 10 {
		t.Fatalf("selected columns = %v, want [1 10 20]", sel.Result.Columns)
	}
}

func TestTransactionUpdateAbortRestoresIndirection(t *testing.T) {
	tbl := newTestTable(t, 64)
	lm := lock.NewManager(8)

	if _, err := tbl.Insert([]int64{2, 1, 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v := int64(5)
	update := &UpdateQuery{Table: tbl, Key: 2, NewValues: []*int64{nil, &v, nil}}

	tx := txn.New()
	tx.AddQuery(update)
	// A second query in the same transaction fails, forcing abort and
	// exercising Undo's indirection restore (spec.md §4.6 step 3).
	tx.AddQuery(&alwaysFailQuery{})

	committed, _ := tx.Run(lm)
	if committed {
		t.Fatal("expected abort")
	}

	rec, err := tbl.Select(2, nil, 0)
	if err != nil {
		t.Fatalf("Select after abort: %v", err)
	}
	if rec.Columns[1] != 1 {
		t.Fatalf("post-abort value = %d, want 1 (update should have been undone)", rec.Columns[1])
	}
}

// TestTransactionIncrementCommitsAndAbortRestores grounds IncrementQuery's
// lock-capture/undo pair against both outcomes of spec.md §4.6's commit
// protocol.
func TestTransactionIncrementCommitsAndAbortRestores(t *testing.T) {
	tbl := newTestTable(t, 64)
	lm := lock.NewManager(8)

	if _, err := tbl.Insert([]int64{4, 7, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx := txn.New()
	tx.AddQuery(&IncrementQuery{Table: tbl, Key: 4, Column: 1})
	committed, err := tx.Run(lm)
	if err != nil || !committed {
		t.Fatalf("increment txn.Run() = %v, %v", committed, err)
	}
	rec, err := tbl.Select(4, nil, 0)
	if err != nil {
		t.Fatalf("Select after increment: %v", err)
	}
	if rec.Columns[1] != 8 {
		t.Fatalf("Columns[1] after increment = %d, want 8", rec.Columns[1])
	}

	tx2 := txn.New()
	tx2.AddQuery(&IncrementQuery{Table: tbl, Key: 4, Column: 1})
	tx2.AddQuery(&alwaysFailQuery{})
	committed, _ = tx2.Run(lm)
	if committed {
		t.Fatal("expected abort")
	}
	rec, err = tbl.Select(4, nil, 0)
	if err != nil {
		t.Fatalf("Select after aborted increment: %v", err)
	}
	if rec.Columns[1] != 8 {
		t.Fatalf("post-abort value = %d, want 8 (increment should have been undone)", rec.Columns[1])
	}
}

// TestTransactionDeleteAbortRestoresIndex grounds spec.md §8's invariant
// that the index maps exactly to live, non-deleted records: an aborted
// delete must leave the row selectable by key again, not merely
// "undeleted but unindexed".
func TestTransactionDeleteAbortRestoresIndex(t *testing.T) {
	tbl := newTestTable(t, 64)
	lm := lock.NewManager(8)

	if _, err := tbl.Insert([]int64{9, 50, 60}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	del := &DeleteQuery{Table: tbl, Key: 9}
	tx := txn.New()
	tx.AddQuery(del)
	tx.AddQuery(&alwaysFailQuery{})

	committed, _ := tx.Run(lm)
	if committed {
		t.Fatal("expected abort")
	}

	rec, err := tbl.Select(9, nil, 0)
	if err != nil {
		t.Fatalf("Select after aborted delete: %v (index entry was not restored)", err)
	}
	if rec.Columns[1] != 50 || rec.Columns[2] != 60 {
		t.Fatalf("post-abort columns = %v, want [9 50 60]", rec.Columns)
	}

	sum, err := tbl.SumVersion(9, 9, 1, 0)
	if err != nil {
		t.Fatalf("SumVersion after aborted delete: %v", err)
	}
	if sum != 50 {
		t.Fatalf("SumVersion after aborted delete = %d, want 50 (non-key column index must also be restored)", sum)
	}
}

type alwaysFailQuery struct{}

func (q *alwaysFailQuery) Locks() []txn.LockRequest { return nil }
func (q *alwaysFailQuery) Run() (bool, error)       { return false, nil }
func (q *alwaysFailQuery) Undo()                    {}

// TestTwoTransactionsRaceOnSameKey grounds spec.md §8 scenario S6 at the
// table/query level: two transactions both try to exclusively update the
// same key; the no-wait lock manager grants exactly one.
func TestTwoTransactionsRaceOnSameKey(t *testing.T) {
	tbl := newTestTable(t, 64)
	lm := lock.NewManager(8)
	if _, err := tbl.Insert([]int64{3, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v1, v2 := int64(100), int64(200)
	tx1 := txn.New()
	tx1.AddQuery(&UpdateQuery{Table: tbl, Key: 3, NewValues: []*int64{nil, &v1, nil}})

	tx2 := txn.New()
	tx2.AddQuery(&UpdateQuery{Table: tbl, Key: 3, NewValues: []*int64{nil, &v2, nil}})

	// Pre-acquire tx1's lock directly to force tx2's no-wait acquisition to
	// fail deterministically, mirroring what concurrent goroutines running
	// tx1 and tx2 would race on.
	rid, ok := tbl.LookupBaseRID(3)
	if !ok {
		t.Fatal("setup: key 3 not found")
	}
	if !lm.AcquireExclusive(rid, tx1.ID) {
		t.Fatal("setup: tx1 should acquire X")
	}

	committed2, err := tx2.Run(lm)
	if err != nil || committed2 {
		t.Fatalf("tx2.Run() = %v, %v, want false, nil (lock conflict)", committed2, err)
	}

	lm.ReleaseAll(tx1.ID)
	committed1, err := tx1.Run(lm)
	if err != nil || !committed1 {
		t.Fatalf("tx1.Run() = %v, %v, want true, nil", committed1, err)
	}
}
