package lock

import (
	"testing"

	"github.com/mnohosten/colstore/pkg/storage"
)

func rid(slot int64) storage.RID {
	return storage.RID{Kind: storage.KindBase, SlotID: slot}
}

func TestSharedLocksDoNotConflict(t *testing.T) {
	m := NewManager(4)
	r := rid(1)

	if !m.AcquireShared(r, 1) {
		t.Fatal("txn1 AcquireShared should succeed on unheld RID")
	}
	if !m.AcquireShared(r, 2) {
		t.Fatal("txn2 AcquireShared should succeed alongside another shared holder")
	}
}

func TestExclusiveRejectsAgainstAnyHolder(t *testing.T) {
	m := NewManager(4)
	r := rid(1)

	if !m.AcquireShared(r, 1) {
		t.Fatal("txn1 AcquireShared should succeed")
	}
	if m.AcquireExclusive(r, 2) {
		t.Fatal("txn2 AcquireExclusive should reject while txn1 holds S")
	}
	if !m.AcquireExclusive(r, 1) {
		t.Fatal("txn1 should be able to upgrade S to X as sole shared holder")
	}
}

func TestExclusiveUpgradeRejectedWithOtherSharedHolders(t *testing.T) {
	m := NewManager(4)
	r := rid(1)

	m.AcquireShared(r, 1)
	m.AcquireShared(r, 2)

	if m.AcquireExclusive(r, 1) {
		t.Fatal("txn1 upgrade to X should reject while txn2 also holds S")
	}
}

func TestOwnExclusiveSatisfiesLaterShared(t *testing.T) {
	m := NewManager(4)
	r := rid(1)

	if !m.AcquireExclusive(r, 1) {
		t.Fatal("txn1 AcquireExclusive should succeed on unheld RID")
	}
	if !m.AcquireShared(r, 1) {
		t.Fatal("txn1's own X should silently satisfy its later S request")
	}
	if m.AcquireShared(r, 2) {
		t.Fatal("txn2 AcquireShared should reject while txn1 holds X")
	}
}

func TestReleaseAllDropsEveryLock(t *testing.T) {
	m := NewManager(4)
	r1, r2 := rid(1), rid(2)

	m.AcquireExclusive(r1, 1)
	m.AcquireShared(r2, 1)

	m.ReleaseAll(1)

	if m.Holds(r1, 1) || m.Holds(r2, 1) {
		t.Fatal("ReleaseAll should drop every lock held by the transaction")
	}
	if !m.AcquireExclusive(r1, 2) {
		t.Fatal("r1 should be acquirable by another txn after ReleaseAll")
	}
}

// TestConcurrentUpdateExactlyOneWins grounds spec.md §8 scenario S6: two
// workers race to X-lock the same RID; exactly one succeeds.
func TestConcurrentUpdateExactlyOneWins(t *testing.T) {
	m := NewManager(4)
	r := rid(1)

	results := make(chan bool, 2)
	start := make(chan struct{})
	for _, txn := range []TxnID{1, 2} {
		txn := txn
		go func() {
			<-start
			results <- m.AcquireExclusive(r, txn)
		}()
	}
	close(start)

	a, b := <-results, <-results
	if a == b {
		t.Fatalf("expected exactly one of two concurrent X requests to win, got %v and %v", a, b)
	}
}
