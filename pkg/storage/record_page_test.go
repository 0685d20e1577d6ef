package storage

import "testing"

func TestBasePageInsertAndRead(t *testing.T) {
	bp := NewBasePage(5)
	rid := RID{PageRangeID: 0, PageID: 0, SlotID: 0, Kind: KindBase}

	slot, err := bp.Insert(rid, 100, 0, rid, []int64{1, 10, 20, 30, 40})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for col, want := range []int64{1, 10, 20, 30, 40} {
		got, err := bp.ReadColumn(col, slot)
		if err != nil || got != want {
			t.Fatalf("ReadColumn(%d,%d) = %d, %v, want %d, nil", col, slot, got, err, want)
		}
	}

	if bp.NumRecords != 1 {
		t.Fatalf("NumRecords = %d, want 1", bp.NumRecords)
	}
	if bp.Indirection[0] != rid {
		t.Fatalf("Indirection[0] = %v, want self-loop %v", bp.Indirection[0], rid)
	}
}

func TestBasePageArityMismatch(t *testing.T) {
	bp := NewBasePage(3)
	rid := RID{Kind: KindBase}
	if _, err := bp.Insert(rid, 0, 0, rid, []int64{1, 2}); !IsKind(err, KindArgument) {
		t.Fatalf("Insert arity mismatch: got %v, want KindArgument", err)
	}
}

func TestBasePageCloneIsIndependent(t *testing.T) {
	bp := NewBasePage(2)
	rid := RID{Kind: KindBase}
	slot, _ := bp.Insert(rid, 0, 0, rid, []int64{1, 2})

	clone := bp.Clone()
	if err := clone.UpdateColumn(0, slot, 999); err != nil {
		t.Fatalf("UpdateColumn on clone: %v", err)
	}

	orig, _ := bp.ReadColumn(0, slot)
	if orig != 1 {
		t.Fatalf("original mutated by clone update: got %d, want 1", orig)
	}
	cloned, _ := clone.ReadColumn(0, slot)
	if cloned != 999 {
		t.Fatalf("clone not updated: got %d, want 999", cloned)
	}
}

func TestTailPageInsertRecordsBaseRID(t *testing.T) {
	tp := NewTailPage(2)
	baseRID := RID{PageRangeID: 0, PageID: 0, SlotID: 0, Kind: KindBase}
	tailRID := RID{PageRangeID: 0, PageID: 0, SlotID: 0, Kind: KindTail}

	slot, err := tp.Insert(tailRID, 5, 0b01, baseRID, baseRID, []int64{1, 2})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if tp.BaseRID[slot] != baseRID {
		t.Fatalf("BaseRID[%d] = %v, want %v", slot, tp.BaseRID[slot], baseRID)
	}
	if tp.SchemaEncoding[slot] != 0b01 {
		t.Fatalf("SchemaEncoding[%d] = %b, want 01", slot, tp.SchemaEncoding[slot])
	}
}
