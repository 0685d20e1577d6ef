package index

import (
	"sort"
	"testing"

	"github.com/mnohosten/colstore/pkg/storage"
)

func rid(slot int64) storage.RID {
	return storage.RID{PageRangeID: 0, PageID: 0, SlotID: slot, Kind: storage.KindBase}
}

func TestIndexInsertLocate(t *testing.T) {
	idx := NewIndex(3, 8)

	idx.Insert(0, 42, rid(1))
	idx.Insert(0, 42, rid(2))
	idx.Insert(0, 7, rid(3))

	got := idx.Locate(0, 42)
	if len(got) != 2 {
		t.Fatalf("Locate(0,42) = %v, want 2 rids", got)
	}

	got = idx.Locate(0, 7)
	if len(got) != 1 || got[0] != rid(3) {
		t.Fatalf("Locate(0,7) = %v, want [rid(3)]", got)
	}

	if got := idx.Locate(0, 999); got != nil {
		t.Fatalf("Locate(0,999) = %v, want nil", got)
	}
}

func TestIndexRemove(t *testing.T) {
	idx := NewIndex(1, 8)
	idx.Insert(0, 1, rid(1))
	idx.Insert(0, 1, rid(2))

	idx.Remove(0, 1, rid(1))
	got := idx.Locate(0, 1)
	if len(got) != 1 || got[0] != rid(2) {
		t.Fatalf("Locate after partial remove = %v, want [rid(2)]", got)
	}

	idx.Remove(0, 1, rid(2))
	if got := idx.Locate(0, 1); got != nil {
		t.Fatalf("Locate after full remove = %v, want nil", got)
	}
	if idx.Size(0) != 0 {
		t.Fatalf("Size(0) = %d, want 0", idx.Size(0))
	}
}

func TestIndexUpdateMovesValue(t *testing.T) {
	idx := NewIndex(1, 8)
	idx.Insert(0, 10, rid(1))

	idx.Update(0, 10, 20, rid(1))

	if got := idx.Locate(0, 10); got != nil {
		t.Fatalf("Locate(0,10) after Update = %v, want nil", got)
	}
	got := idx.Locate(0, 20)
	if len(got) != 1 || got[0] != rid(1) {
		t.Fatalf("Locate(0,20) after Update = %v, want [rid(1)]", got)
	}
}

func TestIndexLocateRange(t *testing.T) {
	idx := NewIndex(1, 8)
	for i := int64(0); i < 20; i++ {
		idx.Insert(0, i, rid(i))
	}

	got := idx.LocateRange(0, 5, 9)
	if len(got) != 5 {
		t.Fatalf("LocateRange(5,9) returned %d rids, want 5", len(got))
	}

	slots := make([]int, 0, len(got))
	for _, r := range got {
		slots = append(slots, int(r.SlotID))
	}
	sort.Ints(slots)
	want := []int{5, 6, 7, 8, 9}
	for i, s := range slots {
		if s != want[i] {
			t.Fatalf("LocateRange slots = %v, want %v", slots, want)
		}
	}
}

func TestIndexUnknownColumn(t *testing.T) {
	idx := NewIndex(1, 8)
	idx.Insert(5, 1, rid(1))
	if got := idx.Locate(5, 1); got != nil {
		t.Fatalf("Insert into unknown column should be a no-op, got %v", got)
	}

	idx.CreateColumn(5)
	idx.Insert(5, 1, rid(1))
	if got := idx.Locate(5, 1); len(got) != 1 {
		t.Fatalf("Locate(5,1) after CreateColumn = %v, want 1 rid", got)
	}

	idx.DropColumn(5)
	if idx.HasColumn(5) {
		t.Fatal("HasColumn(5) true after DropColumn")
	}
}
