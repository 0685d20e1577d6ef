package index

import (
	"testing"
)

func TestBTreeInsertSearch(t *testing.T) {
	bt := NewBTree(4)

	for i := int64(0); i < 100; i++ {
		if err := bt.Insert(i, i*10); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int64(0); i < 100; i++ {
		v, ok := bt.Search(i)
		if !ok {
			t.Fatalf("Search(%d): not found", i)
		}
		if v.(int64) != i*10 {
			t.Fatalf("Search(%d) = %v, want %d", i, v, i*10)
		}
	}

	if bt.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", bt.Size())
	}
}

func TestBTreeDuplicateInsert(t *testing.T) {
	bt := NewBTree(4)
	if err := bt.Insert(1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := bt.Insert(1, "b"); err != ErrDuplicateKey {
		t.Fatalf("Insert duplicate: got %v, want ErrDuplicateKey", err)
	}
}

func TestBTreeUpdate(t *testing.T) {
	bt := NewBTree(4)
	bt.Update(5, "first")
	v, ok := bt.Search(5)
	if !ok || v != "first" {
		t.Fatalf("Search(5) = %v, %v, want first, true", v, ok)
	}

	bt.Update(5, "second")
	v, ok = bt.Search(5)
	if !ok || v != "second" {
		t.Fatalf("Search(5) after Update = %v, %v, want second, true", v, ok)
	}
	if bt.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", bt.Size())
	}
}

func TestBTreeDelete(t *testing.T) {
	bt := NewBTree(4)
	for i := int64(0); i < 10; i++ {
		_ = bt.Insert(i, i)
	}
	if err := bt.Delete(5); err != nil {
		t.Fatal(err)
	}
	if _, ok := bt.Search(5); ok {
		t.Fatal("Search(5) found deleted key")
	}
	if err := bt.Delete(5); err != ErrKeyNotFound {
		t.Fatalf("Delete missing key: got %v, want ErrKeyNotFound", err)
	}
}

func TestBTreeRangeScan(t *testing.T) {
	bt := NewBTree(4)
	for i := int64(0); i < 50; i++ {
		_ = bt.Insert(i, i)
	}

	lo, hi := int64(10), int64(20)
	keys, _ := bt.RangeScan(&lo, &hi)
	if len(keys) != 11 {
		t.Fatalf("RangeScan(10,20) returned %d keys, want 11", len(keys))
	}
	for i, k := range keys {
		if k != lo+int64(i) {
			t.Fatalf("RangeScan keys out of order: %v", keys)
		}
	}

	keys, _ = bt.RangeScan(nil, nil)
	if len(keys) != 50 {
		t.Fatalf("RangeScan(nil,nil) returned %d keys, want 50", len(keys))
	}

	keys, _ = bt.RangeScan(nil, &hi)
	if len(keys) != 21 {
		t.Fatalf("RangeScan(nil,20) returned %d keys, want 21", len(keys))
	}
}

func TestBTreeSplitsMaintainOrder(t *testing.T) {
	bt := NewBTree(3)
	order := []int64{50, 10, 90, 30, 70, 20, 60, 40, 80, 0, 100}
	for _, k := range order {
		if err := bt.Insert(k, k); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	keys, _ := bt.RangeScan(nil, nil)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not strictly increasing at %d: %v", i, keys)
		}
	}
	if bt.Height() < 2 {
		t.Fatalf("expected tree to grow beyond a single leaf, height=%d", bt.Height())
	}
}
