package storage

import "testing"

func TestPageWriteReadUpdate(t *testing.T) {
	p := NewPage()

	slot, err := p.Write(42)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if slot != 0 {
		t.Fatalf("first slot = %d, want 0", slot)
	}

	v, err := p.Read(slot)
	if err != nil || v != 42 {
		t.Fatalf("Read(%d) = %d, %v, want 42, nil", slot, v, err)
	}

	if err := p.Update(slot, 99); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, _ = p.Read(slot)
	if v != 99 {
		t.Fatalf("Read after Update = %d, want 99", v)
	}

	if _, err := p.Read(5); !IsKind(err, KindArgument) {
		t.Fatalf("Read out of range: got %v, want KindArgument", err)
	}
}

func TestPageCapacity(t *testing.T) {
	p := NewPage()
	for i := 0; i < RecordsPerPage; i++ {
		if !p.HasCapacity() {
			t.Fatalf("HasCapacity false before page full, at record %d", i)
		}
		if _, err := p.Write(int64(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if p.HasCapacity() {
		t.Fatal("HasCapacity true after page full")
	}
	if _, err := p.Write(1); !IsKind(err, KindCapacity) {
		t.Fatalf("Write past capacity: got %v, want KindCapacity", err)
	}
}
