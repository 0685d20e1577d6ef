package index

import (
	"bytes"
	"encoding/gob"

	"github.com/mnohosten/colstore/pkg/storage"
)

// snapshot is the flat, whole-structure representation of an Index
// written to indices.bin (spec.md §6). Grounded on
// original_source/lstore/index.py's close_and_save/load_index, which
// pickles the entire per-column dict-of-trees in one shot rather than
// incrementally maintaining an on-disk index structure; colstore does
// the same with encoding/gob instead of Python's pickle.
type snapshot struct {
	Order   int
	Columns map[int][]snapshotEntry
}

type snapshotEntry struct {
	Key  int64
	RIDs []storage.RID
}

// Serialize flattens the index into a durable byte slice.
func (idx *Index) Serialize() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := snapshot{Order: idx.order, Columns: make(map[int][]snapshotEntry, len(idx.byCol))}
	for col, t := range idx.byCol {
		keys, values := t.RangeScan(nil, nil)
		entries := make([]snapshotEntry, len(keys))
		for i, k := range keys {
			entries[i] = snapshotEntry{Key: k, RIDs: values[i].(ridSet).slice()}
		}
		snap.Columns[col] = entries
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize rebuilds an Index from bytes written by Serialize.
func Deserialize(data []byte) (*Index, error) {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, err
	}

	idx := &Index{byCol: make(map[int]*BTree, len(snap.Columns)), order: snap.Order}
	for col, entries := range snap.Columns {
		t := NewBTree(snap.Order)
		for _, e := range entries {
			set := make(ridSet, len(e.RIDs))
			for _, r := range e.RIDs {
				set[r] = struct{}{}
			}
			_ = t.Insert(e.Key, set)
		}
		idx.byCol[col] = t
	}
	return idx, nil
}
