// Package table implements the Table coordinator of spec.md §4.4: RID
// allocation, the page directory, and the insert/select/update/delete/sum
// operations over base and tail pages, plus background merge
// consolidation. Table operations are also exposed as txn.Query
// implementations (query.go) so they can run under two-phase locking.
package table

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mnohosten/colstore/pkg/concurrent"
	"github.com/mnohosten/colstore/pkg/index"
	"github.com/mnohosten/colstore/pkg/storage"
)

// Record is one projected row: the base RID it was resolved from, its key
// value, and the requested columns (original_source's table.py Record,
// carried over as the Go return type of Select/Sum).
type Record struct {
	RID     storage.RID
	Key     int64
	Columns []int64
}

// Table coordinates one table's physical storage: page ranges, a page
// directory of RIDs (every base record not deleted, plus every tail
// record written), and one B-tree index per column. Table
// methods are safe for concurrent use; the RWMutex stands in for the
// "one mutex per table guards the mapping and the allocation cursors" of
// spec.md §5.
type Table struct {
	Name       string
	KeyColumn  int
	NumUserCol int

	bp   *storage.BufferPool
	disk *storage.DiskManager
	idx  *index.Index

	mu        sync.RWMutex
	ranges    []*storage.PageRange
	directory map[storage.RID]bool

	curRangeIdx   int
	curBasePageID int64

	// MergeThreshold is the tail-page count (since TPS) above which a
	// range becomes eligible for background merge (spec.md §4.4: "Selects
	// a page range whose tail-length since its TPS exceeds a threshold").
	MergeThreshold int

	// cache memoizes current-version (version 0) rows by key, sparing a
	// repeat point read from walking the index and indirection chain
	// again. Optional: nil until EnableCache is called. Invalidated on
	// every Update/Delete of the key it holds.
	cache *concurrent.ShardedLRUCache
}

// EnableCache turns on the current-version read cache with the given
// capacity and per-entry TTL (concurrent.ShardedLRUCache, adapted here
// from a generic key/value cache into a row-level read-through cache
// sitting in front of the index + indirection walk).
func (t *Table) EnableCache(capacity int, ttl time.Duration) {
	t.cache = concurrent.NewShardedLRUCache(capacity, ttl, 8)
}

func cacheKey(keyVal int64) string {
	return strconv.FormatInt(keyVal, 10)
}

// New creates an empty table over numUserCol user columns, with keyColumn
// as the primary key's column index.
func New(name string, numUserCol, keyColumn int, bp *storage.BufferPool, disk *storage.DiskManager) *Table {
	return &Table{
		Name:           name,
		KeyColumn:      keyColumn,
		NumUserCol:     numUserCol,
		bp:             bp,
		disk:           disk,
		idx:            index.NewIndex(numUserCol, 32),
		directory:      make(map[storage.RID]bool),
		curRangeIdx:    -1,
		MergeThreshold: 2,
	}
}

func (t *Table) baseIdentity(pageRangeID, pageID int64) storage.Identity {
	return storage.Identity{Table: t.Name, PageRangeID: pageRangeID, PageID: pageID, Kind: storage.KindBase}
}

func (t *Table) tailIdentity(pageRangeID, pageID int64) storage.Identity {
	return storage.Identity{Table: t.Name, PageRangeID: pageRangeID, PageID: pageID, Kind: storage.KindTail}
}

func (t *Table) rangeByID(id int64) *storage.PageRange {
	for _, r := range t.ranges {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (t *Table) appendRangeLocked() *storage.PageRange {
	rng := storage.NewPageRange(int64(len(t.ranges)), t.NumUserCol)
	_ = rng.AppendBasePage(0)
	t.ranges = append(t.ranges, rng)
	t.curRangeIdx = len(t.ranges) - 1
	t.curBasePageID = 0
	return rng
}

// advanceBasePageLocked moves the allocation cursor to the next base page,
// allocating a new PageRange if the current one is already full (spec.md
// §4.4 Insert step 1).
func (t *Table) advanceBasePageLocked(rng *storage.PageRange) *storage.PageRange {
	next := t.curBasePageID + 1
	if next >= storage.BasePagesPerRange {
		return t.appendRangeLocked()
	}
	if err := rng.AppendBasePage(next); err != nil {
		return t.appendRangeLocked()
	}
	t.curBasePageID = next
	return rng
}

// Insert appends a new base record and returns its RID (spec.md §4.4).
func (t *Table) Insert(values []int64) (storage.RID, error) {
	if len(values) != t.NumUserCol {
		return storage.RID{}, storage.NewError("table.insert", storage.KindArgument,
			fmt.Errorf("expected %d values, got %d", t.NumUserCol, len(values)))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ranges) == 0 {
		t.appendRangeLocked()
	}

	for {
		rng := t.ranges[t.curRangeIdx]
		id := t.baseIdentity(rng.ID, t.curBasePageID)
		frame, err := t.bp.Pin(id, t.NumUserCol)
		if err != nil {
			return storage.RID{}, err
		}

		if !frame.Base.HasCapacity() {
			_ = t.bp.Unpin(id, false)
			t.advanceBasePageLocked(rng)
			continue
		}

		slot := int64(frame.Base.NumRecords)
		rid := storage.RID{PageRangeID: rng.ID, PageID: t.curBasePageID, SlotID: slot, Kind: storage.KindBase}
		if _, err := frame.Base.Insert(rid, time.Now().UnixNano(), 0, rid, values); err != nil {
			_ = t.bp.Unpin(id, false)
			return storage.RID{}, err
		}
		_ = t.bp.MarkDirty(id)
		_ = t.bp.Unpin(id, true)

		t.directory[rid] = true
		for c := 0; c < t.NumUserCol; c++ {
			t.idx.Insert(c, values[c], rid)
		}
		return rid, nil
	}
}

// readVersion walks the indirection chain from baseRID version steps back
// from the newest (version 0 = newest, version -k = k updates older;
// positive versions are invalid — spec.md §4.4/§9, resolved by
// original_source/lstore/table.py's get_record_version sign convention,
// see SPEC_FULL.md §E4 item 1). It returns the full projected row found at
// the landed record and the RID it landed on.
func (t *Table) readVersion(baseRID storage.RID, version int) ([]int64, storage.RID, error) {
	if version > 0 {
		return nil, storage.RID{}, storage.NewError("table.read_version", storage.KindArgument,
			fmt.Errorf("version must be <= 0, got %d", version))
	}

	bid := t.baseIdentity(baseRID.PageRangeID, baseRID.PageID)
	bframe, err := t.bp.Pin(bid, t.NumUserCol)
	if err != nil {
		return nil, storage.RID{}, err
	}
	indirection := bframe.Base.Indirection[baseRID.SlotID]
	_ = t.bp.Unpin(bid, false)

	if indirection.IsDeleted() {
		return nil, storage.RID{}, storage.NewError("table.read_version", storage.KindNotFound,
			fmt.Errorf("record %s is deleted", baseRID))
	}

	landed := indirection
	for steps := -version; steps > 0; steps-- {
		if landed == baseRID {
			break // chain exhausted; clamp to the oldest (base) version
		}
		tid := t.tailIdentity(landed.PageRangeID, landed.PageID)
		tframe, err := t.bp.Pin(tid, t.NumUserCol)
		if err != nil {
			return nil, storage.RID{}, err
		}
		next := tframe.Tail.Indirection[landed.SlotID]
		_ = t.bp.Unpin(tid, false)
		landed = next
	}

	row := make([]int64, t.NumUserCol)
	if landed == baseRID {
		bf, err := t.bp.Pin(bid, t.NumUserCol)
		if err != nil {
			return nil, storage.RID{}, err
		}
		for c := 0; c < t.NumUserCol; c++ {
			row[c], _ = bf.Base.ReadColumn(c, baseRID.SlotID)
		}
		_ = t.bp.Unpin(bid, false)
	} else {
		tid := t.tailIdentity(landed.PageRangeID, landed.PageID)
		tf, err := t.bp.Pin(tid, t.NumUserCol)
		if err != nil {
			return nil, storage.RID{}, err
		}
		for c := 0; c < t.NumUserCol; c++ {
			row[c], _ = tf.Tail.ReadColumn(c, landed.SlotID)
		}
		_ = t.bp.Unpin(tid, false)
	}
	return row, landed, nil
}

func projectRow(row []int64, projection []bool) []int64 {
	if projection == nil {
		return append([]int64(nil), row...)
	}
	out := make([]int64, 0, len(row))
	for i, v := range row {
		if i < len(projection) && projection[i] {
			out = append(out, v)
		}
	}
	return out
}

// Select resolves keyVal to a base record and returns the requested
// version's projected columns (spec.md §4.4 Point select). projection may
// be nil to return every user column.
func (t *Table) Select(keyVal int64, projection []bool, version int) (*Record, error) {
	if version == 0 && t.cache != nil {
		if cached, ok := t.cache.Get(cacheKey(keyVal)); ok {
			entry := cached.(cachedRow)
			return &Record{RID: entry.rid, Key: keyVal, Columns: projectRow(entry.row, projection)}, nil
		}
	}

	t.mu.RLock()
	rids := t.idx.Locate(t.KeyColumn, keyVal)
	t.mu.RUnlock()
	if len(rids) == 0 {
		return nil, storage.NewError("table.select", storage.KindNotFound, fmt.Errorf("key %d not found", keyVal))
	}
	baseRID := pickOne(rids)

	row, _, err := t.readVersion(baseRID, version)
	if err != nil {
		return nil, err
	}
	if version == 0 && t.cache != nil {
		t.cache.Put(cacheKey(keyVal), cachedRow{rid: baseRID, row: row})
	}
	return &Record{RID: baseRID, Key: keyVal, Columns: projectRow(row, projection)}, nil
}

// cachedRow is what Table's optional read cache stores per key.
type cachedRow struct {
	rid storage.RID
	row []int64
}

// Sum adds column col's current effective value across every record whose
// key lies in [lo, hi] (spec.md §4.4 Range sum, §6 sum).
func (t *Table) Sum(lo, hi int64, col int) (int64, error) {
	return t.SumVersion(lo, hi, col, 0)
}

// SumVersion is Sum against a specific relative version of every record in
// range, instead of always the newest (spec.md §6 sum_version).
func (t *Table) SumVersion(lo, hi int64, col int, version int) (int64, error) {
	if col < 0 || col >= t.NumUserCol {
		return 0, storage.NewError("table.sum", storage.KindArgument, fmt.Errorf("column %d out of range", col))
	}

	t.mu.RLock()
	rids := t.idx.LocateRange(t.KeyColumn, lo, hi)
	t.mu.RUnlock()

	var total int64
	for _, rid := range rids {
		row, _, err := t.readVersion(rid, version)
		if err != nil {
			if storage.IsKind(err, storage.KindNotFound) {
				continue
			}
			return 0, err
		}
		total += row[col]
	}
	return total, nil
}

// Increment adds 1 to column col of keyVal's current row, expressed as an
// Update whose only touched column is col (spec.md §6 increment).
func (t *Table) Increment(keyVal int64, col int) (bool, error) {
	if col < 0 || col >= t.NumUserCol {
		return false, storage.NewError("table.increment", storage.KindArgument, fmt.Errorf("column %d out of range", col))
	}
	if col == t.KeyColumn {
		return false, storage.NewError("table.increment", storage.KindArgument, fmt.Errorf("the primary key value may not change"))
	}

	rec, err := t.Select(keyVal, nil, 0)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	newValues := make([]*int64, t.NumUserCol)
	v := rec.Columns[col] + 1
	newValues[col] = &v
	return t.Update(keyVal, newValues)
}

// ensureTailFrame pins the range's current tail page, opening a new one if
// the current one is full (spec.md §4.4 Update step 3; tail-page capacity
// confirmed to match base-page capacity by SPEC_FULL.md §E4 item 2).
func (t *Table) ensureTailFrame(rng *storage.PageRange) (int64, *storage.Frame, error) {
	ids := rng.TailPageIDs()
	var pid int64
	if len(ids) == 0 {
		pid = 0
		rng.AppendTailPage(pid)
	} else {
		pid = ids[len(ids)-1]
	}

	id := t.tailIdentity(rng.ID, pid)
	frame, err := t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return 0, nil, err
	}
	if frame.Tail.HasCapacity() {
		return pid, frame, nil
	}

	_ = t.bp.Unpin(id, false)
	pid++
	rng.AppendTailPage(pid)
	id = t.tailIdentity(rng.ID, pid)
	frame, err = t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return 0, nil, err
	}
	return pid, frame, nil
}

// Update composes a new tail record from newValues (nil entries keep the
// current effective value) and relinks the base record's indirection to
// it (spec.md §4.4 Update). The key column may not change.
func (t *Table) Update(keyVal int64, newValues []*int64) (bool, error) {
	if len(newValues) != t.NumUserCol {
		return false, storage.NewError("table.update", storage.KindArgument,
			fmt.Errorf("expected %d columns, got %d", t.NumUserCol, len(newValues)))
	}
	if newValues[t.KeyColumn] != nil {
		return false, storage.NewError("table.update", storage.KindArgument, fmt.Errorf("the primary key value may not change"))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.idx.Locate(t.KeyColumn, keyVal)
	if len(rids) == 0 {
		return false, nil
	}
	baseRID := pickOne(rids)

	bid := t.baseIdentity(baseRID.PageRangeID, baseRID.PageID)
	bframe, err := t.bp.Pin(bid, t.NumUserCol)
	if err != nil {
		return false, err
	}
	prev := bframe.Base.Indirection[baseRID.SlotID]
	_ = t.bp.Unpin(bid, false)
	if prev.IsDeleted() {
		return false, nil
	}

	currentRow, _, err := t.readVersion(baseRID, 0)
	if err != nil {
		return false, err
	}

	tailValues := make([]int64, t.NumUserCol)
	var schemaBits uint64
	for c := 0; c < t.NumUserCol; c++ {
		if newValues[c] != nil {
			tailValues[c] = *newValues[c]
			schemaBits |= 1 << uint(c)
		} else {
			tailValues[c] = currentRow[c]
		}
	}

	rng := t.rangeByID(baseRID.PageRangeID)
	tailPageID, tframe, err := t.ensureTailFrame(rng)
	if err != nil {
		return false, err
	}
	tid := t.tailIdentity(rng.ID, tailPageID)
	slot := int64(tframe.Tail.NumRecords)
	tailRID := storage.RID{PageRangeID: rng.ID, PageID: tailPageID, SlotID: slot, Kind: storage.KindTail}
	if _, err := tframe.Tail.Insert(tailRID, time.Now().UnixNano(), schemaBits, prev, baseRID, tailValues); err != nil {
		_ = t.bp.Unpin(tid, false)
		return false, err
	}
	_ = t.bp.MarkDirty(tid)
	_ = t.bp.Unpin(tid, true)

	bframe, err = t.bp.Pin(bid, t.NumUserCol)
	if err != nil {
		return false, err
	}
	_ = bframe.Base.SetIndirection(baseRID.SlotID, tailRID)
	_ = bframe.Base.SetSchemaEncoding(baseRID.SlotID, schemaBits)
	_ = t.bp.MarkDirty(bid)
	_ = t.bp.Unpin(bid, true)

	t.directory[tailRID] = true
	for c := 0; c < t.NumUserCol; c++ {
		if newValues[c] != nil && *newValues[c] != currentRow[c] {
			t.idx.Update(c, currentRow[c], *newValues[c], baseRID)
		}
	}

	if t.cache != nil {
		t.cache.Delete(cacheKey(keyVal))
	}

	if rng.TailLengthSince(rng.TPS()) > t.MergeThreshold {
		go func() { _, _ = t.Merge(rng.ID) }()
	}

	return true, nil
}

// Delete marks keyVal's base record as logically deleted and removes it
// from every column index (spec.md §4.4 Delete).
func (t *Table) Delete(keyVal int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rids := t.idx.Locate(t.KeyColumn, keyVal)
	if len(rids) == 0 {
		return false, nil
	}
	baseRID := pickOne(rids)

	currentRow, _, err := t.readVersion(baseRID, 0)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	bid := t.baseIdentity(baseRID.PageRangeID, baseRID.PageID)
	bframe, err := t.bp.Pin(bid, t.NumUserCol)
	if err != nil {
		return false, err
	}
	_ = bframe.Base.SetIndirection(baseRID.SlotID, storage.DeletedRID)
	_ = t.bp.MarkDirty(bid)
	_ = t.bp.Unpin(bid, true)

	for c := 0; c < t.NumUserCol; c++ {
		t.idx.Remove(c, currentRow[c], baseRID)
	}
	delete(t.directory, baseRID)
	if t.cache != nil {
		t.cache.Delete(cacheKey(keyVal))
	}
	return true, nil
}

// LookupBaseRID resolves keyVal to its base RID, without reading any
// column data. Used by query.go to compute lock requests before a query's
// Run executes.
func (t *Table) LookupBaseRID(keyVal int64) (storage.RID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rids := t.idx.Locate(t.KeyColumn, keyVal)
	if len(rids) == 0 {
		return storage.RID{}, false
	}
	return pickOne(rids), true
}

// LookupRangeRIDs resolves every base RID whose key lies in [lo, hi].
func (t *Table) LookupRangeRIDs(lo, hi int64) []storage.RID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.idx.LocateRange(t.KeyColumn, lo, hi)
}

// indirectionOf reads a base record's current indirection without
// disturbing it; used to capture the pre-image compensating actions
// restore on abort (spec.md §4.6 step 3).
func (t *Table) indirectionOf(rid storage.RID) (storage.RID, error) {
	id := t.baseIdentity(rid.PageRangeID, rid.PageID)
	frame, err := t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return storage.RID{}, err
	}
	ind := frame.Base.Indirection[rid.SlotID]
	_ = t.bp.Unpin(id, false)
	return ind, nil
}

// setIndirection overwrites a base record's indirection field directly —
// the mechanism UpdateQuery and IncrementQuery use to restore the
// pre-image on abort.
func (t *Table) setIndirection(rid storage.RID, val storage.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.baseIdentity(rid.PageRangeID, rid.PageID)
	frame, err := t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return err
	}
	_ = frame.Base.SetIndirection(rid.SlotID, val)
	_ = t.bp.MarkDirty(id)
	_ = t.bp.Unpin(id, true)
	return nil
}

// deleteByRID performs Delete's physical effect directly on a known RID
// with known current values, used by InsertQuery.Undo to roll back an
// insert whose key was never otherwise looked up (spec.md §4.6 step 3:
// "for inserts, mark the RID deleted and roll back index entries").
func (t *Table) deleteByRID(rid storage.RID, values []int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.baseIdentity(rid.PageRangeID, rid.PageID)
	frame, err := t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return err
	}
	_ = frame.Base.SetIndirection(rid.SlotID, storage.DeletedRID)
	_ = t.bp.MarkDirty(id)
	_ = t.bp.Unpin(id, true)

	for c := 0; c < t.NumUserCol; c++ {
		t.idx.Remove(c, values[c], rid)
	}
	delete(t.directory, rid)
	if t.cache != nil {
		t.cache.Delete(cacheKey(values[t.KeyColumn]))
	}
	return nil
}

// restoreDeleted reverses Delete's effect on a rolled-back transaction:
// restores the base record's indirection pointer and re-inserts it into
// every column index and the live-record directory, using the column
// values captured before Delete ran (spec.md §8: the index must map
// exactly to live, non-deleted records, including after an aborted
// delete).
func (t *Table) restoreDeleted(rid storage.RID, prevIndir storage.RID, values []int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.baseIdentity(rid.PageRangeID, rid.PageID)
	frame, err := t.bp.Pin(id, t.NumUserCol)
	if err != nil {
		return err
	}
	_ = frame.Base.SetIndirection(rid.SlotID, prevIndir)
	_ = t.bp.MarkDirty(id)
	_ = t.bp.Unpin(id, true)

	t.directory[rid] = true
	for c := 0; c < t.NumUserCol; c++ {
		t.idx.Insert(c, values[c], rid)
	}
	if t.cache != nil {
		t.cache.Delete(cacheKey(values[t.KeyColumn]))
	}
	return nil
}

func pickOne(rids []storage.RID) storage.RID {
	best := rids[0]
	for _, r := range rids[1:] {
		if r.PageRangeID > best.PageRangeID ||
			(r.PageRangeID == best.PageRangeID && r.PageID > best.PageID) ||
			(r.PageRangeID == best.PageRangeID && r.PageID == best.PageID && r.SlotID > best.SlotID) {
			best = r
		}
	}
	return best
}
