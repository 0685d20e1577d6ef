package storage

import "fmt"

// BasePage groups one Page per user+metadata column plus the parallel
// per-record metadata arrays spec.md §3 requires to move in lockstep:
// RID, start-time, schema-encoding, and indirection. Invariant: every
// Columns[i] and every metadata slice has the same NumRecords.
type BasePage struct {
	Columns        []*Page
	RIDs           []RID
	StartTime      []int64
	SchemaEncoding []uint64
	Indirection    []RID
	NumRecords     int
}

// NewBasePage allocates an empty BasePage over numUserCols user columns.
func NewBasePage(numUserCols int) *BasePage {
	cols := make([]*Page, numUserCols)
	for i := range cols {
		cols[i] = NewPage()
	}
	return &BasePage{Columns: cols}
}

// HasCapacity reports whether another record fits.
func (bp *BasePage) HasCapacity() bool {
	return bp.NumRecords < RecordsPerPage
}

// Insert appends one record's values across all user columns plus its
// metadata, advancing every parallel array together. indirection is
// typically rid itself (the base-record self-loop of spec.md §3).
func (bp *BasePage) Insert(rid RID, startTime int64, schemaEncoding uint64, indirection RID, values []int64) (int64, error) {
	if len(values) != len(bp.Columns) {
		return 0, NewError("base_page.insert", KindArgument, fmt.Errorf("expected %d values, got %d", len(bp.Columns), len(values)))
	}
	if !bp.HasCapacity() {
		return 0, NewError("base_page.insert", KindCapacity, fmt.Errorf("base page full at %d records", RecordsPerPage))
	}

	var slot int64
	for i, v := range values {
		s, err := bp.Columns[i].Write(v)
		if err != nil {
			return 0, err
		}
		slot = s
	}
	bp.RIDs = append(bp.RIDs, rid)
	bp.StartTime = append(bp.StartTime, startTime)
	bp.SchemaEncoding = append(bp.SchemaEncoding, schemaEncoding)
	bp.Indirection = append(bp.Indirection, indirection)
	bp.NumRecords++
	return slot, nil
}

// ReadColumn reads the user-column value at slot.
func (bp *BasePage) ReadColumn(col int, slot int64) (int64, error) {
	if col < 0 || col >= len(bp.Columns) {
		return 0, NewError("base_page.read_column", KindArgument, fmt.Errorf("column %d out of range", col))
	}
	return bp.Columns[col].Read(slot)
}

// UpdateColumn overwrites the user-column value at slot in place (used by
// merge consolidation, spec.md §4.4).
func (bp *BasePage) UpdateColumn(col int, slot int64, value int64) error {
	if col < 0 || col >= len(bp.Columns) {
		return NewError("base_page.update_column", KindArgument, fmt.Errorf("column %d out of range", col))
	}
	return bp.Columns[col].Update(slot, value)
}

// SetIndirection overwrites the indirection entry for slot.
func (bp *BasePage) SetIndirection(slot int64, rid RID) error {
	if slot < 0 || int(slot) >= bp.NumRecords {
		return NewError("base_page.set_indirection", KindArgument, fmt.Errorf("slot %d out of range", slot))
	}
	bp.Indirection[slot] = rid
	return nil
}

// SetSchemaEncoding ORs newBits into the schema encoding for slot.
func (bp *BasePage) SetSchemaEncoding(slot int64, newBits uint64) error {
	if slot < 0 || int(slot) >= bp.NumRecords {
		return NewError("base_page.set_schema_encoding", KindArgument, fmt.Errorf("slot %d out of range", slot))
	}
	bp.SchemaEncoding[slot] |= newBits
	return nil
}

// Clone returns a deep copy of bp, used by merge to publish a new base
// page without mutating the one readers may still be pinning (spec.md
// §4.4: "Publishes the new base page atomically").
func (bp *BasePage) Clone() *BasePage {
	clone := &BasePage{
		Columns:        make([]*Page, len(bp.Columns)),
		RIDs:           append([]RID(nil), bp.RIDs...),
		StartTime:      append([]int64(nil), bp.StartTime...),
		SchemaEncoding: append([]uint64(nil), bp.SchemaEncoding...),
		Indirection:    append([]RID(nil), bp.Indirection...),
		NumRecords:     bp.NumRecords,
	}
	for i, col := range bp.Columns {
		p := *col
		clone.Columns[i] = &p
	}
	return clone
}

// TailPage is a BasePage plus, per slot, the base RID the tail record
// updates (spec.md §3).
type TailPage struct {
	BasePage
	BaseRID []RID
}

// NewTailPage allocates an empty TailPage over numUserCols user columns.
func NewTailPage(numUserCols int) *TailPage {
	return &TailPage{BasePage: *NewBasePage(numUserCols)}
}

// Insert appends one tail record, recording baseRID alongside the usual
// metadata.
func (tp *TailPage) Insert(rid RID, startTime int64, schemaEncoding uint64, indirection RID, baseRID RID, values []int64) (int64, error) {
	slot, err := tp.BasePage.Insert(rid, startTime, schemaEncoding, indirection, values)
	if err != nil {
		return 0, err
	}
	tp.BaseRID = append(tp.BaseRID, baseRID)
	return slot, nil
}
