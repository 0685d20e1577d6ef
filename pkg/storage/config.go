package storage

// Column-index constants for the metadata columns every physical record
// carries alongside its user columns. Names are carried over from
// original_source/lstore/config.py (INDIRECTION_COLUMN, RID_COLUMN,
// TIMESTAMP_COLUMN, SCHEMA_ENCODING_COLUMN), translated to Go naming; its
// RECORD_DELETED sentinel is DeletedRID in rid.go.
const (
	ColIndirection = iota
	ColRID
	ColStartTime
	ColSchemaEncoding
)

const (
	// PageSize is the logical byte size of one column's fixed-width Page
	// (P in spec.md §3): R slots of 8 bytes each.
	PageSize = 4096

	// RecordsPerPage is the number of fixed-width slots per Page (R in
	// spec.md §3/§9; also the tail-page capacity per §9 open question 2).
	RecordsPerPage = PageSize / 8

	// BasePagesPerRange is the maximum number of base pages a PageRange may
	// hold (B in spec.md §3).
	BasePagesPerRange = 16

	// DefaultFrameCount is the default buffer pool capacity (F in spec.md
	// §4.2).
	DefaultFrameCount = 100
)
