package storage

import (
	"fmt"
	"sync"
)

// PageRange holds up to BasePagesPerRange base pages (capacity
// RecordsPerPage*BasePagesPerRange base records) and an unbounded
// sequence of tail pages, plus the TPS high-water mark up to which tail
// records have already been folded into base pages by merge (spec.md
// §3, GLOSSARY).
type PageRange struct {
	ID         int64
	NumUserCol int

	mu        sync.Mutex
	basePages []int64 // page ids, in order; actual pages live in the buffer pool
	tailPages []int64
	tps       int64

	// retiredTailFiles names tail-page files fully covered by TPS — every
	// record in them has been merged into base and need not be consulted
	// on read. Physical compaction (removing the file) is left to an
	// offline tool; this registry only tracks eligibility, without a
	// byte-packed, single-shared-file free list (see DESIGN.md).
	retiredTailFiles map[int64]bool
}

// NewPageRange creates an empty PageRange.
func NewPageRange(id int64, numUserCol int) *PageRange {
	return &PageRange{
		ID:               id,
		NumUserCol:       numUserCol,
		retiredTailFiles: make(map[int64]bool),
	}
}

// AppendBasePage records a newly allocated base page id; fails once the
// range already holds BasePagesPerRange base pages.
func (pr *PageRange) AppendBasePage(pageID int64) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if len(pr.basePages) >= BasePagesPerRange {
		return NewError("page_range.append_base_page", KindCapacity, fmt.Errorf("range %d already holds %d base pages", pr.ID, BasePagesPerRange))
	}
	pr.basePages = append(pr.basePages, pageID)
	return nil
}

// AppendTailPage records a newly allocated tail page id (unbounded).
func (pr *PageRange) AppendTailPage(pageID int64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.tailPages = append(pr.tailPages, pageID)
}

// BasePageIDs returns a snapshot of base page ids in allocation order.
func (pr *PageRange) BasePageIDs() []int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return append([]int64(nil), pr.basePages...)
}

// TailPageIDs returns a snapshot of tail page ids in allocation order.
func (pr *PageRange) TailPageIDs() []int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return append([]int64(nil), pr.tailPages...)
}

// IsFull reports whether the range already holds BasePagesPerRange base
// pages.
func (pr *PageRange) IsFull() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return len(pr.basePages) >= BasePagesPerRange
}

// TPS returns the current tail-page-sequence high-water mark.
func (pr *PageRange) TPS() int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.tps
}

// AdvanceTPS moves the high-water mark forward after a successful merge.
// It is a no-op if newTPS does not exceed the current mark (merge
// idempotence, spec.md §8 property 7).
func (pr *PageRange) AdvanceTPS(newTPS int64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if newTPS > pr.tps {
		pr.tps = newTPS
	}
}

// TailLengthSince returns how many tail pages have been appended since
// the last merge, the signal the background merge scanner uses to pick a
// range to consolidate (spec.md §4.4).
func (pr *PageRange) TailLengthSince(mergedThroughPage int64) int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	count := 0
	for _, id := range pr.tailPages {
		if id > mergedThroughPage {
			count++
		}
	}
	return count
}

// RetireTailFile marks pageID's tail-page file as fully covered by TPS.
func (pr *PageRange) RetireTailFile(pageID int64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.retiredTailFiles[pageID] = true
}

// RetiredTailFiles returns the tail page ids eligible for offline
// compaction.
func (pr *PageRange) RetiredTailFiles() []int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	out := make([]int64, 0, len(pr.retiredTailFiles))
	for id := range pr.retiredTailFiles {
		out = append(out, id)
	}
	return out
}
