package table

import (
	"fmt"

	"github.com/mnohosten/colstore/pkg/storage"
)

// MergeStats reports what one Merge call did: page-level byte reclamation
// bookkeeping adapted to tail-chain record consolidation.
type MergeStats struct {
	BasePagesScanned int64
	RecordsMerged    int64
	NewTPS           int64
}

// ScanForMerge returns the page range id most eligible for merge — the one
// whose tail length since its last TPS is largest and exceeds
// MergeThreshold — or false if none qualifies (spec.md §4.4: "Selects a
// page range whose tail-length since its TPS exceeds a threshold").
func (t *Table) ScanForMerge() (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := int64(-1)
	bestLen := 0
	for _, rng := range t.ranges {
		l := rng.TailLengthSince(rng.TPS())
		if l > t.MergeThreshold && l > bestLen {
			best = rng.ID
			bestLen = l
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// Merge consolidates pageRangeID's tail chains into a fresh copy of each
// affected base page, then publishes the copy atomically (spec.md §4.4).
// Because every tail record already carries a fully composed row (Update
// always copies forward unchanged columns, never just the touched ones),
// the newest tail record alone holds the record's complete current value —
// merge need not walk the whole chain column by column, only read the
// newest link per record.
func (t *Table) Merge(pageRangeID int64) (*MergeStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rng := t.rangeByID(pageRangeID)
	if rng == nil {
		return nil, storage.NewError("table.merge", storage.KindArgument, fmt.Errorf("no page range %d", pageRangeID))
	}

	stats := &MergeStats{}
	maxTailPage := rng.TPS()

	for _, pgID := range rng.BasePageIDs() {
		stats.BasePagesScanned++
		id := t.baseIdentity(rng.ID, pgID)
		frame, err := t.bp.Pin(id, t.NumUserCol)
		if err != nil {
			return stats, err
		}

		clone := frame.Base.Clone()
		changed := false

		for slot := 0; slot < clone.NumRecords; slot++ {
			baseRID := clone.RIDs[slot]
			indirection := clone.Indirection[slot]
			if indirection.IsDeleted() || indirection == baseRID {
				continue
			}

			tid := t.tailIdentity(indirection.PageRangeID, indirection.PageID)
			tframe, err := t.bp.Pin(tid, t.NumUserCol)
			if err != nil {
				_ = t.bp.Unpin(id, false)
				return stats, err
			}
			for c := 0; c < t.NumUserCol; c++ {
				v, err := tframe.Tail.ReadColumn(c, indirection.SlotID)
				if err != nil {
					_ = t.bp.Unpin(tid, false)
					_ = t.bp.Unpin(id, false)
					return stats, err
				}
				_ = clone.UpdateColumn(c, int64(slot), v)
			}
			_ = t.bp.Unpin(tid, false)

			if indirection.PageID > maxTailPage {
				maxTailPage = indirection.PageID
			}
			clone.Indirection[slot] = baseRID
			changed = true
			stats.RecordsMerged++
		}

		if changed {
			if err := t.bp.SwapBase(id, clone); err != nil {
				_ = t.bp.Unpin(id, false)
				return stats, err
			}
		}
		_ = t.bp.Unpin(id, false)
	}

	rng.AdvanceTPS(maxTailPage)
	stats.NewTPS = rng.TPS()
	return stats, nil
}
