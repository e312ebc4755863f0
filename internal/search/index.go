package search

import (
	"sort"

	"github.com/nhle/mailbrief/internal/model"
)

// Index is a read-only, time-ordered view of the archive used for
// candidate generation.
type Index struct {
	records []model.MessageRecord
}

// NewIndex copies records into timestamp order.
func NewIndex(records []model.MessageRecord) *Index {
	sorted := append([]model.MessageRecord(nil), records...)
	model.SortRecordsChronologically(sorted)
	return &Index{records: sorted}
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.records) }

// Between returns the records inside r, oldest first. The returned slice
// aliases the index and must not be modified.
func (ix *Index) Between(r model.DateRange) []model.MessageRecord {
	lo, hi := 0, len(ix.records)
	if !r.Start.IsZero() {
		lo = sort.Search(len(ix.records), func(i int) bool {
			return !ix.records[i].Timestamp.Before(r.Start)
		})
	}
	if !r.End.IsZero() {
		hi = sort.Search(len(ix.records), func(i int) bool {
			return !ix.records[i].Timestamp.Before(r.End)
		})
	}
	if lo >= hi {
		return nil
	}
	return ix.records[lo:hi]
}
