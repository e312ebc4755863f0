package source

import (
	"context"

	"github.com/nhle/mailbrief/internal/model"
)

// Source is a read-only view over an archived mailbox.
type Source interface {
	// Load returns the records whose timestamp falls inside window,
	// newest first. A positive limit caps the number of records.
	Load(
		ctx context.Context,
		window model.DateRange,
		limit int,
	) ([]model.MessageRecord, error)
}

// Static serves a fixed slice of records. It is used by tests and by
// callers that already hold records in memory.
type Static []model.MessageRecord

// Load filters the slice by window and applies limit after sorting newest
// first.
func (s Static) Load(
	ctx context.Context,
	window model.DateRange,
	limit int,
) ([]model.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.MessageRecord, 0, len(s))
	for _, r := range s {
		if window.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}

	model.SortRecordsChronologically(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
