package store

import (
	"context"
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

// CacheStats summarizes the classification cache table.
type CacheStats struct {
	Entries   int
	TotalCost float64
	Oldest    time.Time
	Newest    time.Time
}

// Store defines the persistence interface for cached classifications and
// the run log.
type Store interface {
	// === Classification cache ===

	GetClassification(ctx context.Context, key string) (*model.CacheEntry, bool, error)
	UpsertClassification(ctx context.Context, entry model.CacheEntry) error
	ClassificationStats(ctx context.Context) (CacheStats, error)
	ClearClassifications(ctx context.Context) (int64, error)

	// === Runs ===

	RecordRun(ctx context.Context, run model.RunRecord) error
	GetRecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	Close() error
}
