package testutil

import (
	"context"
	"testing"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedCache writes entries directly into s, bypassing the cache layer.
func SeedCache(t *testing.T, s store.Store, entries ...model.CacheEntry) {
	t.Helper()

	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = Epoch
		}
		if err := s.UpsertClassification(context.Background(), e); err != nil {
			t.Fatalf("seeding cache entry %q: %v", e.Key, err)
		}
	}
}
