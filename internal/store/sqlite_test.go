package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/store"
	"github.com/nhle/mailbrief/tests/testutil"
)

func strPtr(s string) *string { return &s }

func TestClassification_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := model.CacheEntry{
		Key:            "thread:a@x b@x",
		Category:       model.CategoryNeedsResponse,
		Summary:        "Alice asks for the Q3 deck",
		ActionItems:    strPtr("Send deck by Friday"),
		Cost:           0.0042,
		ServiceVersion: "claude-haiku-4-5",
		CreatedAt:      created,
	}
	require.NoError(t, s.UpsertClassification(ctx, entry))

	got, found, err := s.GetClassification(ctx, entry.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Key, got.Key)
	assert.Equal(t, model.CategoryNeedsResponse, got.Category)
	assert.Equal(t, entry.Summary, got.Summary)
	require.NotNil(t, got.ActionItems)
	assert.Equal(t, "Send deck by Friday", *got.ActionItems)
	assert.InDelta(t, 0.0042, got.Cost, 1e-9)
	assert.Equal(t, "claude-haiku-4-5", got.ServiceVersion)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
}

func TestClassification_Missing(t *testing.T) {
	s := testutil.NewTestStore(t)

	got, found, err := s.GetClassification(context.Background(), "msg:nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestClassification_UpsertLastWriterWins(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first := model.CacheEntry{Key: "msg:1", Category: model.CategoryFYI, Summary: "first"}
	second := model.CacheEntry{Key: "msg:1", Category: model.CategoryUrgent, Summary: "second"}
	require.NoError(t, s.UpsertClassification(ctx, first))
	require.NoError(t, s.UpsertClassification(ctx, second))

	got, found, err := s.GetClassification(ctx, "msg:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", got.Summary)
	assert.Nil(t, got.ActionItems)

	stats, err := s.ClassificationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestClassification_StatsAndClear(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	empty, err := s.ClassificationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.CacheStats{}, empty)

	t0 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range []string{"msg:a", "msg:b", "msg:c"} {
		require.NoError(t, s.UpsertClassification(ctx, model.CacheEntry{
			Key:       key,
			Category:  model.CategoryFYI,
			Summary:   key,
			Cost:      0.01,
			CreatedAt: t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	stats, err := s.ClassificationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.InDelta(t, 0.03, stats.TotalCost, 1e-9)
	assert.True(t, t0.Equal(stats.Oldest))
	assert.True(t, t0.Add(2*time.Hour).Equal(stats.Newest))

	n, err := s.ClearClassifications(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	stats, err = s.ClassificationStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}

func TestRuns_RecordAndList(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, model.RunRecord{
		ID: "older", Kind: model.RunKindBrief, StartedAt: t0, FinishedAt: t0.Add(time.Minute),
		Items: 4, ServiceCalls: 2, Fallbacks: 1, Cost: 0.02,
	}))
	require.NoError(t, s.RecordRun(ctx, model.RunRecord{
		Kind: model.RunKindSearch, StartedAt: t0.Add(time.Hour), FinishedAt: t0.Add(time.Hour),
	}))

	runs, err := s.GetRecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunKindSearch, runs[0].Kind)
	assert.NotEmpty(t, runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
	assert.Equal(t, 4, runs[1].Items)
	assert.Equal(t, 1, runs[1].Fallbacks)
}
