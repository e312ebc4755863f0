package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrief/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDateHint(t *testing.T) {
	// Sunday, 15 June 2025, mid-afternoon.
	now := time.Date(2025, time.June, 15, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		hint string
		want model.DateRange
	}{
		{"last year", model.DateRange{Start: day(2024, 1, 1), End: day(2025, 1, 1)}},
		{"from last year", model.DateRange{Start: day(2024, 1, 1), End: day(2025, 1, 1)}},
		{"This Year", model.DateRange{Start: day(2025, 1, 1), End: day(2026, 1, 1)}},
		{"past year", model.DateRange{Start: now.AddDate(-1, 0, 0), End: now}},
		{"last month", model.DateRange{Start: day(2025, 5, 1), End: day(2025, 6, 1)}},
		{"this month", model.DateRange{Start: day(2025, 6, 1), End: day(2025, 7, 1)}},
		{"last week", model.DateRange{Start: day(2025, 6, 2), End: day(2025, 6, 9)}},
		{"this week", model.DateRange{Start: day(2025, 6, 9), End: day(2025, 6, 16)}},
		{"today", model.DateRange{Start: day(2025, 6, 15), End: day(2025, 6, 16)}},
		{"yesterday", model.DateRange{Start: day(2025, 6, 14), End: day(2025, 6, 15)}},
		{"12h", model.DateRange{Start: now.Add(-12 * time.Hour), End: now}},
		{"3d", model.DateRange{Start: now.AddDate(0, 0, -3), End: now}},
		{"2w", model.DateRange{Start: now.AddDate(0, 0, -14), End: now}},
		{"1mo", model.DateRange{Start: now.AddDate(0, -1, 0), End: now}},
		{"1y", model.DateRange{Start: now.AddDate(-1, 0, 0), End: now}},
		{"10 days", model.DateRange{Start: now.AddDate(0, 0, -10), End: now}},
		{"the past 2 weeks", model.DateRange{Start: now.AddDate(0, 0, -14), End: now}},
		{"last 3 months", model.DateRange{Start: now.AddDate(0, -3, 0), End: now}},
		{"March", model.DateRange{Start: day(2025, 3, 1), End: day(2025, 4, 1)}},
		{"in december", model.DateRange{Start: day(2024, 12, 1), End: day(2025, 1, 1)}},
		{"june", model.DateRange{Start: day(2025, 6, 1), End: day(2025, 7, 1)}},
		{"sep 2023", model.DateRange{Start: day(2023, 9, 1), End: day(2023, 10, 1)}},
		{"2023", model.DateRange{Start: day(2023, 1, 1), End: day(2024, 1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			got, ok := ResolveDateHint(tt.hint, now)
			require.True(t, ok)
			assert.True(t, tt.want.Start.Equal(got.Start), "start: want %v got %v", tt.want.Start, got.Start)
			assert.True(t, tt.want.End.Equal(got.End), "end: want %v got %v", tt.want.End, got.End)
		})
	}
}

func TestResolveDateHint_Unknown(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	for _, hint := range []string{"", "whenever", "soonish", "13 fortnights"} {
		_, ok := ResolveDateHint(hint, now)
		assert.False(t, ok, hint)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	r, ok := ParseSince("1d", now)
	require.True(t, ok)
	assert.True(t, now.Add(-24*time.Hour).Equal(r.Start))
	assert.True(t, r.End.IsZero())

	r, ok = ParseSince("2025-03-01", now)
	require.True(t, ok)
	assert.True(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC).Equal(r.Start))
	assert.True(t, r.End.IsZero())

	_, ok = ParseSince("bogus", now)
	assert.False(t, ok)
}
