package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw     string
		want    Category
		wantErr bool
	}{
		{raw: "URGENT", want: CategoryUrgent},
		{raw: " needs response ", want: CategoryNeedsResponse},
		{raw: "Needs-Response", want: CategoryNeedsResponse},
		{raw: "fyi", want: CategoryFYI},
		{raw: "SPAM", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCategory(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateRangeContainsIsHalfOpen(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	r := DateRange{Start: start, End: end}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(end.Add(-time.Second)))
	assert.False(t, r.Contains(end))
	assert.False(t, r.Contains(start.Add(-time.Second)))
	assert.True(t, DateRange{}.Contains(start), "zero range is unbounded")
}

func TestSenderFallbacks(t *testing.T) {
	assert.Equal(t, "Ann", MessageRecord{SenderName: " Ann ", SenderAddress: "a@x"}.Sender())
	assert.Equal(t, "a@x", MessageRecord{SenderAddress: "a@x"}.Sender())
	assert.Equal(t, "Unknown", MessageRecord{}.Sender())
}
