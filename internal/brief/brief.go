// Package brief wires the daily brief pipeline: load a window of the
// archive, group it into conversations, classify each conversation and
// hand the result to a renderer as an exchange document.
package brief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbrief/internal/cache"
	"github.com/nhle/mailbrief/internal/classify"
	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/source"
	"github.com/nhle/mailbrief/internal/thread"
)

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.RunRecord) error
}

// Options are the per-run settings.
type Options struct {
	// Limit caps the number of records loaded. Zero means no cap.
	Limit int

	Thread   thread.Options
	Classify classify.Options
}

// Result is the outcome of one brief run.
type Result struct {
	RunID       string
	GeneratedAt time.Time
	Records     int
	Items       []model.ClassifiedItem
	Report      classify.Report
}

// Runner executes brief runs. It holds no per-run state.
type Runner struct {
	src        source.Source
	classifier *classify.Classifier
	runs       RunRecorder
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRunner returns a runner. runs may be nil, in which case runs are not
// recorded.
func NewRunner(
	src source.Source,
	classifier *classify.Classifier,
	runs RunRecorder,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		src:        src,
		classifier: classifier,
		runs:       runs,
		logger:     logger.With().Str("component", "brief").Logger(),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for run timestamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run produces the classified items for window. Per-item classification
// failures do not fail the run; they are listed in the report.
func (r *Runner) Run(ctx context.Context, window model.DateRange, opts Options) (*Result, error) {
	started := r.now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()

	records, err := r.src.Load(ctx, window, opts.Limit)
	if err != nil {
		if errors.Is(err, model.ErrArchiveUnreadable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrArchiveUnreadable, err)
	}
	if len(records) == 0 {
		return nil, model.ErrNoItems
	}

	groups := thread.Build(records, opts.Thread)
	items := make([]classify.Item, len(groups))
	for i, g := range groups {
		items[i] = classify.Item{Group: g, Key: cache.ComputeKey(g)}
	}

	logger.Info().
		Int("records", len(records)).
		Int("groups", len(groups)).
		Msg("classifying brief window")

	classified, report := r.classifier.Classify(ctx, items, opts.Classify)

	result := &Result{
		RunID:       runID,
		GeneratedAt: r.now(),
		Records:     len(records),
		Items:       classified,
		Report:      report,
	}

	if r.runs != nil {
		run := model.RunRecord{
			ID:           runID,
			Kind:         model.RunKindBrief,
			StartedAt:    started,
			FinishedAt:   result.GeneratedAt,
			Items:        len(classified),
			CacheHits:    report.CacheHits,
			LabelMatches: report.LabelMatches,
			ServiceCalls: report.ServiceCalls,
			Fallbacks:    report.Fallbacks,
			Cost:         report.Cost,
		}
		// Canceled runs are recorded too.
		if err := r.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn().Err(err).Msg("recording run failed")
		}
	}

	return result, nil
}

// Exchange converts a result into the document handed to renderers.
// Items are ordered by category display order, then most recent first.
func Exchange(res *Result) model.Exchange {
	rank := make(map[model.Category]int, len(model.Categories))
	for i, c := range model.Categories {
		rank[c] = i
	}

	items := make([]model.ExchangeItem, 0, len(res.Items))
	for _, it := range res.Items {
		latest := it.Group.Latest()
		items = append(items, model.ExchangeItem{
			Identifiers: it.Group.IDs(),
			IsThread:    it.Group.IsThread,
			Subject:     it.Group.Subject,
			Sender:      latest.Sender(),
			Date:        latest.Timestamp,
			Link:        latest.Link,
			Category:    it.Category,
			Summary:     it.Summary,
			ActionItems: it.ActionItems,
			Provenance:  it.Provenance,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := rank[items[i].Category], rank[items[j].Category]
		if ri != rj {
			return ri < rj
		}
		return items[i].Date.After(items[j].Date)
	})

	return model.Exchange{
		RunID:       res.RunID,
		GeneratedAt: res.GeneratedAt,
		Items:       items,
	}
}

// WriteExchange encodes ex as indented JSON.
func WriteExchange(w io.Writer, ex model.Exchange) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ex); err != nil {
		return fmt.Errorf("encoding exchange: %w", err)
	}
	return nil
}
