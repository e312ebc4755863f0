// Package classify assigns a category and summary to every grouped item,
// using label rules, the classification cache and a bounded pool of
// service calls, in that order.
package classify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbrief/internal/cache"
	"github.com/nhle/mailbrief/internal/model"
)

// Defaults used when Options leave a field unset.
const (
	DefaultConcurrency  = 5
	DefaultCallTimeout  = 90 * time.Second
	DefaultMaxBodyChars = 2000
)

// Service is the external classification capability.
type Service interface {
	Classify(ctx context.Context, item model.ItemContext) (model.Classification, error)
}

// Cache is the part of the classification cache the classifier needs.
type Cache interface {
	Lookup(ctx context.Context, key string, policy cache.Policy) (model.CacheEntry, bool)
	Upsert(ctx context.Context, entry model.CacheEntry) error
}

// Options are the per-run settings. They are passed by value and never
// modified by the classifier.
type Options struct {
	// Concurrency is the maximum number of outstanding service calls.
	Concurrency int

	// CallTimeout bounds each service call separately.
	CallTimeout time.Duration

	// MaxBodyChars truncates each message body sent to the service.
	MaxBodyChars int

	// Cache decides which cached entries are reused. Its ServiceVersion
	// is also stamped on new entries.
	Cache cache.Policy
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		Concurrency:  DefaultConcurrency,
		CallTimeout:  DefaultCallTimeout,
		MaxBodyChars: DefaultMaxBodyChars,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Item is one unit of work: a group and its precomputed cache key.
type Item struct {
	Group model.ThreadGroup
	Key   string
}

// ErrorKind says why an item fell back.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindService   ErrorKind = "service"
	KindCanceled  ErrorKind = "canceled"
)

// ItemError records a per-item failure. The item itself still has a
// fallback result.
type ItemError struct {
	Index int
	Key   string
	Kind  ErrorKind
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %s: %v", e.Index, e.Key, e.Kind, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Report summarizes a classification batch.
type Report struct {
	Total        int
	LabelMatches int
	CacheHits    int
	ServiceCalls int
	Successes    int
	Fallbacks    int
	CacheWrites  int
	Cost         float64
	Errors       []*ItemError
	Elapsed      time.Duration
}

// Err joins the per-item errors, or returns nil when every item succeeded.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Classifier runs classification batches. It holds no per-run state and
// may be shared.
type Classifier struct {
	svc    Service
	cache  Cache
	logger zerolog.Logger
	now    func() time.Time
}

// New returns a classifier using svc for cache misses.
func New(svc Service, c Cache, logger zerolog.Logger) *Classifier {
	return &Classifier{
		svc:    svc,
		cache:  c,
		logger: logger.With().Str("component", "classifier").Logger(),
		now:    time.Now,
	}
}

// dispatchResult carries one worker outcome back to the merge loop.
type dispatchResult struct {
	index  int
	item   model.ClassifiedItem
	cost   float64
	err    *ItemError
	called bool
	cached bool
}

// Classify returns one ClassifiedItem per input item, in input order,
// together with a report. It never fails as a whole: items whose service
// call times out or misbehaves get a deterministic fallback that is not
// cached. Cancelling ctx makes remaining items fall back immediately.
func (c *Classifier) Classify(ctx context.Context, items []Item, opts Options) ([]model.ClassifiedItem, Report) {
	opts = opts.withDefaults()
	start := c.now()

	results := make([]model.ClassifiedItem, len(items))
	report := Report{Total: len(items)}

	var pending []int
	for i, it := range items {
		if rule, ok := MatchLowValue(it.Group.LabelHint()); ok {
			results[i] = labelResult(it, rule)
			report.LabelMatches++
			continue
		}
		if entry, ok := c.cache.Lookup(ctx, it.Key, opts.Cache); ok {
			results[i] = cachedResult(it, entry)
			report.CacheHits++
			continue
		}
		pending = append(pending, i)
	}

	c.logger.Debug().
		Int("items", len(items)).
		Int("label_matches", report.LabelMatches).
		Int("cache_hits", report.CacheHits).
		Int("dispatch", len(pending)).
		Msg("classification plan")

	if len(pending) > 0 {
		for res := range c.dispatchAll(ctx, items, pending, opts) {
			results[res.index] = res.item
			report.Cost += res.cost
			if res.item.Provenance == model.ProvenanceServiceCall {
				report.Successes++
			} else {
				report.Fallbacks++
			}
			if res.err != nil {
				report.Errors = append(report.Errors, res.err)
			}
			if res.called {
				report.ServiceCalls++
			}
			if res.cached {
				report.CacheWrites++
			}
		}
	}

	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].Index < report.Errors[j].Index
	})
	report.Elapsed = c.now().Sub(start)

	c.logger.Info().
		Int("items", report.Total).
		Int("label_matches", report.LabelMatches).
		Int("cache_hits", report.CacheHits).
		Int("service_calls", report.ServiceCalls).
		Int("fallbacks", report.Fallbacks).
		Float64("cost_usd", report.Cost).
		Dur("elapsed", report.Elapsed).
		Msg("classification finished")

	return results, report
}

// dispatchAll feeds the pending indexes to a fixed pool of workers. Each
// worker makes one call at a time, so at most opts.Concurrency calls are
// outstanding. The returned channel closes once every index is done.
func (c *Classifier) dispatchAll(ctx context.Context, items []Item, pending []int, opts Options) <-chan dispatchResult {
	jobCh := make(chan int, len(pending))
	resultCh := make(chan dispatchResult, len(pending))

	workerCount := opts.Concurrency
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				resultCh <- c.dispatch(ctx, idx, items[idx], opts)
			}
		}()
	}

	for _, idx := range pending {
		jobCh <- idx
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return resultCh
}

// dispatch makes the service call for one item and applies the fallback
// on failure. Successful results are written back to the cache; a failed
// write is logged and does not affect the item.
func (c *Classifier) dispatch(ctx context.Context, idx int, it Item, opts Options) dispatchResult {
	log := c.logger.With().Int("index", idx).Str("key", it.Key).Logger()

	if err := ctx.Err(); err != nil {
		return dispatchResult{
			index: idx,
			item:  fallbackResult(it),
			err:   &ItemError{Index: idx, Key: it.Key, Kind: KindCanceled, Err: err},
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	cls, err := c.svc.Classify(callCtx, buildContext(it, opts.MaxBodyChars))
	cancel()

	if err == nil && !cls.Category.Valid() {
		err = fmt.Errorf("%w: category %q", model.ErrMalformedResponse, cls.Category)
	}
	if err != nil {
		kind := errorKind(ctx, err)
		log.Warn().Err(err).Str("kind", string(kind)).Msg("classification fell back")
		return dispatchResult{
			index:  idx,
			item:   fallbackResult(it),
			cost:   cls.Cost,
			err:    &ItemError{Index: idx, Key: it.Key, Kind: kind, Err: err},
			called: true,
		}
	}

	res := dispatchResult{
		index:  idx,
		cost:   cls.Cost,
		called: true,
		item: model.ClassifiedItem{
			Group:       it.Group,
			Key:         it.Key,
			Category:    cls.Category,
			Summary:     cls.Summary,
			ActionItems: cls.ActionItems,
			Provenance:  model.ProvenanceServiceCall,
		},
	}

	entry := model.CacheEntry{
		Key:            it.Key,
		Category:       cls.Category,
		Summary:        cls.Summary,
		ActionItems:    cls.ActionItems,
		Cost:           cls.Cost,
		ServiceVersion: opts.Cache.ServiceVersion,
		CreatedAt:      c.now(),
	}
	if err := c.cache.Upsert(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	} else {
		res.cached = true
	}

	log.Debug().Str("category", string(cls.Category)).Msg("classified")
	return res
}

// errorKind maps a service error to the report taxonomy. A deadline on the
// per-call context is a timeout; cancellation of the run is reported
// separately.
func errorKind(runCtx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, model.ErrMalformedResponse):
		return KindMalformed
	case runCtx.Err() != nil && errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindService
	}
}

func labelResult(it Item, rule LabelRule) model.ClassifiedItem {
	return model.ClassifiedItem{
		Group:      it.Group,
		Key:        it.Key,
		Category:   rule.Category,
		Summary:    rule.Summary(it.Group.Latest().Sender(), it.Group.Subject),
		Provenance: model.ProvenanceLabelRule,
	}
}

func cachedResult(it Item, entry model.CacheEntry) model.ClassifiedItem {
	return model.ClassifiedItem{
		Group:       it.Group,
		Key:         it.Key,
		Category:    entry.Category,
		Summary:     entry.Summary,
		ActionItems: entry.ActionItems,
		Provenance:  model.ProvenanceCacheHit,
	}
}

// fallbackResult builds the deterministic result for an item the service
// could not classify: the label hint category (else FYI) and a
// sender/subject summary.
func fallbackResult(it Item) model.ClassifiedItem {
	category := model.CategoryFYI
	if hint, ok := HintCategory(it.Group.LabelHint()); ok {
		category = hint
	}
	return model.ClassifiedItem{
		Group:      it.Group,
		Key:        it.Key,
		Category:   category,
		Summary:    fmt.Sprintf("%s: %s", it.Group.Latest().Sender(), it.Group.Subject),
		Provenance: model.ProvenanceFallback,
	}
}
