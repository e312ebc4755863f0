package classify_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrief/internal/cache"
	"github.com/nhle/mailbrief/internal/classify"
	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/thread"
	"github.com/nhle/mailbrief/tests/testutil"
)

func single(rec model.MessageRecord) model.ThreadGroup {
	return model.ThreadGroup{
		ID:           rec.ID,
		Messages:     []model.MessageRecord{rec},
		Participants: []string{rec.SenderAddress},
		Subject:      thread.StripPrefixes(rec.Subject),
	}
}

func itemsFor(groups ...model.ThreadGroup) []classify.Item {
	out := make([]classify.Item, 0, len(groups))
	for _, g := range groups {
		out = append(out, classify.Item{Group: g, Key: cache.ComputeKey(g)})
	}
	return out
}

func singles(n int) []classify.Item {
	var groups []model.ThreadGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%02d", i)
		groups = append(groups, single(testutil.Record(id, "Subject "+id, time.Duration(i)*time.Minute)))
	}
	return itemsFor(groups...)
}

func newCache(t *testing.T) *cache.Cache {
	return cache.New(testutil.NewTestStore(t), zerolog.Nop())
}

func opts() classify.Options {
	o := classify.DefaultOptions()
	o.Cache = cache.Policy{ServiceVersion: "test-v1"}
	return o
}

func TestClassify_BoundedAndOrdered(t *testing.T) {
	svc := &testutil.FakeClassifier{Delay: 15 * time.Millisecond}
	c := classify.New(svc, newCache(t), zerolog.Nop())
	items := singles(20)
	o := opts()
	o.Concurrency = 3

	got, report := c.Classify(context.Background(), items, o)

	require.Len(t, got, len(items))
	for i, it := range got {
		assert.Equal(t, items[i].Key, it.Key)
		assert.Equal(t, model.ProvenanceServiceCall, it.Provenance)
		assert.Equal(t, "summary of "+items[i].Key, it.Summary)
	}
	assert.LessOrEqual(t, svc.MaxInFlight(), 3)
	assert.Equal(t, 20, report.ServiceCalls)
	assert.Equal(t, 20, report.Successes)
	assert.Equal(t, 20, report.CacheWrites)
	assert.InDelta(t, 0.02, report.Cost, 1e-9)
	assert.NoError(t, report.Err())
}

func TestClassify_OneTimeoutOfFive(t *testing.T) {
	items := singles(5)
	svc := &testutil.FakeClassifier{Hang: map[string]bool{items[2].Key: true}}
	ch := newCache(t)
	c := classify.New(svc, ch, zerolog.Nop())
	o := opts()
	o.CallTimeout = 50 * time.Millisecond

	got, report := c.Classify(context.Background(), items, o)

	require.Len(t, got, 5)
	for i, it := range got {
		if i == 2 {
			assert.Equal(t, model.ProvenanceFallback, it.Provenance)
			assert.Equal(t, model.CategoryFYI, it.Category)
			assert.Equal(t, "Sender m02: Subject m02", it.Summary)
			continue
		}
		assert.Equal(t, model.ProvenanceServiceCall, it.Provenance)
		assert.Equal(t, "summary of "+items[i].Key, it.Summary)
	}
	assert.Equal(t, 1, report.Fallbacks)
	assert.Equal(t, 4, report.Successes)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Index)
	assert.Equal(t, classify.KindTimeout, report.Errors[0].Kind)
	assert.ErrorIs(t, report.Err(), context.DeadlineExceeded)

	// Fallbacks are not cached, so the item is retried next run.
	_, found := ch.Lookup(context.Background(), items[2].Key, o.Cache)
	assert.False(t, found)
}

func TestClassify_WarmCacheMakesNoCalls(t *testing.T) {
	ch := newCache(t)
	items := singles(4)

	first := &testutil.FakeClassifier{}
	_, report := classify.New(first, ch, zerolog.Nop()).Classify(context.Background(), items, opts())
	require.Equal(t, 4, report.ServiceCalls)

	second := &testutil.FakeClassifier{}
	got, report := classify.New(second, ch, zerolog.Nop()).Classify(context.Background(), items, opts())

	assert.Empty(t, second.Calls())
	assert.Equal(t, 4, report.CacheHits)
	assert.Zero(t, report.ServiceCalls)
	for i, it := range got {
		assert.Equal(t, model.ProvenanceCacheHit, it.Provenance)
		assert.Equal(t, "summary of "+items[i].Key, it.Summary)
	}
}

func TestClassify_LowValueLabelNeverCallsService(t *testing.T) {
	svc := &testutil.FakeClassifier{Respond: func(model.ItemContext) (model.Classification, error) {
		return model.Classification{}, errors.New("service down")
	}}
	c := classify.New(svc, newCache(t), zerolog.Nop())
	promo := testutil.WithLabels(testutil.Record("p", "Spring deals", 0), "INBOX", "CATEGORY_PROMOTIONS")
	update := testutil.WithLabels(testutil.Record("u", "Your order shipped", 0), "category_updates")

	got, report := c.Classify(context.Background(), itemsFor(single(promo), single(update)), opts())

	assert.Empty(t, svc.Calls())
	assert.Equal(t, 2, report.LabelMatches)
	assert.Equal(t, model.CategoryNewsletter, got[0].Category)
	assert.Equal(t, "Marketing email from Sender p about Spring deals", got[0].Summary)
	assert.Equal(t, model.ProvenanceLabelRule, got[0].Provenance)
	assert.Equal(t, model.CategoryAutomated, got[1].Category)
	assert.Equal(t, "Notification from Sender u: Your order shipped", got[1].Summary)
}

func TestClassify_NewReplyGetsFreshFullContext(t *testing.T) {
	ch := newCache(t)
	a := testutil.Record("a", "Offsite plan", 0)
	b := testutil.Reply("b", a, time.Hour)

	groups := thread.Build([]model.MessageRecord{a, b}, thread.DefaultOptions())
	require.Len(t, groups, 1)
	oldItems := itemsFor(groups...)
	_, _ = classify.New(&testutil.FakeClassifier{}, ch, zerolog.Nop()).Classify(context.Background(), oldItems, opts())

	c := testutil.Reply("c", b, 2*time.Hour)
	groups = thread.Build([]model.MessageRecord{a, b, c}, thread.DefaultOptions())
	require.Len(t, groups, 1)
	newItems := itemsFor(groups...)
	require.NotEqual(t, oldItems[0].Key, newItems[0].Key)

	svc := &testutil.FakeClassifier{}
	got, report := classify.New(svc, ch, zerolog.Nop()).Classify(context.Background(), newItems, opts())

	assert.Equal(t, 1, report.ServiceCalls)
	assert.Equal(t, model.ProvenanceServiceCall, got[0].Provenance)
	calls := svc.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsThread)
	for _, body := range []string{"Body of a", "Body of b", "Body of c"} {
		assert.Contains(t, calls[0].Text, body)
	}
	assert.Less(t, strings.Index(calls[0].Text, "Body of a"), strings.Index(calls[0].Text, "Body of c"))

	old, found := ch.Lookup(context.Background(), oldItems[0].Key, opts().Cache)
	require.True(t, found)
	assert.Equal(t, "summary of "+oldItems[0].Key, old.Summary)
}

func TestClassify_MalformedFallsBackWithHint(t *testing.T) {
	svc := &testutil.FakeClassifier{Respond: func(item model.ItemContext) (model.Classification, error) {
		if item.Key == "msg:bad" {
			return model.Classification{}, fmt.Errorf("decoding: %w", model.ErrMalformedResponse)
		}
		return model.Classification{Category: "SPAM", Summary: "nope", Cost: 0.5}, nil
	}}
	c := classify.New(svc, newCache(t), zerolog.Nop())
	bad := testutil.WithLabels(testutil.Record("bad", "Group chat", 0), "CATEGORY_SOCIAL")
	odd := testutil.Record("odd", "Hello", 0)

	got, report := c.Classify(context.Background(), itemsFor(single(bad), single(odd)), opts())

	assert.Equal(t, model.CategoryAutomated, got[0].Category)
	assert.Equal(t, model.ProvenanceFallback, got[0].Provenance)
	assert.Equal(t, model.CategoryFYI, got[1].Category)
	assert.Equal(t, model.ProvenanceFallback, got[1].Provenance)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, classify.KindMalformed, report.Errors[0].Kind)
	assert.Equal(t, classify.KindMalformed, report.Errors[1].Kind)
	assert.Equal(t, 2, report.ServiceCalls)
	assert.InDelta(t, 0.5, report.Cost, 1e-9)
}

func TestClassify_ServiceErrorKind(t *testing.T) {
	svc := &testutil.FakeClassifier{Respond: func(model.ItemContext) (model.Classification, error) {
		return model.Classification{}, errors.New("API error (500): boom")
	}}
	_, report := classify.New(svc, newCache(t), zerolog.Nop()).Classify(context.Background(), singles(1), opts())

	require.Len(t, report.Errors, 1)
	assert.Equal(t, classify.KindService, report.Errors[0].Kind)
}

func TestClassify_CanceledRunStillReturnsEveryItem(t *testing.T) {
	svc := &testutil.FakeClassifier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, report := classify.New(svc, newCache(t), zerolog.Nop()).Classify(ctx, singles(3), opts())

	require.Len(t, got, 3)
	for _, it := range got {
		assert.Equal(t, model.ProvenanceFallback, it.Provenance)
	}
	assert.Empty(t, svc.Calls())
	assert.Zero(t, report.ServiceCalls)
	require.Len(t, report.Errors, 3)
	assert.Equal(t, classify.KindCanceled, report.Errors[0].Kind)
}

func TestClassify_BypassIgnoresCacheButWritesBack(t *testing.T) {
	ch := newCache(t)
	items := singles(2)
	_, _ = classify.New(&testutil.FakeClassifier{}, ch, zerolog.Nop()).Classify(context.Background(), items, opts())

	svc := &testutil.FakeClassifier{Respond: func(item model.ItemContext) (model.Classification, error) {
		return model.Classification{Category: model.CategoryUrgent, Summary: "fresh " + item.Key}, nil
	}}
	o := opts()
	o.Cache.Bypass = true
	got, report := classify.New(svc, ch, zerolog.Nop()).Classify(context.Background(), items, o)

	assert.Len(t, svc.Calls(), 2)
	assert.Zero(t, report.CacheHits)
	assert.Equal(t, "fresh "+items[0].Key, got[0].Summary)

	entry, found := ch.Lookup(context.Background(), items[0].Key, opts().Cache)
	require.True(t, found)
	assert.Equal(t, model.CategoryUrgent, entry.Category)
}

func TestClassify_Empty(t *testing.T) {
	got, report := classify.New(&testutil.FakeClassifier{}, newCache(t), zerolog.Nop()).
		Classify(context.Background(), nil, opts())

	assert.Empty(t, got)
	assert.Zero(t, report.Total)
}
