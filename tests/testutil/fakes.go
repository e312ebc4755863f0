package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

// FakeClassifier is an in-process classification service. By default it
// answers FYI with a summary naming the item key. It records every call
// and the peak number of concurrent calls.
type FakeClassifier struct {
	// Delay is how long each call takes.
	Delay time.Duration

	// Hang lists keys whose calls block until their context ends.
	Hang map[string]bool

	// Respond overrides the default answer when set.
	Respond func(item model.ItemContext) (model.Classification, error)

	mu          sync.Mutex
	calls       []model.ItemContext
	inFlight    int
	maxInFlight int
}

// Classify implements classify.Service.
func (f *FakeClassifier) Classify(ctx context.Context, item model.ItemContext) (model.Classification, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Hang[item.Key] {
		<-ctx.Done()
		return model.Classification{}, ctx.Err()
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return model.Classification{}, ctx.Err()
		}
	}
	if f.Respond != nil {
		return f.Respond(item)
	}
	return model.Classification{
		Category: model.CategoryFYI,
		Summary:  "summary of " + item.Key,
		Cost:     0.001,
	}, nil
}

// Calls returns the items seen so far.
func (f *FakeClassifier) Calls() []model.ItemContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ItemContext(nil), f.calls...)
}

// MaxInFlight returns the peak number of simultaneous calls.
func (f *FakeClassifier) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// FakeQueryService is an in-process query service driven by functions.
// Nil functions return zero values.
type FakeQueryService struct {
	ParseFunc      func(text string, now time.Time) (model.ParsedQuery, error)
	SynthesizeFunc func(question string, sources []model.SourceDoc) (model.Answer, error)

	mu              sync.Mutex
	parseCalls      int
	synthesizeCalls int
	lastSources     []model.SourceDoc
}

// ParseQuery implements search.QueryService.
func (f *FakeQueryService) ParseQuery(_ context.Context, text string, now time.Time) (model.ParsedQuery, error) {
	f.mu.Lock()
	f.parseCalls++
	f.mu.Unlock()
	if f.ParseFunc == nil {
		return model.ParsedQuery{}, nil
	}
	return f.ParseFunc(text, now)
}

// Synthesize implements search.QueryService.
func (f *FakeQueryService) Synthesize(_ context.Context, question string, sources []model.SourceDoc) (model.Answer, error) {
	f.mu.Lock()
	f.synthesizeCalls++
	f.lastSources = append([]model.SourceDoc(nil), sources...)
	f.mu.Unlock()
	if f.SynthesizeFunc == nil {
		return model.Answer{}, nil
	}
	return f.SynthesizeFunc(question, sources)
}

// Counts returns how many parse and synthesize calls were made.
func (f *FakeQueryService) Counts() (parse, synthesize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parseCalls, f.synthesizeCalls
}

// LastSources returns the sources passed to the most recent synthesize
// call.
func (f *FakeQueryService) LastSources() []model.SourceDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSources
}
