// Package search answers natural-language questions over the archive: a
// query service extracts filters, a local ranker narrows the archive to a
// shortlist, and the query service writes an answer citing that
// shortlist.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbrief/internal/model"
	"github.com/nhle/mailbrief/internal/source"
)

// QueryService is the external query capability.
type QueryService interface {
	ParseQuery(ctx context.Context, text string, now time.Time) (model.ParsedQuery, error)
	Synthesize(ctx context.Context, question string, sources []model.SourceDoc) (model.Answer, error)
}

// Request is one search invocation. Since and From are caller overrides
// merged into whatever the query service extracts.
type Request struct {
	Query    string
	Since    string
	From     []string
	ListOnly bool
}

// Result is the outcome of a search.
type Result struct {
	RunID      string
	Query      model.SearchQuery
	Candidates []model.Candidate
	Answer     string
	Citations  []model.Citation

	// Degraded is set when structured filtering was skipped in favor of a
	// plain keyword search over the whole archive.
	Degraded bool

	// Synthesized is set when an answer was produced by the service.
	Synthesized bool

	Warnings []string
	Cost     float64
}

// Orchestrator drives parse, candidate generation, ranking and synthesis.
type Orchestrator struct {
	svc    QueryService
	src    source.Source
	limit  int
	logger zerolog.Logger
	now    func() time.Time

	loaded map[model.DateRange]*Index
}

// NewOrchestrator returns an orchestrator over src. Records are loaded
// per search once the query's date range is known.
func NewOrchestrator(svc QueryService, src source.Source, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		svc:    svc,
		src:    src,
		logger: logger.With().Str("component", "search").Logger(),
		now:    time.Now,
		loaded: make(map[model.DateRange]*Index),
	}
}

// WithLimit caps how many records are loaded for one date range. The cap
// keeps the newest records inside the range.
func (o *Orchestrator) WithLimit(n int) *Orchestrator {
	o.limit = n
	return o
}

// WithClock replaces the clock used for date resolution and recency.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// ParseQuery asks the query service for structured filters and resolves
// the date hint. An unresolvable hint leaves the range open.
func (o *Orchestrator) ParseQuery(ctx context.Context, raw string) (model.SearchQuery, float64, error) {
	now := o.now()
	pq, err := o.svc.ParseQuery(ctx, raw, now)
	if err != nil {
		return model.SearchQuery{Raw: raw}, pq.Cost, fmt.Errorf("parsing query %q: %w", raw, err)
	}

	q := model.SearchQuery{
		Raw:      raw,
		People:   pq.People,
		DateHint: pq.DateHint,
		Keywords: NormalizeKeywords(pq.Keywords),
		Intent:   pq.Intent,
	}
	if q.Intent == "" {
		q.Intent = model.IntentQuestion
	}
	if pq.DateHint != "" {
		if r, ok := ResolveDateHint(pq.DateHint, now); ok {
			q.DateRange = r
		} else {
			o.logger.Debug().Str("hint", pq.DateHint).Msg("date hint not understood, searching all dates")
		}
	}
	return q, pq.Cost, nil
}

// Search runs the full flow. It fails when the caller's overrides are
// invalid or the archive cannot be read; service failures degrade the
// result and are listed in Result.Warnings.
func (o *Orchestrator) Search(ctx context.Context, req Request, opts Options) (Result, error) {
	now := o.now()
	res := Result{RunID: uuid.New().String()}
	log := o.logger.With().Str("run_id", res.RunID).Logger()

	var override model.DateRange
	if req.Since != "" {
		r, ok := ParseSince(req.Since, now)
		if !ok {
			return res, fmt.Errorf("invalid --since value %q", req.Since)
		}
		override = r
	}

	q, cost, err := o.ParseQuery(ctx, req.Query)
	res.Cost += cost
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("query parsing failed, falling back to keyword search")
		res.Warnings = append(res.Warnings, "query parsing failed; used plain keyword search")
		q = degradedQuery(req.Query)
		res.Degraded = true
	case q.Empty():
		log.Info().Msg("query parsing returned no filters, falling back to keyword search")
		res.Warnings = append(res.Warnings, "no filters extracted; used plain keyword search")
		q = degradedQuery(req.Query)
		res.Degraded = true
	}

	if !override.IsZero() {
		q.DateRange = override
	}
	q.People = append(q.People, req.From...)
	res.Query = q

	index, err := o.indexFor(ctx, q.DateRange)
	if err != nil {
		return res, err
	}
	cands := GenerateCandidates(index, q, opts)
	if len(cands) == 0 && !res.Degraded {
		fallback := degradedQuery(req.Query)
		fallback.DateRange = override
		fallback.People = req.From
		if len(fallback.Keywords) > 0 {
			if index, err = o.indexFor(ctx, fallback.DateRange); err != nil {
				return res, err
			}
			cands = GenerateCandidates(index, fallback, opts)
			if len(cands) > 0 {
				res.Warnings = append(res.Warnings, "structured filters matched nothing; used plain keyword search")
				res.Degraded = true
				q.Keywords = fallback.Keywords
				q.People = fallback.People
				q.DateRange = fallback.DateRange
				res.Query = q
			}
		}
	}

	res.Candidates = Rank(cands, q, opts, now)
	log.Info().
		Int("indexed", index.Len()).
		Int("candidates", len(cands)).
		Int("ranked", len(res.Candidates)).
		Strs("keywords", q.Keywords).
		Strs("people", q.People).
		Bool("degraded", res.Degraded).
		Msg("candidates ranked")

	if req.ListOnly || q.Intent == model.IntentList || len(res.Candidates) == 0 {
		return res, nil
	}

	answer, citations, cost, err := o.SynthesizeAnswer(ctx, req.Query, res.Candidates, opts)
	res.Cost += cost
	if err != nil {
		log.Warn().Err(err).Msg("answer synthesis failed, returning ranked results only")
		res.Warnings = append(res.Warnings, "answer synthesis failed; showing ranked results only")
		return res, nil
	}
	res.Answer = answer
	res.Citations = citations
	res.Synthesized = true
	return res, nil
}

// SynthesizeAnswer asks the query service to answer question from the top
// candidates and maps its numbered citations back to message identifiers.
func (o *Orchestrator) SynthesizeAnswer(
	ctx context.Context,
	question string,
	top []model.Candidate,
	opts Options,
) (string, []model.Citation, float64, error) {
	opts = opts.withDefaults()
	if len(top) > opts.SynthSources {
		top = top[:opts.SynthSources]
	}

	sources := make([]model.SourceDoc, len(top))
	for i, c := range top {
		sources[i] = model.SourceDoc{
			ID:      c.Record.ID,
			Sender:  senderLine(c.Record),
			Subject: c.Record.Subject,
			Date:    c.Record.Timestamp,
			Excerpt: excerpt(c),
		}
	}

	ans, err := o.svc.Synthesize(ctx, question, sources)
	if err != nil {
		return "", nil, ans.Cost, fmt.Errorf("synthesizing answer: %w", err)
	}

	var citations []model.Citation
	for _, ac := range ans.Citations {
		var ids []string
		for _, n := range ac.Sources {
			if n >= 1 && n <= len(sources) {
				ids = append(ids, sources[n-1].ID)
			}
		}
		if len(ids) > 0 {
			citations = append(citations, model.Citation{Claim: ac.Claim, SourceIDs: ids})
		}
	}
	return ans.Text, citations, ans.Cost, nil
}

// indexFor loads the records inside window, applying the limit within
// that window so older ranges are not crowded out by recent mail.
func (o *Orchestrator) indexFor(ctx context.Context, window model.DateRange) (*Index, error) {
	if ix, ok := o.loaded[window]; ok {
		return ix, nil
	}
	records, err := o.src.Load(ctx, window, o.limit)
	if err != nil {
		return nil, fmt.Errorf("loading archive: %w", err)
	}
	o.logger.Debug().
		Time("start", window.Start).
		Time("end", window.End).
		Int("records", len(records)).
		Msg("archive window loaded")
	ix := NewIndex(records)
	o.loaded[window] = ix
	return ix, nil
}

func degradedQuery(raw string) model.SearchQuery {
	return model.SearchQuery{
		Raw:      raw,
		Keywords: RawKeywords(raw),
		Intent:   model.IntentQuestion,
	}
}

func senderLine(rec model.MessageRecord) string {
	if rec.SenderName != "" && rec.SenderAddress != "" {
		return fmt.Sprintf("%s <%s>", rec.SenderName, rec.SenderAddress)
	}
	return rec.Sender()
}

// maxExcerptChars bounds the body excerpt sent per source.
const maxExcerptChars = 1000

func excerpt(c model.Candidate) string {
	body := strings.TrimSpace(c.Record.Body)
	if body == "" {
		return c.Snippet
	}
	runes := []rune(body)
	if len(runes) > maxExcerptChars {
		return string(runes[:maxExcerptChars]) + "..."
	}
	return body
}
