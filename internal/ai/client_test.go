package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailbrief/internal/model"
)

// fakeAPI serves canned Messages API replies in order; the last one
// repeats.
func fakeAPI(t *testing.T, replies ...func(w http.ResponseWriter, req apiRequest)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, messagesPath, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		replies[n](w, req)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func textReply(text string) func(http.ResponseWriter, apiRequest) {
	return func(w http.ResponseWriter, req apiRequest) {
		_ = json.NewEncoder(w).Encode(apiResponse{
			Type:    "message",
			Role:    "assistant",
			Model:   req.Model,
			Content: []apiContentBlock{{Type: "text", Text: text}},
			Usage:   apiUsage{InputTokens: 1000, OutputTokens: 200},
		})
	}
}

func statusReply(code int) func(http.ResponseWriter, apiRequest) {
	return func(w http.ResponseWriter, _ apiRequest) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"try later"}}`))
	}
}

func newTestClient(url string) *Client {
	return New("test-key", Config{
		BaseURL: url,
		Retry:   RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	}, zerolog.Nop())
}

var item = model.ItemContext{
	Key:     "msg:1",
	Subject: "Quarterly review",
	Sender:  "Dana <dana@example.com>",
	Text:    "From: Dana <dana@example.com>\nSubject: Quarterly review\nBody:\nCan you send the numbers by EOD?",
}

func TestClassify_Success(t *testing.T) {
	srv, calls := fakeAPI(t, textReply("```json\n{\"category\": \"urgent\", \"summary\": \"Dana needs numbers today.\", \"action_items\": \"Send numbers by EOD\"}\n```"))
	c := newTestClient(srv.URL)

	got, err := c.Classify(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, model.CategoryUrgent, got.Category)
	assert.Equal(t, "Dana needs numbers today.", got.Summary)
	require.NotNil(t, got.ActionItems)
	assert.Equal(t, "Send numbers by EOD", *got.ActionItems)
	// haiku: 1000 in at $1/MTok + 200 out at $5/MTok.
	assert.InDelta(t, 0.002, got.Cost, 1e-9)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClassify_NullActionItems(t *testing.T) {
	srv, _ := fakeAPI(t, textReply(`{"category": "FYI", "summary": "Newsletter recap.", "action_items": "null"}`))

	got, err := newTestClient(srv.URL).Classify(context.Background(), item)

	require.NoError(t, err)
	assert.Nil(t, got.ActionItems)
}

func TestClassify_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I think this is urgent."},
		{"unknown category", `{"category": "SPAM", "summary": "x"}`},
		{"empty summary", `{"category": "FYI", "summary": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeAPI(t, textReply(tt.reply))

			_, err := newTestClient(srv.URL).Classify(context.Background(), item)

			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformedResponse)
		})
	}
}

func TestClassify_RepairsTrailingComma(t *testing.T) {
	srv, _ := fakeAPI(t, textReply(`{"category": "CALENDAR", "summary": "Standup moved.",}`))

	got, err := newTestClient(srv.URL).Classify(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, model.CategoryCalendar, got.Category)
}

func TestClassify_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeAPI(t,
		statusReply(http.StatusServiceUnavailable),
		statusReply(http.StatusTooManyRequests),
		textReply(`{"category": "FYI", "summary": "ok"}`),
	)

	got, err := newTestClient(srv.URL).Classify(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, "ok", got.Summary)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClassify_ClientErrorNotRetried(t *testing.T) {
	srv, calls := fakeAPI(t, statusReply(http.StatusBadRequest))

	_, err := newTestClient(srv.URL).Classify(context.Background(), item)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "try later", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	srv, _ := fakeAPI(t, func(w http.ResponseWriter, req apiRequest) {
		time.Sleep(200 * time.Millisecond)
		textReply(`{"category": "FYI", "summary": "late"}`)(w, req)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Classify(ctx, item)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseQuery(t *testing.T) {
	srv, _ := fakeAPI(t, textReply(`{"people": ["Sarah", " sarah "], "keywords": ["budget", ""], "date_hint": "last year", "intent": "find_document"}`))

	got, err := newTestClient(srv.URL).ParseQuery(context.Background(), "budget from sarah last year", time.Now())

	require.NoError(t, err)
	assert.Equal(t, []string{"Sarah"}, got.People)
	assert.Equal(t, []string{"budget"}, got.Keywords)
	assert.Equal(t, "last year", got.DateHint)
	assert.Equal(t, model.IntentFindDocument, got.Intent)
}

func TestParseQuery_NullHint(t *testing.T) {
	srv, _ := fakeAPI(t, textReply(`{"people": [], "keywords": ["interview"], "date_hint": null}`))

	got, err := newTestClient(srv.URL).ParseQuery(context.Background(), "interview", time.Now())

	require.NoError(t, err)
	assert.Empty(t, got.DateHint)
	assert.Equal(t, model.IntentQuestion, got.Intent)
}

var sources = []model.SourceDoc{
	{ID: "a", Sender: "Acme Billing", Subject: "Invoice 1", Excerpt: "Total $10"},
	{ID: "b", Sender: "Acme Billing", Subject: "Invoice 2", Excerpt: "Total $20"},
}

func TestSynthesize_JSON(t *testing.T) {
	srv, _ := fakeAPI(t, textReply(`{"answer": "Two invoices totalling $30.", "citations": [{"claim": "Invoice 1 was $10", "sources": [1, 9]}, {"claim": "bogus", "sources": [0]}]}`))

	got, err := newTestClient(srv.URL).Synthesize(context.Background(), "how much did I pay acme?", sources)

	require.NoError(t, err)
	assert.Equal(t, "Two invoices totalling $30.", got.Text)
	assert.Equal(t, []model.AnswerCitation{{Claim: "Invoice 1 was $10", Sources: []int{1}}}, got.Citations)
}

func TestSynthesize_ProseFallback(t *testing.T) {
	srv, _ := fakeAPI(t, textReply("In Email 2, the total was $20. Email 1 and 2 are both from Acme."))

	got, err := newTestClient(srv.URL).Synthesize(context.Background(), "totals?", sources)

	require.NoError(t, err)
	assert.Equal(t, []model.AnswerCitation{
		{Claim: "In Email 2, the total was $20.", Sources: []int{2}},
		{Claim: "Email 1 and 2 are both from Acme.", Sources: []int{1, 2}},
	}, got.Citations)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{`Sure! {"a":1} hope that helps`, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractJSON(tt.in))
	}
}

func TestUsageCost(t *testing.T) {
	u := apiUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 6.0, usageCost("claude-haiku-4-5", u), 1e-9)
	assert.InDelta(t, 18.0, usageCost("claude-sonnet-4-5", u), 1e-9)
	assert.InDelta(t, 90.0, usageCost("claude-opus-4-1", u), 1e-9)
	assert.InDelta(t, 18.0, usageCost("mystery", u), 1e-9)
}
