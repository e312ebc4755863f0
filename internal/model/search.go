package model

import "time"

// Intent is the kind of answer a search query asks for.
type Intent string

const (
	IntentQuestion     Intent = "question"
	IntentFindDocument Intent = "find-document"
	IntentList         Intent = "list"
)

// ParseIntent maps service output onto a known intent, defaulting to
// IntentQuestion.
func ParseIntent(raw string) Intent {
	switch Intent(raw) {
	case IntentFindDocument, IntentList:
		return Intent(raw)
	case "find_document", "document":
		return IntentFindDocument
	default:
		return IntentQuestion
	}
}

// DateRange is a half-open interval [Start, End). A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// SearchQuery is a natural-language query with its extracted filters.
type SearchQuery struct {
	Raw       string    `json:"raw"`
	People    []string  `json:"people,omitempty"`
	DateHint  string    `json:"date_hint,omitempty"`
	DateRange DateRange `json:"date_range"`
	Keywords  []string  `json:"keywords,omitempty"`
	Intent    Intent    `json:"intent"`
}

// Empty reports whether the query carries no usable structured filter.
func (q SearchQuery) Empty() bool {
	return len(q.People) == 0 && len(q.Keywords) == 0 && q.DateRange.IsZero()
}

// Candidate is a message considered relevant to a query.
type Candidate struct {
	Record      MessageRecord `json:"record"`
	Score       float64       `json:"score"`
	Snippet     string        `json:"snippet"`
	KeywordHits int           `json:"keyword_hits"`
	SenderMatch float64       `json:"sender_match"`
}

// Citation ties one claim of a synthesized answer to its sources.
type Citation struct {
	Claim     string   `json:"claim"`
	SourceIDs []string `json:"source_ids"`
}
