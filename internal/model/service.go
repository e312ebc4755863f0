package model

import "time"

// ItemContext is what the classification service sees for one item. For
// threads, Text holds the full ordered message sequence with per-message
// sender/date framing.
type ItemContext struct {
	Key      string
	IsThread bool
	Subject  string
	Sender   string
	Text     string
}

// Classification is a well-formed classification service result.
type Classification struct {
	Category    Category
	Summary     string
	ActionItems *string
	Cost        float64
}

// ParsedQuery is the query service's structured reading of a search query.
type ParsedQuery struct {
	People   []string
	Keywords []string
	DateHint string
	Intent   Intent
	Cost     float64
}

// SourceDoc is one search candidate as presented to answer synthesis.
type SourceDoc struct {
	ID      string
	Sender  string
	Subject string
	Date    time.Time
	Excerpt string
}

// Answer is a synthesized answer. Citation source indexes are 1-based
// positions in the SourceDoc slice given to the service.
type Answer struct {
	Text      string
	Citations []AnswerCitation
	Cost      float64
}

// AnswerCitation is a claim plus the 1-based source positions backing it.
type AnswerCitation struct {
	Claim   string
	Sources []int
}
