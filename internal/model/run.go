package model

import "time"

// RunKind distinguishes the pipelines that record runs.
type RunKind string

const (
	RunKindBrief  RunKind = "brief"
	RunKindSearch RunKind = "search"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID           string    `db:"id" json:"id"`
	Kind         RunKind   `db:"kind" json:"kind"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
	Items        int       `db:"items" json:"items"`
	CacheHits    int       `db:"cache_hits" json:"cache_hits"`
	LabelMatches int       `db:"label_matches" json:"label_matches"`
	ServiceCalls int       `db:"service_calls" json:"service_calls"`
	Fallbacks    int       `db:"fallbacks" json:"fallbacks"`
	Cost         float64   `db:"cost_usd" json:"cost_usd"`
}
