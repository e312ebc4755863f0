package model

import "time"

// CacheEntry is a persisted classification result keyed by CacheKey.
type CacheEntry struct {
	Key            string    `db:"cache_key" json:"key"`
	Category       Category  `db:"category" json:"category"`
	Summary        string    `db:"summary" json:"summary"`
	ActionItems    *string   `db:"action_items" json:"action_items,omitempty"`
	Cost           float64   `db:"cost_usd" json:"cost"`
	ServiceVersion string    `db:"service_version" json:"service_version"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ClassifiedItem is a group together with its classification and how it
// was obtained.
type ClassifiedItem struct {
	Group       ThreadGroup `json:"group"`
	Key         string      `json:"key"`
	Category    Category    `json:"category"`
	Summary     string      `json:"summary"`
	ActionItems *string     `json:"action_items,omitempty"`
	Provenance  Provenance  `json:"provenance"`
}

// ExchangeItem is one entry of the stage-to-stage exchange document.
type ExchangeItem struct {
	Identifiers []string   `json:"identifiers"`
	IsThread    bool       `json:"isThread"`
	Subject     string     `json:"subject"`
	Sender      string     `json:"sender"`
	Date        time.Time  `json:"date"`
	Link        string     `json:"link,omitempty"`
	Category    Category   `json:"category"`
	Summary     string     `json:"summary"`
	ActionItems *string    `json:"actionItems"`
	Provenance  Provenance `json:"provenance"`
}

// Exchange is the intermediate document handed from the brief pipeline to
// an external renderer.
type Exchange struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []ExchangeItem `json:"items"`
}
