package model

import (
	"fmt"
	"strings"
)

// Category is the closed set of brief sections an item can land in.
type Category string

const (
	CategoryUrgent        Category = "URGENT"
	CategoryNeedsResponse Category = "NEEDS_RESPONSE"
	CategoryCalendar      Category = "CALENDAR"
	CategoryFinancial     Category = "FINANCIAL"
	CategoryFYI           Category = "FYI"
	CategoryNewsletter    Category = "NEWSLETTER"
	CategoryAutomated     Category = "AUTOMATED"
)

// Categories lists every category in brief display order.
var Categories = []Category{
	CategoryUrgent,
	CategoryNeedsResponse,
	CategoryCalendar,
	CategoryFinancial,
	CategoryFYI,
	CategoryAutomated,
	CategoryNewsletter,
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes free-form service output ("needs response",
// "Needs-Response") into a Category. Unknown values are an error.
func ParseCategory(raw string) (Category, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	c := Category(norm)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// Provenance records how a classified item's category and summary were
// produced.
type Provenance string

const (
	ProvenanceCacheHit    Provenance = "cache-hit"
	ProvenanceLabelRule   Provenance = "label-rule"
	ProvenanceServiceCall Provenance = "service-call"
	ProvenanceFallback    Provenance = "fallback"
)
