package model

import (
	"sort"
	"time"
)

// ThreadGroup is one conversational unit: either a multi-message thread or
// a single message. Groups are built fresh on every run and never mutated
// after creation; a thread that gains a reply becomes a new group.
type ThreadGroup struct {
	// ID is the identifier of the resolved thread root (or a subject
	// fallback identifier for header-less clusters).
	ID string `json:"id"`

	// Messages holds the members in chronological order.
	Messages []MessageRecord `json:"messages"`

	// IsThread is true iff the group has two or more members.
	IsThread bool `json:"is_thread"`

	// Participants holds the deduplicated, normalized sender addresses in
	// order of first appearance.
	Participants []string `json:"participants"`

	// Subject is the representative subject with reply prefixes removed.
	Subject string `json:"subject"`
}

// IDs returns the member identifiers sorted lexicographically.
func (g ThreadGroup) IDs() []string {
	ids := make([]string, 0, len(g.Messages))
	for _, m := range g.Messages {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// Latest returns the most recent member. It returns the zero value for an
// empty group.
func (g ThreadGroup) Latest() MessageRecord {
	if len(g.Messages) == 0 {
		return MessageRecord{}
	}
	return g.Messages[len(g.Messages)-1]
}

// LatestAt is the timestamp of the most recent member; groups spanning
// several days are ordered by it.
func (g ThreadGroup) LatestAt() time.Time {
	return g.Latest().Timestamp
}

// LabelHint returns the label set used for category hinting: the most
// recent member's labels.
func (g ThreadGroup) LabelHint() []string {
	return g.Latest().Labels
}
