package model

import (
	"sort"
	"strings"
	"time"
)

// MessageRecord is a single archived message reduced to the structured
// fields the pipeline needs. Records are immutable once created.
type MessageRecord struct {
	// ID is the Message-ID without angle brackets. It is unique and stable
	// across re-syncs of the archive.
	ID string `json:"id"`

	// InReplyTo is the identifier of the direct parent, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`

	// References lists ancestor identifiers, oldest first.
	References []string `json:"references,omitempty"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// SenderName is the display name of the sender (may be empty).
	SenderName string `json:"sender_name"`

	// SenderAddress is the sender's email address.
	SenderAddress string `json:"sender_address"`

	// Timestamp is when the message was received.
	Timestamp time.Time `json:"timestamp"`

	// Labels is the set of mailbox labels attached to the message.
	Labels []string `json:"labels,omitempty"`

	// Body is the plain-text body.
	Body string `json:"body,omitempty"`

	// Link is the external-link token (a web link back to the mailbox).
	Link string `json:"link,omitempty"`

	// ArchiveNum is the row number of the message in the local archive.
	ArchiveNum int64 `json:"archive_num,omitempty"`
}

// Sender returns the best human-readable sender label.
func (m MessageRecord) Sender() string {
	if name := strings.TrimSpace(m.SenderName); name != "" {
		return name
	}
	if m.SenderAddress != "" {
		return m.SenderAddress
	}
	return "Unknown"
}

// HasLabel reports whether the record carries the given label
// (case-insensitive).
func (m MessageRecord) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// SortRecordsChronologically orders records by timestamp ascending,
// breaking ties by identifier so the order never depends on input order.
func SortRecordsChronologically(records []MessageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].ID < records[j].ID
	})
}
