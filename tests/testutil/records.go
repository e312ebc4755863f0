package testutil

import (
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

// Epoch is the reference time used by record builders.
var Epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// Record builds a message record sent by <id>@example.com at Epoch plus
// the given offset.
func Record(id, subject string, offset time.Duration) model.MessageRecord {
	return model.MessageRecord{
		ID:            id,
		Subject:       subject,
		SenderName:    "Sender " + id,
		SenderAddress: id + "@example.com",
		Timestamp:     Epoch.Add(offset),
		Body:          "Body of " + id,
	}
}

// Reply builds a record replying to parent.
func Reply(id string, parent model.MessageRecord, offset time.Duration) model.MessageRecord {
	r := Record(id, "Re: "+parent.Subject, offset)
	r.InReplyTo = parent.ID
	r.References = append(append([]string(nil), parent.References...), parent.ID)
	return r
}

// WithLabels returns rec with labels attached.
func WithLabels(rec model.MessageRecord, labels ...string) model.MessageRecord {
	rec.Labels = labels
	return rec
}
