package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/mailbrief/internal/model"
)

const classifySystem = "You triage personal email. You answer with a single JSON object and nothing else."

const classificationRules = `CLASSIFICATION RULES:
- URGENT: Contains "urgent", "ASAP", "deadline", "by EOD", "action required", time-sensitive
- NEEDS_RESPONSE: Direct questions to recipient, "please respond", "let me know", "what do you think"
- CALENDAR: Calendar invitations, event updates, meeting requests, from Google Calendar
- FINANCIAL: From banks/brokerages (Chase, Ally, Vanguard, Fidelity, etc.), bills, statements, balance alerts
- NEWSLETTER: Newsletters, digests, marketing
- AUTOMATED: Machine-generated notifications, receipts, alerts with no human author
- FYI: Everything else - informational, no action needed`

type classifyReply struct {
	Category    string  `json:"category"`
	Summary     string  `json:"summary"`
	ActionItems *string `json:"action_items"`
}

// Classify asks the model to categorize and summarize one item. Replies
// that cannot be parsed, or that name a category outside the fixed set,
// yield an error wrapping model.ErrMalformedResponse.
func (c *Client) Classify(ctx context.Context, item model.ItemContext) (model.Classification, error) {
	comp, err := c.complete(ctx, classifySystem, classifyPrompt(item), 0)
	if err != nil {
		return model.Classification{}, fmt.Errorf("classifying %s: %w", item.Key, err)
	}

	var reply classifyReply
	if err := decodeJSON(comp.Text, &reply); err != nil {
		return model.Classification{Cost: comp.Cost}, fmt.Errorf("classifying %s: %w", item.Key, err)
	}

	category, err := model.ParseCategory(reply.Category)
	if err != nil {
		return model.Classification{Cost: comp.Cost},
			fmt.Errorf("classifying %s: %w: %v", item.Key, model.ErrMalformedResponse, err)
	}
	summary := strings.TrimSpace(reply.Summary)
	if summary == "" {
		return model.Classification{Cost: comp.Cost},
			fmt.Errorf("classifying %s: %w: empty summary", item.Key, model.ErrMalformedResponse)
	}

	return model.Classification{
		Category:    category,
		Summary:     summary,
		ActionItems: normalizeActionItems(reply.ActionItems),
		Cost:        comp.Cost,
	}, nil
}

func classifyPrompt(item model.ItemContext) string {
	var sb strings.Builder
	if item.IsThread {
		sb.WriteString("Classify this email thread as a whole and provide a JSON response. ")
		sb.WriteString("Summarize where the conversation stands now, weighting the most recent messages.\n\n")
		sb.WriteString("THREAD:\n")
		fmt.Fprintf(&sb, "Subject: %s\n", item.Subject)
	} else {
		sb.WriteString("Classify this email and provide a JSON response.\n\n")
		sb.WriteString("EMAIL:\n")
	}
	sb.WriteString(item.Text)
	sb.WriteString("\n\n")
	sb.WriteString(classificationRules)
	sb.WriteString("\n\nRespond with ONLY this JSON (no markdown, no explanation):\n")
	sb.WriteString(`{"category": "CATEGORY", "summary": "1-2 sentence summary of actual content", "action_items": "any actions needed or null"}`)
	return sb.String()
}

// normalizeActionItems maps empty and "null"/"none" answers to nil.
func normalizeActionItems(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "null", "none", "n/a":
		return nil
	}
	return &v
}
