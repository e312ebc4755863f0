package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/nhle/mailbrief/internal/model"
)

// extractJSON pulls the JSON payload out of a model reply: the body of a
// fenced code block when present, otherwise the span from the first
// opening brace or bracket to the last matching closer.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// Drop the info string ("json").
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(text, closer); end > start {
		return text[start : end+1]
	}
	return text[start:]
}

// decodeJSON unmarshals a model reply into v. Replies that are not valid
// JSON get one pass through jsonrepair before being declared malformed.
func decodeJSON(text string, v any) error {
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("%w: empty response", model.ErrMalformedResponse)
	}

	err := json.Unmarshal([]byte(payload), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	return nil
}
