package ai

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

const querySystem = "You turn email search requests into structured filters. You answer with a single JSON object and nothing else."

type parseReply struct {
	People   []string `json:"people"`
	Keywords []string `json:"keywords"`
	DateHint *string  `json:"date_hint"`
	Intent   string   `json:"intent"`
}

// ParseQuery extracts people, keywords, a date hint and an intent from a
// natural-language search request. now anchors relative phrases for the
// model; the date hint itself is resolved by the caller.
func (c *Client) ParseQuery(ctx context.Context, text string, now time.Time) (model.ParsedQuery, error) {
	comp, err := c.complete(ctx, querySystem, parsePrompt(text, now), 512)
	if err != nil {
		return model.ParsedQuery{}, fmt.Errorf("parsing query: %w", err)
	}

	var reply parseReply
	if err := decodeJSON(comp.Text, &reply); err != nil {
		return model.ParsedQuery{Cost: comp.Cost}, fmt.Errorf("parsing query: %w", err)
	}

	pq := model.ParsedQuery{
		People:   cleanList(reply.People),
		Keywords: cleanList(reply.Keywords),
		Intent:   model.ParseIntent(strings.ToLower(strings.TrimSpace(reply.Intent))),
		Cost:     comp.Cost,
	}
	if reply.DateHint != nil {
		hint := strings.TrimSpace(*reply.DateHint)
		if !strings.EqualFold(hint, "null") {
			pq.DateHint = hint
		}
	}
	return pq, nil
}

func parsePrompt(text string, now time.Time) string {
	return fmt.Sprintf(`Extract search parameters from this email search query. Be generous with keywords - include all relevant terms.
Today is %s.

Query: %q

Return ONLY this JSON (no markdown, no explanation):
{"people": ["names to search in From/To"], "keywords": ["topic keywords to search"], "date_hint": "time hint like 'last year' or null", "intent": "question | find-document | list"}

Examples:
- "what did Sarah say about the budget" -> {"people": ["Sarah"], "keywords": ["budget"], "date_hint": null, "intent": "question"}
- "find emails about google interview" -> {"people": [], "keywords": ["google", "interview"], "date_hint": null, "intent": "list"}
- "tax documents from last year" -> {"people": [], "keywords": ["tax", "documents"], "date_hint": "last year", "intent": "find-document"}`,
		now.Format("Monday, January 2, 2006"), text)
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

type synthReply struct {
	Answer    string `json:"answer"`
	Citations []struct {
		Claim   string `json:"claim"`
		Sources []int  `json:"sources"`
	} `json:"citations"`
}

// emailRef finds prose citations such as "Email 2" or "Emails 1 and 3".
var emailRef = regexp.MustCompile(`(?i)emails?\s+(\d+)(?:\s*(?:,|and|&)\s*(\d+))*`)

// Synthesize answers question from the numbered sources. Citation source
// numbers are 1-based positions in sources; out-of-range numbers are
// dropped. A reply that is plain prose rather than JSON is accepted as the
// answer, with citations recovered from "Email N" references.
func (c *Client) Synthesize(ctx context.Context, question string, sources []model.SourceDoc) (model.Answer, error) {
	comp, err := c.complete(ctx, "", synthPrompt(question, sources), 1024)
	if err != nil {
		return model.Answer{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	var reply synthReply
	if err := decodeJSON(comp.Text, &reply); err != nil || strings.TrimSpace(reply.Answer) == "" {
		text := strings.TrimSpace(comp.Text)
		if text == "" {
			return model.Answer{Cost: comp.Cost},
				fmt.Errorf("synthesizing answer: %w: empty response", model.ErrMalformedResponse)
		}
		return model.Answer{Text: text, Citations: proseCitations(text, len(sources)), Cost: comp.Cost}, nil
	}

	ans := model.Answer{Text: strings.TrimSpace(reply.Answer), Cost: comp.Cost}
	for _, cit := range reply.Citations {
		var refs []int
		for _, n := range cit.Sources {
			if n >= 1 && n <= len(sources) {
				refs = append(refs, n)
			}
		}
		if len(refs) == 0 {
			continue
		}
		ans.Citations = append(ans.Citations, model.AnswerCitation{Claim: strings.TrimSpace(cit.Claim), Sources: refs})
	}
	return ans, nil
}

func synthPrompt(question string, sources []model.SourceDoc) string {
	var sb strings.Builder
	sb.WriteString("Based on these emails, answer the user's question. Be concise and specific.\n\n")
	fmt.Fprintf(&sb, "QUESTION: %s\n\nEMAILS:\n", question)
	for i, src := range sources {
		fmt.Fprintf(&sb, "\n--- Email %d ---\nFrom: %s\nDate: %s\nSubject: %s\nBody excerpt:\n%s\n",
			i+1, src.Sender, src.Date.Format("2006-01-02"), src.Subject, src.Excerpt)
	}
	sb.WriteString(`
Return ONLY this JSON (no markdown, no explanation):
{"answer": "a direct answer in 2-4 sentences", "citations": [{"claim": "one statement from the answer", "sources": [1]}]}

Cite emails by their number. If the emails don't contain enough information to fully answer the question, say so in the answer.`)
	return sb.String()
}

// proseCitations builds one citation per sentence that mentions emails by
// number.
func proseCitations(text string, n int) []model.AnswerCitation {
	var out []model.AnswerCitation
	for _, sentence := range splitSentences(text) {
		seen := make(map[int]bool)
		for _, m := range emailRef.FindAllStringSubmatch(sentence, -1) {
			for _, numStr := range numbersIn(m[0]) {
				if v, err := strconv.Atoi(numStr); err == nil && v >= 1 && v <= n {
					seen[v] = true
				}
			}
		}
		if len(seen) == 0 {
			continue
		}
		refs := make([]int, 0, len(seen))
		for v := range seen {
			refs = append(refs, v)
		}
		sort.Ints(refs)
		out = append(out, model.AnswerCitation{Claim: sentence, Sources: refs})
	}
	return out
}

var digits = regexp.MustCompile(`\d+`)

func numbersIn(s string) []string {
	return digits.FindAllString(s, -1)
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '.' || text[i] == '\n' || text[i] == '!' || text[i] == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" && s != "." {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
