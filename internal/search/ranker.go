package search

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/nhle/mailbrief/internal/model"
)

// Sender match strengths.
const (
	senderExact   = 1.0
	senderFuzzy   = 0.5
	senderMention = 0.25

	// subjectBoost weights a keyword occurrence in the subject against one
	// in the body.
	subjectBoost = 3

	minFuzzyPattern = 3
)

// Options controls candidate generation and ranking. It is passed by value
// into every call.
type Options struct {
	MaxCandidates   int
	TopK            int
	KeywordWeight   float64
	SenderWeight    float64
	RecencyWeight   float64
	RecencyHalfLife time.Duration

	// ExcludeLabels drops messages carrying any of these labels unless
	// IncludeExcluded is set.
	ExcludeLabels   []string
	IncludeExcluded bool

	// SynthSources is how many top candidates are given to synthesis.
	SynthSources int

	// SnippetChars is the snippet length in runes.
	SnippetChars int
}

// DefaultOptions returns the ranking defaults.
func DefaultOptions() Options {
	return Options{
		MaxCandidates:   100,
		TopK:            10,
		KeywordWeight:   1,
		SenderWeight:    5,
		RecencyWeight:   2,
		RecencyHalfLife: 30 * 24 * time.Hour,
		SynthSources:    7,
		SnippetChars:    200,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.RecencyHalfLife <= 0 {
		o.RecencyHalfLife = d.RecencyHalfLife
	}
	if o.SynthSources <= 0 {
		o.SynthSources = d.SynthSources
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = d.SnippetChars
	}
	return o
}

// GenerateCandidates narrows the index to messages in the query's date
// range that contain at least one keyword (when keywords are given) and
// match at least one person (when people are given). The result is capped
// at opts.MaxCandidates, keeping the messages with the most matches and,
// among equals, the most recent. It never calls an external service.
func GenerateCandidates(ix *Index, q model.SearchQuery, opts Options) []model.Candidate {
	opts = opts.withDefaults()

	var out []model.Candidate
	for _, rec := range ix.Between(q.DateRange) {
		if !opts.IncludeExcluded && hasAnyLabel(rec, opts.ExcludeLabels) {
			continue
		}

		hits := keywordHits(rec, q.Keywords)
		if len(q.Keywords) > 0 && hits == 0 {
			continue
		}

		sender := 0.0
		for _, p := range q.People {
			if s := senderStrength(rec, p); s > sender {
				sender = s
			}
		}
		if len(q.People) > 0 && sender == 0 {
			continue
		}

		out = append(out, model.Candidate{
			Record:      rec,
			Snippet:     snippet(rec.Body, q.Keywords, opts.SnippetChars),
			KeywordHits: hits,
			SenderMatch: sender,
		})
	}

	if len(out) <= opts.MaxCandidates {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := matchCount(out[i]), matchCount(out[j])
		if mi != mj {
			return mi > mj
		}
		return out[i].Record.Timestamp.After(out[j].Record.Timestamp)
	})
	return out[:opts.MaxCandidates]
}

// Rank scores candidates as a weighted sum of keyword frequency, sender
// match strength and recency decay, sorts them by descending score (ties
// to the more recent message) and returns the top opts.TopK.
func Rank(cands []model.Candidate, q model.SearchQuery, opts Options, now time.Time) []model.Candidate {
	opts = opts.withDefaults()

	ranked := make([]model.Candidate, len(cands))
	copy(ranked, cands)
	for i := range ranked {
		c := &ranked[i]
		c.Score = opts.KeywordWeight*float64(keywordFrequency(c.Record, q.Keywords)) +
			opts.SenderWeight*c.SenderMatch +
			opts.RecencyWeight*recency(c.Record.Timestamp, now, opts.RecencyHalfLife)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Record.Timestamp.After(ranked[j].Record.Timestamp)
	})

	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}
	return ranked
}

func matchCount(c model.Candidate) int {
	n := c.KeywordHits
	if c.SenderMatch > 0 {
		n++
	}
	return n
}

// keywordHits counts distinct keywords present in subject or body.
func keywordHits(rec model.MessageRecord, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	subject := strings.ToLower(rec.Subject)
	body := strings.ToLower(rec.Body)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			hits++
		}
	}
	return hits
}

// keywordFrequency counts keyword occurrences, weighting subject
// occurrences by subjectBoost.
func keywordFrequency(rec model.MessageRecord, keywords []string) int {
	subject := strings.ToLower(rec.Subject)
	body := strings.ToLower(rec.Body)
	n := 0
	for _, kw := range keywords {
		n += strings.Count(body, kw) + subjectBoost*strings.Count(subject, kw)
	}
	return n
}

// senderStrength rates how well person matches the message sender: a
// substring of the name or address, a fuzzy match on either, or merely a
// mention in the body.
func senderStrength(rec model.MessageRecord, person string) float64 {
	p := strings.ToLower(strings.TrimSpace(person))
	if p == "" {
		return 0
	}
	name := strings.ToLower(rec.SenderName)
	addr := strings.ToLower(rec.SenderAddress)
	if strings.Contains(name, p) || strings.Contains(addr, p) {
		return senderExact
	}
	if utf8.RuneCountInString(p) >= minFuzzyPattern {
		if len(fuzzy.Find(p, []string{name, localPart(addr)})) > 0 {
			return senderFuzzy
		}
	}
	if strings.Contains(strings.ToLower(rec.Body), p) {
		return senderMention
	}
	return 0
}

func localPart(addr string) string {
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		return addr[:at]
	}
	return addr
}

// recency decays from 1 at now by half every halfLife. Future timestamps
// count as now.
func recency(ts, now time.Time, halfLife time.Duration) float64 {
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

func hasAnyLabel(rec model.MessageRecord, labels []string) bool {
	for _, l := range labels {
		if rec.HasLabel(l) {
			return true
		}
	}
	return false
}

// snippet returns up to n runes of body around the first keyword
// occurrence, or the start of the body when no keyword occurs.
func snippet(body string, keywords []string, n int) string {
	text := strings.Join(strings.Fields(body), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	lower := []rune(strings.ToLower(text))
	at := -1
	for _, kw := range keywords {
		if i := runeIndex(lower, []rune(kw)); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}

	start := 0
	if at > n/4 {
		start = at - n/4
	}
	end := start + n
	if end > len(runes) {
		end = len(runes)
		start = end - n
	}

	s := string(runes[start:end])
	if start > 0 {
		s = "..." + s
	}
	if end < len(runes) {
		s += "..."
	}
	return s
}

func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
