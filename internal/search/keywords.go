package search

import (
	"strings"
	"unicode"
)

// stopWords are dropped from keyword lists. Temporal words are included
// because date hints are resolved separately.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "any": true,
	"at": true, "be": true, "by": true, "can": true, "did": true, "do": true,
	"does": true, "email": true, "emails": true, "find": true, "for": true,
	"from": true, "get": true, "have": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "me": true, "mail": true, "message": true, "messages": true,
	"my": true, "of": true, "on": true, "or": true, "say": true, "said": true,
	"send": true, "sent": true, "show": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "with": true, "you": true,
	"last": true, "past": true, "previous": true, "ago": true, "since": true,
	"today": true, "yesterday": true, "day": true, "days": true, "week": true,
	"weeks": true, "month": true, "months": true, "year": true, "years": true,
}

// tokenize splits text into lowercase alphanumeric tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

// stem strips common English plural endings. The result is always a
// prefix of w, so a stemmed keyword still substring-matches both the
// singular and the plural form ("policies" -> "polic").
func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ies"):
		if len(w)-3 >= 4 {
			return w[:len(w)-3]
		}
		return w
	case len(w) > 4 && strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:len(w)-1]
	}
	return w
}

// NormalizeKeywords lowercases, splits, stems and deduplicates keywords,
// dropping stop words and single characters. Order of first appearance is
// kept.
func NormalizeKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		for _, tok := range tokenize(kw) {
			tok = strings.Trim(strings.TrimSuffix(tok, "'s"), "-'")
			if len([]rune(tok)) < 2 || stopWords[tok] {
				continue
			}
			tok = stem(tok)
			if seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// RawKeywords is the degraded keyword list used when a query could not
// be parsed: every meaningful token of the raw text.
func RawKeywords(raw string) []string {
	return NormalizeKeywords([]string{raw})
}
