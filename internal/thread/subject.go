package thread

import (
	"net/mail"
	"regexp"
	"strings"
)

// replyPrefix matches one leading reply/forward marker such as "Re:",
// "FWD:", "Re[2]:" or the German/Scandinavian "AW:"/"SV:".
var replyPrefix = regexp.MustCompile(`(?i)^\s*(?:re|fwd?|aw|sv)(?:\s*\[\d+\])?\s*:\s*`)

// StripPrefixes removes any number of stacked reply/forward prefixes from
// subject, preserving the case of what remains.
func StripPrefixes(subject string) string {
	s := subject
	for {
		loc := replyPrefix.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

// NormalizeSubject returns the comparison form of subject: prefixes
// stripped, whitespace collapsed, case-folded.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.Join(strings.Fields(StripPrefixes(subject)), " "))
}

// normalizeAddress reduces a sender to its lowercased bare address. Full
// header forms like "Ann <ann@x.com>" parse through net/mail; anything it
// rejects falls back to trimming stray angle brackets.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(addr); err == nil {
		return strings.ToLower(parsed.Address)
	}
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return strings.ToLower(addr)
}
