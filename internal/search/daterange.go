package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

var (
	compactDuration = regexp.MustCompile(`^(\d+)\s*(h|d|w|mo|m|y)$`)
	phraseDuration  = regexp.MustCompile(`^(?:(?:the\s+)?(?:past|last|previous)\s+)?(\d+)\s+(hours?|days?|weeks?|months?|years?)(?:\s+ago)?$`)
	fourDigitYear   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// leadingFiller is stripped before matching so "from last year" and
// "during March" resolve like their bare forms.
var leadingFiller = []string{"from ", "in ", "during ", "over ", "within ", "since ", "for "}

// ResolveDateHint turns a duration or relative-date hint into a half-open
// range relative to now. Calendar hints ("last year", "this month",
// "march") snap to calendar boundaries in now's location; durations
// ("3d", "2 weeks", "past 10 days") end at now. The boolean is false for
// hints it does not understand.
func ResolveDateHint(hint string, now time.Time) (model.DateRange, bool) {
	h := strings.Join(strings.Fields(strings.ToLower(hint)), " ")
	for changed := true; changed; {
		changed = false
		for _, f := range leadingFiller {
			if strings.HasPrefix(h, f) {
				h = strings.TrimPrefix(h, f)
				changed = true
			}
		}
	}
	h = strings.TrimPrefix(h, "the ")
	if h == "" {
		return model.DateRange{}, false
	}

	if m := compactDuration.FindStringSubmatch(h); m != nil {
		n, _ := strconv.Atoi(m[1])
		return lookback(now, n, m[2]), true
	}
	if m := phraseDuration.FindStringSubmatch(h); m != nil {
		n, _ := strconv.Atoi(m[1])
		return lookback(now, n, strings.TrimSuffix(m[2], "s")), true
	}

	day := startOfDay(now)
	switch h {
	case "today":
		return model.DateRange{Start: day, End: day.AddDate(0, 0, 1)}, true
	case "yesterday":
		return model.DateRange{Start: day.AddDate(0, 0, -1), End: day}, true
	case "this week":
		ws := startOfWeek(now)
		return model.DateRange{Start: ws, End: ws.AddDate(0, 0, 7)}, true
	case "last week", "previous week":
		ws := startOfWeek(now)
		return model.DateRange{Start: ws.AddDate(0, 0, -7), End: ws}, true
	case "past week", "recent", "recently":
		return lookback(now, 1, "week"), true
	case "this month":
		ms := startOfMonth(now)
		return model.DateRange{Start: ms, End: ms.AddDate(0, 1, 0)}, true
	case "last month", "previous month":
		ms := startOfMonth(now)
		return model.DateRange{Start: ms.AddDate(0, -1, 0), End: ms}, true
	case "past month":
		return lookback(now, 1, "month"), true
	case "this year":
		ys := startOfYear(now.Year(), now.Location())
		return model.DateRange{Start: ys, End: ys.AddDate(1, 0, 0)}, true
	case "last year", "previous year":
		ys := startOfYear(now.Year(), now.Location())
		return model.DateRange{Start: ys.AddDate(-1, 0, 0), End: ys}, true
	case "past year":
		return lookback(now, 1, "year"), true
	}

	if r, ok := resolveMonth(h, now); ok {
		return r, true
	}

	if m := fourDigitYear.FindStringSubmatch(h); m != nil && len(strings.Fields(h)) == 1 {
		y, _ := strconv.Atoi(m[1])
		ys := startOfYear(y, now.Location())
		return model.DateRange{Start: ys, End: ys.AddDate(1, 0, 0)}, true
	}

	return model.DateRange{}, false
}

// resolveMonth handles "march", "mar 2024" and "last march". Without a
// year the most recent occurrence that has started is used.
func resolveMonth(h string, now time.Time) (model.DateRange, bool) {
	words := strings.Fields(h)
	if len(words) > 0 && words[0] == "last" {
		words = words[1:]
	}
	if len(words) == 0 || len(words) > 2 {
		return model.DateRange{}, false
	}
	month, ok := months[words[0]]
	if !ok {
		return model.DateRange{}, false
	}

	year := now.Year()
	if len(words) == 2 {
		y, err := strconv.Atoi(words[1])
		if err != nil || !fourDigitYear.MatchString(words[1]) {
			return model.DateRange{}, false
		}
		year = y
	} else if month > now.Month() {
		year--
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	return model.DateRange{Start: start, End: start.AddDate(0, 1, 0)}, true
}

func lookback(now time.Time, n int, unit string) model.DateRange {
	var start time.Time
	switch unit {
	case "h", "hour":
		start = now.Add(-time.Duration(n) * time.Hour)
	case "d", "day":
		start = now.AddDate(0, 0, -n)
	case "w", "week":
		start = now.AddDate(0, 0, -7*n)
	case "m", "mo", "month":
		start = now.AddDate(0, -n, 0)
	case "y", "year":
		start = now.AddDate(-n, 0, 0)
	default:
		start = now
	}
	return model.DateRange{Start: start, End: now}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the most recent Monday at midnight.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(year int, loc *time.Location) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
}

// ParseSince resolves a --since style window ending now. It accepts an
// ISO date and the same forms as ResolveDateHint, but always leaves the
// range open-ended, so "1d" means the last 24 hours.
func ParseSince(value string, now time.Time) (model.DateRange, bool) {
	if t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), now.Location()); err == nil {
		return model.DateRange{Start: t}, true
	}

	r, ok := ResolveDateHint(value, now)
	if !ok {
		return model.DateRange{}, false
	}
	r.End = time.Time{}
	return r, true
}
