package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeAgePattern = regexp.MustCompile(`^(\d+|an?|one)\s+(minute|min|hour|hr|day|week|month|year)s?\s+ago$`)

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ParseRecencyHint interprets a relative ("2 days ago", "yesterday") or
// absolute date hint against now. The result is in UTC.
func ParseRecencyHint(hint string, now time.Time) (time.Time, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return time.Time{}, false
	}
	now = now.UTC()
	switch h {
	case "just now", "now", "today":
		return now, true
	case "yesterday":
		return now.Add(-24 * time.Hour), true
	}
	if m := relativeAgePattern.FindStringSubmatch(h); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		var unit time.Duration
		switch m[2] {
		case "minute", "min":
			unit = time.Minute
		case "hour", "hr":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		case "week":
			unit = 7 * 24 * time.Hour
		case "month":
			unit = 30 * 24 * time.Hour
		case "year":
			unit = 365 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), true
	}
	raw := strings.TrimSpace(hint)
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var (
	urlDatePattern        = regexp.MustCompile(`(20\d{2})[/\-_](\d{1,2})[/\-_](\d{1,2})(?:[/\-_.]|$)`)
	urlCompactDatePattern = regexp.MustCompile(`[/\-_](20\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])(?:[/\-_.]|$)`)
)

// DateFromURL finds a year-month-day pattern in a URL path.
func DateFromURL(rawurl string) (time.Time, bool) {
	for _, re := range []*regexp.Regexp{urlDatePattern, urlCompactDatePattern} {
		for _, m := range re.FindAllStringSubmatch(rawurl, -1) {
			if t, ok := civilDate(m[1], m[2], m[3]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func civilDate(ys, ms, ds string) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
