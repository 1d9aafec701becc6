package extract

import (
	"regexp"
	"strings"
	"time"
)

// ResolveRelativeTime resolves common spoken appointment expressions against
// a reference clock and timezone without a model round trip: "tomorrow
// afternoon", "next tuesday at 3pm", "friday morning", "today at 10:30".
// It reports false when the text carries no resolvable day or clock signal;
// it never guesses a date.
func ResolveRelativeTime(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	lower := strings.ToLower(text)

	day, dayFound := resolveDay(lower, now)
	hour, minute, clockFound := resolveClock(lower)

	if !dayFound && !clockFound {
		return time.Time{}, false
	}

	if !clockFound {
		// day without a clock is ambiguous; dayparts are handled by
		// resolveClock, so bail rather than invent an hour
		return time.Time{}, false
	}

	if !dayFound {
		day = now
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), true
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func resolveDay(lower string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(lower, "day after tomorrow"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(lower, "today"), strings.Contains(lower, "this morning"),
		strings.Contains(lower, "this afternoon"), strings.Contains(lower, "this evening"):
		return now, true
	}

	for name, wd := range weekdays {
		if !strings.Contains(lower, name) {
			continue
		}
		days := int(wd-now.Weekday()+7) % 7
		if days == 0 {
			days = 7 // "monday" said on a Monday means next week
		}
		if strings.Contains(lower, "next "+name) && days < 7 {
			days += 7
		}
		return now.AddDate(0, 0, days), true
	}

	return time.Time{}, false
}

var clockPattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|o'clock)?\b`)

func resolveClock(lower string) (hour, minute int, ok bool) {
	switch {
	case strings.Contains(lower, "noon"), strings.Contains(lower, "midday"):
		return 12, 0, true
	case strings.Contains(lower, "morning"):
		hour, ok = 9, true
	case strings.Contains(lower, "afternoon"):
		hour, ok = 14, true
	case strings.Contains(lower, "evening"):
		hour, ok = 17, true
	}

	m := clockPattern.FindStringSubmatch(lower)
	if m == nil {
		return hour, 0, ok
	}

	h := atoiSafe(m[1])
	if h < 0 || h > 23 {
		return hour, 0, ok
	}
	minute = atoiSafe(m[2])
	if minute < 0 || minute > 59 {
		minute = 0
	}

	switch m[3] {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	case "o'clock", "":
		// bare small hours during business conversation mean the afternoon
		// when a daypart hints at it, morning otherwise
		if h >= 1 && h <= 6 && hour >= 12 {
			h += 12
		}
	}

	return h, minute, true
}

func atoiSafe(s string) int {
	n := 0
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
