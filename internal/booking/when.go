package booking

import (
	"strings"
	"time"
)

const (
	defaultHour = 10

	dateLayout = "2006-01-02"
)

var namedTimes = map[string]int{
	"morning":   10,
	"afternoon": 14,
	"evening":   17,
}

// ResolveDate turns a date hint into a calendar day in now's location.
// "tomorrow" is now+24h, "next week" is now+7d, YYYY-MM-DD is taken as is,
// anything else means tomorrow.
func ResolveDate(hint string, now time.Time) time.Time {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch h {
	case "today":
		return now
	case "tomorrow":
		return now.Add(24 * time.Hour)
	case "next week":
		return now.AddDate(0, 0, 7)
	}
	if d, err := time.ParseInLocation(dateLayout, h, now.Location()); err == nil {
		return d
	}
	if d, err := time.Parse(time.RFC3339, strings.TrimSpace(hint)); err == nil {
		return d.In(now.Location())
	}
	return now.Add(24 * time.Hour)
}

// ResolveTime parses HH:MM or morning/afternoon/evening; anything else is 10:00.
func ResolveTime(hint string) (hour, minute int) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if hr, ok := namedTimes[h]; ok {
		return hr, 0
	}
	if t, err := time.Parse("15:04", h); err == nil {
		return t.Hour(), t.Minute()
	}
	return defaultHour, 0
}

// ResolveWhen combines both hints into a timestamp in now's location.
func ResolveWhen(dateHint, timeHint string, now time.Time) time.Time {
	d := ResolveDate(dateHint, now)
	hour, minute := ResolveTime(timeHint)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, now.Location())
}
