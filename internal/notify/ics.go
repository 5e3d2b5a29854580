package notify

import (
	"fmt"
	"strings"
	"time"
)

const (
	icsStampLayout = "20060102T150405Z"
	calendarName   = "Toyotron Test Drive"
	calendarTZ     = "America/Chicago"
)

// Event is a single calendar invite.
type Event struct {
	UID            string
	Title          string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	AttendeeName   string
	AttendeeEmail  string
	OrganizerName  string
	OrganizerEmail string
	Stamp          time.Time
}

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escapeText(s string) string {
	return icsEscaper.Replace(s)
}

func stamp(t time.Time) string {
	return t.UTC().Format(icsStampLayout)
}

// BuildICS renders an RFC 5545 calendar with one event and a 15-minute
// display alarm. Lines end in CRLF.
func BuildICS(ev Event) []byte {
	uid := ev.UID
	if uid == "" {
		uid = fmt.Sprintf("test-drive-%d@toyotron.local", ev.Start.UnixMilli())
	}
	dtstamp := ev.Stamp
	if dtstamp.IsZero() {
		dtstamp = time.Now()
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Toyotron//Test Drive Scheduler//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + calendarName,
		"X-WR-TIMEZONE:" + calendarTZ,
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + stamp(dtstamp),
		"DTSTART:" + stamp(ev.Start),
		"DTEND:" + stamp(ev.End),
		"SUMMARY:" + escapeText(ev.Title),
		"DESCRIPTION:" + escapeText(ev.Description),
		"LOCATION:" + escapeText(ev.Location),
	}
	if ev.AttendeeEmail != "" {
		lines = append(lines, fmt.Sprintf(`ATTENDEE;CN="%s";RSVP=TRUE;PARTSTAT=NEEDS-ACTION:mailto:%s`, ev.AttendeeName, ev.AttendeeEmail))
	}
	if ev.OrganizerEmail != "" {
		lines = append(lines, fmt.Sprintf(`ORGANIZER;CN="%s":mailto:%s`, ev.OrganizerName, ev.OrganizerEmail))
	}
	lines = append(lines,
		"STATUS:CONFIRMED",
		"SEQUENCE:0",
		"BEGIN:VALARM",
		"TRIGGER:-PT15M",
		"ACTION:DISPLAY",
		"DESCRIPTION:Test Drive Reminder",
		"END:VALARM",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

// ICSFilename is test-drive-{model}-{YYYY-MM-DD}.ics with the model
// lowercased and spaces turned into dashes.
func ICSFilename(model string, start time.Time) string {
	slug := strings.Join(strings.Fields(strings.ToLower(model)), "-")
	if slug == "" {
		slug = "vehicle"
	}
	return fmt.Sprintf("test-drive-%s-%s.ics", slug, start.Format("2006-01-02"))
}
