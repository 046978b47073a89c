// Package selector picks the next upcoming calendar entry and turns it into
// an Announcement ready to be rendered for chat.
package selector

import (
	"errors"
	"strings"
	"time"

	"ufcbot/internal/model"
)

// WhenLayout renders start times, e.g. "Saturday, June 1, 2024 21:00 CEST".
const WhenLayout = "Monday, January 2, 2006 15:04 MST"

// DateLayout renders all-day entries, e.g. "Saturday, July 20, 2024".
const DateLayout = "Monday, January 2, 2006"

// UnspecifiedLocation is shown when an entry carries no location.
const UnspecifiedLocation = "TBA"

// ErrNotFound reports that no entry starts at or after now.
var ErrNotFound = errors.New("no upcoming event found")

// Announcement is the formatted view of the selected entry.
type Announcement struct {
	Title        string
	WhenText     string
	LocationText string
	CardText     []string

	// Start is the entry's start converted to the display timezone.
	Start time.Time
	URL   string
}

// Next returns the entry with the earliest Start that is not before now.
// Entries starting exactly at now are eligible. Ties on Start keep the
// first entry in input order. A nil loc renders in time.Local.
//
// All-day entries are placed on their calendar date in loc and stay
// upcoming until that date has ended there.
func Next(entries []model.Entry, now time.Time, loc *time.Location) (Announcement, error) {
	if loc == nil {
		loc = time.Local
	}

	best := -1
	var bestStart time.Time
	for i := range entries {
		start, until := window(entries[i], loc)
		if until.Before(now) || (entries[i].AllDay && until.Equal(now)) {
			continue
		}
		if best == -1 || start.Before(bestStart) {
			best, bestStart = i, start
		}
	}
	if best == -1 {
		return Announcement{}, ErrNotFound
	}

	e := entries[best]

	locationText := strings.TrimSpace(e.Location)
	if locationText == "" {
		locationText = UnspecifiedLocation
	}

	whenText := FormatWhen(bestStart, loc)
	if e.AllDay {
		whenText = bestStart.Format(DateLayout)
	}

	return Announcement{
		Title:        strings.TrimSpace(e.Summary),
		WhenText:     whenText,
		LocationText: locationText,
		CardText:     CardLines(e.Description),
		Start:        bestStart.In(loc),
		URL:          strings.TrimSpace(e.URL),
	}, nil
}

// window returns the instant an entry sorts by and the instant after which
// it is no longer upcoming. For timed entries both are Start.
func window(e model.Entry, loc *time.Location) (start, until time.Time) {
	if !e.AllDay {
		return e.Start, e.Start
	}
	start = dateIn(e.Start, loc)
	until = dateIn(e.End, loc)
	if !until.After(start) {
		until = start.AddDate(0, 0, 1)
	}
	return start, until
}

// dateIn returns midnight in loc of the calendar date t carries in its own
// zone.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// FormatWhen renders t in loc using WhenLayout.
func FormatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(WhenLayout)
}

// CardLines splits a description into bout listings: every non-blank line,
// trimmed, in original order. It returns nil when there are none.
func CardLines(description string) []string {
	var out []string
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
