package model

import "time"

// Entry is one concrete calendar event as handed to the selector. Recurring
// feed events are expanded into one Entry per occurrence before selection.
// Entries are treated as immutable once built.
type Entry struct {
	UID string // iCalendar UID

	Summary     string
	Description string // may embed a fight card, one bout per line
	Location    string
	URL         string

	AllDay bool

	// Start / End keep the timezone the feed declared.
	Start time.Time
	End   time.Time
}
