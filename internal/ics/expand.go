package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "ufcbot/internal/log"
	"ufcbot/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the instances generated from RRULEs.
	// Non-recurring events are passed through regardless of range; choosing
	// among them is the selector's job.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means 500.
	MaxOccurrencesPerEvent int
}

// ExpandOccurrences turns parsed VEVENTs into concrete entries. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//
// Output order follows input order, with the instances of one recurring
// event in chronological order.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) ([]model.Entry, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridesByUID := make(map[string][]ParsedEvent)
	recurringUIDs := make(map[string]bool)
	for _, ev := range events {
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else if ev.RawRRule != "" {
			recurringUIDs[ev.UID] = true
		}
	}

	out := make([]model.Entry, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride() {
			// An override without its series in the feed stands on its own.
			if !recurringUIDs[ev.UID] {
				out = append(out, makeEntry(ev, ev.Start, ev.End))
			}
			continue
		}
		if ev.RawRRule == "" {
			out = append(out, makeEntry(ev, ev.Start, ev.End))
			continue
		}
		out = append(out, expandRecurring(ev, overridesByUID[ev.UID], cfg)...)
	}

	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Entry {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE; keeping first instance", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return []model.Entry{makeEntry(ev, ev.Start, ev.End)}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(cfg.RangeStart.In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location()), true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		appLog.Info("expand: truncated occurrences", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent, "total", len(starts))
		starts = starts[:cfg.MaxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Entry, 0, len(starts)+len(overrides))
	applied := make(map[int]bool, len(overrides))
	for _, start := range starts {
		if idx, ok := findOverride(overrides, start); ok {
			applied[idx] = true
			o := overrides[idx]
			out = append(out, makeEntry(o, o.Start, o.End))
			continue
		}
		out = append(out, makeEntry(ev, start, start.Add(dur)))
	}

	// An instance whose original slot lies outside the range can still be
	// moved into it.
	moved := false
	for idx, o := range overrides {
		if applied[idx] || isExcluded(ev.ExDates, *o.Recurrence) {
			continue
		}
		if o.Start.Before(cfg.RangeStart) || o.Start.After(cfg.RangeEnd) {
			continue
		}
		out = append(out, makeEntry(o, o.Start, o.End))
		moved = true
	}
	if moved {
		slices.SortStableFunc(out, func(a, b model.Entry) int {
			return a.Start.Compare(b.Start)
		})
	}
	return out
}

func isExcluded(exdates []time.Time, t time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// findOverride returns the index of the override whose RECURRENCE-ID is the
// same instant as start.
func findOverride(overrides []ParsedEvent, start time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return i, true
		}
	}
	return -1, false
}

func makeEntry(ev ParsedEvent, start, end time.Time) model.Entry {
	return model.Entry{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		URL:         ev.URL,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}
