package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufcbot/internal/metrics"
	"ufcbot/internal/selector"
)

func icsBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//ufcbot//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var singleEvents = icsBody(
	"BEGIN:VEVENT",
	"UID:ufc-300@example.com",
	"DTSTAMP:20240401T000000Z",
	"DTSTART:20240601T190000Z",
	"DTEND:20240602T000000Z",
	"SUMMARY:UFC 300",
	"LOCATION:Las Vegas\\, NV",
	`DESCRIPTION:Main: A vs B\nCo-main: C vs D`,
	"URL:https://example.com/ufc-300",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:ufc-fn@example.com",
	"DTSTAMP:20240401T000000Z",
	"DTSTART;VALUE=DATE:20240720",
	"SUMMARY:UFC Fight Night",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:broken@example.com",
	"SUMMARY:No start",
	"END:VEVENT",
)

var weeklyEvents = icsBody(
	"BEGIN:VEVENT",
	"UID:weekly@example.com",
	"DTSTAMP:20240401T000000Z",
	"DTSTART:20240601T190000Z",
	"DTEND:20240601T220000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20240608T190000Z",
	"SUMMARY:Weekly card",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly@example.com",
	"DTSTAMP:20240401T000000Z",
	"RECURRENCE-ID:20240615T190000Z",
	"DTSTART:20240615T210000Z",
	"DTEND:20240616T000000Z",
	"SUMMARY:Weekly card (moved)",
	"END:VEVENT",
)

func TestParseICS(t *testing.T) {
	events, err := ParseICS(singleEvents)
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, "ufc-300@example.com", ev.UID)
	assert.Equal(t, "UFC 300", ev.Summary)
	assert.Equal(t, "Las Vegas, NV", ev.Location)
	assert.Equal(t, "Main: A vs B\nCo-main: C vs D", ev.Description)
	assert.Equal(t, "https://example.com/ufc-300", ev.URL)
	assert.True(t, ev.Start.Equal(time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, ev.AllDay)
	assert.False(t, ev.IsOverride())

	allDay := events[1]
	assert.Equal(t, "UFC Fight Night", allDay.Summary)
	assert.True(t, allDay.AllDay)
	assert.Equal(t, 20, allDay.Start.Day())
	assert.Equal(t, time.July, allDay.Start.Month())
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS([]byte("  \r\n"))
	assert.Error(t, err)
}

func TestParseICS_Recurrence(t *testing.T) {
	events, err := ParseICS(weeklyEvents)
	require.NoError(t, err)
	require.Len(t, events, 2)

	base := events[0]
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(time.Date(2024, 6, 8, 19, 0, 0, 0, time.UTC)))

	override := events[1]
	require.True(t, override.IsOverride())
	assert.True(t, override.Recurrence.Equal(time.Date(2024, 6, 15, 19, 0, 0, 0, time.UTC)))
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(weeklyEvents)
	require.NoError(t, err)

	entries, err := ExpandOccurrences(events, ExpandConfig{
		RangeStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[0].Start.Equal(time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)))
	assert.True(t, entries[0].End.Equal(time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Weekly card", entries[0].Summary)

	assert.Equal(t, "Weekly card (moved)", entries[1].Summary)
	assert.True(t, entries[1].Start.Equal(time.Date(2024, 6, 15, 21, 0, 0, 0, time.UTC)))

	assert.True(t, entries[2].Start.Equal(time.Date(2024, 6, 22, 19, 0, 0, 0, time.UTC)))
}

func TestExpandOccurrences_InstanceMovedIntoRange(t *testing.T) {
	events, err := ParseICS(icsBody(
		"BEGIN:VEVENT",
		"UID:series@example.com",
		"DTSTART:20240601T190000Z",
		"DTEND:20240601T220000Z",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"SUMMARY:Weekly",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:series@example.com",
		"RECURRENCE-ID:20240608T190000Z",
		"DTSTART:20240610T190000Z",
		"DTEND:20240610T220000Z",
		"SUMMARY:Weekly (postponed)",
		"END:VEVENT",
	))
	require.NoError(t, err)

	now := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	entries, err := ExpandOccurrences(events, ExpandConfig{RangeStart: now, RangeEnd: now.AddDate(0, 1, 0)})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Weekly (postponed)", entries[0].Summary)
	assert.True(t, entries[0].Start.Equal(time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC)))
	assert.True(t, entries[1].Start.Equal(time.Date(2024, 6, 15, 19, 0, 0, 0, time.UTC)))
	assert.True(t, entries[2].Start.Equal(time.Date(2024, 6, 22, 19, 0, 0, 0, time.UTC)))

	a, err := selector.Next(entries, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Weekly (postponed)", a.Title)
}

func TestExpandOccurrences_MovedInstanceSkipped(t *testing.T) {
	rid := time.Date(2024, 6, 8, 19, 0, 0, 0, time.UTC)
	series := ParsedEvent{
		UID:      "series",
		Summary:  "Weekly",
		Start:    time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=WEEKLY;COUNT=2",
	}
	moved := ParsedEvent{
		UID:        "series",
		Summary:    "Weekly (postponed)",
		Start:      time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC),
		Recurrence: &rid,
	}
	now := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)

	// Excluded instances stay excluded even when an override exists.
	excluded := series
	excluded.ExDates = []time.Time{rid}
	entries, err := ExpandOccurrences([]ParsedEvent{excluded, moved}, ExpandConfig{RangeStart: now, RangeEnd: now.AddDate(0, 1, 0)})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Moved past the range end.
	entries, err = ExpandOccurrences([]ParsedEvent{series, moved}, ExpandConfig{RangeStart: now, RangeEnd: now.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExpandOccurrences_RangeLimitsRecurringOnly(t *testing.T) {
	events := []ParsedEvent{
		{UID: "past", Summary: "past single", Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{
			UID:      "daily",
			Summary:  "daily",
			Start:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			End:      time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
			RawRRule: "FREQ=DAILY",
		},
	}

	entries, err := ExpandOccurrences(events, ExpandConfig{
		RangeStart:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 11)
	assert.Equal(t, "past single", entries[0].Summary)
	assert.True(t, entries[1].Start.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestExpandOccurrences_OrphanOverrideAndBadRule(t *testing.T) {
	rid := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	events := []ParsedEvent{
		{UID: "orphan", Summary: "orphan", Start: rid, Recurrence: &rid},
		{UID: "bad", Summary: "bad rule", Start: rid, RawRRule: "FREQ=SOMETIMES"},
	}

	entries, err := ExpandOccurrences(events, ExpandConfig{RangeStart: rid, RangeEnd: rid.AddDate(1, 0, 0)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "orphan", entries[0].Summary)
	assert.Equal(t, "bad rule", entries[1].Summary)
}

func TestExpandOccurrences_InvalidRange(t *testing.T) {
	now := time.Now()
	_, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestFetcher_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path != "/ufc.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(singleEvents)
	}))
	defer srv.Close()

	f := NewFetcher("ufcbot-test/1.0", time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/ufc.ics")
	require.NoError(t, err)
	assert.Equal(t, singleEvents, body)
	assert.Equal(t, "ufcbot-test/1.0", gotUA)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.ics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = f.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestFeed_Entries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(weeklyEvents)
	}))
	defer srv.Close()

	feed := &Feed{
		URL:         srv.URL + "/private.ics?token=secret",
		HorizonDays: 10,
		Fetcher:     NewFetcher("", time.Second),
		Metrics:     metrics.New(),
	}

	// 2024-06-01 .. 2024-06-11 covers only the first instance.
	entries, err := feed.Entries(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Weekly card", entries[0].Summary)
}

func TestFeed_EntriesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := &Feed{URL: srv.URL, Fetcher: NewFetcher("", time.Second)}
	_, err := feed.Entries(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestParseICS_TextDecodedOnce(t *testing.T) {
	events, err := ParseICS(icsBody(
		"BEGIN:VEVENT",
		"UID:paths@example.com",
		"DTSTART:20240601T190000Z",
		`SUMMARY:C:\\new folder`,
		`DESCRIPTION:Main: A vs B \\n C\nCo-main: D vs E`,
		"END:VEVENT",
	))
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, `C:\new folder`, events[0].Summary)
	assert.Equal(t, "Main: A vs B \\n C\nCo-main: D vs E", events[0].Description)
}
