package ics

import (
	"context"
	"fmt"
	"time"

	appLog "ufcbot/internal/log"
	"ufcbot/internal/metrics"
	"ufcbot/internal/model"
)

// Feed loads calendar entries from one ICS URL.
type Feed struct {
	URL         string
	HorizonDays int

	Fetcher *Fetcher
	Metrics *metrics.Metrics
}

// Entries fetches, parses and expands the feed. Recurring events are
// expanded from now up to HorizonDays ahead.
func (f *Feed) Entries(ctx context.Context, now time.Time) (entries []model.Entry, err error) {
	started := time.Now()
	defer func() {
		f.Metrics.ObserveFeed(started, len(entries), err)
	}()

	body, err := f.Fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", redactURL(f.URL), err)
	}

	horizon := f.HorizonDays
	if horizon <= 0 {
		horizon = 365
	}
	entries, err = ExpandOccurrences(parsed, ExpandConfig{
		RangeStart: now,
		RangeEnd:   now.AddDate(0, 0, horizon),
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("feed loaded", "url", redactURL(f.URL), "events", len(parsed), "entries", len(entries))
	return entries, nil
}
