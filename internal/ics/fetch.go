package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "ufcbot/internal/log"
)

// maxFeedBytes bounds how much of a feed response is read.
const maxFeedBytes = 10 << 20

// Fetcher downloads ICS feeds over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a new ICS Fetcher. A zero timeout means 20 seconds.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Fetch GETs url and returns the body. Any status other than 200 is an error.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.8")

	appLog.Debug("ics fetch start", "url", redactURL(feedURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", redactURL(feedURL), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", redactURL(feedURL), err)
	}

	appLog.Info("ics fetch success", "url", redactURL(feedURL), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// redactURL keeps only scheme and host so feed tokens never reach the logs:
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
