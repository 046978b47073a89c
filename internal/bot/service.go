package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ufcbot/internal/announce"
	appLog "ufcbot/internal/log"
	"ufcbot/internal/metrics"
	"ufcbot/internal/model"
	"ufcbot/internal/selector"
)

// Triggers label where an announcement request came from.
const (
	TriggerSchedule = "schedule"
	TriggerCommand  = "command"
	TriggerHTTP     = "http"
	TriggerOnce     = "once"
)

// FeedFunc loads the calendar entries relevant at now.
type FeedFunc func(ctx context.Context, now time.Time) ([]model.Entry, error)

// Poster delivers a rendered message to the chat channel.
type Poster interface {
	Post(ctx context.Context, msg string) error
}

// Service answers "what's next?" for every trigger. It holds only
// immutable dependencies, so concurrent triggers need no coordination.
type Service struct {
	feed     FeedFunc
	poster   Poster
	clock    Clock
	location *time.Location
	render   announce.Options
	metrics  *metrics.Metrics
}

// Options configures a Service. Clock defaults to SystemClock and Location
// to time.Local.
type Options struct {
	Feed     FeedFunc
	Poster   Poster
	Clock    Clock
	Location *time.Location
	Render   announce.Options
	Metrics  *metrics.Metrics
}

func NewService(opts Options) (*Service, error) {
	if opts.Feed == nil {
		return nil, errors.New("bot: feed is required")
	}
	if opts.Poster == nil {
		return nil, errors.New("bot: poster is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		feed:     opts.Feed,
		poster:   opts.Poster,
		clock:    opts.Clock,
		location: opts.Location,
		render:   opts.Render,
		metrics:  opts.Metrics,
	}, nil
}

// Next loads the feed and selects the next event. Besides feed errors it
// returns selector.ErrNotFound when nothing is upcoming.
func (s *Service) Next(ctx context.Context) (selector.Announcement, error) {
	now := s.clock.Now()
	entries, err := s.feed(ctx, now)
	if err != nil {
		return selector.Announcement{}, fmt.Errorf("load feed: %w", err)
	}
	return selector.Next(entries, now, s.location)
}

// Message renders the text to post. It always returns something postable:
// the announcement, announce.NotFoundText, or announce.FailureText. The
// error is non-nil whenever the announcement itself could not be built.
func (s *Service) Message(ctx context.Context) (string, error) {
	a, err := s.Next(ctx)
	switch {
	case err == nil:
		return announce.Render(a, s.render), nil
	case errors.Is(err, selector.ErrNotFound):
		return announce.NotFoundText, err
	default:
		return announce.FailureText, err
	}
}

// Announce builds the message and posts it. A missing event or a broken
// feed still results in a post; only a failed post is returned as an error.
func (s *Service) Announce(ctx context.Context, trigger string) error {
	msg, err := s.Message(ctx)
	result := metrics.ResultPosted
	switch {
	case errors.Is(err, selector.ErrNotFound):
		result = metrics.ResultNotFound
		appLog.Info("no upcoming event", "trigger", trigger)
	case err != nil:
		result = metrics.ResultFeedError
		appLog.Error("failed to build announcement", err, "trigger", trigger)
	}

	if perr := s.poster.Post(ctx, msg); perr != nil {
		s.metrics.ObserveAnnouncement(trigger, metrics.ResultFailed)
		return fmt.Errorf("post announcement: %w", perr)
	}
	s.metrics.ObserveAnnouncement(trigger, result)
	appLog.Info("announcement posted", "trigger", trigger, "result", result)
	return nil
}
