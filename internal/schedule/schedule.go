package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "ufcbot/internal/log"
)

// Job is a scheduled unit of work. Its context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs jobs on standard 5-field cron expressions evaluated in a
// fixed location.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler. A nil loc means time.Local.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under spec. name only shows up in logs.
func (s *Scheduler) Add(spec, name string, job Job) error {
	id, err := s.cron.AddFunc(spec, func() {
		appLog.Info("scheduled job start", "job", name)
		started := time.Now()
		job(s.ctx)
		appLog.Info("scheduled job done", "job", name, "elapsed", time.Since(started).String())
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	appLog.Info("job scheduled", "job", name, "spec", spec, "next", s.cron.Entry(id).Schedule.Next(time.Now().In(s.cron.Location())).Format(time.RFC3339))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels the jobs' context, and returns a context
// that is done once running jobs have returned.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.cancel()
	return done
}

// NextRun reports when spec fires next after from, evaluated in loc.
func NextRun(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return sched.Next(from.In(loc)), nil
}

// cronLogger routes cron's internal logging into the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
