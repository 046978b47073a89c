package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ufcbot/internal/announce"
	"ufcbot/internal/bot"
	"ufcbot/internal/config"
	"ufcbot/internal/discord"
	"ufcbot/internal/ics"
	appLog "ufcbot/internal/log"
	"ufcbot/internal/metrics"
	"ufcbot/internal/schedule"
	"ufcbot/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("ufcbot starting", "version", version)

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(!flags.dryRun); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"schedule", conf.Schedule,
		"horizon_days", conf.Feed.HorizonDays,
		"max_bouts", conf.MaxBouts,
		"command", "/"+conf.Discord.Command,
		"once", flags.once,
		"dry_run", flags.dryRun,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("ufcbot failed", err)
		os.Exit(1)
	}
	appLog.Info("ufcbot exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", conf.Timezone, err)
	}

	m := metrics.New()
	feed := &ics.Feed{
		URL:         conf.Feed.URL,
		HorizonDays: conf.Feed.HorizonDays,
		Fetcher:     ics.NewFetcher(conf.Feed.UserAgent, time.Duration(conf.Feed.TimeoutSeconds)*time.Second),
		Metrics:     m,
	}

	var poster bot.Poster
	var dc *discord.Bot
	if flags.dryRun {
		poster = writerPoster{w: os.Stdout}
	} else {
		dc, err = discord.New(conf.Discord)
		if err != nil {
			return err
		}
		poster = dc
	}

	svc, err := bot.NewService(bot.Options{
		Feed:     feed.Entries,
		Poster:   poster,
		Location: loc,
		Render: announce.Options{
			MaxBouts:    conf.MaxBouts,
			FallbackURL: conf.Feed.LinkURL,
		},
		Metrics: m,
	})
	if err != nil {
		return err
	}

	if flags.once {
		return svc.Announce(ctx, bot.TriggerOnce)
	}

	if dc != nil {
		err := dc.Open(ctx, func(ctx context.Context) string {
			msg, err := svc.Message(ctx)
			if err != nil {
				appLog.Info("slash command answered without an event", "reason", err.Error())
			}
			return msg
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := dc.Close(); err != nil {
				appLog.Error("discord close failed", err)
			}
		}()
	}

	sched := schedule.New(loc)
	err = sched.Add(conf.Schedule, "weekly-announcement", func(ctx context.Context) {
		if err := svc.Announce(ctx, bot.TriggerSchedule); err != nil {
			appLog.Error("scheduled announcement failed", err)
		}
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	return web.NewServer(conf, svc, m.Handler()).Run(ctx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Post one announcement and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Print messages to stdout instead of posting to Discord")

	flag.Parse()

	return cfg
}

// writerPoster prints messages instead of posting them.
type writerPoster struct {
	w io.Writer
}

func (p writerPoster) Post(_ context.Context, msg string) error {
	_, err := fmt.Fprintln(p.w, msg)
	return err
}
