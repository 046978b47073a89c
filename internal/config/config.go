package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	appLog "ufcbot/internal/log"
)

// EnvPrefix namespaces environment overrides, e.g. UFCBOT_DISCORD_TOKEN.
const EnvPrefix = "UFCBOT_"

const (
	defaultListen    = "0.0.0.0:8080"
	defaultTimezone  = "Europe/Copenhagen"
	defaultSchedule  = "0 12 * * 5"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultTimeoutSeconds = 20
	defaultHorizonDays    = 365
	defaultCommand        = "nextevent"
	defaultMaxBouts       = 8
	defaultLogLevel       = "info"
)

// Keys carry no underscores so that env names map onto them unambiguously:
// UFCBOT_DISCORD_CHANNELID -> discord.channelid.

// FeedConfig describes the calendar feed.
type FeedConfig struct {
	// URL is the ICS endpoint.
	URL string `yaml:"url" koanf:"url"`
	// LinkURL is linked in announcements when an event has no URL of its own.
	LinkURL        string `yaml:"linkurl" koanf:"linkurl"`
	UserAgent      string `yaml:"useragent" koanf:"useragent"`
	TimeoutSeconds int    `yaml:"timeoutseconds" koanf:"timeoutseconds"`
	// HorizonDays bounds how far ahead recurring events are expanded.
	HorizonDays int `yaml:"horizondays" koanf:"horizondays"`
}

// DiscordConfig holds bot credentials and where to post.
type DiscordConfig struct {
	Token     string `yaml:"token" koanf:"token"`
	ChannelID string `yaml:"channelid" koanf:"channelid"`
	// GuildID scopes the slash command to one server; empty registers it globally.
	GuildID string `yaml:"guildid" koanf:"guildid"`
	Command string `yaml:"command" koanf:"command"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" koanf:"username"`
	Password string `yaml:"password" koanf:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for health, metrics and API.
	Listen string `yaml:"listen" koanf:"listen"`

	// Timezone is the IANA display timezone; the schedule is evaluated in it too.
	Timezone string `yaml:"timezone" koanf:"timezone"`

	// Schedule is a standard 5-field cron expression.
	Schedule string `yaml:"schedule" koanf:"schedule"`

	Feed    FeedConfig    `yaml:"feed" koanf:"feed"`
	Discord DiscordConfig `yaml:"discord" koanf:"discord"`

	// MaxBouts caps the fight card lines per message.
	MaxBouts int    `yaml:"maxbouts" koanf:"maxbouts"`
	LogLevel string `yaml:"loglevel" koanf:"loglevel"`

	// BasicAuth protects everything except /health when both fields are set.
	BasicAuth BasicAuthConfig `yaml:"basicauth" koanf:"basicauth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		Schedule: defaultSchedule,
		Feed: FeedConfig{
			UserAgent:      defaultUserAgent,
			TimeoutSeconds: defaultTimeoutSeconds,
			HorizonDays:    defaultHorizonDays,
		},
		Discord: DiscordConfig{
			Command: defaultCommand,
		},
		MaxBouts: defaultMaxBouts,
		LogLevel: defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = defaultUserAgent
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Feed.HorizonDays <= 0 {
		c.Feed.HorizonDays = defaultHorizonDays
	}
	c.Discord.Command = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Discord.Command), "/"))
	if c.Discord.Command == "" {
		c.Discord.Command = defaultCommand
	}
	if c.MaxBouts <= 0 {
		c.MaxBouts = defaultMaxBouts
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports settings the bot cannot run without. Posting needs
// Discord credentials, a dry run only needs the feed.
func (c *Config) Validate(needDiscord bool) error {
	var errs []error
	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	if needDiscord {
		if c.Discord.Token == "" {
			errs = append(errs, errors.New("discord.token is required (DISCORD_TOKEN)"))
		}
		if c.Discord.ChannelID == "" {
			errs = append(errs, errors.New("discord.channelid is required (DISCORD_CHANNEL_ID)"))
		}
	}
	return errors.Join(errs...)
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at path, DISCORD_TOKEN / DISCORD_CHANNEL_ID, and UFCBOT_*
// variables.
//
// If the file does not exist, a default one is written with 0600 perms first.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		appLog.Info("wrote default config", "path", path)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(*DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	// Legacy DISCORD_TOKEN / DISCORD_CHANNEL_ID names.
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "DISCORD_",
		TransformFunc: func(key, v string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "DISCORD_")), "_", "")
			return "discord." + key, v
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load DISCORD_ env: %w", err)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, v string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", ".")
			return key, v
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load %s env: %w", EnvPrefix, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories. The file
// is replaced atomically and is only readable by its owner.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ufcbot-config-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o600); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
