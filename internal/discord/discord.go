package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"ufcbot/internal/config"
	appLog "ufcbot/internal/log"
)

// commandTimeout bounds building a reply to a slash command.
const commandTimeout = 30 * time.Second

// CommandFunc produces the reply text for the slash command.
type CommandFunc func(ctx context.Context) string

// Bot posts to one channel and answers one slash command.
type Bot struct {
	session   *discordgo.Session
	channelID string
	guildID   string
	command   string

	registered *discordgo.ApplicationCommand
}

// New creates a bot session. It does not connect; see Open.
func New(cfg config.DiscordConfig) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is empty")
	}
	if cfg.ChannelID == "" {
		return nil, errors.New("discord: channel ID is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session:   s,
		channelID: cfg.ChannelID,
		guildID:   cfg.GuildID,
		command:   cfg.Command,
	}, nil
}

// Post sends msg to the configured channel. It implements bot.Poster.
func (b *Bot) Post(ctx context.Context, msg string) error {
	if _, err := b.session.ChannelMessageSend(b.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send to channel %s: %w", b.channelID, err)
	}
	return nil
}

// Open connects the gateway and registers the slash command, answering it
// with onCommand.
func (b *Bot) Open(ctx context.Context, onCommand CommandFunc) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		appLog.Info("discord ready", "user", r.User.Username, "id", r.User.ID)
	})
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if !isCommand(i, b.command) {
			return
		}
		b.handleCommand(ctx, s, i, onCommand)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	cmd, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, slashCommand(b.command), discordgo.WithContext(ctx))
	if err != nil {
		_ = b.session.Close()
		return fmt.Errorf("discord: register /%s: %w", b.command, err)
	}
	b.registered = cmd
	appLog.Info("discord slash command registered", "command", "/"+b.command, "guild", b.guildID)
	return nil
}

// Close removes a guild-scoped command and disconnects. Global commands are
// left registered.
func (b *Bot) Close() error {
	if b.registered != nil && b.guildID != "" {
		if err := b.session.ApplicationCommandDelete(b.registered.ApplicationID, b.guildID, b.registered.ID); err != nil {
			appLog.Error("discord: failed to remove slash command", err, "command", b.command)
		}
	}
	return b.session.Close()
}

// handleCommand defers the response first because fetching the feed can
// take longer than Discord's 3 second interaction deadline.
func (b *Bot) handleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, onCommand CommandFunc) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		appLog.Error("discord: defer interaction failed", err, "command", b.command)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	msg := onCommand(cctx)

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg}); err != nil {
		appLog.Error("discord: edit interaction response failed", err, "command", b.command)
	}
}

func isCommand(i *discordgo.InteractionCreate, name string) bool {
	return i.Type == discordgo.InteractionApplicationCommand && i.ApplicationCommandData().Name == name
}

func slashCommand(name string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: "Show the next upcoming event",
	}
}
