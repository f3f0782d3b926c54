// Package discord feeds prefix commands from Discord messages into the
// kernel and forwards alerts to an operator channel.
package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/chatkernel/internal/kernel"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/rs/zerolog"
)

const source = "discord"

// Submitter accepts events for dispatch. *kernel.Kernel implements it.
type Submitter interface {
	Submit(ev kernel.Event) error
}

type Config struct {
	Token          string
	Prefix         string
	DeveloperID    string
	GuildBlacklist []string
}

// Bot is a Discord bot
type Bot struct {
	dg   *discordgo.Session
	cfg  Config
	sub  Submitter
	log  zerolog.Logger
	self atomic.Pointer[string] // set on every Ready, read by message handlers
}

// New creates the session. Nothing connects until Run.
func New(cfg Config, sub Submitter, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{dg: dg, cfg: cfg, sub: sub, log: log}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onMessageCreate)
	return b, nil
}

// Session exposes the underlying session, e.g. for an alert Forwarder.
func (b *Bot) Session() *discordgo.Session { return b.dg }

// Run opens the gateway connection and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	id := r.User.ID
	b.self.Store(&id)
	for _, g := range r.Guilds {
		b.leaveIfBlacklisted(s, g.ID)
	}
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.ID) {
		return
	}
	b.log.Debug().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID string) bool {
	if !slices.Contains(b.cfg.GuildBlacklist, guildID) {
		return false
	}
	b.log.Info().Str("guild", guildID).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
	return true
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.ignored(m.Author) {
		return
	}
	ev, ok := b.event(s, m.Message)
	if !ok {
		return
	}
	if err := b.sub.Submit(ev); err != nil {
		b.log.Warn().Err(err).Str("command", ev.Command).Msg("dispatch not queued")
		if errors.Is(err, kernel.ErrQueueFull) {
			_ = ev.Context.Reply(context.Background(), "I'm a bit busy right now, try again in a moment.")
		}
	}
}

// ignored reports whether a message author is a bot or the bot itself.
func (b *Bot) ignored(author *discordgo.User) bool {
	if author == nil || author.Bot {
		return true
	}
	self := b.self.Load()
	return self != nil && author.ID == *self
}

// event turns a message into a kernel event. It reports false for messages
// that are not commands.
func (b *Bot) event(s *discordgo.Session, m *discordgo.Message) (kernel.Event, bool) {
	name, args, ok := cmd.Parse(b.cfg.Prefix, m.Content)
	if !ok {
		return kernel.Event{}, false
	}
	c := &cmd.Context{
		InvokerID:   m.Author.ID,
		InvokerName: m.Author.Username,
		ChatID:      m.ChannelID,
		Source:      source,
		Text:        m.Content,
		Args:        args,
		IsGroup:     m.GuildID != "",
		Replier:     channelReplier{s: s, channelID: m.ChannelID, replyTo: m.Reference()},
	}
	if c.IsGroup {
		c.IsAdmin = b.isAdministrator(s, m.GuildID, m.Author.ID, m.Member)
	} else {
		c.IsAdmin = isDeveloper(b.cfg.DeveloperID, m.Author.ID)
	}
	return kernel.Event{Command: name, Context: c}, true
}

type channelReplier struct {
	s         *discordgo.Session
	channelID string
	replyTo   *discordgo.MessageReference
}

func (r channelReplier) Reply(ctx context.Context, text string) error {
	_, err := r.s.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Content:   text,
		Reference: r.replyTo,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			RepliedUser: false,
		},
	}, discordgo.WithContext(ctx))
	return err
}
