package channels

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ironclaw/ironclaw/pkg/models"
)

// DiscordConfig configures the Discord bot adapter.
type DiscordConfig struct {
	BotToken string

	// AllowedGuildIDs restricts inbound messages to these guilds. Empty means all.
	AllowedGuildIDs []string
}

// DiscordAdapter bridges a Discord bot session onto the channel contract.
type DiscordAdapter struct {
	*BaseHealthAdapter

	cfg     DiscordConfig
	session *discordgo.Session
	limiter *RateLimiter
	inbound chan *models.Message
	logger  *slog.Logger
}

// NewDiscordAdapter constructs a Discord adapter. The underlying session is
// opened on Start and closed on Stop.
func NewDiscordAdapter(cfg DiscordConfig, logger *slog.Logger) (*DiscordAdapter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	a := &DiscordAdapter{
		BaseHealthAdapter: NewBaseHealthAdapter(models.ChannelDiscord, logger),
		cfg:               cfg,
		session:           session,
		limiter:           NewRateLimiter(50, 50), // Discord global rate limit guard
		inbound:           make(chan *models.Message, 256),
		logger:            logger,
	}
	session.AddHandler(a.onMessageCreate)
	return a, nil
}

func (a *DiscordAdapter) Type() models.ChannelType { return models.ChannelDiscord }

func (a *DiscordAdapter) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		a.SetStatus(false, err.Error())
		return fmt.Errorf("discord: open session: %w", err)
	}
	a.SetStatus(true, "")
	return nil
}

func (a *DiscordAdapter) Stop(ctx context.Context) error {
	close(a.inbound)
	a.SetStatus(false, "stopped")
	return a.session.Close()
}

func (a *DiscordAdapter) Messages() <-chan *models.Message { return a.inbound }

func (a *DiscordAdapter) Send(ctx context.Context, msg *models.Message) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, err := a.session.ChannelMessageSend(msg.ChannelID, msg.Content)
	a.RecordSendLatency(time.Since(start))
	if err != nil {
		a.RecordMessageFailed()
		return fmt.Errorf("discord: send message: %w", err)
	}
	a.RecordMessageSent()
	return nil
}

func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if len(a.cfg.AllowedGuildIDs) > 0 && !containsStringSlice(a.cfg.AllowedGuildIDs, m.GuildID) {
		return
	}
	msg := &models.Message{
		ID:        m.ID,
		Channel:   models.ChannelDiscord,
		ChannelID: m.ChannelID,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   m.Content,
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"guild_id": m.GuildID,
			"author":   m.Author.Username,
		},
	}
	a.RecordMessageReceived()
	select {
	case a.inbound <- msg:
	default:
		a.logger.Warn("discord: inbound buffer full, dropping message", "channel_id", m.ChannelID)
	}
}

func containsStringSlice(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
