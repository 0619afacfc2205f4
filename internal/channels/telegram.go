package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	ironmodels "github.com/ironclaw/ironclaw/pkg/models"
)

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	BotToken string

	// AllowedChatIDs restricts inbound messages to these chats. Empty means all.
	AllowedChatIDs []int64
}

// TelegramAdapter bridges a Telegram long-polling bot onto the channel contract.
type TelegramAdapter struct {
	*BaseHealthAdapter

	cfg     TelegramConfig
	bot     *tgbot.Bot
	limiter *RateLimiter
	inbound chan *ironmodels.Message
	cancel  context.CancelFunc
}

// NewTelegramAdapter constructs a Telegram adapter.
func NewTelegramAdapter(cfg TelegramConfig, logger *slog.Logger) (*TelegramAdapter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	a := &TelegramAdapter{
		BaseHealthAdapter: NewBaseHealthAdapter(ironmodels.ChannelTelegram, logger),
		cfg:               cfg,
		limiter:           NewRateLimiter(30, 30), // Telegram's ~30 msg/sec global cap
		inbound:           make(chan *ironmodels.Message, 256),
	}
	b, err := tgbot.New(cfg.BotToken, tgbot.WithDefaultHandler(a.onUpdate))
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	a.bot = b
	return a, nil
}

func (a *TelegramAdapter) Type() ironmodels.ChannelType { return ironmodels.ChannelTelegram }

func (a *TelegramAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.bot.Start(runCtx)
	a.SetStatus(true, "")
	return nil
}

func (a *TelegramAdapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	close(a.inbound)
	a.SetStatus(false, "stopped")
	return nil
}

func (a *TelegramAdapter) Messages() <-chan *ironmodels.Message { return a.inbound }

func (a *TelegramAdapter) Send(ctx context.Context, msg *ironmodels.Message) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChannelID, err)
	}
	start := time.Now()
	_, err = a.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Content,
	})
	a.RecordSendLatency(time.Since(start))
	if err != nil {
		a.RecordMessageFailed()
		return fmt.Errorf("telegram: send message: %w", err)
	}
	a.RecordMessageSent()
	return nil
}

func (a *TelegramAdapter) onUpdate(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if len(a.cfg.AllowedChatIDs) > 0 && !containsInt64(a.cfg.AllowedChatIDs, chatID) {
		return
	}
	msg := &ironmodels.Message{
		ID:        strconv.Itoa(update.Message.ID),
		Channel:   ironmodels.ChannelTelegram,
		ChannelID: strconv.FormatInt(chatID, 10),
		Direction: ironmodels.DirectionInbound,
		Role:      ironmodels.RoleUser,
		Content:   update.Message.Text,
		CreatedAt: time.Now(),
	}
	if update.Message.From != nil {
		msg.Metadata = map[string]any{"username": update.Message.From.Username}
	}
	a.RecordMessageReceived()
	select {
	case a.inbound <- msg:
	default:
		a.Logger().Warn("telegram: inbound buffer full, dropping message", "chat_id", chatID)
	}
}

func containsInt64(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
