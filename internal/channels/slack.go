package channels

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/ironclaw/ironclaw/pkg/models"
)

// SlackConfig configures the Slack socket-mode adapter.
type SlackConfig struct {
	BotToken string
	AppToken string

	// AllowedChannelIDs restricts inbound messages to these channels. Empty means all.
	AllowedChannelIDs []string
}

// SlackAdapter bridges a Slack Socket Mode client onto the channel contract.
type SlackAdapter struct {
	*BaseHealthAdapter

	cfg     SlackConfig
	api     *slack.Client
	client  *socketmode.Client
	limiter *RateLimiter
	inbound chan *models.Message
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSlackAdapter constructs a Slack adapter.
func NewSlackAdapter(cfg SlackConfig, logger *slog.Logger) (*SlackAdapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: bot token and app token are required")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	client := socketmode.New(api)
	return &SlackAdapter{
		BaseHealthAdapter: NewBaseHealthAdapter(models.ChannelSlack, logger),
		cfg:               cfg,
		api:               api,
		client:            client,
		limiter:           NewRateLimiter(1, 5), // Slack's tier-3 ~1 req/sec guideline
		inbound:           make(chan *models.Message, 256),
		done:              make(chan struct{}),
	}, nil
}

func (a *SlackAdapter) Type() models.ChannelType { return models.ChannelSlack }

func (a *SlackAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.consumeEvents(runCtx)
	go func() {
		defer close(a.done)
		a.client.RunContext(runCtx)
	}()
	a.SetStatus(true, "")
	return nil
}

func (a *SlackAdapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
	close(a.inbound)
	a.SetStatus(false, "stopped")
	return nil
}

func (a *SlackAdapter) Messages() <-chan *models.Message { return a.inbound }

func (a *SlackAdapter) Send(ctx context.Context, msg *models.Message) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, _, err := a.api.PostMessageContext(ctx, msg.ChannelID, slack.MsgOptionText(msg.Content, false))
	a.RecordSendLatency(time.Since(start))
	if err != nil {
		a.RecordMessageFailed()
		return fmt.Errorf("slack: post message: %w", err)
	}
	a.RecordMessageSent()
	return nil
}

func (a *SlackAdapter) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.client.Events:
			if !ok {
				return
			}
			a.handleEvent(evt)
		}
	}
}

func (a *SlackAdapter) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	a.client.Ack(*evt.Request)

	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	inner, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || inner.BotID != "" {
		return
	}
	if len(a.cfg.AllowedChannelIDs) > 0 && !containsStringSlice(a.cfg.AllowedChannelIDs, inner.Channel) {
		return
	}
	msg := &models.Message{
		ID:        inner.TimeStamp,
		Channel:   models.ChannelSlack,
		ChannelID: inner.Channel,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   inner.Text,
		CreatedAt: time.Now(),
	}
	a.RecordMessageReceived()
	select {
	case a.inbound <- msg:
	default:
		a.Logger().Warn("slack: inbound buffer full, dropping message", "channel_id", inner.Channel)
	}
}
