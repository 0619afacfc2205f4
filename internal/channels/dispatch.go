package channels

import (
	"context"
	"log/slog"

	"github.com/ironclaw/ironclaw/internal/agent"
	"github.com/ironclaw/ironclaw/internal/sessions"
	"github.com/ironclaw/ironclaw/pkg/models"
)

// Dispatcher feeds inbound channel messages into the agent runtime and
// routes response chunks back out through the originating adapter.
type Dispatcher struct {
	registry *Registry
	runtime  *agent.Runtime
	sessions sessions.Store
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher bound to a channel registry and runtime.
func NewDispatcher(registry *Registry, runtime *agent.Runtime, store sessions.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, runtime: runtime, sessions: store, logger: logger}
}

// Run consumes the aggregated inbound stream until ctx is cancelled, running
// each message through the agent runtime and sending the final response text
// back out via the adapter that owns the originating channel.
func (d *Dispatcher) Run(ctx context.Context) {
	for msg := range d.registry.AggregateMessages(ctx) {
		go d.handle(ctx, msg)
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg *models.Message) {
	key := string(msg.Channel) + ":" + msg.ChannelID
	session, err := d.sessions.GetOrCreate(ctx, key, "default", msg.Channel, msg.ChannelID)
	if err != nil {
		d.logger.Error("dispatch: session lookup failed", "channel", msg.Channel, "error", err)
		return
	}

	chunks, err := d.runtime.Process(ctx, session, msg)
	if err != nil {
		d.logger.Error("dispatch: runtime process failed", "channel", msg.Channel, "error", err)
		return
	}

	var reply string
	for chunk := range chunks {
		if chunk.Error != nil {
			d.logger.Error("dispatch: response chunk error", "channel", msg.Channel, "error", chunk.Error)
			continue
		}
		reply += chunk.Text
	}
	if reply == "" {
		return
	}

	outbound, ok := d.registry.GetOutbound(msg.Channel)
	if !ok {
		d.logger.Warn("dispatch: no outbound adapter registered", "channel", msg.Channel)
		return
	}
	out := &models.Message{
		Channel:   msg.Channel,
		ChannelID: msg.ChannelID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   reply,
	}
	if err := outbound.Send(ctx, out); err != nil {
		d.logger.Error("dispatch: send reply failed", "channel", msg.Channel, "error", err)
	}
}
