package channels

import (
	"fmt"
	"log/slog"

	"github.com/ironclaw/ironclaw/internal/config"
)

// RegisterConfigured constructs and registers adapters for every enabled
// chat platform in cfg, returning one error per adapter that failed to
// construct (e.g. missing credentials). Platforms without a live adapter
// implementation are skipped silently; they remain reachable only through
// the generic registry contract once a future adapter is wired in.
func RegisterConfigured(registry *Registry, cfg config.ChannelsConfig, logger *slog.Logger) []error {
	var errs []error

	if cfg.Discord.Enabled {
		adapter, err := NewDiscordAdapter(DiscordConfig{BotToken: cfg.Discord.BotToken}, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("discord: %w", err))
		} else {
			registry.Register(adapter)
		}
	}

	if cfg.Telegram.Enabled {
		adapter, err := NewTelegramAdapter(TelegramConfig{BotToken: cfg.Telegram.BotToken}, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		} else {
			registry.Register(adapter)
		}
	}

	if cfg.Slack.Enabled {
		adapter, err := NewSlackAdapter(SlackConfig{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
		}, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		} else {
			registry.Register(adapter)
		}
	}

	return errs
}
