package config

import (
	"context"
	"os"
	"strings"
)

// SettingsSource is the persisted per-user settings leg of the resolution
// order, satisfied by the storage package's SettingsStore.
type SettingsSource interface {
	Get(ctx context.Context, userID, key string) (string, error)
}

// ResolveSetting applies the settings resolution order: environment
// variable, then on-disk config value, then the persisted per-user
// setting, then the compiled default. Empty values at a level fall
// through to the next one.
func ResolveSetting(ctx context.Context, envKey, fileValue string, store SettingsSource, userID, key, fallback string) string {
	if envKey != "" {
		if v, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if strings.TrimSpace(fileValue) != "" {
		return fileValue
	}
	if store != nil {
		if v, err := store.Get(ctx, userID, key); err == nil && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return fallback
}
