package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// EnvMasterKey is the environment variable checked first for the
	// master key, hex-encoded.
	EnvMasterKey = "IRONCLAW_SECRETS_MASTER_KEY"

	keyringService = "ironclaw"
	keyringUser    = "secrets-master-key"
)

// LoadMasterKey resolves the 32-byte master key in priority order:
// environment variable, OS keychain, and — only when allowGenerate is
// true, i.e. during first-run onboarding — a freshly generated key that
// is immediately persisted to the OS keychain.
func LoadMasterKey(allowGenerate bool) ([]byte, error) {
	if hexKey := os.Getenv(EnvMasterKey); hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("secrets: %s is not valid hex: %w", EnvMasterKey, err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("secrets: %s must decode to %d bytes, got %d", EnvMasterKey, keySize, len(key))
		}
		return key, nil
	}

	if stored, err := keyring.Get(keyringService, keyringUser); err == nil {
		key, decodeErr := hex.DecodeString(stored)
		if decodeErr != nil {
			return nil, fmt.Errorf("secrets: keychain value is not valid hex: %w", decodeErr)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("secrets: keychain key must be %d bytes, got %d", keySize, len(key))
		}
		return key, nil
	} else if err != keyring.ErrNotFound {
		return nil, fmt.Errorf("secrets: reading OS keychain: %w", err)
	}

	if !allowGenerate {
		return nil, ErrMasterKeyMissing
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets: generating master key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("secrets: persisting master key to OS keychain: %w", err)
	}
	return key, nil
}
