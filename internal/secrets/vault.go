// Package secrets implements the encrypted credential vault. Secrets are
// stored at rest as nonce||ciphertext||tag under AES-256-GCM, with a
// per-secret 32-byte salt so that every secret's derived key is
// independent of every other secret's. The master key never touches disk;
// plaintext secret values live in memory only transiently and are zeroed
// on drop.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// hkdfInfo is the domain-separation string mixed into key derivation so
	// that keys derived here can never collide with keys derived elsewhere
	// in the system from the same master key.
	hkdfInfo = "near-agent-secrets-v1"

	saltSize  = 32
	nonceSize = 12 // AES-GCM standard nonce size
	keySize   = 32 // AES-256
)

var (
	// ErrNotFound indicates no secret exists for the given (user, name).
	ErrNotFound = errors.New("secrets: not found")
	// ErrMasterKeyMissing indicates no master key could be located in any
	// of the configured sources (env var, OS keychain, onboarding seed).
	ErrMasterKeyMissing = errors.New("secrets: master key not configured")
	// ErrTampered indicates GCM authentication failed on decrypt — either
	// corruption or a tampered ciphertext.
	ErrTampered = errors.New("secrets: ciphertext failed authentication")
)

// Record is the at-rest representation of one secret.
type Record struct {
	UserID     string
	Name       string
	KeySalt    []byte // 32 random bytes, unique per secret
	Sealed     []byte // nonce || ciphertext || tag
}

// Store persists sealed secret records. Implementations never see
// plaintext; Vault handles all encryption and decryption.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, userID, name string) (Record, error)
	Delete(ctx context.Context, userID, name string) error
	List(ctx context.Context, userID string) ([]string, error)
}

// Plaintext wraps a decrypted secret value. Call Zero as soon as the value
// is no longer needed so it does not linger in memory.
type Plaintext struct {
	data []byte
}

// Bytes returns the plaintext bytes. The returned slice aliases the
// Plaintext's internal buffer; do not retain it past a call to Zero.
func (p *Plaintext) Bytes() []byte { return p.data }

// String returns the plaintext value as a string. Go strings are
// immutable and cannot be zeroed, so prefer Bytes for anything
// security-sensitive; String exists for convenience at call sites that
// must hand a string to a library (e.g. an HTTP header value).
func (p *Plaintext) String() string { return string(p.data) }

// Zero overwrites the plaintext buffer with zeros. Safe to call multiple
// times.
func (p *Plaintext) Zero() {
	for i := range p.data {
		p.data[i] = 0
	}
}

// MasterKeySource supplies the 32-byte master key. Order of precedence
// (checked by NewVault's caller): environment variable, OS keychain, and
// only at onboarding time a freshly generated key persisted to the
// keychain.
type MasterKeySource func() ([]byte, error)

// Vault encrypts and decrypts secrets using keys derived per-secret from a
// single master key via HKDF-SHA256.
type Vault struct {
	mu        sync.RWMutex
	masterKey []byte
	store     Store
}

// New constructs a Vault. masterKey must be exactly 32 bytes; the Vault
// keeps its own copy and the caller may zero the original.
func New(masterKey []byte, store Store) (*Vault, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("secrets: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	if store == nil {
		return nil, errors.New("secrets: store is required")
	}
	owned := make([]byte, keySize)
	copy(owned, masterKey)
	return &Vault{masterKey: owned, store: store}, nil
}

// Close zeroes the in-memory master key. The Vault is unusable afterward.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.masterKey {
		v.masterKey[i] = 0
	}
}

func (v *Vault) deriveKey(salt []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r := hkdf.New(newSHA256, v.masterKey, salt, []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secrets: key derivation: %w", err)
	}
	return key, nil
}

// Put encrypts value and stores it under (userID, name), overwriting any
// existing secret of that name. The caller's value is not retained; zero
// it yourself if it came from an untrusted scratch buffer.
func (v *Vault) Put(ctx context.Context, userID, name string, value []byte) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("secrets: generating salt: %w", err)
	}
	key, err := v.deriveKey(salt)
	if err != nil {
		return err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("secrets: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("secrets: gcm init: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secrets: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, value, nil) // nonce || ciphertext || tag

	return v.store.Put(ctx, Record{
		UserID:  userID,
		Name:    name,
		KeySalt: salt,
		Sealed:  sealed,
	})
}

// Get decrypts and returns the named secret. The returned Plaintext must
// be zeroed by the caller when done.
func (v *Vault) Get(ctx context.Context, userID, name string) (*Plaintext, error) {
	rec, err := v.store.Get(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if len(rec.Sealed) < nonceSize {
		return nil, fmt.Errorf("secrets: sealed record too short")
	}

	key, err := v.deriveKey(rec.KeySalt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm init: %w", err)
	}

	nonce, ciphertext := rec.Sealed[:nonceSize], rec.Sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrTampered
	}
	return &Plaintext{data: plain}, nil
}

// Exists reports whether a secret is present, without decrypting it. This
// is the only existence check WASM modules are permitted to perform on
// secret names outside their declared capability allowlist.
func (v *Vault) Exists(ctx context.Context, userID, name string) (bool, error) {
	_, err := v.store.Get(ctx, userID, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a secret.
func (v *Vault) Delete(ctx context.Context, userID, name string) error {
	return v.store.Delete(ctx, userID, name)
}

// List returns the names of secrets owned by userID, without decrypting
// any of them.
func (v *Vault) List(ctx context.Context, userID string) ([]string, error) {
	return v.store.List(ctx, userID)
}

// ConstantTimeEquals compares two byte slices in constant time, suitable
// for comparing bearer tokens or decrypted secret values against
// attacker-controlled input.
func ConstantTimeEquals(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
