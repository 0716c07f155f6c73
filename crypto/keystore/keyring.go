package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

// ErrKeyringPassword is returned when only the encrypted file backend could be
// used and no password for it is configured.
var ErrKeyringPassword = errors.New("file keyring requires a password")

// KeyringConfig selects and opens an OS credential store.
type KeyringConfig struct {
	// ServiceName groups items in the credential store. Defaults to "walletkeys".
	ServiceName string
	// AllowedBackends restricts which credential stores may be used, e.g.
	// "keychain", "secret-service", "wincred", "file". Empty selects the
	// platform's native store with an encrypted file as fallback.
	AllowedBackends []string
	// KeychainName selects a macOS keychain. Empty uses the login keychain.
	KeychainName string
	// FileDir is the directory used by the "file" backend.
	FileDir string
	// FilePassword unlocks the "file" backend. Without it the file backend
	// is never used.
	FilePassword string
}

// KeyringStorage is a Storage over an OS credential store (macOS Keychain,
// Windows Credential Manager, Secret Service, or an encrypted file).
type KeyringStorage struct {
	ring keyring.Keyring
}

// NewKeyringStorage wraps an already opened keyring.
func NewKeyringStorage(ring keyring.Keyring) *KeyringStorage {
	return &KeyringStorage{ring: ring}
}

// OpenKeyringStorage opens the credential store described by cfg.
// Uses WALLETKEYS_KEYCHAIN if KeychainName is empty.
func OpenKeyringStorage(cfg KeyringConfig) (*KeyringStorage, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "walletkeys"
	}
	if cfg.KeychainName == "" {
		cfg.KeychainName = os.Getenv("WALLETKEYS_KEYCHAIN")
	}

	backends, err := keyringBackends(cfg)
	if err != nil {
		return nil, err
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          backends,
		KeychainName:             cfg.KeychainName,
		KeychainTrustApplication: true,
		KeyCtlScope:              "user",
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &KeyringStorage{ring: ring}, nil
}

// keyringBackends returns the backends to try, in order. The file backend is
// dropped when no password is set for it.
func keyringBackends(cfg KeyringConfig) ([]keyring.BackendType, error) {
	candidates := defaultKeyringBackends()
	if len(cfg.AllowedBackends) > 0 {
		candidates = make([]keyring.BackendType, 0, len(cfg.AllowedBackends))
		for _, b := range cfg.AllowedBackends {
			candidates = append(candidates, keyring.BackendType(b))
		}
	}
	if cfg.FilePassword != "" {
		return candidates, nil
	}

	backends := make([]keyring.BackendType, 0, len(candidates))
	for _, b := range candidates {
		if b != keyring.FileBackend {
			backends = append(backends, b)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: set WALLETKEYS_KEYRING_PASSWORD", ErrKeyringPassword)
	}
	return backends, nil
}

func (k *KeyringStorage) Keys(ctx context.Context) ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	return keys, nil
}

func (k *KeyringStorage) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrStorageKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}
	return item.Data, nil
}

func (k *KeyringStorage) Set(ctx context.Context, key string, value []byte) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  value,
		Label: "walletkeys: " + key,
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStorage) Remove(ctx context.Context, key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove key from keyring: %w", err)
	}
	return nil
}
