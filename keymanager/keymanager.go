// Package keymanager binds one KeyStore to a set of Encrypters and exposes
// the caller-facing key lifecycle: store, list, load, remove and password
// change.
//
// Records written under different encrypters can share one store. Each
// record names its encrypter, and loading routes the record back to it.
package keymanager

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joncooperworks/walletkeys/crypto/encrypter"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

var (
	// ErrKeyNotFound is returned when no record exists for an id.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnknownEncrypter is returned when a required encrypter is not registered.
	ErrUnknownEncrypter = encrypter.ErrUnknownEncrypter
)

// KeyManager orchestrates a KeyStore and a registry of Encrypters.
type KeyManager struct {
	store            keystore.KeyStore
	encrypters       *encrypter.Registry
	defaultEncrypter string
	logger           *zap.Logger
}

type settings struct {
	encrypters       []encrypter.Encrypter
	defaultEncrypter string
	logger           *zap.Logger
}

// Option configures a KeyManager.
type Option func(*settings)

// WithEncrypters registers encs. Without this option only Identity is registered.
func WithEncrypters(encs ...encrypter.Encrypter) Option {
	return func(s *settings) { s.encrypters = append(s.encrypters, encs...) }
}

// WithDefaultEncrypter sets the encrypter StoreKey uses when given no name.
func WithDefaultEncrypter(name string) Option {
	return func(s *settings) { s.defaultEncrypter = name }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New creates a KeyManager over store.
//
// The default encrypter is the one named by WithDefaultEncrypter, otherwise
// the first encrypter registered.
func New(store keystore.KeyStore, opts ...Option) (*KeyManager, error) {
	if store == nil {
		return nil, errors.New("key store cannot be nil")
	}

	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if len(s.encrypters) == 0 {
		s.encrypters = []encrypter.Encrypter{encrypter.NewIdentity()}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	registry, err := encrypter.NewRegistry(s.encrypters...)
	if err != nil {
		return nil, err
	}

	defaultName := s.defaultEncrypter
	if defaultName == "" {
		defaultName = s.encrypters[0].Name()
	}
	if _, err := registry.Get(defaultName); err != nil {
		return nil, fmt.Errorf("invalid default encrypter: %w", err)
	}

	return &KeyManager{
		store:            store,
		encrypters:       registry,
		defaultEncrypter: defaultName,
		logger:           s.logger.With(zap.String("component", "key_manager"), zap.String("backend", store.Name())),
	}, nil
}

// Encrypters returns the registered encrypter names, sorted.
func (m *KeyManager) Encrypters() []string {
	return m.encrypters.Names()
}

// DefaultEncrypter returns the name StoreKey uses when given no name.
func (m *KeyManager) DefaultEncrypter() string {
	return m.defaultEncrypter
}

// StoreKey encrypts key under password with the named encrypter and persists
// it. An empty encrypterName selects the default encrypter.
func (m *KeyManager) StoreKey(ctx context.Context, key keystore.Key, password, encrypterName string) (keystore.KeyMetadata, error) {
	if encrypterName == "" {
		encrypterName = m.defaultEncrypter
	}
	enc, err := m.encrypters.Get(encrypterName)
	if err != nil {
		return keystore.KeyMetadata{}, err
	}

	ek, err := enc.EncryptKey(ctx, key, password)
	if err != nil {
		return keystore.KeyMetadata{}, err
	}

	meta, err := m.store.StoreKeys(ctx, []keystore.EncryptedKey{ek})
	if err != nil {
		return keystore.KeyMetadata{}, err
	}
	if len(meta) != 1 {
		return keystore.KeyMetadata{}, fmt.Errorf("store returned %d results for one key", len(meta))
	}

	m.logger.Info("stored key", zap.String("key_id", key.ID), zap.String("encrypter", encrypterName))
	return meta[0], nil
}

// LoadKey loads the record for id and decrypts it with the encrypter that
// produced it.
func (m *KeyManager) LoadKey(ctx context.Context, id, password string) (keystore.Key, error) {
	ek, found, err := m.store.LoadKey(ctx, id)
	if err != nil {
		return keystore.Key{}, err
	}
	if !found {
		return keystore.Key{}, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}

	key, err := m.decrypt(ctx, ek, password)
	if err != nil {
		if errors.Is(err, encrypter.ErrDecryption) {
			m.logger.Warn("failed to decrypt key", zap.String("key_id", id), zap.String("encrypter", ek.EncrypterName))
		}
		return keystore.Key{}, err
	}
	return key, nil
}

// RemoveKey deletes the record for id. Removing an absent key succeeds.
func (m *KeyManager) RemoveKey(ctx context.Context, id string) (keystore.KeyMetadata, error) {
	meta, err := m.store.RemoveKey(ctx, id)
	if err != nil {
		return keystore.KeyMetadata{}, err
	}
	m.logger.Info("removed key", zap.String("key_id", id))
	return meta, nil
}

// ListKeys returns the metadata of every stored record.
func (m *KeyManager) ListKeys(ctx context.Context) ([]keystore.KeyMetadata, error) {
	all, err := m.store.LoadAllKeys(ctx)
	if err != nil {
		return nil, err
	}
	meta := make([]keystore.KeyMetadata, 0, len(all))
	for _, ek := range all {
		meta = append(meta, ek.Metadata())
	}
	return meta, nil
}

// ChangePassword re-encrypts every stored record from oldPassword to
// newPassword, each with the encrypter that produced it. Nothing is written
// unless every record decrypts.
func (m *KeyManager) ChangePassword(ctx context.Context, oldPassword, newPassword string) ([]keystore.KeyMetadata, error) {
	all, err := m.store.LoadAllKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return []keystore.KeyMetadata{}, nil
	}

	reencrypted := make([]keystore.EncryptedKey, 0, len(all))
	for _, ek := range all {
		key, err := m.decrypt(ctx, ek, oldPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key %s: %w", ek.ID, err)
		}
		enc, err := m.encrypters.Get(ek.EncrypterName)
		if err != nil {
			return nil, err
		}
		next, err := enc.EncryptKey(ctx, key, newPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encrypt key %s: %w", ek.ID, err)
		}
		reencrypted = append(reencrypted, next)
	}

	meta, err := m.store.StoreKeys(ctx, reencrypted)
	if err != nil {
		return nil, err
	}
	m.logger.Info("changed password", zap.Int("keys", len(meta)))
	return meta, nil
}

func (m *KeyManager) decrypt(ctx context.Context, ek keystore.EncryptedKey, password string) (keystore.Key, error) {
	enc, err := m.encrypters.Get(ek.EncrypterName)
	if err != nil {
		return keystore.Key{}, err
	}
	return enc.DecryptKey(ctx, ek, password)
}
