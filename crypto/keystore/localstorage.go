package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LocalStorageKeyStore stores one Storage entry per record, under
// "<namespace>:<id>". It enumerates its records by prefix scan and ignores
// every other key in the area, including entries whose record id does not
// match the key they are stored under.
type LocalStorageKeyStore struct {
	mu   sync.RWMutex
	opts *Options
}

// NewLocalStorageKeyStore creates an unconfigured store.
func NewLocalStorageKeyStore() *LocalStorageKeyStore {
	return &LocalStorageKeyStore{}
}

// Configure attaches the backing storage area.
func (l *LocalStorageKeyStore) Configure(opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.opts != nil {
		return ErrAlreadyConfigured
	}
	opts.Logger = opts.Logger.With(zap.String("component", "localstorage_keystore"), zap.String("namespace", opts.Namespace))
	l.opts = &opts
	return nil
}

func (l *LocalStorageKeyStore) Name() string { return "localstorage" }

func (l *LocalStorageKeyStore) StoreKeys(ctx context.Context, keys []EncryptedKey) ([]KeyMetadata, error) {
	opts, err := l.options()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		data, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal key %s: %w", k.ID, err)
		}
		if err := opts.Storage.Set(ctx, l.storageKey(opts, k.ID), data); err != nil {
			return nil, err
		}
	}
	opts.Logger.Debug("stored keys", zap.Int("count", len(keys)))
	return metadataOf(keys), nil
}

func (l *LocalStorageKeyStore) LoadAllKeys(ctx context.Context) ([]EncryptedKey, error) {
	opts, err := l.options()
	if err != nil {
		return nil, err
	}
	names, err := opts.Storage.Keys(ctx)
	if err != nil {
		return nil, err
	}

	prefix := opts.Namespace + NamespaceSeparator
	out := make([]EncryptedKey, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		k, ok, err := l.load(ctx, opts, name)
		if err != nil {
			return nil, err
		}
		// Removed between Keys and Get, or not addressable by its id.
		if !ok || name != l.storageKey(opts, k.ID) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (l *LocalStorageKeyStore) LoadKey(ctx context.Context, id string) (EncryptedKey, bool, error) {
	opts, err := l.options()
	if err != nil {
		return EncryptedKey{}, false, err
	}
	return l.load(ctx, opts, l.storageKey(opts, id))
}

func (l *LocalStorageKeyStore) RemoveKey(ctx context.Context, id string) (KeyMetadata, error) {
	opts, err := l.options()
	if err != nil {
		return KeyMetadata{}, err
	}
	if err := opts.Storage.Remove(ctx, l.storageKey(opts, id)); err != nil {
		return KeyMetadata{}, err
	}
	opts.Logger.Debug("removed key", zap.String("key_id", id))
	return KeyMetadata{ID: id}, nil
}

func (l *LocalStorageKeyStore) load(ctx context.Context, opts *Options, name string) (EncryptedKey, bool, error) {
	data, err := opts.Storage.Get(ctx, name)
	if errors.Is(err, ErrStorageKeyNotFound) {
		return EncryptedKey{}, false, nil
	}
	if err != nil {
		return EncryptedKey{}, false, err
	}
	var k EncryptedKey
	if err := json.Unmarshal(data, &k); err != nil {
		return EncryptedKey{}, false, fmt.Errorf("failed to parse record %s: %w", name, err)
	}
	return k, true, nil
}

func (l *LocalStorageKeyStore) storageKey(opts *Options, id string) string {
	return opts.Namespace + NamespaceSeparator + id
}

func (l *LocalStorageKeyStore) options() (*Options, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.opts == nil {
		return nil, ErrNotConfigured
	}
	return l.opts, nil
}
