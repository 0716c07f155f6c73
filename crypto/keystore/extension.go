package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ExtensionKeyStore stores the whole record set as a single JSON document
// under the namespace key. Every mutation reads the full document, merges,
// and writes the full document back.
//
// The read-merge-write runs under a mutex, so calls on one instance do not
// lose each other's changes. Separate instances, or other processes, sharing
// the same document are not coordinated: the later write of the full
// document wins and the other change is silently lost. Callers that share a
// document must serialize their own mutations.
type ExtensionKeyStore struct {
	cfgMu sync.RWMutex
	opts  *Options

	// writeMu is held across each read-merge-write.
	writeMu sync.Mutex
}

// NewExtensionKeyStore creates an unconfigured store.
func NewExtensionKeyStore() *ExtensionKeyStore {
	return &ExtensionKeyStore{}
}

// Configure attaches the backing storage area.
func (e *ExtensionKeyStore) Configure(opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if e.opts != nil {
		return ErrAlreadyConfigured
	}
	opts.Logger = opts.Logger.With(zap.String("component", "extension_keystore"), zap.String("namespace", opts.Namespace))
	e.opts = &opts
	return nil
}

func (e *ExtensionKeyStore) Name() string { return "extension" }

func (e *ExtensionKeyStore) StoreKeys(ctx context.Context, keys []EncryptedKey) ([]KeyMetadata, error) {
	opts, err := e.options()
	if err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	doc, err := e.readDocument(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		replaced := false
		for i := range doc {
			if doc[i].ID == k.ID {
				doc[i] = k
				replaced = true
				break
			}
		}
		if !replaced {
			doc = append(doc, k)
		}
	}
	if err := e.writeDocument(ctx, opts, doc); err != nil {
		return nil, err
	}
	opts.Logger.Debug("stored keys", zap.Int("count", len(keys)), zap.Int("document_size", len(doc)))
	return metadataOf(keys), nil
}

func (e *ExtensionKeyStore) LoadAllKeys(ctx context.Context) ([]EncryptedKey, error) {
	opts, err := e.options()
	if err != nil {
		return nil, err
	}
	return e.readDocument(ctx, opts)
}

func (e *ExtensionKeyStore) LoadKey(ctx context.Context, id string) (EncryptedKey, bool, error) {
	opts, err := e.options()
	if err != nil {
		return EncryptedKey{}, false, err
	}
	doc, err := e.readDocument(ctx, opts)
	if err != nil {
		return EncryptedKey{}, false, err
	}
	for _, k := range doc {
		if k.ID == id {
			return k, true, nil
		}
	}
	return EncryptedKey{}, false, nil
}

func (e *ExtensionKeyStore) RemoveKey(ctx context.Context, id string) (KeyMetadata, error) {
	opts, err := e.options()
	if err != nil {
		return KeyMetadata{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	doc, err := e.readDocument(ctx, opts)
	if err != nil {
		return KeyMetadata{}, err
	}
	kept := doc[:0]
	for _, k := range doc {
		if k.ID != id {
			kept = append(kept, k)
		}
	}
	if len(kept) != len(doc) {
		if err := e.writeDocument(ctx, opts, kept); err != nil {
			return KeyMetadata{}, err
		}
		opts.Logger.Debug("removed key", zap.String("key_id", id))
	}
	return KeyMetadata{ID: id}, nil
}

func (e *ExtensionKeyStore) readDocument(ctx context.Context, opts *Options) ([]EncryptedKey, error) {
	data, err := opts.Storage.Get(ctx, opts.Namespace)
	if errors.Is(err, ErrStorageKeyNotFound) {
		return []EncryptedKey{}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc []EncryptedKey
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse key document %s: %w", opts.Namespace, err)
		}
	}
	// A missing document and "null" both read as empty.
	if doc == nil {
		doc = []EncryptedKey{}
	}
	return doc, nil
}

func (e *ExtensionKeyStore) writeDocument(ctx context.Context, opts *Options, doc []EncryptedKey) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal key document: %w", err)
	}
	return opts.Storage.Set(ctx, opts.Namespace, data)
}

func (e *ExtensionKeyStore) options() (*Options, error) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if e.opts == nil {
		return nil, ErrNotConfigured
	}
	return e.opts, nil
}
