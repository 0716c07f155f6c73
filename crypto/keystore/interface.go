// Package keystore persists encrypted key records.
//
// A KeyStore stores EncryptedKey records addressed by id and never looks
// inside them: the blob and salt are opaque, and a record whose encrypter is
// unknown is as valid for storage, listing and removal as any other.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotConfigured is returned by every operation of a backend that has
	// not been configured.
	ErrNotConfigured = errors.New("keystore is not configured")
	// ErrAlreadyConfigured is returned by a second call to Configure.
	ErrAlreadyConfigured = errors.New("keystore is already configured")
	// ErrStorageKeyNotFound is returned by Storage.Get for an absent key.
	ErrStorageKeyNotFound = errors.New("storage key not found")
)

// KeyType tags the cryptographic kind or format of a key.
type KeyType string

// Well-known key types. Any other value is accepted.
const (
	KeyTypePlaintext KeyType = "plaintextKey"
	KeyTypeLedger    KeyType = "ledger"
	KeyTypeTrezor    KeyType = "trezor"
	KeyTypeFreighter KeyType = "freighter"
	KeyTypeAlbedo    KeyType = "albedo"
)

// Key is plaintext key material. It is never persisted directly.
type Key struct {
	ID         string          `json:"id"`
	Type       KeyType         `json:"type"`
	PublicKey  string          `json:"publicKey"`
	PrivateKey string          `json:"privateKey,omitempty"`
	Path       string          `json:"path,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// EncryptedKey is the at-rest form of a Key.
type EncryptedKey struct {
	ID            string `json:"id"`
	EncryptedBlob string `json:"encryptedBlob"`
	EncrypterName string `json:"encrypterName"`
	Salt          string `json:"salt"`
}

// KeyMetadata is the public projection of a stored key.
type KeyMetadata struct {
	ID string `json:"id"`
}

// Metadata returns the metadata of an encrypted key.
func (k EncryptedKey) Metadata() KeyMetadata {
	return KeyMetadata{ID: k.ID}
}

// KeyStore persists EncryptedKey records.
type KeyStore interface {
	// Name identifies the backend, e.g. "memory".
	Name() string
	// StoreKeys writes each record under its id, replacing any existing record
	// with the same id. It returns one KeyMetadata per input, in input order.
	StoreKeys(ctx context.Context, keys []EncryptedKey) ([]KeyMetadata, error)
	// LoadAllKeys returns every stored record. An empty store yields an empty slice.
	LoadAllKeys(ctx context.Context) ([]EncryptedKey, error)
	// LoadKey returns the record for id, or false if there is none.
	LoadKey(ctx context.Context, id string) (EncryptedKey, bool, error)
	// RemoveKey deletes the record for id. Removing an absent id is not an error.
	RemoveKey(ctx context.Context, id string) (KeyMetadata, error)
}

// Storage is the raw key-value area a backend is configured with.
type Storage interface {
	// Keys lists every key in the area, including keys written by others.
	Keys(ctx context.Context) ([]string, error)
	// Get returns ErrStorageKeyNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

func metadataOf(keys []EncryptedKey) []KeyMetadata {
	out := make([]KeyMetadata, len(keys))
	for i, k := range keys {
		out[i] = k.Metadata()
	}
	return out
}
