// Package encrypter converts plaintext keys to encrypted records and back.
//
// Every Encrypter tags its output with its Name so that a record can be
// routed back to the scheme that produced it, even when records from several
// schemes share one KeyStore. The id of a key travels outside the encrypted
// payload; the secret-bearing fields (private key, path, extra, public key
// and type) are serialized together as a single payload.
package encrypter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

var (
	// ErrDecryption is returned for a wrong password or for a blob that is
	// corrupt or was produced by another encrypter. The two causes are not
	// distinguished.
	ErrDecryption = errors.New("failed to decrypt key")
	// ErrUnknownEncrypter is returned when no encrypter is registered under a name.
	ErrUnknownEncrypter = errors.New("unknown encrypter")
)

// Encrypter is a reversible transform between a Key and an EncryptedKey.
type Encrypter interface {
	// Name is recorded on every EncryptedKey this encrypter produces.
	Name() string
	// EncryptKey encrypts key under password.
	EncryptKey(ctx context.Context, key keystore.Key, password string) (keystore.EncryptedKey, error)
	// DecryptKey reverses EncryptKey. It fails with ErrDecryption for a wrong
	// password or a foreign or corrupt record.
	DecryptKey(ctx context.Context, encryptedKey keystore.EncryptedKey, password string) (keystore.Key, error)
}

// secretPayload holds the fields of a Key that are encrypted. Extra is kept
// as raw bytes so that it comes back exactly as given.
type secretPayload struct {
	PrivateKey string           `json:"privateKey,omitempty"`
	Path       string           `json:"path,omitempty"`
	Extra      []byte           `json:"extra,omitempty"`
	PublicKey  string           `json:"publicKey"`
	Type       keystore.KeyType `json:"type"`
}

func marshalSecrets(key keystore.Key) ([]byte, error) {
	data, err := json.Marshal(secretPayload{
		PrivateKey: key.PrivateKey,
		Path:       key.Path,
		Extra:      key.Extra,
		PublicKey:  key.PublicKey,
		Type:       key.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key %s: %w", key.ID, err)
	}
	return data, nil
}

func unmarshalSecrets(id string, data []byte) (keystore.Key, error) {
	var p secretPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return keystore.Key{}, ErrDecryption
	}
	return keystore.Key{
		ID:         id,
		Type:       p.Type,
		PublicKey:  p.PublicKey,
		PrivateKey: p.PrivateKey,
		Path:       p.Path,
		Extra:      json.RawMessage(p.Extra),
	}, nil
}

// Registry maps encrypter names to encrypters. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	encrypters map[string]Encrypter
}

// NewRegistry creates a registry holding encs.
func NewRegistry(encs ...Encrypter) (*Registry, error) {
	r := &Registry{encrypters: make(map[string]Encrypter, len(encs))}
	for _, e := range encs {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds e under e.Name(), replacing any encrypter with the same name.
func (r *Registry) Register(e Encrypter) error {
	if e == nil {
		return errors.New("encrypter cannot be nil")
	}
	name := e.Name()
	if name == "" {
		return errors.New("encrypter name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encrypters == nil {
		r.encrypters = make(map[string]Encrypter)
	}
	r.encrypters[name] = e
	return nil
}

// Get returns the encrypter registered under name.
func (r *Registry) Get(name string) (Encrypter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encrypters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncrypter, name)
	}
	return e, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.encrypters))
	for name := range r.encrypters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
