package keystore

import (
	"context"
	"sort"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringStorage(t *testing.T) {
	ctx := context.Background()
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "preexisting", Data: []byte("x")}})
	s := NewKeyringStorage(ring)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrStorageKeyNotFound)

	require.NoError(t, s.Set(ctx, "stellarkeys:a", []byte(`{"id":"a"}`)))
	v, err := s.Get(ctx, "stellarkeys:a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"a"}`), v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"preexisting", "stellarkeys:a"}, keys)

	require.NoError(t, s.Remove(ctx, "stellarkeys:a"))
	require.NoError(t, s.Remove(ctx, "stellarkeys:a"))
	_, err = s.Get(ctx, "stellarkeys:a")
	assert.ErrorIs(t, err, ErrStorageKeyNotFound)
}

func TestKeyStoresOverKeyring(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{"localstorage", "extension"} {
		t.Run(backend, func(t *testing.T) {
			storage := NewKeyringStorage(keyring.NewArrayKeyring(nil))
			ks, err := NewKeyStore(backend, Options{Storage: storage})
			require.NoError(t, err)

			_, err = ks.StoreKeys(ctx, []EncryptedKey{encryptedKey("a"), encryptedKey("b")})
			require.NoError(t, err)
			_, err = ks.RemoveKey(ctx, "a")
			require.NoError(t, err)

			all, err := ks.LoadAllKeys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []EncryptedKey{encryptedKey("b")}, all)
		})
	}
}

func TestOpenKeyringStorageFileBackend(t *testing.T) {
	ctx := context.Background()
	s, err := OpenKeyringStorage(KeyringConfig{
		ServiceName:     "walletkeys-test",
		AllowedBackends: []string{string(keyring.FileBackend)},
		FileDir:         t.TempDir(),
		FilePassword:    "test-password",
	})
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestDefaultKeyringBackends(t *testing.T) {
	backends := defaultKeyringBackends()
	require.NotEmpty(t, backends)
	assert.Equal(t, keyring.FileBackend, backends[len(backends)-1], "encrypted file is the last resort")
}

func TestKeyringBackendsWithoutFilePassword(t *testing.T) {
	backends, err := keyringBackends(KeyringConfig{})
	require.NoError(t, err)
	assert.NotContains(t, backends, keyring.FileBackend)

	backends, err = keyringBackends(KeyringConfig{FilePassword: "pw"})
	require.NoError(t, err)
	assert.Contains(t, backends, keyring.FileBackend)

	backends, err = keyringBackends(KeyringConfig{AllowedBackends: []string{"pass", "file"}})
	require.NoError(t, err)
	assert.Equal(t, []keyring.BackendType{keyring.PassBackend}, backends)

	_, err = OpenKeyringStorage(KeyringConfig{
		ServiceName:     "walletkeys-test",
		AllowedBackends: []string{string(keyring.FileBackend)},
		FileDir:         t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrKeyringPassword)
}
