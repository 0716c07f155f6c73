package keymanager_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joncooperworks/walletkeys/crypto"
	"github.com/joncooperworks/walletkeys/crypto/encrypter"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
	"github.com/joncooperworks/walletkeys/keymanager"
)

var testParams = crypto.ScryptParams{N: 1024, R: 8, P: 1}

func purifier() keystore.Key {
	return keystore.Key{
		ID:         "PURIFIER",
		Type:       keystore.KeyTypePlaintext,
		PublicKey:  "AVACYN",
		PrivateKey: "ARCHANGEL",
	}
}

func newManager(t *testing.T, store keystore.KeyStore, opts ...keymanager.Option) *keymanager.KeyManager {
	t.Helper()
	if store == nil {
		store = keystore.NewMemoryKeyStore()
	}
	opts = append([]keymanager.Option{
		keymanager.WithEncrypters(encrypter.NewScrypt(encrypter.WithScryptParams(testParams)), encrypter.NewIdentity()),
	}, opts...)
	m, err := keymanager.New(store, opts...)
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := keymanager.New(nil)
		assert.Error(t, err)
	})

	t.Run("identity by default", func(t *testing.T) {
		m, err := keymanager.New(keystore.NewMemoryKeyStore())
		require.NoError(t, err)
		assert.Equal(t, []string{encrypter.IdentityName}, m.Encrypters())
		assert.Equal(t, encrypter.IdentityName, m.DefaultEncrypter())
	})

	t.Run("first encrypter is default", func(t *testing.T) {
		m := newManager(t, nil)
		assert.Equal(t, encrypter.ScryptName, m.DefaultEncrypter())
		assert.Equal(t, []string{encrypter.IdentityName, encrypter.ScryptName}, m.Encrypters())
	})

	t.Run("explicit default", func(t *testing.T) {
		m := newManager(t, nil, keymanager.WithDefaultEncrypter(encrypter.IdentityName))
		assert.Equal(t, encrypter.IdentityName, m.DefaultEncrypter())
	})

	t.Run("unregistered default", func(t *testing.T) {
		_, err := keymanager.New(keystore.NewMemoryKeyStore(), keymanager.WithDefaultEncrypter("Argon2"))
		assert.ErrorIs(t, err, keymanager.ErrUnknownEncrypter)
	})
}

func TestKeyManager_StoreLoadRemove(t *testing.T) {
	backends := map[string]func(t *testing.T) keystore.KeyStore{
		"memory": func(t *testing.T) keystore.KeyStore { return keystore.NewMemoryKeyStore() },
		"localstorage": func(t *testing.T) keystore.KeyStore {
			ks, err := keystore.NewKeyStore("localstorage", keystore.Options{Storage: keystore.NewMapStorage()})
			require.NoError(t, err)
			return ks
		},
		"extension": func(t *testing.T) keystore.KeyStore {
			ks, err := keystore.NewKeyStore("extension", keystore.Options{Storage: keystore.NewMapStorage()})
			require.NoError(t, err)
			return ks
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, newStore(t))

			meta, err := m.StoreKey(ctx, purifier(), "pw", encrypter.ScryptName)
			require.NoError(t, err)
			assert.Equal(t, keystore.KeyMetadata{ID: "PURIFIER"}, meta)

			list, err := m.ListKeys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []keystore.KeyMetadata{{ID: "PURIFIER"}}, list)

			got, err := m.LoadKey(ctx, "PURIFIER", "pw")
			require.NoError(t, err)
			assert.Equal(t, purifier(), got)

			_, err = m.LoadKey(ctx, "PURIFIER", "not pw")
			assert.ErrorIs(t, err, encrypter.ErrDecryption)

			removed, err := m.RemoveKey(ctx, "PURIFIER")
			require.NoError(t, err)
			assert.Equal(t, keystore.KeyMetadata{ID: "PURIFIER"}, removed)

			_, err = m.LoadKey(ctx, "PURIFIER", "pw")
			assert.ErrorIs(t, err, keymanager.ErrKeyNotFound)

			removed, err = m.RemoveKey(ctx, "nonexistent")
			require.NoError(t, err)
			assert.Equal(t, keystore.KeyMetadata{ID: "nonexistent"}, removed)

			list, err = m.ListKeys(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestKeyManager_StoreKey_Encrypters(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryKeyStore()
	m := newManager(t, store)

	_, err := m.StoreKey(ctx, purifier(), "pw", "Argon2")
	assert.ErrorIs(t, err, keymanager.ErrUnknownEncrypter)
	list, err := m.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is stored for an unknown encrypter")

	_, err = m.StoreKey(ctx, purifier(), "pw", "")
	require.NoError(t, err)
	ek, found, err := store.LoadKey(ctx, "PURIFIER")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, encrypter.ScryptName, ek.EncrypterName, "empty name selects the default")
	assert.NotContains(t, ek.EncryptedBlob, "ARCHANGEL")
}

func TestKeyManager_MixedEncrypters(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)

	plain := keystore.Key{ID: "X", Type: keystore.KeyTypePlaintext, PublicKey: "A", PrivateKey: "B"}
	_, err := m.StoreKey(ctx, plain, "", encrypter.IdentityName)
	require.NoError(t, err)
	_, err = m.StoreKey(ctx, purifier(), "pw", encrypter.ScryptName)
	require.NoError(t, err)

	got, err := m.LoadKey(ctx, "X", "anything")
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	got, err = m.LoadKey(ctx, "PURIFIER", "pw")
	require.NoError(t, err)
	assert.Equal(t, purifier(), got)

	list, err := m.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []keystore.KeyMetadata{{ID: "X"}, {ID: "PURIFIER"}}, list)
}

func TestKeyManager_LoadKey_UnknownEncrypter(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryKeyStore()
	_, err := store.StoreKeys(ctx, []keystore.EncryptedKey{
		{ID: "legacy", EncryptedBlob: "blob", EncrypterName: "Argon2", Salt: "salt"},
	})
	require.NoError(t, err)

	m := newManager(t, store)

	_, err = m.LoadKey(ctx, "legacy", "pw")
	assert.ErrorIs(t, err, keymanager.ErrUnknownEncrypter)

	list, err := m.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []keystore.KeyMetadata{{ID: "legacy"}}, list)
}

func TestKeyManager_NotConfigured(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &keystore.MemoryKeyStore{})

	_, err := m.StoreKey(ctx, purifier(), "pw", "")
	assert.ErrorIs(t, err, keystore.ErrNotConfigured)
	_, err = m.LoadKey(ctx, "PURIFIER", "pw")
	assert.ErrorIs(t, err, keystore.ErrNotConfigured)
	_, err = m.ListKeys(ctx)
	assert.ErrorIs(t, err, keystore.ErrNotConfigured)
	_, err = m.RemoveKey(ctx, "PURIFIER")
	assert.ErrorIs(t, err, keystore.ErrNotConfigured)
}

type failingStorage struct {
	err error
}

func (f failingStorage) Keys(context.Context) ([]string, error) { return nil, f.err }
func (f failingStorage) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStorage) Set(context.Context, string, []byte) error { return f.err }
func (f failingStorage) Remove(context.Context, string) error { return f.err }

func TestKeyManager_BackendErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	backendErr := errors.New("disk on fire")
	ks, err := keystore.NewKeyStore("localstorage", keystore.Options{Storage: failingStorage{err: backendErr}})
	require.NoError(t, err)
	m := newManager(t, ks)

	_, err = m.StoreKey(ctx, purifier(), "pw", "")
	assert.ErrorIs(t, err, backendErr)
	_, err = m.LoadKey(ctx, "PURIFIER", "pw")
	assert.ErrorIs(t, err, backendErr)
	_, err = m.ListKeys(ctx)
	assert.ErrorIs(t, err, backendErr)
}

func TestKeyManager_ChangePassword(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)

	second := keystore.Key{ID: "second", Type: keystore.KeyTypeLedger, PublicKey: "GPUB", Path: "m/44'/148'/0'"}
	_, err := m.StoreKey(ctx, purifier(), "old", encrypter.ScryptName)
	require.NoError(t, err)
	_, err = m.StoreKey(ctx, second, "old", encrypter.ScryptName)
	require.NoError(t, err)

	meta, err := m.ChangePassword(ctx, "old", "new")
	require.NoError(t, err)
	assert.ElementsMatch(t, []keystore.KeyMetadata{{ID: "PURIFIER"}, {ID: "second"}}, meta)

	_, err = m.LoadKey(ctx, "PURIFIER", "old")
	assert.ErrorIs(t, err, encrypter.ErrDecryption)

	got, err := m.LoadKey(ctx, "PURIFIER", "new")
	require.NoError(t, err)
	assert.Equal(t, purifier(), got)
	got, err = m.LoadKey(ctx, "second", "new")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestKeyManager_ChangePassword_WrongPasswordWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryKeyStore()
	m := newManager(t, store)

	_, err := m.StoreKey(ctx, purifier(), "pw", encrypter.ScryptName)
	require.NoError(t, err)
	before, err := store.LoadAllKeys(ctx)
	require.NoError(t, err)

	_, err = m.ChangePassword(ctx, "wrong", "new")
	assert.ErrorIs(t, err, encrypter.ErrDecryption)

	after, err := store.LoadAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKeyManager_ChangePassword_Empty(t *testing.T) {
	m := newManager(t, nil)

	meta, err := m.ChangePassword(context.Background(), "old", "new")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestKeyManager_LogsOmitSecrets(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	m := newManager(t, nil, keymanager.WithLogger(zap.New(core)))

	_, err := m.StoreKey(ctx, purifier(), "hunter2", "")
	require.NoError(t, err)
	_, err = m.LoadKey(ctx, "PURIFIER", "wrong")
	require.Error(t, err)
	_, err = m.RemoveKey(ctx, "PURIFIER")
	require.NoError(t, err)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			s, _ := v.(string)
			assert.False(t, strings.Contains(s, "hunter2") || strings.Contains(s, "ARCHANGEL"), "field %s leaks a secret", k)
		}
	}
	assert.Equal(t, 1, logs.FilterMessage("failed to decrypt key").Len())
}
