//go:build integration

package firestorekv_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joncooperworks/walletkeys/crypto/keystore"
	"github.com/joncooperworks/walletkeys/storage/firestorekv"
)

// setupSuite starts a Firestore emulator and returns a Storage over a fresh collection.
func setupSuite(t *testing.T) (context.Context, *firestorekv.Storage) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	const projectID = "test-project-walletkeys"

	firestoreConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(context.Background(), projectID, firestoreConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	return ctx, firestorekv.New(fsClient, "walletkeys-"+t.Name(), zap.NewNop())
}

func TestFirestoreStorage_Integration(t *testing.T) {
	ctx, s := setupSuite(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, keystore.ErrStorageKeyNotFound)

	require.NoError(t, s.Set(ctx, "stellarkeys:a", []byte(`{"id":"a"}`)))
	require.NoError(t, s.Set(ctx, "theme", []byte("dark")))

	v, err := s.Get(ctx, "stellarkeys:a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"a"}`), v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"stellarkeys:a", "theme"}, keys)

	require.NoError(t, s.Remove(ctx, "stellarkeys:a"))
	require.NoError(t, s.Remove(ctx, "stellarkeys:a"))
	_, err = s.Get(ctx, "stellarkeys:a")
	assert.ErrorIs(t, err, keystore.ErrStorageKeyNotFound)
}

func TestExtensionKeyStoreOverFirestore_Integration(t *testing.T) {
	ctx, s := setupSuite(t)

	ks, err := keystore.NewKeyStore("extension", keystore.Options{Storage: s, Namespace: "wallet"})
	require.NoError(t, err)

	ek := keystore.EncryptedKey{ID: "PURIFIER", EncryptedBlob: "blob", EncrypterName: "Scrypt", Salt: "salt"}
	meta, err := ks.StoreKeys(ctx, []keystore.EncryptedKey{ek})
	require.NoError(t, err)
	assert.Equal(t, []keystore.KeyMetadata{{ID: "PURIFIER"}}, meta)

	all, err := ks.LoadAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []keystore.EncryptedKey{ek}, all)
}
