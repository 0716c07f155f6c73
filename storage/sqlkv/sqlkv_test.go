package sqlkv

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, "")
	require.NoError(t, err)
	return s, mock
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(nil, "t")
	assert.Error(t, err)

	_, err = New(db, "keys; DROP TABLE users")
	assert.Error(t, err)

	s, err := New(db, "custom_table")
	require.NoError(t, err)
	assert.Equal(t, "custom_table", s.table)
}

func TestEnsureTable(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS walletkeys_storage`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeys(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT storage_key FROM walletkeys_storage ORDER BY storage_key`)).
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("stellarkeys:a").AddRow("theme"))

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stellarkeys:a", "theme"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM walletkeys_storage WHERE storage_key = $1`)).
			WithArgs("stellarkeys:a").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"id":"a"}`)))

		v, err := s.Get(context.Background(), "stellarkeys:a")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"a"}`), v)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM walletkeys_storage WHERE storage_key = $1`)).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		_, err := s.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, keystore.ErrStorageKeyNotFound)
	})

	t.Run("db error passes through", func(t *testing.T) {
		s, mock := setupMock(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM walletkeys_storage`)).
			WillReturnError(boom)

		_, err := s.Get(context.Background(), "a")
		assert.ErrorIs(t, err, boom)
	})
}

func TestSetAndRemove(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO walletkeys_storage (storage_key, value) VALUES ($1, $2)`)).
		WithArgs("stellarkeys:a", []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM walletkeys_storage WHERE storage_key = $1`)).
		WithArgs("stellarkeys:a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Set(context.Background(), "stellarkeys:a", []byte("v")))
	require.NoError(t, s.Remove(context.Background(), "stellarkeys:a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalStorageKeyStoreOverSQL(t *testing.T) {
	s, mock := setupMock(t)
	ks, err := keystore.NewKeyStore("localstorage", keystore.Options{Storage: s})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM walletkeys_storage WHERE storage_key = $1`)).
		WithArgs("stellarkeys:absent").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := ks.LoadKey(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
