// Package sqlkv provides a keystore.Storage backed by a single SQL table.
//
// Statements use Postgres placeholders; open the *sql.DB with the
// github.com/lib/pq driver.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

// DefaultTable is used when no table name is given.
const DefaultTable = "walletkeys_storage"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Storage stores each storage key as one row.
type Storage struct {
	db    *sql.DB
	table string
}

// New creates a Storage over table. The table name must be a plain identifier.
func New(db *sql.DB, table string) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	return &Storage{db: db, table: table}, nil
}

// EnsureTable creates the backing table if it does not exist.
func (s *Storage) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		storage_key TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT storage_key FROM %s ORDER BY storage_key`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE storage_key = $1`, s.table), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, keystore.ErrStorageKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (storage_key, value) VALUES ($1, $2)
		ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value`, s.table),
		key, value,
	)
	return err
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE storage_key = $1`, s.table), key)
	return err
}
