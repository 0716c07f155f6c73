package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joncooperworks/walletkeys/config"
	"github.com/joncooperworks/walletkeys/crypto/encrypter"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
	"github.com/joncooperworks/walletkeys/keymanager"
	"github.com/joncooperworks/walletkeys/plugin"
	"github.com/joncooperworks/walletkeys/storage/firestorekv"
	"github.com/joncooperworks/walletkeys/storage/sqlkv"
)

// app is the wired key manager plus everything that must be released after use.
type app struct {
	manager *keymanager.KeyManager
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, storage keystore.Storage, logger *zap.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	if storage == nil {
		storage, err = a.openStorage(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	ks, err := keystore.NewKeyStore(cfg.Backend, keystore.Options{
		Storage:   storage,
		Namespace: cfg.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s key store: %w", cfg.Backend, err)
	}

	encs := []encrypter.Encrypter{
		encrypter.NewScrypt(encrypter.WithScryptParams(cfg.Scrypt)),
		encrypter.NewIdentity(),
	}
	for _, path := range cfg.Plugins {
		p, err := plugin.LoadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		logger.Debug("loaded encrypter plugin", zap.String("path", path), zap.String("encrypter", p.Name()))
		encs = append(encs, p)
	}

	a.manager, err = keymanager.New(keystore.Serialize(ks),
		keymanager.WithEncrypters(encs...),
		keymanager.WithDefaultEncrypter(cfg.DefaultEncrypter),
		keymanager.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (keystore.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return keystore.NewMapStorage(), nil

	case config.StorageKeyring:
		return keystore.OpenKeyringStorage(cfg.KeyringOptions())

	case config.StorageSQL:
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		s, err := sqlkv.New(db, cfg.SQL.Table)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case config.StorageFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return firestorekv.New(client, cfg.Firestore.Collection, logger), nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
