package keystore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SerializedKeyStore runs at most one operation at a time against the
// wrapped store. Use it when several goroutines share a whole-document
// backend and must not lose each other's writes. It only coordinates callers
// that go through the same wrapper.
type SerializedKeyStore struct {
	inner KeyStore
	sem   *semaphore.Weighted
}

// Serialize wraps ks so that its operations never overlap.
func Serialize(ks KeyStore) *SerializedKeyStore {
	return &SerializedKeyStore{inner: ks, sem: semaphore.NewWeighted(1)}
}

// Unwrap returns the wrapped store.
func (s *SerializedKeyStore) Unwrap() KeyStore { return s.inner }

func (s *SerializedKeyStore) Name() string { return s.inner.Name() }

func (s *SerializedKeyStore) StoreKeys(ctx context.Context, keys []EncryptedKey) ([]KeyMetadata, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.StoreKeys(ctx, keys)
}

func (s *SerializedKeyStore) LoadAllKeys(ctx context.Context) ([]EncryptedKey, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.LoadAllKeys(ctx)
}

func (s *SerializedKeyStore) LoadKey(ctx context.Context, id string) (EncryptedKey, bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return EncryptedKey{}, false, err
	}
	defer s.sem.Release(1)
	return s.inner.LoadKey(ctx, id)
}

func (s *SerializedKeyStore) RemoveKey(ctx context.Context, id string) (KeyMetadata, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return KeyMetadata{}, err
	}
	defer s.sem.Release(1)
	return s.inner.RemoveKey(ctx, id)
}
