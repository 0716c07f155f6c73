// Package firestorekv provides a keystore.Storage backed by Google Cloud
// Firestore, storing each storage key as one document in a collection.
package firestorekv

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

// valueDocument is the structure stored in each Firestore document.
type valueDocument struct {
	Value []byte `firestore:"value"`
}

// Storage is a keystore.Storage over one Firestore collection.
type Storage struct {
	collection *firestore.CollectionRef
	logger     *zap.Logger
}

// New creates a Firestore-backed storage area.
func New(client *firestore.Client, collectionName string, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		collection: client.Collection(collectionName),
		logger:     logger.With(zap.String("component", "firestore_storage"), zap.String("collection", collectionName)),
	}
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	iter := s.collection.DocumentRefs(ctx)
	keys := []string{}
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		keys = append(keys, ref.ID)
	}
	return keys, nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.collection.Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Debug("document not found", zap.String("key", key))
			return nil, keystore.ErrStorageKeyNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}

	var doc valueDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", key, err)
	}
	return doc.Value, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.collection.Doc(key).Set(ctx, valueDocument{Value: value}); err != nil {
		s.logger.Error("failed to store document", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to store document %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	if _, err := s.collection.Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	return nil
}
