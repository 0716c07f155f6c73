package keystore

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultNamespace prefixes records in a shared storage area when no
// namespace is configured.
const DefaultNamespace = "stellarkeys"

// NamespaceSeparator joins a namespace and a key id into a storage key.
// A namespace may not contain it.
const NamespaceSeparator = ":"

// ErrInvalidNamespace is returned for a namespace containing NamespaceSeparator.
var ErrInvalidNamespace = errors.New("invalid namespace")

// ValidateNamespace reports whether ns can be used as a namespace. The empty
// namespace is accepted and replaced by DefaultNamespace.
func ValidateNamespace(ns string) error {
	if strings.Contains(ns, NamespaceSeparator) {
		return fmt.Errorf("%w %q: must not contain %q", ErrInvalidNamespace, ns, NamespaceSeparator)
	}
	return nil
}

// Options configure a storage-backed KeyStore.
type Options struct {
	// Storage is the key-value area records are written to. Required.
	Storage Storage
	// Namespace separates this store's records from unrelated data sharing
	// the same Storage. Defaults to DefaultNamespace.
	Namespace string
	// Logger receives debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.Storage == nil {
		return o, errors.New("storage cannot be nil")
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if err := ValidateNamespace(o.Namespace); err != nil {
		return o, err
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}
