package keystore

import (
	"fmt"
	"sort"
	"sync"
)

// KeyStoreFactory creates a configured KeyStore from Options.
//
// Factory functions are registered with RegisterKeyStore and are called when
// a backend of that name is requested.
type KeyStoreFactory func(opts Options) (KeyStore, error)

var (
	// registry stores keystore factories by backend name
	registry = make(map[string]KeyStoreFactory)
	// registryMu protects concurrent access to the registry
	registryMu sync.RWMutex
)

func init() {
	RegisterKeyStore("memory", func(Options) (KeyStore, error) {
		return NewMemoryKeyStore(), nil
	})
	RegisterKeyStore("localstorage", func(opts Options) (KeyStore, error) {
		ks := NewLocalStorageKeyStore()
		if err := ks.Configure(opts); err != nil {
			return nil, err
		}
		return ks, nil
	})
	RegisterKeyStore("extension", func(opts Options) (KeyStore, error) {
		ks := NewExtensionKeyStore()
		if err := ks.Configure(opts); err != nil {
			return nil, err
		}
		return ks, nil
	})
}

// RegisterKeyStore registers a keystore factory under a backend name.
// Registering an existing name replaces its factory.
//
// Example:
//
//	func init() {
//	    keystore.RegisterKeyStore("vault", NewVaultKeyStore)
//	}
func RegisterKeyStore(name string, factory KeyStoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// GetKeyStoreFactory retrieves the factory registered under name.
func GetKeyStoreFactory(name string) (KeyStoreFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no keystore factory registered for backend: %s", name)
	}
	return factory, nil
}

// ListRegisteredKeyStores returns all registered backend names, sorted.
func ListRegisteredKeyStores() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewKeyStore creates a configured KeyStore for the named backend.
func NewKeyStore(name string, opts Options) (KeyStore, error) {
	factory, err := GetKeyStoreFactory(name)
	if err != nil {
		return nil, err
	}
	ks, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s keystore: %w", name, err)
	}
	return ks, nil
}
