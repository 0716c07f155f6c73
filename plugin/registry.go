package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// LoaderFactory creates a Loader for one plugin type.
type LoaderFactory func() (Loader, error)

var (
	loaderRegistry   = make(map[string]LoaderFactory)
	loaderRegistryMu sync.RWMutex
)

// RegisterLoader registers a loader factory under a plugin type identifier
// such as "wasm". It is normally called from init.
func RegisterLoader(typeIdentifier string, factory LoaderFactory) {
	loaderRegistryMu.Lock()
	defer loaderRegistryMu.Unlock()
	loaderRegistry[typeIdentifier] = factory
}

// GetLoaderFactory returns the factory registered for typeIdentifier.
func GetLoaderFactory(typeIdentifier string) (LoaderFactory, error) {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	factory, ok := loaderRegistry[typeIdentifier]
	if !ok {
		return nil, fmt.Errorf("no loader factory registered for plugin type: %s", typeIdentifier)
	}
	return factory, nil
}

// ListRegisteredPluginTypes returns the registered type identifiers, sorted.
func ListRegisteredPluginTypes() []string {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	types := make([]string, 0, len(loaderRegistry))
	for typeIdentifier := range loaderRegistry {
		types = append(types, typeIdentifier)
	}
	sort.Strings(types)
	return types
}
