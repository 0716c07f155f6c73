// Package plugin loads encrypters implemented outside this module.
//
// A plugin is a compiled module that provides an Encrypter variant. Loaders
// are registered by type identifier ("wasm") so additional formats can be
// added without changing callers.
package plugin

import (
	"context"

	"github.com/joncooperworks/walletkeys/crypto/encrypter"
)

// Encrypter is an encrypter.Encrypter backed by a loaded plugin.
//
// Plugin encrypters hold runtime resources and must be closed when no longer
// needed.
type Encrypter interface {
	encrypter.Encrypter

	// Close releases the plugin runtime.
	Close(ctx context.Context) error
}

// Loader instantiates plugin encrypters from raw module bytes.
type Loader interface {
	// Load instantiates the module in data. name is used as the encrypter
	// name if the module does not report one.
	Load(ctx context.Context, data []byte, name string) (Encrypter, error)
}
