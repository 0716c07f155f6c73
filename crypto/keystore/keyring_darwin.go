//go:build darwin
// +build darwin

package keystore

import "github.com/99designs/keyring"

// defaultKeyringBackends prefers the macOS Keychain, falling back to an
// encrypted file.
func defaultKeyringBackends() []keyring.BackendType {
	return []keyring.BackendType{keyring.KeychainBackend, keyring.FileBackend}
}
