//go:build !darwin && !windows
// +build !darwin,!windows

package keystore

import "github.com/99designs/keyring"

// defaultKeyringBackends prefers Secret Service, then the kernel keyring and
// pass, falling back to an encrypted file.
func defaultKeyringBackends() []keyring.BackendType {
	return []keyring.BackendType{
		keyring.SecretServiceBackend,
		keyring.KeyCtlBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
}
