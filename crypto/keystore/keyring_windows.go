//go:build windows
// +build windows

package keystore

import "github.com/99designs/keyring"

// defaultKeyringBackends prefers the Windows Credential Manager, falling back
// to an encrypted file.
func defaultKeyringBackends() []keyring.BackendType {
	return []keyring.BackendType{keyring.WinCredBackend, keyring.FileBackend}
}
