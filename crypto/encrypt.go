// Package crypto provides the password-based primitives used to encrypt key
// material at rest: scrypt key derivation and NaCl secretbox authenticated
// encryption.
package crypto

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the size of a derived symmetric key in bytes.
	KeySize = 32
	// NonceSize is the size of a secretbox nonce in bytes.
	NonceSize = 24
	// SealVersion is the leading byte of every sealed payload.
	SealVersion byte = 1
)

var (
	// ErrAuthentication is returned by Open for any sealed payload that cannot
	// be authenticated under the given key, including truncated or malformed input.
	ErrAuthentication = errors.New("authentication failed")
	// ErrInvalidParams is returned by DeriveKey for unusable scrypt cost parameters.
	ErrInvalidParams = errors.New("invalid scrypt parameters")
)

// ScryptParams are the scrypt cost parameters.
type ScryptParams struct {
	N int `yaml:"n"`
	R int `yaml:"r"`
	P int `yaml:"p"`
}

// DefaultScryptParams are the cost parameters used when none are configured.
var DefaultScryptParams = ScryptParams{N: 16384, R: 8, P: 1}

// Validate reports whether the parameters are usable: N must be a power of
// two greater than one, r and p positive.
func (p ScryptParams) Validate() error {
	if p.N <= 1 || p.N&(p.N-1) != 0 || p.R <= 0 || p.P <= 0 {
		return fmt.Errorf("%w: N=%d r=%d p=%d", ErrInvalidParams, p.N, p.R, p.P)
	}
	return nil
}

// DeriveKey derives a symmetric key from password and salt.
// The result is deterministic for identical inputs.
func DeriveKey(password, salt []byte, params ScryptParams) (*[KeySize]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	derived, err := scrypt.Key(password, salt, params.N, params.R, params.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer zeroize(derived)

	var key [KeySize]byte
	copy(key[:], derived)
	return &key, nil
}

// Seal encrypts and authenticates plaintext under key.
// Wire format: [version:1][nonce:24][secretbox ciphertext+tag]
func Seal(key *[KeySize]byte, plaintext []byte, random io.Reader) ([]byte, error) {
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	if random == nil {
		return nil, errors.New("random source cannot be nil")
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+NonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, SealVersion)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

// Open authenticates and decrypts a payload produced by Seal.
func Open(key *[KeySize]byte, sealed []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrAuthentication
	}
	if len(sealed) < 1+NonceSize+secretbox.Overhead || sealed[0] != SealVersion {
		return nil, ErrAuthentication
	}

	var nonce [NonceSize]byte
	copy(nonce[:], sealed[1:1+NonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[1+NonceSize:], &nonce, key)
	if !ok {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
