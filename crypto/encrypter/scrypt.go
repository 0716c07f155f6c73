package encrypter

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/joncooperworks/walletkeys/crypto"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

const (
	// ScryptName is the name of the Scrypt encrypter.
	ScryptName = "Scrypt"
	// SaltSize is the number of random bytes drawn for each salt.
	SaltSize = 32

	// paramsVersion leads a blob that records its own cost parameters:
	// [version:1][N:4][r:4][p:4][sealed payload].
	paramsVersion   byte = 2
	paramsHeaderLen      = 1 + 3*4

	// maxScryptMemory bounds the 128*N*r bytes scrypt allocates.
	maxScryptMemory = 1 << 30
	maxScryptP      = 16
)

// Scrypt encrypts the secret fields with a key derived from the password by
// scrypt, using a fresh random salt for every call, sealed with NaCl
// secretbox.
//
// EncryptedBlob is base64(2 || N || r || p || sealed), where sealed is the
// crypto.Seal output, and Salt is base64 of the raw salt bytes. Decryption
// uses the cost recorded on the blob, so records survive a change of the
// configured cost. Blobs that start with the seal version carry no header
// and are opened with the configured cost.
type Scrypt struct {
	params crypto.ScryptParams
	random io.Reader
}

// ScryptOption configures a Scrypt encrypter.
type ScryptOption func(*Scrypt)

// WithScryptParams overrides the scrypt cost parameters.
func WithScryptParams(params crypto.ScryptParams) ScryptOption {
	return func(s *Scrypt) { s.params = params }
}

// WithRandom sets the source of salts and nonces. Defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) ScryptOption {
	return func(s *Scrypt) { s.random = r }
}

// NewScrypt creates a Scrypt encrypter.
func NewScrypt(opts ...ScryptOption) *Scrypt {
	s := &Scrypt{params: crypto.DefaultScryptParams, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scrypt) Name() string { return ScryptName }

func (s *Scrypt) EncryptKey(ctx context.Context, key keystore.Key, password string) (keystore.EncryptedKey, error) {
	if s.random == nil {
		return keystore.EncryptedKey{}, errors.New("random source cannot be nil")
	}

	if err := checkCost(s.params); err != nil {
		return keystore.EncryptedKey{}, err
	}

	payload, err := marshalSecrets(key)
	if err != nil {
		return keystore.EncryptedKey{}, err
	}
	defer crypto.ZeroizeBytes(payload)

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return keystore.EncryptedKey{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	derived, err := crypto.DeriveKey([]byte(password), salt, s.params)
	if err != nil {
		return keystore.EncryptedKey{}, err
	}
	defer crypto.Zeroize(derived)

	sealed, err := crypto.Seal(derived, payload, s.random)
	if err != nil {
		return keystore.EncryptedKey{}, fmt.Errorf("failed to encrypt key %s: %w", key.ID, err)
	}

	blob := make([]byte, paramsHeaderLen, paramsHeaderLen+len(sealed))
	blob[0] = paramsVersion
	binary.BigEndian.PutUint32(blob[1:5], uint32(s.params.N))
	binary.BigEndian.PutUint32(blob[5:9], uint32(s.params.R))
	binary.BigEndian.PutUint32(blob[9:13], uint32(s.params.P))
	blob = append(blob, sealed...)

	return keystore.EncryptedKey{
		ID:            key.ID,
		EncryptedBlob: base64.StdEncoding.EncodeToString(blob),
		EncrypterName: ScryptName,
		Salt:          base64.StdEncoding.EncodeToString(salt),
	}, nil
}

func (s *Scrypt) DecryptKey(ctx context.Context, encryptedKey keystore.EncryptedKey, password string) (keystore.Key, error) {
	// The key is derived before the payload is opened so that every failure
	// costs one derivation. A malformed header falls back to the configured
	// cost and fails after deriving.
	salt, saltErr := base64.StdEncoding.DecodeString(encryptedKey.Salt)
	if saltErr != nil {
		salt = []byte(encryptedKey.Salt)
	}
	blob, blobErr := base64.StdEncoding.DecodeString(encryptedKey.EncryptedBlob)
	params, sealed, headerErr := s.splitBlob(blob)

	derived, err := crypto.DeriveKey([]byte(password), salt, params)
	if err != nil {
		return keystore.Key{}, err
	}
	defer crypto.Zeroize(derived)

	plaintext, openErr := crypto.Open(derived, sealed)
	if saltErr != nil || blobErr != nil || headerErr != nil || openErr != nil || encryptedKey.EncrypterName != ScryptName {
		return keystore.Key{}, ErrDecryption
	}
	defer crypto.ZeroizeBytes(plaintext)

	return unmarshalSecrets(encryptedKey.ID, plaintext)
}

// splitBlob returns the cost parameters recorded on blob and the sealed
// payload that follows them.
func (s *Scrypt) splitBlob(blob []byte) (crypto.ScryptParams, []byte, error) {
	if len(blob) > 0 && blob[0] == crypto.SealVersion {
		return s.params, blob, nil
	}
	if len(blob) < paramsHeaderLen || blob[0] != paramsVersion {
		return s.params, nil, ErrDecryption
	}
	params := crypto.ScryptParams{
		N: int(binary.BigEndian.Uint32(blob[1:5])),
		R: int(binary.BigEndian.Uint32(blob[5:9])),
		P: int(binary.BigEndian.Uint32(blob[9:13])),
	}
	if checkCost(params) != nil {
		return s.params, nil, ErrDecryption
	}
	return params, blob[paramsHeaderLen:], nil
}

// checkCost rejects parameters that are invalid or too expensive to be
// recorded on a blob.
func checkCost(params crypto.ScryptParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if params.N > maxScryptMemory/128 || params.R > maxScryptMemory/128/params.N || params.P > maxScryptP {
		return fmt.Errorf("%w: cost exceeds limit", crypto.ErrInvalidParams)
	}
	return nil
}
