package encrypter

import (
	"context"

	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

const (
	// IdentityName is the name of the Identity encrypter.
	IdentityName = "Identity"
	// IdentitySalt is the salt recorded on every Identity record.
	IdentitySalt = "identity"
)

// Identity stores the secret fields as plaintext JSON. It ignores the
// password. Use it only where keys may be kept unencrypted, such as
// ephemeral in-memory stores and tests.
type Identity struct{}

// NewIdentity creates an Identity encrypter.
func NewIdentity() Identity { return Identity{} }

func (Identity) Name() string { return IdentityName }

func (Identity) EncryptKey(ctx context.Context, key keystore.Key, password string) (keystore.EncryptedKey, error) {
	payload, err := marshalSecrets(key)
	if err != nil {
		return keystore.EncryptedKey{}, err
	}
	return keystore.EncryptedKey{
		ID:            key.ID,
		EncryptedBlob: string(payload),
		EncrypterName: IdentityName,
		Salt:          IdentitySalt,
	}, nil
}

func (Identity) DecryptKey(ctx context.Context, encryptedKey keystore.EncryptedKey, password string) (keystore.Key, error) {
	if encryptedKey.EncrypterName != IdentityName {
		return keystore.Key{}, ErrDecryption
	}
	return unmarshalSecrets(encryptedKey.ID, []byte(encryptedKey.EncryptedBlob))
}
