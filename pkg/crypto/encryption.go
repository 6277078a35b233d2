package crypto

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"
	"gocloud.dev/secrets/localsecrets"

	"github.com/identra/identra/pkg/domain"
)

// Envelope is a ciphertext tagged with the id of the key that produced
// it. Storing the key id next to the ciphertext lets the keyring rotate
// keys without re-encrypting everything at once.
type Envelope struct {
	KeyID      string `json:"keyId"`
	Ciphertext []byte `json:"ciphertext"`
}

// Keyring encrypts with one active key and decrypts with any key it
// knows. Keys are 32-byte AES keys, configured base64-encoded.
type Keyring struct {
	keepers  map[string]*secrets.Keeper
	activeID string
}

// NewKeyring builds a keyring from a key-id catalog. activeKeyID must
// name one of the keys.
func NewKeyring(activeKeyID string, keys map[string]string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, domain.ValidationFailed("encryption keyring needs at least one key")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, domain.ValidationFailed(
			fmt.Sprintf("active encryption key %q is not in the key catalog", activeKeyID))
	}

	keepers := make(map[string]*secrets.Keeper, len(keys))
	for id, encoded := range keys {
		key, err := localsecrets.Base64Key(encoded)
		if err != nil {
			return nil, domain.ValidationFailed(
				fmt.Sprintf("encryption key %q is not a base64 32-byte key", id))
		}
		keepers[id] = localsecrets.NewKeeper(key)
	}
	return &Keyring{keepers: keepers, activeID: activeKeyID}, nil
}

// ActiveKeyID returns the id new ciphertexts are produced with.
func (k *Keyring) ActiveKeyID() string {
	return k.activeID
}

// Encrypt seals plaintext under the active key.
func (k *Keyring) Encrypt(ctx context.Context, plaintext []byte) (*Envelope, error) {
	ciphertext, err := k.keepers[k.activeID].Encrypt(ctx, plaintext)
	if err != nil {
		return nil, domain.Internal(err, "encrypt")
	}
	return &Envelope{KeyID: k.activeID, Ciphertext: ciphertext}, nil
}

// Decrypt opens an envelope with the key it names. Tampered ciphertext
// or an unknown key id fails.
func (k *Keyring) Decrypt(ctx context.Context, envelope *Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, domain.ValidationFailed("envelope must not be nil")
	}
	keeper, ok := k.keepers[envelope.KeyID]
	if !ok {
		return nil, domain.NotFound(fmt.Sprintf("encryption key %q is not in the key catalog", envelope.KeyID))
	}
	plaintext, err := keeper.Decrypt(ctx, envelope.Ciphertext)
	if err != nil {
		return nil, domain.Internal(err, "decrypt")
	}
	return plaintext, nil
}

// Close releases all keepers.
func (k *Keyring) Close() error {
	var firstErr error
	for _, keeper := range k.keepers {
		if err := keeper.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
