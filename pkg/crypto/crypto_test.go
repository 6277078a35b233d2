package crypto_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := crypto.HashPassword("correct horse battery staple", crypto.WithCost(crypto.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals plaintext")
	}
	if err := crypto.ComparePassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("matching password rejected: %v", err)
	}
	if err := crypto.ComparePassword(hash, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordRejectsBadInput(t *testing.T) {
	if _, err := crypto.HashPassword(""); err == nil {
		t.Error("empty password accepted")
	}
	long := make([]byte, crypto.MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := crypto.HashPassword(string(long)); err == nil {
		t.Error("oversized password accepted")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	if err := crypto.ValidatePasswordStrength("password1"); err == nil {
		t.Error("weak password accepted")
	}
	if err := crypto.ValidatePasswordStrength("mN3!pQ9$xR2&vT7*wK4#"); err != nil {
		t.Errorf("strong password rejected: %v", err)
	}
}

func TestHMACSignAndVerify(t *testing.T) {
	data := []byte("the signed payload")
	key := []byte("signing-key")

	signature := crypto.HMACSign(data, key)
	if !crypto.HMACVerify(data, signature, key) {
		t.Error("valid signature rejected")
	}
	if crypto.HMACVerify(data, signature, []byte("other-key")) {
		t.Error("signature verified under the wrong key")
	}
	if crypto.HMACVerify([]byte("tampered"), signature, key) {
		t.Error("signature verified for different data")
	}
}

func testKey(fill byte) string {
	raw := bytes.Repeat([]byte{fill}, 32)
	return base64.URLEncoding.EncodeToString(raw)
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring, err := crypto.NewKeyring("k1", map[string]string{"k1": testKey(1)})
	if err != nil {
		t.Fatal(err)
	}
	defer keyring.Close()
	ctx := context.Background()

	plaintext := []byte{0x00, 0xff, 0x10, 0x80, 0x7f}
	envelope, err := keyring.Encrypt(ctx, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if envelope.KeyID != "k1" {
		t.Errorf("key id = %q", envelope.KeyID)
	}

	decrypted, err := keyring.Decrypt(ctx, envelope)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip = %x, want %x", decrypted, plaintext)
	}
}

func TestKeyringTamperDetection(t *testing.T) {
	keyring, err := crypto.NewKeyring("k1", map[string]string{"k1": testKey(1)})
	if err != nil {
		t.Fatal(err)
	}
	defer keyring.Close()
	ctx := context.Background()

	envelope, err := keyring.Encrypt(ctx, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	envelope.Ciphertext[len(envelope.Ciphertext)-1] ^= 0x01
	if _, err := keyring.Decrypt(ctx, envelope); err == nil {
		t.Error("tampered ciphertext decrypted")
	}
}

func TestKeyringRotation(t *testing.T) {
	old, err := crypto.NewKeyring("k1", map[string]string{"k1": testKey(1)})
	if err != nil {
		t.Fatal(err)
	}
	defer old.Close()
	ctx := context.Background()

	envelope, err := old.Encrypt(ctx, []byte("sealed before rotation"))
	if err != nil {
		t.Fatal(err)
	}

	// After rotation the old key stays in the catalog for decryption.
	rotated, err := crypto.NewKeyring("k2", map[string]string{"k1": testKey(1), "k2": testKey(2)})
	if err != nil {
		t.Fatal(err)
	}
	defer rotated.Close()

	decrypted, err := rotated.Decrypt(ctx, envelope)
	if err != nil {
		t.Fatal(err)
	}
	if string(decrypted) != "sealed before rotation" {
		t.Errorf("decrypted = %q", decrypted)
	}

	fresh, err := rotated.Encrypt(ctx, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if fresh.KeyID != "k2" {
		t.Errorf("new ciphertext uses key %q, want k2", fresh.KeyID)
	}
}

func TestKeyringValidation(t *testing.T) {
	tests := []struct {
		name     string
		activeID string
		keys     map[string]string
	}{
		{name: "empty catalog", activeID: "k1", keys: nil},
		{name: "active key missing", activeID: "k2", keys: map[string]string{"k1": testKey(1)}},
		{name: "malformed key", activeID: "k1", keys: map[string]string{"k1": "not-base64!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.NewKeyring(tt.activeID, tt.keys)
			if !domain.IsCode(err, domain.CodeValidationFailed) {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
		})
	}
}

func TestDecryptUnknownKey(t *testing.T) {
	keyring, err := crypto.NewKeyring("k1", map[string]string{"k1": testKey(1)})
	if err != nil {
		t.Fatal(err)
	}
	defer keyring.Close()

	_, err = keyring.Decrypt(context.Background(), &crypto.Envelope{KeyID: "gone", Ciphertext: []byte{1}})
	if !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
