package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// RandomToken returns n random bytes URL-safe base64 encoded, for
// authorization codes and similar single-use secrets. n must be at
// least 16 so callers cannot accidentally weaken a token.
func RandomToken(n int) (string, error) {
	if n < 16 {
		return "", errors.New("token must be at least 16 bytes")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
