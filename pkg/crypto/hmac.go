package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSign returns the HMAC-SHA256 of data under key.
func HMACSign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACVerify reports whether signature is the HMAC-SHA256 of data under
// key, in constant time.
func HMACVerify(data, signature, key []byte) bool {
	return hmac.Equal(signature, HMACSign(data, key))
}
