// Package crypto bundles the primitives the IAM core consumes as
// black-box utilities: bcrypt password hashing, HMAC-SHA256 signing
// and an envelope encryption keyring with key-id rotation.
package crypto

import (
	"errors"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinCost     = 4
	MaxCost     = 31
	DefaultCost = 12

	// MaxPasswordLength guards against hashing attacker-sized inputs.
	MaxPasswordLength = 128

	// minEntropyBits is the strength floor for ValidatePasswordStrength.
	minEntropyBits = 60
)

type hashOptions struct {
	cost int
}

// HashOption configures HashPassword.
type HashOption func(*hashOptions)

// WithCost sets the bcrypt cost factor. Values outside [MinCost,
// MaxCost] keep the default.
func WithCost(cost int) HashOption {
	return func(o *hashOptions) {
		if cost >= MinCost && cost <= MaxCost {
			o.cost = cost
		}
	}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, opts ...HashOption) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password must not be empty")
	}
	if len(password) > MaxPasswordLength {
		return "", errors.New("password too long")
	}

	options := &hashOptions{cost: DefaultCost}
	for _, opt := range opts {
		opt(options)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), options.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword checks password against its stored bcrypt hash. The
// comparison is constant time with respect to the hash contents.
func ComparePassword(hashedPassword, password string) error {
	if len(hashedPassword) == 0 {
		return errors.New("hashed password must not be empty")
	}
	if len(password) == 0 {
		return errors.New("password must not be empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePasswordStrength rejects passwords below the entropy floor.
func ValidatePasswordStrength(password string) error {
	return passwordvalidator.Validate(password, minEntropyBits)
}
