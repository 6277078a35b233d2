// Package validators checks command input fields and accumulates
// field-level errors. Command validators run before any event is read,
// so a failing command never touches the log.
package validators

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	"golang.org/x/text/language"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
)

// Field error codes. They surface inside domain.FieldError.Code.
const (
	CodeRequired = "required"
	CodeInvalid  = "invalid"
	CodeTooShort = "too_short"
	CodeTooLong  = "too_long"
	CodeTooWeak  = "too_weak"
)

// Result accumulates field errors across several checks.
type Result struct {
	fields []domain.FieldError
}

// Add records a failed check.
func (r *Result) Add(field, code, message string) *Result {
	r.fields = append(r.fields, domain.FieldError{Field: field, Code: code, Message: message})
	return r
}

// Valid reports whether no check failed.
func (r *Result) Valid() bool {
	return len(r.fields) == 0
}

// Err returns a VALIDATION_FAILED error carrying all accumulated
// fields, or nil when everything passed.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return domain.ValidationFailed("invalid input", r.fields...)
}

// Fields returns the accumulated field errors, nil when everything
// passed. Command registrations hand this to the pipeline, which wraps
// it into the VALIDATION_FAILED error itself.
func (r *Result) Fields() []domain.FieldError {
	if r.Valid() {
		return nil
	}
	return append([]domain.FieldError(nil), r.fields...)
}

// Required fails when value is empty.
func (r *Result) Required(field, value string) *Result {
	if value == "" {
		r.Add(field, CodeRequired, "must not be empty")
	}
	return r
}

// StringLength fails when value falls outside [min, max] bytes. A zero
// max means unbounded.
func (r *Result) StringLength(field, value string, min, max int) *Result {
	if len(value) < min {
		r.Add(field, CodeTooShort, fmt.Sprintf("must be at least %d characters", min))
	}
	if max > 0 && len(value) > max {
		r.Add(field, CodeTooLong, fmt.Sprintf("must be at most %d characters", max))
	}
	return r
}

// Email fails when value is empty or not an email address.
func (r *Result) Email(field, value string) *Result {
	if value == "" {
		return r.Add(field, CodeRequired, "must not be empty")
	}
	if !govalidator.IsEmail(value) {
		r.Add(field, CodeInvalid, "must be a valid email address")
	}
	return r
}

// Password fails when value is empty or below the entropy floor. The
// value never appears in the error.
func (r *Result) Password(field, value string) *Result {
	if value == "" {
		return r.Add(field, CodeRequired, "must not be empty")
	}
	if len(value) > crypto.MaxPasswordLength {
		return r.Add(field, CodeTooLong, fmt.Sprintf("must be at most %d characters", crypto.MaxPasswordLength))
	}
	if err := crypto.ValidatePasswordStrength(value); err != nil {
		r.Add(field, CodeTooWeak, "is too weak")
	}
	return r
}

// LanguageTag fails when value is not a well-formed BCP 47 tag. Empty
// values pass; pair with Required when the field is mandatory.
func (r *Result) LanguageTag(field, value string) *Result {
	if value == "" {
		return r
	}
	if _, err := language.Parse(value); err != nil {
		r.Add(field, CodeInvalid, fmt.Sprintf("%q is not a valid language tag", value))
	}
	return r
}
