package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error for machine handling. Codes are part of the
// public contract and surface unchanged to callers.
type Code string

const (
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeNotFound            Code = "NOT_FOUND"
	CodeNotActive           Code = "NOT_ACTIVE"
	CodeNoChanges           Code = "NO_CHANGES"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeFeatureDisabled     Code = "FEATURE_DISABLED"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
	CodeInternal            Code = "INTERNAL"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	// Field is the input field name as the caller supplied it.
	Field string

	// Code is a short machine token such as "required" or "invalid".
	Code string

	// Message is a human readable description.
	Message string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// Error carries a machine-readable code, optional field-level detail and
// an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError

	parent    error
	retryable bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.String()
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.parent != nil {
		b.WriteString(": ")
		b.WriteString(e.parent.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.parent
}

// Is matches another *Error by code, ignoring message and detail, so that
// errors.Is(err, &Error{Code: CodeNotFound}) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	if t.Message != "" && t.Message != e.Message {
		return false
	}
	return true
}

// Retryable reports whether the caller may retry the failed operation
// without changing its input. Only transient I/O errors qualify.
func (e *Error) Retryable() bool {
	return e.retryable
}

// ValidationFailed reports invalid client input with field-level detail.
func ValidationFailed(message string, fields ...FieldError) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Fields: fields}
}

// AlreadyExists reports a create targeting an aggregate or natural key
// that is already taken.
func AlreadyExists(message string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: message}
}

// NotFound reports an operation on an aggregate without events.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// NotActive reports a mutating operation on an aggregate whose state
// forbids it.
func NotActive(message string) *Error {
	return &Error{Code: CodeNotActive, Message: message}
}

// NoChanges reports an update that would not change anything.
func NoChanges(message string) *Error {
	return &Error{Code: CodeNoChanges, Message: message}
}

// ConcurrencyConflict reports an optimistic version mismatch. The caller
// may re-read and retry at its own discretion.
func ConcurrencyConflict(aggregateID string, expected, actual uint64) *Error {
	return &Error{
		Code:    CodeConcurrencyConflict,
		Message: fmt.Sprintf("aggregate %s changed: expected version %d, current %d", aggregateID, expected, actual),
	}
}

// PermissionDenied reports a failed authorization check.
func PermissionDenied(message string) *Error {
	return &Error{Code: CodePermissionDenied, Message: message}
}

// FeatureDisabled reports a disabled instance feature.
func FeatureDisabled(feature string) *Error {
	return &Error{Code: CodeFeatureDisabled, Message: fmt.Sprintf("feature %q is not enabled", feature)}
}

// QuotaExceeded reports an exhausted instance quota.
func QuotaExceeded(quota string) *Error {
	return &Error{Code: CodeQuotaExceeded, Message: fmt.Sprintf("quota %q exhausted", quota)}
}

// Internal wraps an unexpected error. The cause stays reachable through
// errors.Unwrap for logging; callers only see the code.
func Internal(parent error, message string) *Error {
	return &Error{Code: CodeInternal, Message: message, parent: parent}
}

// RetryableInternal wraps a transient I/O error (connection lost, timeout).
// Projection workers back off and retry these.
func RetryableInternal(parent error, message string) *Error {
	return &Error{Code: CodeInternal, Message: message, parent: parent, retryable: true}
}

// IsCode reports whether err or any error it wraps carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// ErrorCode extracts the machine code from err, defaulting to
// CodeInternal for unclassified errors and "" for nil.
func ErrorCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err is a transient error worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
