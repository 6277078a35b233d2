package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	t.Run("code is preserved through wrapping", func(t *testing.T) {
		err := fmt.Errorf("execute command: %w", NotFound("user 42 not found"))
		if !IsCode(err, CodeNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", ErrorCode(err))
		}
		if IsCode(err, CodeAlreadyExists) {
			t.Error("should not match ALREADY_EXISTS")
		}
	})

	t.Run("errors.Is matches by code", func(t *testing.T) {
		err := ConcurrencyConflict("user-1", 3, 4)
		if !errors.Is(err, &Error{Code: CodeConcurrencyConflict}) {
			t.Error("expected match on code")
		}
		if errors.Is(err, &Error{Code: CodeNotFound}) {
			t.Error("unexpected match on different code")
		}
	})

	t.Run("unclassified errors map to INTERNAL", func(t *testing.T) {
		if got := ErrorCode(errors.New("boom")); got != CodeInternal {
			t.Errorf("expected INTERNAL, got %v", got)
		}
		if got := ErrorCode(nil); got != "" {
			t.Errorf("expected empty code for nil, got %v", got)
		}
	})

	t.Run("retryable flag", func(t *testing.T) {
		transient := RetryableInternal(errors.New("connection reset"), "query events")
		if !IsRetryable(transient) {
			t.Error("expected retryable")
		}
		permanent := Internal(errors.New("corrupt payload"), "decode")
		if IsRetryable(permanent) {
			t.Error("expected non-retryable")
		}
		if IsRetryable(errors.New("plain")) {
			t.Error("plain errors are not retryable")
		}
	})

	t.Run("validation detail is rendered", func(t *testing.T) {
		err := ValidationFailed("invalid command",
			FieldError{Field: "email", Code: "invalid", Message: "not an email address"},
			FieldError{Field: "username", Code: "required", Message: "must not be empty"},
		)
		msg := err.Error()
		for _, want := range []string{"VALIDATION_FAILED", "email", "username"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message %q missing %q", msg, want)
			}
		}
	})

	t.Run("internal keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Internal(cause, "append events")
		if !errors.Is(err, cause) {
			t.Error("cause not reachable through Unwrap")
		}
	})
}
