package validators_test

import (
	"errors"
	"testing"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

func fieldCodes(t *testing.T, err error) map[string]string {
	t.Helper()
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("not a domain error: %v", err)
	}
	codes := make(map[string]string, len(domainErr.Fields))
	for _, f := range domainErr.Fields {
		codes[f.Field] = f.Code
	}
	return codes
}

func TestResultAccumulatesFields(t *testing.T) {
	var r validators.Result
	r.Required("username", "").
		Email("email", "not-an-email").
		StringLength("name", "x", 2, 10)

	err := r.Err()
	if !domain.IsCode(err, domain.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	codes := fieldCodes(t, err)
	if codes["username"] != validators.CodeRequired {
		t.Errorf("username code = %q", codes["username"])
	}
	if codes["email"] != validators.CodeInvalid {
		t.Errorf("email code = %q", codes["email"])
	}
	if codes["name"] != validators.CodeTooShort {
		t.Errorf("name code = %q", codes["name"])
	}
}

func TestResultValid(t *testing.T) {
	var r validators.Result
	r.Required("username", "alice").
		Email("email", "alice@example.com").
		StringLength("name", "Alice", 1, 100).
		LanguageTag("preferredLanguage", "de-CH")

	if !r.Valid() {
		t.Errorf("unexpected errors: %v", r.Err())
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		value string
		code  string
	}{
		{"alice@example.com", ""},
		{"a.b+tag@sub.example.org", ""},
		{"", validators.CodeRequired},
		{"missing-at.example.com", validators.CodeInvalid},
		{"spaces in@example.com", validators.CodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			var r validators.Result
			r.Email("email", tt.value)
			if tt.code == "" {
				if !r.Valid() {
					t.Errorf("rejected: %v", r.Err())
				}
				return
			}
			if codes := fieldCodes(t, r.Err()); codes["email"] != tt.code {
				t.Errorf("code = %q, want %q", codes["email"], tt.code)
			}
		})
	}
}

func TestStringLength(t *testing.T) {
	t.Run("unbounded max", func(t *testing.T) {
		var r validators.Result
		r.StringLength("description", string(make([]byte, 100000)), 0, 0)
		if !r.Valid() {
			t.Errorf("rejected: %v", r.Err())
		}
	})
	t.Run("too long", func(t *testing.T) {
		var r validators.Result
		r.StringLength("name", "abcdef", 1, 5)
		if codes := fieldCodes(t, r.Err()); codes["name"] != validators.CodeTooLong {
			t.Errorf("code = %q", codes["name"])
		}
	})
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name  string
		value string
		code  string
	}{
		{"strong", "mN3!pQ9$xR2&vT7*wK4#", ""},
		{"empty", "", validators.CodeRequired},
		{"weak", "aaaa", validators.CodeTooWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r validators.Result
			r.Password("password", tt.value)
			if tt.code == "" {
				if !r.Valid() {
					t.Errorf("rejected: %v", r.Err())
				}
				return
			}
			if codes := fieldCodes(t, r.Err()); codes["password"] != tt.code {
				t.Errorf("code = %q, want %q", codes["password"], tt.code)
			}
		})
	}
}

func TestLanguageTag(t *testing.T) {
	var r validators.Result
	r.LanguageTag("preferredLanguage", "not a tag")
	if codes := fieldCodes(t, r.Err()); codes["preferredLanguage"] != validators.CodeInvalid {
		t.Errorf("code = %q", codes["preferredLanguage"])
	}

	var ok validators.Result
	ok.LanguageTag("preferredLanguage", "").LanguageTag("other", "en-US")
	if !ok.Valid() {
		t.Errorf("rejected: %v", ok.Err())
	}
}

func TestMaskString(t *testing.T) {
	if got := validators.MaskString("tok_1234567890"); got != "**********7890" {
		t.Errorf("masked = %q", got)
	}
	if got := validators.MaskString("ab"); got != "************" {
		t.Errorf("short mask = %q", got)
	}
}
