package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/identra/identra/pkg/domain"
)

type staticSource struct {
	metadata *InstanceMetadata
	err      error
}

func (s staticSource) InstanceMetadata(context.Context, string) (*InstanceMetadata, error) {
	return s.metadata, s.err
}

func buildContext(t *testing.T, payload TokenPayload, opts ...BuilderOption) *Context {
	t.Helper()
	authCtx, err := NewBuilder(opts...).Build(context.Background(), payload)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return authCtx
}

func TestBuilderTokenType(t *testing.T) {
	cases := []struct {
		name    string
		payload TokenPayload
		want    TokenType
		wantErr bool
	}{
		{"defaults to user", TokenPayload{Sub: "u1", InstanceID: "i1"}, TokenTypeUser, false},
		{"service account claim", TokenPayload{Sub: "s1", InstanceID: "i1", ServiceAccount: true}, TokenTypeService, false},
		{"explicit system", TokenPayload{Sub: "sys", InstanceID: "i1", TokenType: "system"}, TokenTypeSystem, false},
		{"explicit wins over claim", TokenPayload{Sub: "u1", InstanceID: "i1", TokenType: "user", ServiceAccount: true}, TokenTypeUser, false},
		{"unknown type", TokenPayload{Sub: "u1", InstanceID: "i1", TokenType: "robot"}, "", true},
		{"missing subject", TokenPayload{InstanceID: "i1"}, "", true},
		{"missing instance", TokenPayload{Sub: "u1"}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authCtx, err := NewBuilder().Build(context.Background(), tc.payload)
			if tc.wantErr {
				if !domain.IsCode(err, domain.CodePermissionDenied) {
					t.Fatalf("expected PERMISSION_DENIED, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if authCtx.TokenType() != tc.want {
				t.Errorf("token type = %q, want %q", authCtx.TokenType(), tc.want)
			}
		})
	}
}

func TestBuilderMetadataSource(t *testing.T) {
	metadata := &InstanceMetadata{Features: map[string]bool{"actions": true}}
	authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"},
		WithMetadataSource(staticSource{metadata: metadata}))
	if authCtx.InstanceMetadata() != metadata {
		t.Error("metadata not attached")
	}

	srcErr := errors.New("projection down")
	if _, err := NewBuilder(WithMetadataSource(staticSource{err: srcErr})).
		Build(context.Background(), TokenPayload{Sub: "u1", InstanceID: "i1"}); !errors.Is(err, srcErr) {
		t.Errorf("expected source error, got %v", err)
	}
}

func TestContextImmutability(t *testing.T) {
	authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1", Roles: []string{"IAM_OWNER"}})
	subject := authCtx.Subject()
	subject.Roles[0] = "nobody"
	if !authCtx.IsIAMMember() {
		t.Error("mutating the returned subject changed the context")
	}
}

func TestFeatureGate(t *testing.T) {
	disabled := &InstanceMetadata{Features: map[string]bool{"actions": false}}

	t.Run("disabled feature throws", func(t *testing.T) {
		authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"},
			WithMetadataSource(staticSource{metadata: disabled}))
		err := authCtx.RequireInstanceFeature("actions")
		if !domain.IsCode(err, domain.CodeFeatureDisabled) {
			t.Fatalf("expected FEATURE_DISABLED, got %v", err)
		}
	})

	t.Run("system token bypasses", func(t *testing.T) {
		authCtx := buildContext(t, TokenPayload{Sub: "sys", InstanceID: "i1", TokenType: "system"},
			WithMetadataSource(staticSource{metadata: disabled}))
		if err := authCtx.RequireInstanceFeature("actions"); err != nil {
			t.Fatalf("system token blocked: %v", err)
		}
	})

	t.Run("absent metadata is permissive", func(t *testing.T) {
		authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"})
		if !authCtx.CheckInstanceFeature("actions") {
			t.Error("missing metadata should default to enabled")
		}
	})

	t.Run("unknown feature is permissive", func(t *testing.T) {
		authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"},
			WithMetadataSource(staticSource{metadata: disabled}))
		if !authCtx.CheckInstanceFeature("audit") {
			t.Error("unlisted feature should default to enabled")
		}
	})
}

func TestQuotaGate(t *testing.T) {
	metadata := &InstanceMetadata{Quotas: map[string]int64{"users": 10}}
	authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"},
		WithMetadataSource(staticSource{metadata: metadata}))

	if !authCtx.CheckInstanceQuota("users", 9) {
		t.Error("usage below limit should pass")
	}
	if authCtx.CheckInstanceQuota("users", 10) {
		t.Error("usage at limit should fail")
	}
	if !authCtx.CheckInstanceQuota("orgs", 1_000_000) {
		t.Error("undefined quota should be unlimited")
	}

	err := authCtx.RequireInstanceQuota("users", 10)
	if !domain.IsCode(err, domain.CodeQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}

	system := buildContext(t, TokenPayload{Sub: "sys", InstanceID: "i1", TokenType: "system"},
		WithMetadataSource(staticSource{metadata: metadata}))
	if !system.CheckInstanceQuota("users", 10) {
		t.Error("system token should bypass quotas")
	}
}

func TestIAMMember(t *testing.T) {
	cases := []struct {
		name    string
		payload TokenPayload
		want    bool
	}{
		{"owner role", TokenPayload{Sub: "u", InstanceID: "i", Roles: []string{"IAM_OWNER"}}, true},
		{"lowercase admin", TokenPayload{Sub: "u", InstanceID: "i", Roles: []string{"iam_admin"}}, true},
		{"system admin", TokenPayload{Sub: "u", InstanceID: "i", Roles: []string{"SYSTEM_ADMIN"}}, true},
		{"system token", TokenPayload{Sub: "u", InstanceID: "i", TokenType: "system"}, true},
		{"plain user", TokenPayload{Sub: "u", InstanceID: "i", Roles: []string{"ORG_OWNER"}}, false},
		{"no roles", TokenPayload{Sub: "u", InstanceID: "i"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authCtx := buildContext(t, tc.payload)
			if authCtx.IsIAMMember() != tc.want {
				t.Errorf("IsIAMMember = %v, want %v", authCtx.IsIAMMember(), tc.want)
			}
		})
	}
}

func TestInstancePermission(t *testing.T) {
	permission := Permission{Resource: "user", Action: "write"}

	granted := buildContext(t, TokenPayload{Sub: "u", InstanceID: "i", Permissions: []string{"user.write"}})
	if !granted.HasInstancePermission(permission) {
		t.Error("explicit permission should pass")
	}

	member := buildContext(t, TokenPayload{Sub: "u", InstanceID: "i", Roles: []string{"IAM_ADMIN"}})
	if !member.HasInstancePermission(permission) {
		t.Error("IAM member should pass any permission")
	}

	denied := buildContext(t, TokenPayload{Sub: "u", InstanceID: "i", Permissions: []string{"user.read"}})
	err := denied.RequireInstancePermission(permission)
	if !domain.IsCode(err, domain.CodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
}

func TestContextCarrier(t *testing.T) {
	authCtx := buildContext(t, TokenPayload{Sub: "u1", InstanceID: "i1"})
	ctx := WithContext(context.Background(), authCtx)
	if FromContext(ctx) != authCtx {
		t.Error("context not carried")
	}
	if FromContext(context.Background()) != nil {
		t.Error("empty context should yield nil")
	}
}
