package authz

import (
	"context"

	"github.com/identra/identra/pkg/domain"
)

// TokenPayload is the decoded token a context is built from. Verification
// of the token signature happens upstream; the builder only interprets
// the claims.
type TokenPayload struct {
	Sub            string   `json:"sub"`
	InstanceID     string   `json:"instance_id"`
	OrgID          string   `json:"org_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	TokenType      string   `json:"token_type,omitempty"`
	ServiceAccount bool     `json:"service_account,omitempty"`
}

// MetadataSource loads instance metadata for the builder. The instances
// repository implements it on top of the instances projection.
type MetadataSource interface {
	InstanceMetadata(ctx context.Context, instanceID string) (*InstanceMetadata, error)
}

// Builder turns token payloads into contexts.
type Builder struct {
	source MetadataSource
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMetadataSource makes the builder attach instance metadata to every
// context. Without a source, metadata stays nil and feature checks fall
// back to their permissive default.
func WithMetadataSource(source MetadataSource) BuilderOption {
	return func(b *Builder) {
		b.source = source
	}
}

// NewBuilder creates a context builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build derives an immutable context from a token payload. The token type
// is taken from the explicit claim when present; otherwise a service
// account claim yields a service token and everything else a user token.
func (b *Builder) Build(ctx context.Context, payload TokenPayload) (*Context, error) {
	if payload.Sub == "" {
		return nil, domain.PermissionDenied("token has no subject")
	}
	if payload.InstanceID == "" {
		return nil, domain.PermissionDenied("token has no instance")
	}

	tokenType, err := deriveTokenType(payload)
	if err != nil {
		return nil, err
	}

	authCtx := &Context{
		subject: Subject{
			UserID:         payload.Sub,
			Roles:          append([]string(nil), payload.Roles...),
			Permissions:    append([]string(nil), payload.Permissions...),
			ServiceAccount: payload.ServiceAccount,
		},
		tokenType:  tokenType,
		instanceID: payload.InstanceID,
		orgID:      payload.OrgID,
		projectID:  payload.ProjectID,
	}

	if b.source != nil {
		metadata, err := b.source.InstanceMetadata(ctx, payload.InstanceID)
		if err != nil {
			return nil, err
		}
		authCtx.instanceMetadata = metadata
	}

	return authCtx, nil
}

func deriveTokenType(payload TokenPayload) (TokenType, error) {
	switch payload.TokenType {
	case "":
		if payload.ServiceAccount {
			return TokenTypeService, nil
		}
		return TokenTypeUser, nil
	case string(TokenTypeUser):
		return TokenTypeUser, nil
	case string(TokenTypeService):
		return TokenTypeService, nil
	case string(TokenTypeSystem):
		return TokenTypeSystem, nil
	default:
		return "", domain.PermissionDenied("unknown token type " + payload.TokenType)
	}
}

type contextKey struct{}

// WithContext attaches the authorization context to a request context.
func WithContext(ctx context.Context, authCtx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, authCtx)
}

// FromContext extracts the authorization context, nil when absent.
func FromContext(ctx context.Context) *Context {
	authCtx, _ := ctx.Value(contextKey{}).(*Context)
	return authCtx
}
