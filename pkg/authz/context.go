// Package authz represents the caller for policy decisions: a token
// payload becomes an immutable Context that handlers and query gateways
// consult. Contexts live for one request and are never stored.
package authz

import "strings"

// TokenType classifies the credential a context was built from.
type TokenType string

const (
	TokenTypeUser    TokenType = "user"
	TokenTypeService TokenType = "service"
	TokenTypeSystem  TokenType = "system"
)

// Subject is the authenticated principal.
type Subject struct {
	UserID         string
	Roles          []string
	Permissions    []string
	ServiceAccount bool
}

// InstanceMetadata carries the feature flags and quotas of an instance.
// It usually comes from the instances projection via a MetadataSource.
type InstanceMetadata struct {
	Features map[string]bool
	Quotas   map[string]int64
}

// Context is the immutable authorization context of one request. Build
// one through a Builder; the zero value denies everything.
type Context struct {
	subject    Subject
	tokenType  TokenType
	instanceID string
	orgID      string
	projectID  string

	instanceMetadata *InstanceMetadata
	orgMetadata      map[string]string
	projectMetadata  map[string]string
}

// Subject returns a copy of the authenticated principal.
func (c *Context) Subject() Subject {
	s := c.subject
	s.Roles = append([]string(nil), c.subject.Roles...)
	s.Permissions = append([]string(nil), c.subject.Permissions...)
	return s
}

// UserID is the subject identifier, empty for anonymous contexts.
func (c *Context) UserID() string {
	return c.subject.UserID
}

// TokenType reports how the caller authenticated.
func (c *Context) TokenType() TokenType {
	return c.tokenType
}

// IsSystemToken reports whether the caller holds a system token. System
// tokens bypass feature and quota checks and count as IAM members.
func (c *Context) IsSystemToken() bool {
	return c.tokenType == TokenTypeSystem
}

// InstanceID is the multi-tenant boundary of the request.
func (c *Context) InstanceID() string {
	return c.instanceID
}

// OrgID is the organization scope of the request, may be empty.
func (c *Context) OrgID() string {
	return c.orgID
}

// ProjectID is the project scope of the request, may be empty.
func (c *Context) ProjectID() string {
	return c.projectID
}

// InstanceMetadata returns the instance features and quotas, nil when the
// builder had no metadata source.
func (c *Context) InstanceMetadata() *InstanceMetadata {
	return c.instanceMetadata
}

// hasRole reports whether the subject carries the role, case-insensitive.
func (c *Context) hasRole(role string) bool {
	for _, r := range c.subject.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// hasPermission reports whether the subject carries the exact permission.
func (c *Context) hasPermission(permission string) bool {
	for _, p := range c.subject.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
