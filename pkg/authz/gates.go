package authz

import (
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// iamRoles are the elevated administrative roles. Matching is
// case-insensitive, so both IAM_OWNER and iam_owner qualify.
var iamRoles = []string{"IAM_OWNER", "IAM_ADMIN", "SYSTEM_ADMIN"}

// Permission names a resource/action pair required by an operation.
type Permission struct {
	Resource string
	Action   string
}

func (p Permission) String() string {
	return p.Resource + "." + p.Action
}

// CheckInstanceFeature reports whether the named feature is usable. The
// check is permissive when no metadata is loaded so that instances
// created before feature flags existed keep working.
func (c *Context) CheckInstanceFeature(name string) bool {
	if c.IsSystemToken() {
		return true
	}
	if c.instanceMetadata == nil || c.instanceMetadata.Features == nil {
		return true
	}
	enabled, known := c.instanceMetadata.Features[name]
	if !known {
		return true
	}
	return enabled
}

// CheckInstanceQuota reports whether currentUsage is still below the
// named quota. Instances without the quota defined are unlimited.
func (c *Context) CheckInstanceQuota(name string, currentUsage int64) bool {
	if c.IsSystemToken() {
		return true
	}
	if c.instanceMetadata == nil || c.instanceMetadata.Quotas == nil {
		return true
	}
	limit, known := c.instanceMetadata.Quotas[name]
	if !known {
		return true
	}
	return currentUsage < limit
}

// IsIAMMember reports whether the caller holds an elevated administrative
// role or a system token.
func (c *Context) IsIAMMember() bool {
	if c.IsSystemToken() {
		return true
	}
	for _, role := range iamRoles {
		if c.hasRole(role) {
			return true
		}
	}
	return false
}

// HasInstancePermission reports whether the caller may perform the
// action. IAM members and system tokens may perform everything.
func (c *Context) HasInstancePermission(permission Permission) bool {
	if c.IsIAMMember() {
		return true
	}
	return c.hasPermission(permission.String())
}

// RequireInstanceFeature returns FEATURE_DISABLED when the feature check
// fails.
func (c *Context) RequireInstanceFeature(name string) error {
	if !c.CheckInstanceFeature(name) {
		return domain.FeatureDisabled(name)
	}
	return nil
}

// RequireInstanceQuota returns QUOTA_EXCEEDED when the quota check fails.
func (c *Context) RequireInstanceQuota(name string, currentUsage int64) error {
	if !c.CheckInstanceQuota(name, currentUsage) {
		return domain.QuotaExceeded(name)
	}
	return nil
}

// RequireIAMMember returns PERMISSION_DENIED for non-members.
func (c *Context) RequireIAMMember() error {
	if !c.IsIAMMember() {
		return domain.PermissionDenied("caller is not an IAM member")
	}
	return nil
}

// RequireInstancePermission returns PERMISSION_DENIED when the caller
// lacks the permission.
func (c *Context) RequireInstancePermission(permission Permission) error {
	if !c.HasInstancePermission(permission) {
		return domain.PermissionDenied(fmt.Sprintf("missing permission %s", permission))
	}
	return nil
}
