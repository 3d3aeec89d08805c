// Package rbac evaluates role and permission grants and effective quota limits.
package rbac

import (
	"sort"

	"github.com/docsquare/auth-gateway/models"
)

// Service evaluates authorization decisions from a user's loaded roles.
// All methods are pure; callers load the user with roles and permissions first.
type Service struct{}

// NewService creates a new rbac service
func NewService() *Service {
	return &Service{}
}

// IsPrivileged reports whether the user bypasses permission and quota checks.
// True for the superuser flag, the admin or superuser roles, and any role
// granting the full wildcard permission.
func (s *Service) IsPrivileged(user *models.User) bool {
	if user.IsSuperuser {
		return true
	}
	if user.HasRole(models.RoleAdmin) || user.HasRole(models.RoleSuperuser) {
		return true
	}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			if perm.IsFullAccess() {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the user holds the named role
func (s *Service) HasRole(user *models.User, name string) bool {
	return user.HasRole(name)
}

// HasPermission reports whether the user may perform action on resource.
// Privileged users pass every check. Otherwise any permission on any of the
// user's roles that matches, including wildcard grants, allows access.
func (s *Service) HasPermission(user *models.User, resource, action string) bool {
	if s.IsPrivileged(user) {
		return true
	}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			if perm.Matches(resource, action) {
				return true
			}
		}
	}
	return false
}

// EffectivePermissions returns the deduplicated, sorted permission names
// granted through all the user's roles
func (s *Service) EffectivePermissions(user *models.User) []string {
	seen := make(map[string]struct{})
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			seen[perm.Name()] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EffectiveQuota resolves the user's quota limits. Per dimension, a user-level
// override wins outright; otherwise the least restrictive role default applies,
// and any role with no limit set grants unlimited for that dimension.
// Privileged users are always unlimited.
func (s *Service) EffectiveQuota(user *models.User) models.QuotaLimits {
	if s.IsPrivileged(user) {
		return models.QuotaLimits{}
	}

	overrides := user.OverrideLimits()
	fromRoles := s.roleQuota(user)

	return models.QuotaLimits{
		DailyQueries:    pick(overrides.DailyQueries, user.DailyQueryLimit != nil, fromRoles.DailyQueries),
		MonthlyQueries:  pick(overrides.MonthlyQueries, user.MonthlyQueryLimit != nil, fromRoles.MonthlyQueries),
		DailyUploads:    pick(overrides.DailyUploads, user.DailyUploadLimit != nil, fromRoles.DailyUploads),
		MaxUploadSizeMB: pick(overrides.MaxUploadSizeMB, user.MaxUploadSizeMB != nil, fromRoles.MaxUploadSizeMB),
	}
}

// roleQuota merges role defaults, taking the highest limit per dimension.
// A nil limit on any role means unlimited and dominates the merge.
func (s *Service) roleQuota(user *models.User) models.QuotaLimits {
	if len(user.Roles) == 0 {
		return models.QuotaLimits{}
	}

	merged := user.Roles[0].DefaultLimits()
	for _, role := range user.Roles[1:] {
		limits := role.DefaultLimits()
		merged.DailyQueries = leastRestrictive(merged.DailyQueries, limits.DailyQueries)
		merged.MonthlyQueries = leastRestrictive(merged.MonthlyQueries, limits.MonthlyQueries)
		merged.DailyUploads = leastRestrictive(merged.DailyUploads, limits.DailyUploads)
		merged.MaxUploadSizeMB = leastRestrictive(merged.MaxUploadSizeMB, limits.MaxUploadSizeMB)
	}
	return merged
}

// pick returns the override when one is set, else the role-derived limit
func pick(override *int, overridden bool, fallback *int) *int {
	if overridden {
		return override
	}
	return fallback
}

// leastRestrictive returns the higher of two limits; nil means unlimited
func leastRestrictive(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	if *a >= *b {
		return a
	}
	return b
}
