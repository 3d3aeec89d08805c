package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known role names. Privilege checks go through the RBAC resolver's
// IsPrivileged rather than string comparisons at call sites.
const (
	RoleAdmin     = "admin"
	RoleSuperuser = "superuser"
	RoleMember    = "member"
	RoleViewer    = "viewer"
	RoleGuest     = "guest"
)

// Role groups permissions and carries the default quota template applied to
// users holding it. Nil limits mean unlimited.
type Role struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`

	// Default quota template for users holding this role
	DefaultDailyQueryLimit   *int `json:"default_daily_query_limit" db:"default_daily_query_limit"`
	DefaultMonthlyQueryLimit *int `json:"default_monthly_query_limit" db:"default_monthly_query_limit"`
	DefaultDailyUploadLimit  *int `json:"default_daily_upload_limit" db:"default_daily_upload_limit"`
	DefaultMaxUploadSizeMB   *int `json:"default_max_upload_size_mb" db:"default_max_upload_size_mb"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Permissions granted by this role, loaded separately
	Permissions []*Permission `json:"permissions,omitempty" db:"-"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// NewRole creates a new Role instance
func NewRole(name, description string) *Role {
	now := time.Now().UTC()
	return &Role{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefaultLimits returns the role's default quota template
func (r *Role) DefaultLimits() QuotaLimits {
	return QuotaLimits{
		DailyQueries:    r.DefaultDailyQueryLimit,
		MonthlyQueries:  r.DefaultMonthlyQueryLimit,
		DailyUploads:    r.DefaultDailyUploadLimit,
		MaxUploadSizeMB: r.DefaultMaxUploadSizeMB,
	}
}
