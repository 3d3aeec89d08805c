package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the auth service. Quota limit fields are
// per-user overrides: nil means no override (fall back to role defaults),
// and an effective limit of nil means unlimited.
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name,omitempty" db:"first_name"`
	LastName     string     `json:"last_name,omitempty" db:"last_name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	IsVerified   bool       `json:"is_verified" db:"is_verified"`
	IsSuperuser  bool       `json:"is_superuser" db:"is_superuser"`
	OrgID        *uuid.UUID `json:"organization_id,omitempty" db:"organization_id"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// Quota overrides (nil = no override)
	DailyQueryLimit   *int `json:"daily_query_limit" db:"daily_query_limit"`
	MonthlyQueryLimit *int `json:"monthly_query_limit" db:"monthly_query_limit"`
	DailyUploadLimit  *int `json:"daily_upload_limit" db:"daily_upload_limit"`
	MaxUploadSizeMB   *int `json:"max_upload_size_mb" db:"max_upload_size_mb"`

	// Cumulative usage counters (derived view; the usage ledger is the
	// authoritative record)
	TotalQueriesUsed int `json:"total_queries_used" db:"total_queries_used"`
	TotalUploads     int `json:"total_uploads" db:"total_uploads"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Roles assigned to this user, loaded separately
	Roles []*Role `json:"roles,omitempty" db:"-"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance with a fresh ID and timestamps
func NewUser(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FullName returns the user's display name, falling back to email
func (u *User) FullName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Email
}

// HasRole reports whether the user holds a role with the given name
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames returns the names of all roles assigned to the user
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// OverrideLimits returns the user's per-user quota overrides
func (u *User) OverrideLimits() QuotaLimits {
	return QuotaLimits{
		DailyQueries:    u.DailyQueryLimit,
		MonthlyQueries:  u.MonthlyQueryLimit,
		DailyUploads:    u.DailyUploadLimit,
		MaxUploadSizeMB: u.MaxUploadSizeMB,
	}
}

// HasOverrides reports whether any per-user quota override is set
func (u *User) HasOverrides() bool {
	return u.DailyQueryLimit != nil || u.MonthlyQueryLimit != nil ||
		u.DailyUploadLimit != nil || u.MaxUploadSizeMB != nil
}
