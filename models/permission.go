package models

import (
	"time"

	"github.com/google/uuid"
)

// Wildcard matches any resource or action in a permission check.
const Wildcard = "*"

// Well-known resources and actions used by route guards.
const (
	ResourceUsers     = "users"
	ResourceDocuments = "documents"
	ResourceUsage     = "usage"

	ActionRead   = "read"
	ActionWrite  = "write"
	ActionManage = "manage"
)

// Permission is a (resource, action) capability. Either field may be the
// reserved wildcard "*". The pair is unique.
type Permission struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Resource    string    `json:"resource" db:"resource"`
	Action      string    `json:"action" db:"action"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Permission model
func (Permission) TableName() string {
	return "permissions"
}

// NewPermission creates a new Permission instance
func NewPermission(resource, action, description string) *Permission {
	return &Permission{
		ID:          uuid.New(),
		Resource:    resource,
		Action:      action,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// Name returns the permission in "resource:action" form
func (p *Permission) Name() string {
	return p.Resource + ":" + p.Action
}

// Matches reports whether this permission satisfies a required
// (resource, action) pair, honoring the wildcard in either position.
func (p *Permission) Matches(resource, action string) bool {
	if p.Resource != Wildcard && p.Resource != resource {
		return false
	}
	if p.Action != Wildcard && p.Action != action {
		return false
	}
	return true
}

// IsFullAccess reports whether this is the unrestricted (*, *) permission
func (p *Permission) IsFullAccess() bool {
	return p.Resource == Wildcard && p.Action == Wildcard
}
