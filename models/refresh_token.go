package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the stored record of an opaque refresh token. Only the
// SHA-256 hash of the raw value is persisted.
type RefreshToken struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	TokenHash  string          `json:"-" db:"token_hash"`
	ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time      `json:"revoked_at,omitempty" db:"revoked_at"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty" db:"device_info"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RefreshToken model
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// IsRevoked reports whether the token has been explicitly revoked
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsValidAt reports whether the token is usable at the given instant
func (t *RefreshToken) IsValidAt(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
