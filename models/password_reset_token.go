package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetToken is the stored record of a single-use reset token. Only
// the SHA-256 hash of the raw secret is persisted; the raw value is returned
// to the caller exactly once at issuance.
type PasswordResetToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed    bool       `json:"is_used" db:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	IPAddress string     `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the PasswordResetToken model
func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

// IsExpiredAt reports whether the token has expired at the given instant
func (t *PasswordResetToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsValidAt reports whether the token can still be consumed
func (t *PasswordResetToken) IsValidAt(now time.Time) bool {
	return !t.IsUsed && !t.IsExpiredAt(now)
}
