package models

import (
	"time"

	"github.com/google/uuid"
)

// Blacklist reasons recorded for auditability.
const (
	BlacklistReasonLogout        = "logout"
	BlacklistReasonPasswordReset = "password_reset"
)

// BlacklistedToken records an access token invalidated before its natural
// expiry. Entries past ExpiresAt may be pruned: expired tokens fail
// signature-expiry checks regardless of blacklist membership.
type BlacklistedToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the BlacklistedToken model
func (BlacklistedToken) TableName() string {
	return "blacklisted_tokens"
}
