// Package notify defines the outbound notification boundary.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier dispatches user-facing notifications. Calls are fire-and-forget
// from the caller's perspective: failures are logged, never fatal to the
// request that triggered them.
type Notifier interface {
	// SendPasswordResetEmail delivers a password reset token to the address
	SendPasswordResetEmail(ctx context.Context, address, rawToken string) error

	// SendVerificationEmail delivers an account verification token to the address
	SendVerificationEmail(ctx context.Context, address, rawToken string) error
}

// LogNotifier logs notification dispatches instead of sending them.
// Used in development and as the default when no mail transport is configured.
// It never logs the token itself.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPasswordResetEmail logs that a reset email would have been sent
func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, address, rawToken string) error {
	n.logger.Info("password reset email dispatched",
		zap.String("address", address),
		zap.Int("token_length", len(rawToken)))
	return nil
}

// SendVerificationEmail logs that a verification email would have been sent
func (n *LogNotifier) SendVerificationEmail(ctx context.Context, address, rawToken string) error {
	n.logger.Info("verification email dispatched",
		zap.String("address", address),
		zap.Int("token_length", len(rawToken)))
	return nil
}
