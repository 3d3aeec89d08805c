package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docsquare/auth-gateway/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID without roles
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email without roles
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetWithRoles retrieves a user by ID with roles and their permissions loaded
	GetWithRoles(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmailWithRoles retrieves a user by email with roles and permissions loaded
	GetByEmailWithRoles(ctx context.Context, email string) (*models.User, error)

	// GetForUpdate retrieves a user by ID with a row lock, serializing
	// concurrent quota consumption for the same user. Must run inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Update updates a user's mutable fields
	Update(ctx context.Context, user *models.User) error

	// UpdatePasswordHash updates only the password hash
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error

	// UpdateLastLogin sets the last login timestamp
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// IncrementUsageTotals bumps the lifetime usage counters
	IncrementUsageTotals(ctx context.Context, id uuid.UUID, queries, uploads int) error

	// List retrieves users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Delete deletes a user
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// RoleRepository handles role and permission data operations
type RoleRepository interface {
	// Create creates a new role
	Create(ctx context.Context, role *models.Role) error

	// GetByID retrieves a role by ID with permissions loaded
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)

	// GetByName retrieves a role by name with permissions loaded
	GetByName(ctx context.Context, name string) (*models.Role, error)

	// List retrieves all roles with permissions loaded
	List(ctx context.Context) ([]*models.Role, error)

	// AssignToUser assigns a role to a user, idempotently
	AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error

	// RemoveFromUser removes a role from a user
	RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error

	// CreatePermission creates a new permission
	CreatePermission(ctx context.Context, perm *models.Permission) error

	// GetPermissionByName retrieves a permission by resource and action
	GetPermissionByName(ctx context.Context, resource, action string) (*models.Permission, error)

	// GrantPermission attaches a permission to a role, idempotently
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	// RevokePermission detaches a permission from a role
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RoleRepository
}

// RefreshTokenRepository handles refresh token data operations.
// Only token hashes are stored; raw tokens never touch the database.
type RefreshTokenRepository interface {
	// Create persists a new refresh token record
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByHash retrieves a refresh token by its hash
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Claim atomically revokes an active, unexpired token identified by hash
	// and returns it. Returns ErrNotFound if the token is missing, already
	// revoked, or expired. Used for rotation so each token rotates at most once.
	Claim(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error)

	// RevokeAllForUser revokes every active refresh token for a user
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)

	// DeleteExpired removes tokens whose expiry is before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RefreshTokenRepository
}

// TokenBlacklistRepository handles revoked access token records
type TokenBlacklistRepository interface {
	// Add records a revoked access token. Idempotent on token hash.
	Add(ctx context.Context, token *models.BlacklistedToken) error

	// IsBlacklisted reports whether a token hash has been revoked
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)

	// DeleteExpired removes entries whose token expiry is before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) TokenBlacklistRepository
}

// PasswordResetTokenRepository handles password reset token records
type PasswordResetTokenRepository interface {
	// Create persists a new reset token record
	Create(ctx context.Context, token *models.PasswordResetToken) error

	// GetByHash retrieves a reset token by its hash
	GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)

	// MarkUsed marks a reset token as consumed
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// InvalidateAllForUser marks all unused tokens for a user as used
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// CountRecentForUser counts tokens issued for a user since the cutoff
	CountRecentForUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// DeleteExpired removes tokens whose expiry is before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) PasswordResetTokenRepository
}

// UsageRepository handles usage ledger and counter data operations
type UsageRepository interface {
	// InsertLog appends a usage ledger entry. Returns false without error
	// when the idempotency key was already recorded for the user.
	InsertLog(ctx context.Context, log *models.UsageLog) (bool, error)

	// IncrementCounter upserts a usage counter for (user, period, dimension)
	IncrementCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string, amount float64) error

	// GetCounter retrieves the used amount for (user, period, dimension).
	// Returns 0 when no counter row exists.
	GetCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string) (float64, error)

	// GetLogsByUser retrieves ledger entries for a user with pagination, newest first
	GetLogsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.UsageLog, error)

	// DeleteLogsBefore removes ledger entries older than the cutoff
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UsageRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users               UserRepository
	Roles               RoleRepository
	RefreshTokens       RefreshTokenRepository
	TokenBlacklist      TokenBlacklistRepository
	PasswordResetTokens PasswordResetTokenRepository
	Usage               UsageRepository
}
