package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
)

const userColumns = `id, email, password_hash, first_name, last_name,
	is_active, is_verified, is_superuser, org_id, last_login_at,
	daily_query_limit, monthly_query_limit, daily_upload_limit, max_upload_size_mb,
	total_queries_used, total_uploads, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name,
			is_active, is_verified, is_superuser, org_id, last_login_at,
			daily_query_limit, monthly_query_limit, daily_upload_limit, max_upload_size_mb,
			total_queries_used, total_uploads, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsVerified,
		user.IsSuperuser,
		user.OrgID,
		user.LastLoginAt,
		user.DailyQueryLimit,
		user.MonthlyQueryLimit,
		user.DailyUploadLimit,
		user.MaxUploadSizeMB,
		user.TotalQueriesUsed,
		user.TotalUploads,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.IsVerified,
		&user.IsSuperuser,
		&user.OrgID,
		&user.LastLoginAt,
		&user.DailyQueryLimit,
		&user.MonthlyQueryLimit,
		&user.DailyUploadLimit,
		&user.MaxUploadSizeMB,
		&user.TotalQueriesUsed,
		&user.TotalUploads,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by ID without roles
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email without roles
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user with email %s: %w", email, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetWithRoles retrieves a user by ID with roles and their permissions loaded
func (r *UserRepository) GetWithRoles(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmailWithRoles retrieves a user by email with roles and permissions loaded
func (r *UserRepository) GetByEmailWithRoles(ctx context.Context, email string) (*models.User, error) {
	user, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetForUpdate retrieves a user by ID with a row lock.
// Must run inside a transaction; the lock serializes concurrent quota consumption.
func (r *UserRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 FOR UPDATE`, userColumns)

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock user row: %w", err)
	}

	return user, nil
}

// loadRoles populates user.Roles with the user's roles and their permissions
func (r *UserRepository) loadRoles(ctx context.Context, user *models.User) error {
	query := `
		SELECT r.id, r.name, r.description,
		       r.default_daily_query_limit, r.default_monthly_query_limit,
		       r.default_daily_upload_limit, r.default_max_upload_size_mb,
		       r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, user.ID)
	if err != nil {
		return fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role := &models.Role{}
		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.Description,
			&role.DefaultDailyQueryLimit,
			&role.DefaultMonthlyQueryLimit,
			&role.DefaultDailyUploadLimit,
			&role.DefaultMaxUploadSizeMB,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating role rows: %w", err)
	}

	for _, role := range roles {
		if err := r.loadPermissions(ctx, role); err != nil {
			return err
		}
	}

	user.Roles = roles
	return nil
}

func (r *UserRepository) loadPermissions(ctx context.Context, role *models.Role) error {
	query := `
		SELECT p.id, p.resource, p.action, p.description, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, role.ID)
	if err != nil {
		return fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		perm := &models.Permission{}
		err := rows.Scan(
			&perm.ID,
			&perm.Resource,
			&perm.Action,
			&perm.Description,
			&perm.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating permission rows: %w", err)
	}

	role.Permissions = perms
	return nil
}

// Update updates a user's mutable fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2,
		    first_name = $3,
		    last_name = $4,
		    is_active = $5,
		    is_verified = $6,
		    is_superuser = $7,
		    org_id = $8,
		    daily_query_limit = $9,
		    monthly_query_limit = $10,
		    daily_upload_limit = $11,
		    max_upload_size_mb = $12,
		    updated_at = $13
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsVerified,
		user.IsSuperuser,
		user.OrgID,
		user.DailyQueryLimit,
		user.MonthlyQueryLimit,
		user.DailyUploadLimit,
		user.MaxUploadSizeMB,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("user updated", zap.String("id", user.ID.String()))
	return nil
}

// UpdatePasswordHash updates only the password hash
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("password hash updated", zap.String("id", id.String()))
	return nil
}

// UpdateLastLogin sets the last login timestamp
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// IncrementUsageTotals bumps the lifetime usage counters
func (r *UserRepository) IncrementUsageTotals(ctx context.Context, id uuid.UUID, queries, uploads int) error {
	query := `
		UPDATE users
		SET total_queries_used = total_queries_used + $2,
		    total_uploads = total_uploads + $3
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, queries, uploads); err != nil {
		return fmt.Errorf("failed to increment usage totals: %w", err)
	}
	return nil
}

// List retrieves users with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, userColumns)

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.FirstName,
			&user.LastName,
			&user.IsActive,
			&user.IsVerified,
			&user.IsSuperuser,
			&user.OrgID,
			&user.LastLoginAt,
			&user.DailyQueryLimit,
			&user.MonthlyQueryLimit,
			&user.DailyUploadLimit,
			&user.MaxUploadSizeMB,
			&user.TotalQueriesUsed,
			&user.TotalUploads,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// Delete deletes a user
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("user deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		logger: r.logger,
	}
}
