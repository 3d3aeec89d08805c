package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
)

const roleColumns = `id, name, description,
	default_daily_query_limit, default_monthly_query_limit,
	default_daily_upload_limit, default_max_upload_size_mb,
	created_at, updated_at`

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (id, name, description,
			default_daily_query_limit, default_monthly_query_limit,
			default_daily_upload_limit, default_max_upload_size_mb,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		role.DefaultDailyQueryLimit,
		role.DefaultMonthlyQueryLimit,
		role.DefaultDailyUploadLimit,
		role.DefaultMaxUploadSizeMB,
		role.CreatedAt,
		role.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	r.logger.Debug("role created", zap.String("id", role.ID.String()), zap.String("name", role.Name))
	return nil
}

func scanRole(row *sql.Row) (*models.Role, error) {
	role := &models.Role{}
	err := row.Scan(
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
		return nil, err
	}
	return role, nil
}

// GetByID retrieves a role by ID with permissions loaded
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE id = $1`, roleColumns)

	executor := GetExecutor(ctx, r.db)
	role, err := scanRole(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("role %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := r.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetByName retrieves a role by name with permissions loaded
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE name = $1`, roleColumns)

	executor := GetExecutor(ctx, r.db)
	role, err := scanRole(executor.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("role %q: %w", name, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := r.loadPermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// List retrieves all roles with permissions loaded
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles ORDER BY name`, roleColumns)

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
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
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	for _, role := range roles {
		if err := r.loadPermissions(ctx, role); err != nil {
			return nil, err
		}
	}

	return roles, nil
}

func (r *RoleRepository) loadPermissions(ctx context.Context, role *models.Role) error {
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

// AssignToUser assigns a role to a user, idempotently
func (r *RoleRepository) AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	r.logger.Debug("role assigned",
		zap.String("user_id", userID.String()),
		zap.String("role_id", roleID.String()))
	return nil
}

// RemoveFromUser removes a role from a user
func (r *RoleRepository) RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("role assignment: %w", repositories.ErrNotFound)
	}

	return nil
}

// CreatePermission creates a new permission
func (r *RoleRepository) CreatePermission(ctx context.Context, perm *models.Permission) error {
	query := `
		INSERT INTO permissions (id, resource, action, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		perm.ID,
		perm.Resource,
		perm.Action,
		perm.Description,
		perm.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	return nil
}

// GetPermissionByName retrieves a permission by resource and action
func (r *RoleRepository) GetPermissionByName(ctx context.Context, resource, action string) (*models.Permission, error) {
	query := `
		SELECT id, resource, action, description, created_at
		FROM permissions
		WHERE resource = $1 AND action = $2
	`

	executor := GetExecutor(ctx, r.db)
	perm := &models.Permission{}

	err := executor.QueryRowContext(ctx, query, resource, action).Scan(
		&perm.ID,
		&perm.Resource,
		&perm.Action,
		&perm.Description,
		&perm.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("permission %s:%s: %w", resource, action, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return perm, nil
}

// GrantPermission attaches a permission to a role, idempotently
func (r *RoleRepository) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	return nil
}

// RevokePermission detaches a permission from a role
func (r *RoleRepository) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RoleRepository) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	return &RoleRepository{
		db:     r.db,
		logger: r.logger,
	}
}
