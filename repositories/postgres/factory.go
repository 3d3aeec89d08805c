package postgres

import (
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:               NewUserRepository(f.db, f.logger),
		Roles:               NewRoleRepository(f.db, f.logger),
		RefreshTokens:       NewRefreshTokenRepository(f.db, f.logger),
		TokenBlacklist:      NewTokenBlacklistRepository(f.db, f.logger),
		PasswordResetTokens: NewPasswordResetTokenRepository(f.db, f.logger),
		Usage:               NewUsageRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
