package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/handlers"
	"github.com/docsquare/auth-gateway/internal/observability"
	"github.com/docsquare/auth-gateway/middleware"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/repositories/postgres"
	"github.com/docsquare/auth-gateway/services/admin"
	"github.com/docsquare/auth-gateway/services/auth"
	"github.com/docsquare/auth-gateway/services/notify"
	"github.com/docsquare/auth-gateway/services/password"
	"github.com/docsquare/auth-gateway/services/quota"
	"github.com/docsquare/auth-gateway/services/rbac"
	"github.com/docsquare/auth-gateway/services/reset"
	"github.com/docsquare/auth-gateway/services/token"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Services
	Tokens *token.Service
	Hasher *password.Hasher
	RBAC   *rbac.Service
	Quota  *quota.Service
	Reset  *reset.Service
	Auth   *auth.Service
	Admin  *admin.Service

	// Middleware
	AuthMiddleware     *middleware.AuthMiddleware
	CredentialsLimiter *middleware.RateLimiter

	// Handlers
	AuthHandler   *handlers.AuthHandler
	UsageHandler  *handlers.UsageHandler
	AdminHandler  *handlers.AdminHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps.initServices(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices wires the domain services on top of the repositories
func (d *Dependencies) initServices(cfg *config.Config) {
	d.Tokens = token.NewService(cfg.JWT)
	d.Hasher = password.NewHasher(cfg.Password.BcryptCost)
	d.RBAC = rbac.NewService()

	d.Quota = quota.NewService(d.Repos.Users, d.Repos.Usage, d.TxManager, d.RBAC, d.Logger)

	notifier := notify.NewLogNotifier(d.Logger)
	d.Reset = reset.NewService(
		d.Repos.Users,
		d.Repos.PasswordResetTokens,
		d.Repos.RefreshTokens,
		d.TxManager,
		d.Hasher,
		notifier,
		cfg.PasswordReset,
		d.Logger,
	)

	d.Auth = auth.NewService(d.Repos, d.TxManager, d.Tokens, d.Hasher, d.RBAC, d.Quota, d.Logger)
	d.Admin = admin.NewService(d.Repos.Users, d.Repos.Roles, d.TxManager, d.RBAC, d.Logger)

	d.Logger.Info("services initialized")
}

// initHTTP builds the metrics registry, middleware and request handlers
func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.Metrics = observability.NewMetrics()

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Logger)

	// Burst-tolerant per-IP limiter in front of the credential endpoints.
	// Steady rate of one request per second with a burst of five.
	d.CredentialsLimiter = middleware.NewRateLimiter(1, 5, d.Logger)

	d.AuthHandler = handlers.NewAuthHandler(d.Auth, d.Reset, d.Metrics, d.Logger)
	d.UsageHandler = handlers.NewUsageHandler(d.Quota, d.Metrics, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Admin, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
