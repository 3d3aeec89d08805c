package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/app"
	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/internal/observability"
	"github.com/docsquare/auth-gateway/routes"
)

const (
	usageCleanupInterval = time.Hour
	usageLogRetention    = 90 * 24 * time.Hour
	tokenCleanupInterval = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auth-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	// Background maintenance
	go deps.Quota.StartCleanupWorker(ctx, usageCleanupInterval, usageLogRetention)
	go tokenCleanupLoop(ctx, deps, tokenCleanupInterval)
	go deps.CredentialsLimiter.PruneLoop(ctx.Done())

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting auth-gateway",
			zap.String("address", srv.Addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	logger.Info("auth-gateway stopped")
	return nil
}

// tokenCleanupLoop periodically removes expired refresh tokens, blacklist
// entries and password reset tokens. Expired rows are already inert for
// authorization decisions, so this only reclaims storage.
func tokenCleanupLoop(ctx context.Context, deps *app.Dependencies, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC()
			if _, err := deps.Repos.RefreshTokens.DeleteExpired(ctx, cutoff); err != nil {
				deps.Logger.Error("failed to prune refresh tokens", zap.Error(err))
			}
			if _, err := deps.Repos.TokenBlacklist.DeleteExpired(ctx, cutoff); err != nil {
				deps.Logger.Error("failed to prune token blacklist", zap.Error(err))
			}
			if _, err := deps.Repos.PasswordResetTokens.DeleteExpired(ctx, cutoff); err != nil {
				deps.Logger.Error("failed to prune reset tokens", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
