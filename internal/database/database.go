package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"wannagonna/internal/config"
)

// Open creates a manager, runs migrations and waits until the database
// reports healthy. The caller owns the returned manager.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	manager, err := NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	migrationsPath := determineMigrationsPath(cfg.MigrationsPath)
	if err := runMigrationsWithRetry(ctx, manager, migrationsPath, logger, 3); err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := waitForHealth(waitCtx, manager, logger); err != nil {
		manager.Close()
		return nil, fmt.Errorf("database failed to become healthy: %w", err)
	}

	stats := manager.Stats()
	logger.Info("Database initialized",
		zap.String("migrations_path", migrationsPath),
		zap.Int("max_open_connections", stats.MaxOpenConnections),
		zap.Int("open_connections", stats.OpenConnections),
	)
	return manager, nil
}

func runMigrationsWithRetry(ctx context.Context, manager *Manager, migrationsPath string, logger *zap.Logger, maxRetries uint64) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), maxRetries-1), ctx)
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		logger.Info("Running database migrations",
			zap.String("path", migrationsPath),
			zap.Int("attempt", attempt),
		)
		return manager.Migrate(migrationsPath)
	}, b, func(err error, wait time.Duration) {
		logger.Warn("Migration attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
		)
	})
}

// waitForHealth polls the health check with exponential backoff until it
// reports healthy or ctx expires.
func waitForHealth(ctx context.Context, manager *Manager, logger *zap.Logger) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		status := manager.Health(ctx)
		if status.Status == StatusHealthy {
			logger.Info("Database is healthy", zap.Duration("response_time", status.ResponseTime))
			return nil
		}
		return fmt.Errorf("database %s: %v", status.Status, status.Errors)
	}, backoff.WithContext(eb, ctx), func(err error, wait time.Duration) {
		logger.Debug("Database not healthy yet, retrying", zap.Error(err), zap.Duration("backoff", wait))
	})
}

func determineMigrationsPath(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	for _, path := range []string{"./migrations", "../migrations", "../../migrations"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return "./migrations"
}
