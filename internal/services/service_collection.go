// file: internal/services/service_collection.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/appinfo"
	"wannagonna/internal/cache"
	"wannagonna/internal/config"
	"wannagonna/internal/database"
	"wannagonna/internal/events"
	"wannagonna/internal/repositories"
	"wannagonna/internal/store"
)

// Infrastructure carries the adapters the services are built on. DBManager is
// set only for the postgres document provider.
type Infrastructure struct {
	Documents store.DocumentStore
	Blobs     store.BlobStore
	Remote    store.RemoteCaller
	Cache     cache.Cache
	EventBus  events.EventBus
	DBManager *database.Manager
}

// ServiceCollection holds the rewards services with their dependencies
type ServiceCollection struct {
	Catalog       CatalogService
	Images        ImageService
	Ledger        LedgerService
	Grants        GrantService
	Referrals     ReferralService
	Rules         RuleDispatcher
	Notifications NotificationService

	Repositories *repositories.Collection

	Infra  Infrastructure
	Logger *zap.Logger
	Config *config.Config

	healthCheckers map[string]HealthChecker
	startTime      time.Time
	mu             sync.RWMutex
}

// ServiceHealth represents the health status of the service collection
type ServiceHealth struct {
	Status       string                   `json:"status"`
	Version      string                   `json:"version"`
	Timestamp    time.Time                `json:"timestamp"`
	Dependencies map[string]ServiceStatus `json:"dependencies"`
	Uptime       time.Duration            `json:"uptime"`
	Issues       []string                 `json:"issues,omitempty"`
}

// ServiceStatus represents the status of an individual dependency
type ServiceStatus struct {
	Name         string        `json:"name"`
	Status       string        `json:"status"` // healthy, unhealthy
	LastCheck    time.Time     `json:"last_check"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
}

// NewServiceCollection wires every service and subscribes the event-driven
// ones to the bus. The bus is not started here.
func NewServiceCollection(infra Infrastructure, cfg *config.Config, logger *zap.Logger) (*ServiceCollection, error) {
	if infra.Documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if infra.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if infra.EventBus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sc := &ServiceCollection{
		Infra:          infra,
		Config:         cfg,
		Logger:         logger,
		healthCheckers: make(map[string]HealthChecker),
		startTime:      time.Now(),
	}

	repos, err := repositories.NewCollection(infra.Documents, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository collection: %w", err)
	}
	sc.Repositories = repos

	sc.initializeServices()

	if err := sc.Notifications.Subscribe(infra.EventBus); err != nil {
		return nil, fmt.Errorf("failed to subscribe notifications: %w", err)
	}
	if err := sc.Rules.Subscribe(infra.EventBus); err != nil {
		return nil, fmt.Errorf("failed to subscribe rule dispatcher: %w", err)
	}

	logger.Info("Service collection initialized",
		zap.String("blob_provider", cfg.Store.BlobProvider),
		zap.String("document_provider", cfg.Store.DocumentProvider),
	)
	return sc, nil
}

// initializeServices builds the services in dependency order.
func (sc *ServiceCollection) initializeServices() {
	rw := sc.Config.Rewards

	sc.Catalog = NewCatalogService(sc.Repositories.Catalog, sc.Infra.Cache, sc.Logger, &CatalogConfig{
		TTL:       rw.CatalogTTL,
		MaxProbes: DefaultCatalogConfig().MaxProbes,
	})

	sc.Images = NewImageService(sc.Infra.Blobs, sc.Infra.Cache, sc.Logger, &ImageConfig{
		CacheWindow:  rw.ImageCacheWindow,
		ProbeTimeout: rw.ImageProbeTimeout,
		Concurrency:  rw.ImageConcurrency,
	})

	sc.Ledger = NewLedgerService(sc.Repositories.XPHistory, sc.Logger)

	sc.Grants = NewGrantService(sc.Catalog, sc.Repositories.Member, sc.Ledger, sc.Infra.EventBus, sc.Logger)

	sc.Referrals = NewReferralService(
		sc.Infra.Remote,
		sc.Grants,
		sc.Catalog,
		sc.Infra.EventBus,
		sc.Logger,
		rw.ReferralBadgeID,
	)

	sc.Rules = NewRuleDispatcher(sc.Grants, sc.Referrals, sc.Repositories.Organization, sc.Logger, rw.ProfileBadgeID)

	sc.Notifications = NewNotificationService(sc.Infra.Remote, sc.Logger, rw.NotificationsEnabled)
}

// RegisterHealthChecker adds a component to HealthCheck.
func (sc *ServiceCollection) RegisterHealthChecker(hc HealthChecker) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.healthCheckers[hc.ServiceName()] = hc
}

// ===============================
// HEALTH AND SHUTDOWN
// ===============================

// HealthCheck probes the database, cache, event bus and registered checkers.
func (sc *ServiceCollection) HealthCheck(ctx context.Context) *ServiceHealth {
	health := &ServiceHealth{
		Status:       "healthy",
		Version:      appinfo.Version(),
		Timestamp:    time.Now(),
		Dependencies: make(map[string]ServiceStatus),
		Uptime:       time.Since(sc.startTime),
	}

	check := func(name string, fn func(context.Context) error) {
		start := time.Now()
		status := ServiceStatus{Name: name, Status: "healthy", LastCheck: start}
		if err := fn(ctx); err != nil {
			status.Status = "unhealthy"
			status.Error = err.Error()
			health.Issues = append(health.Issues, fmt.Sprintf("%s: %s", name, err))
		}
		status.ResponseTime = time.Since(start)
		health.Dependencies[name] = status
	}

	if sc.Infra.DBManager != nil {
		check("database", func(ctx context.Context) error {
			hs := sc.Infra.DBManager.Health(ctx)
			if hs.Status == database.StatusUnhealthy {
				return fmt.Errorf("%v", hs.Errors)
			}
			return nil
		})
	}
	if sc.Infra.Cache != nil {
		check("cache", sc.Infra.Cache.Health)
	}
	check("event_bus", func(context.Context) error { return sc.Infra.EventBus.Health() })

	sc.mu.RLock()
	for name, hc := range sc.healthCheckers {
		check(name, hc.HealthCheck)
	}
	sc.mu.RUnlock()

	if len(health.Issues) > 0 {
		health.Status = "unhealthy"
	}
	return health
}

// Shutdown stops the event bus after draining it, then releases the cache
// and database.
func (sc *ServiceCollection) Shutdown(ctx context.Context) error {
	sc.Logger.Info("Shutting down service collection")

	var errs ErrorGroup
	if err := sc.Infra.EventBus.Stop(ctx); err != nil {
		errs.Add(fmt.Errorf("stop event bus: %w", err))
	}
	if sc.Infra.Cache != nil {
		if err := sc.Infra.Cache.Close(); err != nil {
			errs.Add(fmt.Errorf("close cache: %w", err))
		}
	}
	if sc.Infra.DBManager != nil {
		if err := sc.Infra.DBManager.Close(); err != nil {
			errs.Add(fmt.Errorf("close database: %w", err))
		}
	}

	if errs.HasErrors() {
		return &errs
	}
	sc.Logger.Info("Service collection shutdown completed")
	return nil
}
