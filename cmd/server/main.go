package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wannagonna/internal/appinfo"
	"wannagonna/internal/cache"
	"wannagonna/internal/config"
	"wannagonna/internal/database"
	"wannagonna/internal/events"
	"wannagonna/internal/jobs"
	"wannagonna/internal/metrics"
	"wannagonna/internal/middleware"
	"wannagonna/internal/response"
	"wannagonna/internal/router"
	"wannagonna/internal/services"
	"wannagonna/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	info := appinfo.Get()
	logger.Info("Starting WannaGonna rewards engine",
		zap.String("version", info.Version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Application failed", zap.Error(err))
	}
	logger.Info("Application shutdown completed")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := buildInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sc, err := services.NewServiceCollection(infra, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := infra.EventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}

	var reconciler *jobs.Reconciler
	if cfg.Rewards.ReconcileEnabled {
		reconciler = jobs.NewReconciler(sc.Repositories.Member, sc.Catalog, logger, cfg.Rewards.ReconcileSchedule)
		if err := reconciler.Start(); err != nil {
			return fmt.Errorf("failed to start reconciler: %w", err)
		}
		sc.RegisterHealthChecker(reconciler)
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   cfg.Server.RateLimitRPS,
		Burst: cfg.Server.RateLimitBurst,
	}, logger)
	go limiter.Run(ctx)

	rb := response.NewBuilder(&response.Config{
		PrettyJSON:         cfg.IsDevelopment(),
		IncludeRequestID:   true,
		IncludeTimestamp:   true,
		APIVersion:         "v1",
		MaskInternalErrors: cfg.IsProduction(),
	}, logger)

	handler := router.SetupRouter(sc, rb, logger, router.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down application...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if reconciler != nil {
		if err := reconciler.Stop(shutdownCtx); err != nil {
			logger.Warn("Reconciler did not stop cleanly", zap.Error(err))
		}
	}
	return sc.Shutdown(shutdownCtx)
}

// buildInfrastructure selects the store, blob, cache and remote adapters
// named by the configuration.
func buildInfrastructure(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.Infrastructure, error) {
	var infra services.Infrastructure

	switch cfg.Store.DocumentProvider {
	case "postgres":
		mgr, err := database.Open(ctx, &cfg.Database, logger)
		if err != nil {
			return infra, err
		}
		if err := metrics.RegisterDBStats(mgr.DB(), "documents"); err != nil {
			logger.Warn("Failed to register database stats collector", zap.Error(err))
		}
		infra.DBManager = mgr
		infra.Documents = store.WithDeadline(store.NewPostgresStore(mgr.DB(), logger), cfg.Store.OperationTimeout)
	default:
		logger.Warn("Using in-memory document store; data is lost on restart")
		infra.Documents = store.WithDeadline(store.NewMemoryStore(), cfg.Store.OperationTimeout)
	}

	switch cfg.Store.BlobProvider {
	case "cloudinary":
		cc := store.DefaultCloudinaryConfig()
		cc.CloudName = cfg.Cloudinary.CloudName
		cc.APIKey = cfg.Cloudinary.APIKey
		cc.APISecret = cfg.Cloudinary.APISecret
		cc.Folder = cfg.Cloudinary.Folder
		if cfg.Cloudinary.MaxRetries > 0 {
			cc.MaxRetries = cfg.Cloudinary.MaxRetries
		}
		blobs, err := store.NewCloudinaryBlobStore(cc, logger)
		if err != nil {
			return infra, fmt.Errorf("failed to initialize blob store: %w", err)
		}
		infra.Blobs = blobs
	default:
		infra.Blobs = store.NewMemoryBlobStore(cfg.Store.BlobBaseURL)
	}

	c, err := cache.NewCache(&cache.Config{
		Provider:        cfg.Cache.Provider,
		TTL:             cfg.Cache.DefaultTTL,
		MaxKeys:         cfg.Cache.MaxKeys,
		CleanupInterval: cfg.Cache.CleanupInterval,
		EvictionEnabled: cfg.Cache.EvictionEnabled,
		KeyPrefix:       cfg.Cache.KeyPrefix,
		RedisURL:        cfg.Cache.RedisURL,
		PoolSize:        cfg.Cache.RedisPoolSize,
	}, logger)
	if err != nil {
		return infra, fmt.Errorf("failed to initialize cache: %w", err)
	}
	infra.Cache = c

	if cfg.Functions.BaseURL != "" {
		hc := store.DefaultHTTPCallerConfig()
		hc.BaseURL = cfg.Functions.BaseURL
		hc.ServiceSecret = cfg.Functions.ServiceSecret
		if cfg.Functions.Timeout > 0 {
			hc.Timeout = cfg.Functions.Timeout
		}
		hc.RPS = cfg.Functions.RPS
		if cfg.Functions.Burst > 0 {
			hc.Burst = cfg.Functions.Burst
		}
		if cfg.Functions.MaxRetries > 0 {
			hc.MaxRetries = cfg.Functions.MaxRetries
		}
		infra.Remote = store.NewHTTPCaller(hc, nil, logger)
	} else {
		logger.Warn("FUNCTIONS_BASE_URL is unset; referral lookups and notifications are disabled")
	}

	busCfg := events.DefaultEventBusConfig()
	if cfg.Rewards.EventWorkers > 0 {
		busCfg.WorkerCount = cfg.Rewards.EventWorkers
	}
	if cfg.Rewards.EventQueueSize > 0 {
		busCfg.BufferSize = cfg.Rewards.EventQueueSize
	}
	infra.EventBus = events.NewInMemoryEventBus(busCfg, logger)

	return infra, nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Logging.Format {
	case "json":
		zc.Encoding = "json"
		zc.EncoderConfig = zap.NewProductionEncoderConfig()
	case "console":
		zc.Encoding = "console"
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
