package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Cloudinary CloudinaryConfig
	Functions  FunctionsConfig
	Rewards    RewardsConfig
	Logging    LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
	MaxHeaderBytes  int
	ServerName      string
	CORSOrigins     []string
	RateLimitRPS    float64 // per client IP; 0 disables limiting
	RateLimitBurst  int
}

// StoreConfig selects the document and blob adapters.
type StoreConfig struct {
	DocumentProvider string // memory | postgres
	BlobProvider     string // memory | cloudinary
	BlobBaseURL      string // base of URLs handed out by the memory blob store
	OperationTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL settings for the postgres document provider
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
	HealthTimeout   time.Duration
}

// CacheConfig holds key-value cache settings
type CacheConfig struct {
	Provider        string // memory | redis
	RedisURL        string
	RedisPoolSize   int
	MaxKeys         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	EvictionEnabled bool
	KeyPrefix       string
}

// CloudinaryConfig holds badge artwork storage credentials
type CloudinaryConfig struct {
	CloudName  string
	APIKey     string
	APISecret  string
	Folder     string
	MaxRetries int
}

// FunctionsConfig holds settings for the trusted remote callables
type FunctionsConfig struct {
	BaseURL       string
	ServiceSecret string
	Timeout       time.Duration
	RPS           float64
	Burst         int
	MaxRetries    int
}

// RewardsConfig holds rewards engine tunables
type RewardsConfig struct {
	ProfileBadgeID       string
	ReferralBadgeID      string
	ImageCacheWindow     time.Duration
	ImageProbeTimeout    time.Duration
	ImageConcurrency     int
	CatalogTTL           time.Duration
	ReconcileEnabled     bool
	ReconcileSchedule    string
	EventWorkers         int
	EventQueueSize       int
	NotificationsEnabled bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Outside production the
// matching .env.{GO_ENV} file, or .env, is loaded first.
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load() // fallback to .env
		}
	}

	config := &Config{
		Server:     loadServerConfig(env),
		Store:      loadStoreConfig(),
		Database:   loadDatabaseConfig(env),
		Cache:      loadCacheConfig(),
		Cloudinary: loadCloudinaryConfig(),
		Functions:  loadFunctionsConfig(),
		Rewards:    loadRewardsConfig(),
		Logging:    loadLoggingConfig(env),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadServerConfig(env string) ServerConfig {
	config := ServerConfig{
		Port:            getEnv("PORT", "9000"),
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Environment:     env,
		ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		GracefulTimeout: getDurationEnv("GRACEFUL_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:  getIntEnv("MAX_HEADER_BYTES", 1<<20),
		ServerName:      getEnv("SERVER_NAME", "WannaGonna Rewards"),
		CORSOrigins:     getListEnv("CORS_ALLOWED_ORIGINS", "*"),
		RateLimitRPS:    getFloat64Env("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getIntEnv("RATE_LIMIT_BURST", 40),
	}

	if env != "production" {
		config.GracefulTimeout = getDurationEnv("GRACEFUL_TIMEOUT", 10*time.Second)
	}
	return config
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		DocumentProvider: strings.ToLower(getEnv("STORE_PROVIDER", "memory")),
		BlobProvider:     strings.ToLower(getEnv("BLOB_PROVIDER", "memory")),
		BlobBaseURL:      getEnv("BLOB_BASE_URL", "http://localhost:9000/static"),
		OperationTimeout: getDurationEnv("STORE_TIMEOUT", 10*time.Second),
	}
}

func loadDatabaseConfig(env string) DatabaseConfig {
	config := DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		HealthTimeout:   getDurationEnv("DB_HEALTH_TIMEOUT", 30*time.Second),
	}

	if env == "production" {
		config.HealthTimeout = getDurationEnv("DB_HEALTH_TIMEOUT", 60*time.Second)
	}
	return config
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Provider:        strings.ToLower(getEnv("CACHE_PROVIDER", "memory")),
		RedisURL:        getEnv("REDIS_URL", ""),
		RedisPoolSize:   getIntEnv("REDIS_POOL_SIZE", 10),
		MaxKeys:         getIntEnv("CACHE_MAX_KEYS", 10000),
		DefaultTTL:      getDurationEnv("CACHE_DEFAULT_TTL", time.Hour),
		CleanupInterval: getDurationEnv("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		EvictionEnabled: getBoolEnv("CACHE_EVICTION_ENABLED", true),
		KeyPrefix:       getEnv("CACHE_KEY_PREFIX", "wannagonna:"),
	}
}

func loadCloudinaryConfig() CloudinaryConfig {
	return CloudinaryConfig{
		CloudName:  getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:     getEnv("CLOUDINARY_API_KEY", ""),
		APISecret:  getEnv("CLOUDINARY_API_SECRET", ""),
		Folder:     getEnv("CLOUDINARY_FOLDER", ""),
		MaxRetries: getIntEnv("CLOUDINARY_MAX_RETRIES", 3),
	}
}

func loadFunctionsConfig() FunctionsConfig {
	return FunctionsConfig{
		BaseURL:       getEnv("FUNCTIONS_BASE_URL", ""),
		ServiceSecret: getEnv("FUNCTIONS_SERVICE_SECRET", ""),
		Timeout:       getDurationEnv("FUNCTIONS_TIMEOUT", 10*time.Second),
		RPS:           getFloat64Env("FUNCTIONS_RPS", 20),
		Burst:         getIntEnv("FUNCTIONS_BURST", 10),
		MaxRetries:    getIntEnv("FUNCTIONS_MAX_RETRIES", 3),
	}
}

func loadRewardsConfig() RewardsConfig {
	return RewardsConfig{
		ProfileBadgeID:       getEnv("REWARDS_PROFILE_BADGE_ID", "profileComplete"),
		ReferralBadgeID:      getEnv("REWARDS_REFERRAL_BADGE_ID", "buddyBuilder"),
		ImageCacheWindow:     getDurationEnv("REWARDS_IMAGE_CACHE_WINDOW", 24*time.Hour),
		ImageProbeTimeout:    getDurationEnv("REWARDS_IMAGE_PROBE_TIMEOUT", 30*time.Second),
		ImageConcurrency:     getIntEnv("REWARDS_IMAGE_CONCURRENCY", 10),
		CatalogTTL:           getDurationEnv("REWARDS_CATALOG_TTL", 5*time.Minute),
		ReconcileEnabled:     getBoolEnv("REWARDS_RECONCILE_ENABLED", true),
		ReconcileSchedule:    getEnv("REWARDS_RECONCILE_SCHEDULE", "@daily"),
		EventWorkers:         getIntEnv("EVENT_WORKERS", 4),
		EventQueueSize:       getIntEnv("EVENT_QUEUE_SIZE", 1000),
		NotificationsEnabled: getBoolEnv("REWARDS_NOTIFICATIONS_ENABLED", true),
	}
}

func loadLoggingConfig(env string) LoggingConfig {
	return LoggingConfig{
		Level:  getEnv("LOG_LEVEL", getDefaultLogLevel(env)),
		Format: getEnv("LOG_FORMAT", getDefaultLogFormat(env)),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if c.Store.DocumentProvider == "postgres" {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database config: %w", err)
		}
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if c.Store.BlobProvider == "cloudinary" {
		if err := c.Cloudinary.Validate(); err != nil {
			return fmt.Errorf("cloudinary config: %w", err)
		}
	}
	if err := c.Functions.Validate(c.IsProduction()); err != nil {
		return fmt.Errorf("functions config: %w", err)
	}
	if err := c.Rewards.Validate(); err != nil {
		return fmt.Errorf("rewards config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("ReadTimeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("WriteTimeout must be positive")
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

func (s *StoreConfig) Validate() error {
	switch s.DocumentProvider {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_PROVIDER %q", s.DocumentProvider)
	}
	switch s.BlobProvider {
	case "memory", "cloudinary":
	default:
		return fmt.Errorf("unknown BLOB_PROVIDER %q", s.BlobProvider)
	}
	if s.OperationTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

func (d *DatabaseConfig) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("MaxOpenConns must be positive")
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("MaxIdleConns cannot be greater than MaxOpenConns")
	}
	if d.ConnMaxLifetime <= 0 {
		return fmt.Errorf("ConnMaxLifetime must be positive")
	}
	return nil
}

func (c *CacheConfig) Validate() error {
	switch c.Provider {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown CACHE_PROVIDER %q", c.Provider)
	}
	if c.MaxKeys <= 0 {
		return fmt.Errorf("CACHE_MAX_KEYS must be positive")
	}
	return nil
}

func (c *CloudinaryConfig) Validate() error {
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required")
	}
	return nil
}

func (f *FunctionsConfig) Validate(production bool) error {
	if f.Timeout <= 0 {
		return fmt.Errorf("FUNCTIONS_TIMEOUT must be positive")
	}
	if f.RPS < 0 {
		return fmt.Errorf("FUNCTIONS_RPS cannot be negative")
	}
	if production && f.BaseURL != "" && f.ServiceSecret == "" {
		return fmt.Errorf("FUNCTIONS_SERVICE_SECRET must be set for production")
	}
	return nil
}

func (r *RewardsConfig) Validate() error {
	if r.ProfileBadgeID == "" || r.ReferralBadgeID == "" {
		return fmt.Errorf("badge ids must not be empty")
	}
	if r.ImageCacheWindow <= 0 {
		return fmt.Errorf("REWARDS_IMAGE_CACHE_WINDOW must be positive")
	}
	if r.ImageProbeTimeout <= 0 {
		return fmt.Errorf("REWARDS_IMAGE_PROBE_TIMEOUT must be positive")
	}
	if r.ImageConcurrency <= 0 {
		return fmt.Errorf("REWARDS_IMAGE_CONCURRENCY must be positive")
	}
	if r.EventWorkers <= 0 || r.EventQueueSize <= 0 {
		return fmt.Errorf("event workers and queue size must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat64Env(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDefaultLogLevel(env string) string {
	switch env {
	case "production":
		return "info"
	default:
		return "debug"
	}
}

func getDefaultLogFormat(env string) string {
	switch env {
	case "production":
		return "json"
	default:
		return "console"
	}
}
