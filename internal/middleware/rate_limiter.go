package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wannagonna/internal/contextutils"
)

// RateLimiterConfig configures per-client token buckets.
type RateLimiterConfig struct {
	RPS             float64
	Burst           int
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns limits suited to the rewards API.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPS:             20,
		Burst:           40,
		IdleTTL:         10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  RateLimiterConfig
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Call Run to evict idle clients.
func NewRateLimiter(config RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRateLimiterConfig()
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &RateLimiter{
		config:  config,
		logger:  logger,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	cutoff := rl.now().Add(-rl.config.IdleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Middleware rejects requests over the limit with 429. A non-positive RPS
// disables limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.config.RPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := rl.limiterFor(ip)

		allowed := limiter.AllowN(rl.now(), 1)
		remaining := int(limiter.TokensAt(rl.now()))
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			retry := time.Duration(float64(time.Second) / rl.config.RPS)
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			contextutils.Logger(r.Context(), rl.logger).Warn("Rate limit exceeded", zap.String("client_ip", ip))
			writeJSONError(w, r, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
