package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wannagonna/internal/handlers/api/v1/rewards"
	"wannagonna/internal/metrics"
	"wannagonna/internal/middleware"
	"wannagonna/internal/response"
	"wannagonna/internal/services"
)

const healthTimeout = 5 * time.Second

// Options tunes the outer middleware chain.
type Options struct {
	CORSOrigins []string
	RateLimiter *middleware.RateLimiter
}

// SetupRouter configures all HTTP routes and returns the main handler
func SetupRouter(
	serviceCollection *services.ServiceCollection,
	responseBuilder *response.Builder,
	logger *zap.Logger,
	opts Options,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responseBuilder == nil {
		responseBuilder = response.NewBuilder(nil, logger)
	}

	r := chi.NewRouter()

	// Order matters: ids and logging first, recovery inside them so a
	// panic is still logged with its request id.
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/health", healthHandler(serviceCollection, responseBuilder))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	controller := rewards.NewRewardsController(serviceCollection, logger, responseBuilder)
	r.Route("/api/v1", func(api chi.Router) {
		if opts.RateLimiter != nil {
			api.Use(opts.RateLimiter.Middleware)
		}
		api.Get("/health", healthHandler(serviceCollection, responseBuilder))
		controller.Routes(api)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responseBuilder.WriteJSON(w, req, responseBuilder.Error(req.Context(), &services.ServiceError{
			Type:       "NOT_FOUND",
			Message:    "Route not found",
			StatusCode: http.StatusNotFound,
		}), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responseBuilder.WriteJSON(w, req, responseBuilder.Error(req.Context(), &services.ServiceError{
			Type:       "METHOD_NOT_ALLOWED",
			Message:    "Method not allowed",
			StatusCode: http.StatusMethodNotAllowed,
		}), http.StatusMethodNotAllowed)
	})

	return r
}

func healthHandler(sc *services.ServiceCollection, rb *response.Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		health := sc.HealthCheck(ctx)
		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		resp := rb.Success(r.Context(), health)
		resp.Success = status == http.StatusOK
		rb.WriteJSON(w, r, resp, status)
	}
}
