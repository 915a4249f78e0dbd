package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"wannagonna/internal/contextutils"
)

const (
	// RequestIDHeader is echoed on every response.
	RequestIDHeader = "X-Request-ID"
	// CorrelationIDHeader is accepted as a request id when X-Request-ID is absent.
	CorrelationIDHeader = "X-Correlation-ID"
)

// RequestID assigns a request id and a request-scoped logger to every request.
func RequestID(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = r.Header.Get(CorrelationIDHeader)
			}
			if requestID == "" {
				requestID = generateRequestID()
			}

			reqLogger := logger.With(
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("client_ip", getClientIP(r)),
			)

			ctx := contextutils.WithRequestID(r.Context(), requestID)
			ctx = contextutils.WithLogger(ctx, reqLogger)

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func generateRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}
	return id.String()
}

// getClientIP prefers proxy headers, then falls back to the peer address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
