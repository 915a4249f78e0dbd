package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPCallerConfig configures HTTPCaller.
type HTTPCallerConfig struct {
	BaseURL       string
	ServiceSecret string        // HMAC key for the service bearer token
	Issuer        string        // iss claim of the service token
	Timeout       time.Duration // Deadline for one call including retries
	RPS           float64       // Client-side call rate; zero disables the limit
	Burst         int
	MaxRetries    int
	TokenTTL      time.Duration
}

// DefaultHTTPCallerConfig provides default configuration values.
func DefaultHTTPCallerConfig() HTTPCallerConfig {
	return HTTPCallerConfig{
		Issuer:     "wannagonna-rewards",
		Timeout:    10 * time.Second,
		RPS:        20,
		Burst:      10,
		MaxRetries: 3,
		TokenTTL:   5 * time.Minute,
	}
}

// HTTPCaller invokes trusted named callables over HTTP. A call is a POST to
// {BaseURL}/{name} with body {"data": payload}; the callee answers with
// {"result": ...} or {"error": {"status": ..., "message": ...}}.
type HTTPCaller struct {
	config  HTTPCallerConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

type callRequest struct {
	Data interface{} `json:"data"`
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *callError      `json:"error"`
}

type callError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewHTTPCaller creates an HTTPCaller. A nil client uses http.DefaultClient.
func NewHTTPCaller(config HTTPCallerConfig, client *http.Client, logger *zap.Logger) *HTTPCaller {
	defaults := DefaultHTTPCallerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = defaults.TokenTTL
	}
	if config.Issuer == "" {
		config.Issuer = defaults.Issuer
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RPS > 0 {
		limit = rate.Limit(config.RPS)
	}

	return &HTTPCaller{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, config.Burst),
		logger:  logger,
		now:     time.Now,
	}
}

// Call invokes name with payload and decodes the result into result when it
// is non-nil. Unavailable failures are retried with exponential backoff.
func (c *HTTPCaller) Call(ctx context.Context, name string, payload interface{}, result interface{}) error {
	if name == "" {
		return NewError(CodeInvalid, "call", name, fmt.Errorf("empty callable name"))
	}
	body, err := json.Marshal(callRequest{Data: payload})
	if err != nil {
		return NewError(CodeInvalid, "call", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var raw json.RawMessage
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(wrapContext("call", name, err))
		}
		res, err := c.do(ctx, name, body)
		if err != nil {
			if CodeOf(err) == CodeUnavailable {
				return err
			}
			return backoff.Permanent(err)
		}
		raw = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.config.Timeout
	err = backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx),
		func(err error, d time.Duration) {
			c.logger.Warn("Remote call failed, retrying",
				zap.String("callable", name),
				zap.Error(err),
				zap.Duration("backoff", d))
		},
	)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return err
		}
		return wrapContext("call", name, err)
	}

	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return NewError(CodeInvalid, "call", name, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func (c *HTTPCaller) do(ctx context.Context, name string, body []byte) (json.RawMessage, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(CodeInvalid, "call", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.ServiceSecret != "" {
		token, err := c.serviceToken()
		if err != nil {
			return nil, NewError(CodeInvalid, "call", name, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(CodeTimeout, "call", name, ctx.Err())
		}
		return nil, NewError(CodeUnavailable, "call", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewError(CodeUnavailable, "call", name, err)
	}

	var decoded callResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil && resp.StatusCode < 300 {
			return nil, NewError(CodeInvalid, "call", name, fmt.Errorf("decode response: %w", err))
		}
	}
	if decoded.Error != nil {
		return nil, NewError(codeForStatus(decoded.Error.Status, resp.StatusCode), "call", name, errors.New(decoded.Error.Message))
	}
	if resp.StatusCode >= 300 {
		return nil, NewError(codeForHTTP(resp.StatusCode), "call", name, fmt.Errorf("http status %d", resp.StatusCode))
	}
	return decoded.Result, nil
}

func (c *HTTPCaller) serviceToken() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.config.Issuer,
		Subject:   "rewards-engine",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.config.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.ServiceSecret))
}

func codeForStatus(status string, httpStatus int) Code {
	switch strings.ToUpper(status) {
	case "NOT_FOUND":
		return CodeNotFound
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return CodePermissionDenied
	case "UNAVAILABLE", "RESOURCE_EXHAUSTED", "ABORTED":
		return CodeUnavailable
	case "DEADLINE_EXCEEDED":
		return CodeTimeout
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION", "OUT_OF_RANGE":
		return CodeInvalid
	}
	return codeForHTTP(httpStatus)
}

func codeForHTTP(status int) Code {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CodePermissionDenied
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeInvalid
	}
	return CodeUnavailable
}

var _ RemoteCaller = (*HTTPCaller)(nil)
