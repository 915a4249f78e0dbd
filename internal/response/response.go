package response

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wannagonna/internal/contextutils"
	"wannagonna/internal/models"
	"wannagonna/internal/services"
)

// ===============================
// RESPONSE CONFIGURATION
// ===============================

// Config holds configuration for the response system
type Config struct {
	PrettyJSON         bool   `json:"pretty_json"`
	IncludeRequestID   bool   `json:"include_request_id"`
	IncludeTimestamp   bool   `json:"include_timestamp"`
	APIVersion         string `json:"api_version"`
	MaskInternalErrors bool   `json:"mask_internal_errors"`
}

// DefaultConfig returns production-ready response configuration
func DefaultConfig() *Config {
	return &Config{
		PrettyJSON:         false,
		IncludeRequestID:   true,
		IncludeTimestamp:   true,
		APIVersion:         "v1",
		MaskInternalErrors: true,
	}
}

// ===============================
// RESPONSE TYPES
// ===============================

// APIResponse represents a standardized API response
type APIResponse struct {
	Success   bool         `json:"success"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
	Version   string       `json:"version,omitempty"`
}

// ErrorDetail represents error information in API responses
type ErrorDetail struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Fields  []FieldError           `json:"fields,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// FieldError represents field-specific validation errors
type FieldError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ===============================
// RESPONSE BUILDER
// ===============================

// Builder helps construct standardized responses
type Builder struct {
	config *Config
	logger *zap.Logger
}

// NewBuilder creates a new response builder
func NewBuilder(config *Config, logger *zap.Logger) *Builder {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{config: config, logger: logger}
}

// Success creates a successful API response
func (b *Builder) Success(ctx context.Context, data interface{}) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		RequestID: b.getRequestID(ctx),
		Timestamp: b.getTimestamp(),
		Version:   b.config.APIVersion,
	}
}

// Error creates an error response and logs it at a level matching its type.
func (b *Builder) Error(ctx context.Context, err error) *APIResponse {
	detail := b.convertError(err)
	b.logError(ctx, err, detail)
	return &APIResponse{
		Success:   false,
		Error:     detail,
		RequestID: b.getRequestID(ctx),
		Timestamp: b.getTimestamp(),
		Version:   b.config.APIVersion,
	}
}

// ===============================
// HTTP RESPONSE WRITERS
// ===============================

// WriteJSON writes a JSON response with appropriate headers
func (b *Builder) WriteJSON(w http.ResponseWriter, r *http.Request, response interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if statusCode >= 400 {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	if b.config.PrettyJSON {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(response); err != nil {
		b.logger.Error("Failed to encode JSON response",
			zap.Error(err),
			zap.String("request_id", contextutils.GetRequestID(r.Context())),
		)
	}
}

// WriteSuccess writes a successful JSON response
func (b *Builder) WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	b.WriteJSON(w, r, b.Success(r.Context(), data), http.StatusOK)
}

// WriteCreated writes a successful creation response
func (b *Builder) WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	b.WriteJSON(w, r, b.Success(r.Context(), data), http.StatusCreated)
}

// WriteError writes an error response with the status of its service error
func (b *Builder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if svcErr := services.GetServiceError(err); svcErr != nil {
		status = svcErr.GetStatusCode()
	}
	b.WriteJSON(w, r, b.Error(r.Context(), err), status)
}

// ===============================
// UTILITY METHODS
// ===============================

func (b *Builder) convertError(err error) *ErrorDetail {
	svcErr := services.GetServiceError(err)
	if svcErr == nil {
		svcErr = services.NewInternalError("Unexpected error", err)
	}

	detail := &ErrorDetail{
		Type:    svcErr.Type,
		Message: svcErr.Message,
		Code:    svcErr.Code,
	}

	for k, v := range svcErr.Details {
		if k == "fields" {
			if fields, ok := v.([]models.ValidationError); ok {
				for _, f := range fields {
					detail.Fields = append(detail.Fields, FieldError{
						Field:   f.Field,
						Value:   f.Value,
						Message: f.Message,
						Code:    f.Code,
					})
				}
				continue
			}
		}
		if detail.Details == nil {
			detail.Details = make(map[string]interface{})
		}
		detail.Details[k] = v
	}

	if b.config.MaskInternalErrors && svcErr.Type == services.ErrTypeInternal {
		detail.Message = "An internal error occurred"
		detail.Details = nil
	}
	return detail
}

func (b *Builder) getRequestID(ctx context.Context) string {
	if !b.config.IncludeRequestID {
		return ""
	}
	return contextutils.GetRequestID(ctx)
}

func (b *Builder) getTimestamp() int64 {
	if !b.config.IncludeTimestamp {
		return 0
	}
	return time.Now().Unix()
}

func (b *Builder) logError(ctx context.Context, err error, detail *ErrorDetail) {
	if detail == nil {
		return
	}
	logger := contextutils.Logger(ctx, b.logger)

	switch detail.Type {
	case services.ErrTypeValidation, services.ErrTypeCatalogMiss, services.ErrTypeMemberMiss:
		logger.Info("Request rejected",
			zap.String("error_type", detail.Type),
			zap.String("error_message", detail.Message),
		)
	case services.ErrTypeInternal:
		logger.Error("Internal error", zap.String("error_type", detail.Type), zap.Error(err))
	default:
		logger.Warn("Request failed", zap.String("error_type", detail.Type), zap.Error(err))
	}
}
