package services

import (
	"errors"
	"fmt"
	"net/http"

	"wannagonna/internal/cache"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

// ===============================
// ERROR TYPES
// ===============================

// Error types of the rewards engine.
const (
	ErrTypeCatalogMiss           = "CATALOG_MISS"
	ErrTypeMemberMiss            = "MEMBER_MISS"
	ErrTypeStoreUnavailable      = "STORE_UNAVAILABLE"
	ErrTypeTimeout               = "TIMEOUT"
	ErrTypeNotificationFailure   = "NOTIFICATION_FAILURE"
	ErrTypeCacheWriteFull        = "CACHE_WRITE_FULL"
	ErrTypeReferralLookupFailure = "REFERRAL_LOOKUP_FAILURE"
	ErrTypeValidation            = "VALIDATION_ERROR"
	ErrTypePermissionDenied      = "PERMISSION_DENIED"
	ErrTypeInternal              = "INTERNAL_ERROR"
)

// ServiceError represents a structured service error
type ServiceError struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for this error
func (e *ServiceError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// WithDetail attaches a detail value and returns the error.
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ===============================
// ERROR CONSTRUCTORS
// ===============================

// NewValidationError creates an InvalidInput error
func NewValidationError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewFieldValidationError wraps field failures so renderers can list them.
func NewFieldValidationError(errs models.ValidationErrors) *ServiceError {
	return NewValidationError("Request validation failed", errs).WithDetail("fields", []models.ValidationError(errs))
}

// NewCatalogMissError reports an unknown badge or category.
func NewCatalogMissError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeCatalogMiss,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewMemberMissError reports an unknown member.
func NewMemberMissError(memberID string) *ServiceError {
	return (&ServiceError{
		Type:       ErrTypeMemberMiss,
		Message:    "Member not found",
		StatusCode: http.StatusNotFound,
	}).WithDetail("member_id", memberID)
}

// NewStoreUnavailableError reports a transient store failure.
func NewStoreUnavailableError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeStoreUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewTimeoutError reports an expired deadline.
func NewTimeoutError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewPermissionDeniedError reports a rejected store or remote call.
func NewPermissionDeniedError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypePermissionDenied,
		Message:    message,
		StatusCode: http.StatusForbidden,
		Cause:      cause,
	}
}

// NewNotificationFailureError wraps a failed notification outcall.
func NewNotificationFailureError(callable string, cause error) *ServiceError {
	return (&ServiceError{
		Type:       ErrTypeNotificationFailure,
		Message:    "Notification outcall failed",
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}).WithDetail("callable", callable)
}

// NewCacheWriteFullError wraps a cache quota rejection.
func NewCacheWriteFullError(key string, cause error) *ServiceError {
	return (&ServiceError{
		Type:       ErrTypeCacheWriteFull,
		Message:    "Cache write rejected: quota exceeded",
		StatusCode: http.StatusInsufficientStorage,
		Cause:      cause,
	}).WithDetail("key", key)
}

// NewReferralLookupError wraps a failed referral code lookup.
func NewReferralLookupError(cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeReferralLookupFailure,
		Message:    "Referral code lookup failed",
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       ErrTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ===============================
// ERROR UTILITIES
// ===============================

// MapStoreError translates a store failure into the service taxonomy.
// NotFound maps to the miss type named by missType.
func MapStoreError(err error, missType, message string) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if errors.Is(err, cache.ErrCacheFull) {
		return NewCacheWriteFullError("", err)
	}

	switch store.CodeOf(err) {
	case store.CodeNotFound:
		e := &ServiceError{Type: missType, Message: message, StatusCode: http.StatusNotFound, Cause: err}
		if missType == "" {
			e.Type = ErrTypeCatalogMiss
		}
		return e
	case store.CodeTimeout:
		return NewTimeoutError(message, err)
	case store.CodePermissionDenied:
		return NewPermissionDeniedError(message, err)
	case store.CodeInvalid:
		return NewValidationError(message, err)
	default:
		return NewStoreUnavailableError(message, err)
	}
}

// GetServiceError extracts a ServiceError from an error, or creates a generic one
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var verrs models.ValidationErrors
	if errors.As(err, &verrs) {
		return NewFieldValidationError(verrs)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Type == errorType
}

// IsValidationError checks if an error is an InvalidInput error
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrTypeValidation)
}

// IsTransient reports whether retrying the operation later may succeed.
func IsTransient(err error) bool {
	return IsErrorType(err, ErrTypeStoreUnavailable) || IsErrorType(err, ErrTypeTimeout)
}

// ===============================
// ERROR AGGREGATION
// ===============================

// ErrorGroup collects branch failures of a multi-step operation.
type ErrorGroup struct {
	Errors []error `json:"errors"`
}

// Error implements the error interface
func (eg *ErrorGroup) Error() string {
	if len(eg.Errors) == 0 {
		return "no errors"
	}
	if len(eg.Errors) == 1 {
		return eg.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d total): %v", len(eg.Errors), eg.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (eg *ErrorGroup) Unwrap() []error {
	return eg.Errors
}

// Add adds an error to the group
func (eg *ErrorGroup) Add(err error) {
	if err != nil {
		eg.Errors = append(eg.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (eg *ErrorGroup) HasErrors() bool {
	return len(eg.Errors) > 0
}

// ToServiceError converts the group to the first error's service error,
// keeping the count in the details.
func (eg *ErrorGroup) ToServiceError() *ServiceError {
	if !eg.HasErrors() {
		return nil
	}
	first := GetServiceError(eg.Errors[0])
	if len(eg.Errors) == 1 {
		return first
	}
	return (&ServiceError{
		Type:       first.Type,
		Message:    fmt.Sprintf("%s (and %d more)", first.Message, len(eg.Errors)-1),
		StatusCode: first.GetStatusCode(),
		Cause:      eg,
	}).WithDetail("error_count", len(eg.Errors))
}
