// file: internal/models/validation.go
package models

import (
	"fmt"
	"regexp"
	"strings"
)

// ===============================
// VALIDATION ERRORS
// ===============================

// ValidationError represents a validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("validation failed with %d errors", len(e))
}

// Add adds a validation error
func (e *ValidationErrors) Add(field, message, code string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// GetField returns all errors for a specific field
func (e ValidationErrors) GetField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range e {
		if err.Field == field {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// ===============================
// DOMAIN VALIDATORS
// ===============================

var (
	identifierRegex   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	referralCodeRegex = regexp.MustCompile(`^[A-Z0-9]{5}$`)
)

// IdentifierValidator checks member, badge and category ids. Ids become
// store path segments, so slashes are rejected.
func IdentifierValidator(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "required",
		}
	}
	if len(value) > 128 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be 128 characters or less", field),
			Code:    "too_long",
			Value:   value,
		}
	}
	if !identifierRegex.MatchString(value) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s may only contain letters, numbers, underscores and hyphens", field),
			Code:    "invalid_characters",
			Value:   value,
		}
	}
	return nil
}

// IsReferralCode reports whether code is a normalized referral code.
func IsReferralCode(code string) bool {
	return referralCodeRegex.MatchString(code)
}

// Validate checks an XP award before any I/O.
func (r AwardXPRequest) Validate() ValidationErrors {
	var errs ValidationErrors
	if r.Points <= 0 {
		errs.Add("points", "points must be positive", "min_value", r.Points)
	}
	if strings.TrimSpace(r.Title) == "" {
		errs.Add("title", "title is required", "required", nil)
	}
	return errs
}

// Validate checks the activity payload shape.
func (a Activity) Validate() ValidationErrors {
	var errs ValidationErrors
	if a.SDG != "" {
		if _, ok := a.SDG.SDGNumber(); !ok {
			errs.Add("activity.sdg", "sdg must be a number between 1 and 17", "out_of_range", string(a.SDG))
		}
	}
	if a.Organization != nil && a.Organization.ID != "" {
		if err := IdentifierValidator("activity.organization.id", a.Organization.ID); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}
