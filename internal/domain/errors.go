package domain

import (
	"fmt"
	"time"
)

// EngineError represents a standardized error response at the HTTP and MCP
// surfaces.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrValidation         = "VALIDATION_ERROR"
	ErrMissingField       = "MISSING_FIELD"
	ErrInvalidDate        = "INVALID_DATE"
	ErrNoQualifyingReport = "NO_QUALIFYING_REPORT"
	ErrAmbiguousCatalog   = "AMBIGUOUS_CATALOG_ENTRY"
	ErrDatabaseError      = "DATABASE_ERROR"
	ErrExternalAPI        = "EXTERNAL_API_ERROR"
	ErrRateLimit          = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer     = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewEngineError creates a new EngineError with timestamp
func NewEngineError(code, message, details, requestID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
