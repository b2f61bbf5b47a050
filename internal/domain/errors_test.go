package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Invalid input",
			code:      ErrInvalidInput,
			message:   "Request body is not a valid evaluation request",
			details:   "reports[2].reported_at: cannot parse",
			requestID: "req-123",
		},
		{
			name:      "Database error",
			code:      ErrDatabaseError,
			message:   "Snapshot store unavailable",
			details:   "Unable to connect to PostgreSQL",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEngineError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		message string
		value   interface{}
	}{
		{
			name:    "String validation error",
			field:   "form",
			message: "form identifier is required",
			value:   "r-1",
		},
		{
			name:    "Integer validation error",
			field:   "start",
			message: "Must not be negative",
			value:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)

			if err.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, err.Field)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Value != tt.value {
				t.Errorf("Expected value %v, got %v", tt.value, err.Value)
			}

			expectedError := "validation error for field '" + tt.field + "': " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("catalog entry anc_visit: %w", ErrAmbiguousDefinition)
	if !errors.Is(wrapped, ErrAmbiguousDefinition) {
		t.Errorf("Expected wrapped error to match ErrAmbiguousDefinition")
	}

	err := Interval{Start: -1}.Validate()
	if !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

func TestErrorConstants(t *testing.T) {
	expectedValues := map[string]string{
		ErrInvalidInput:       "INVALID_INPUT",
		ErrValidation:         "VALIDATION_ERROR",
		ErrMissingField:       "MISSING_FIELD",
		ErrInvalidDate:        "INVALID_DATE",
		ErrNoQualifyingReport: "NO_QUALIFYING_REPORT",
		ErrAmbiguousCatalog:   "AMBIGUOUS_CATALOG_ENTRY",
		ErrDatabaseError:      "DATABASE_ERROR",
		ErrExternalAPI:        "EXTERNAL_API_ERROR",
		ErrRateLimit:          "RATE_LIMIT_EXCEEDED",
		ErrInternalServer:     "INTERNAL_SERVER_ERROR",
	}

	for actual, expected := range expectedValues {
		if actual != expected {
			t.Errorf("Expected %s, got %s", expected, actual)
		}
	}
}
