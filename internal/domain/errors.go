package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across repositories and services
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("concurrent update conflict")
	ErrRetryExhausted = errors.New("retry budget exhausted")
	ErrInvalidFinding = errors.New("invalid finding")
	ErrSampleDone     = errors.New("sample is closed")
)

// APIError represents a structured error response
type APIError struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	Details       string    `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeReportFailure = "REPORT_SAVE_FAILED"
	ErrCodeInternal      = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, correlationID string) *APIError {
	return &APIError{
		Code:          code,
		Message:       message,
		Details:       details,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

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
