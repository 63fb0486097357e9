package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Connections
	ErrConnectionNotFound = errors.New("connection not found")
	ErrChannelClosed      = errors.New("push channel closed")
	ErrChannelBlocked     = errors.New("push channel send timed out")
	ErrUserIDRequired     = errors.New("user ID is required")

	// Typing
	ErrTargetRequired = errors.New("target user ID is required")
	ErrTypingToSelf   = errors.New("cannot signal typing to yourself")

	// Webhooks
	ErrEndpointNotFound  = errors.New("webhook endpoint not found")
	ErrEndpointSuspended = errors.New("webhook endpoint is suspended")
	ErrDeliveryFailure   = errors.New("webhook delivery failed")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrURLRequired       = errors.New("webhook URL is required")
	ErrURLInvalid        = errors.New("webhook URL must be an absolute http(s) URL")
	ErrSecretRequired    = errors.New("webhook secret is required")
	ErrSecretTooShort    = errors.New("webhook secret is too short")
	ErrEventsRequired    = errors.New("at least one event type is required")
	ErrUnknownEventType  = errors.New("unknown webhook event type")

	// Domain payloads
	ErrMessageIDRequired     = errors.New("message ID is required")
	ErrSenderRequired        = errors.New("sender ID is required")
	ErrRecipientRequired     = errors.New("recipient ID is required")
	ErrAppointmentIDRequired = errors.New("appointment ID is required")
	ErrParticipantsRequired  = errors.New("appointment requires a client and a coach")
	ErrUnserializablePayload = errors.New("event payload is not JSON serializable")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// DeliveryError describes one failed webhook attempt. It unwraps to
// ErrDeliveryFailure so callers can match on the category.
type DeliveryError struct {
	StatusCode int
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("webhook delivery failed: %v", e.Cause)
	}
	return fmt.Sprintf("webhook delivery failed: unexpected status %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrDeliveryFailure, e.Cause}
	}
	return []error{ErrDeliveryFailure}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
