package chat

import (
	"errors"
	"fmt"
	"net/http"

	"chatgate/internal/models"
)

// ServiceError represents errors from the chat service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Fields     map[string]string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-success reply from the model provider.
type UpstreamError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// ErrBlocked is returned when the provider refuses to answer a prompt.
var ErrBlocked = errors.New("prompt blocked by model safety filters")

// ErrNotConfigured is returned when the model client has no credentials.
var ErrNotConfigured = errors.New("model client not configured")

// ErrPaced is returned when no outbound slot frees up before the request
// deadline. The provider was not called.
var ErrPaced = errors.New("no upstream slot available")

// Error constructors for common service errors

func NewValidationError(fields map[string]string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    "invalid chat request",
		StatusCode: http.StatusUnprocessableEntity,
		Fields:     fields,
		Err:        err,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUpstreamError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamError,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewUpstreamTimeoutError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamTimeout,
		Message:    "model did not respond in time",
		StatusCode: http.StatusGatewayTimeout,
		Err:        err,
	}
}

func NewUnavailableError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeServiceUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
