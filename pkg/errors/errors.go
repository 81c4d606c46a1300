// Package errors defines the error values shared by the catalog layers and
// their mapping onto HTTP answers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Engine adapters wrap these; handlers classify by them.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrUpstream       = errors.New("upstream rejected request")
)

// Error codes carried in the response envelope.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeInvalid     = "INVALID_INPUT"
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeUpstream    = "UPSTREAM_ERROR"
)

// AppError is an error with a client-facing code, message and HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newAppError(CodeNotFound, fmt.Sprintf("%s with id %s not found", resource, id), http.StatusNotFound, ErrNotFound)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newAppError(CodeInvalid, message, http.StatusBadRequest, ErrInvalidInput)
}

// Internal creates a 500 error that hides err from the client.
func Internal(err error) *AppError {
	return newAppError(CodeInternal, "an internal error occurred", http.StatusInternalServerError, err)
}

// Unavailable creates a 503 error for a dependency that cannot be reached.
func Unavailable(message string) *AppError {
	return newAppError(CodeUnavailable, message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// Upstream creates a 502 error for a request the search engine rejected.
func Upstream(message string) *AppError {
	return newAppError(CodeUpstream, message, http.StatusBadGateway, ErrUpstream)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Classify returns the AppError describing err. The first AppError in the
// chain wins; bare sentinels get a generic message, except invalid input
// whose text is meant for the caller. Anything else is internal.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newAppError(CodeNotFound, "resource not found", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidInput):
		return newAppError(CodeInvalid, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrServiceUnavail):
		return newAppError(CodeUnavailable, "search engine unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrUpstream):
		return newAppError(CodeUpstream, "search engine rejected the request", http.StatusBadGateway, err)
	default:
		return Internal(err)
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	return Classify(err).Status
}
