package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error { return appErr.Origin }

// Standard error codes for the application
const (
	// Messaging errors
	ErrInvalidContent      = "INVALID_CONTENT"
	ErrSelfMessage         = "SELF_MESSAGE"
	ErrCounterpartNotFound = "COUNTERPART_NOT_FOUND"
	ErrNotAuthorized       = "NOT_AUTHORIZED"
	ErrInvalidTimestamp    = "INVALID_TIMESTAMP"

	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrInvalidToken = "INVALID_TOKEN"

	// Infrastructure errors
	ErrStoreUnavailable = "STORE_UNAVAILABLE"
	ErrActorTimeout     = "ACTOR_TIMEOUT"
	ErrTimeout          = "TIMEOUT"
	ErrInternal         = "INTERNAL"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewInvalidContentError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidContent,
		Message: "Invalid message content: " + reason,
	}
}

func NewSelfMessageError() *AppError {
	return &AppError{
		Code:    ErrSelfMessage,
		Message: "Cannot send a message to yourself",
	}
}

func NewCounterpartNotFoundError() *AppError {
	return &AppError{
		Code:    ErrCounterpartNotFound,
		Message: "Recipient not found",
	}
}

// NewNotAuthorizedError never carries details about the target so that
// callers cannot probe which identifiers exist.
func NewNotAuthorizedError() *AppError {
	return &AppError{
		Code:    ErrNotAuthorized,
		Message: "Not authorized",
	}
}

func NewStoreUnavailableError(operation string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrStoreUnavailable,
		Message: "Store unavailable: " + operation,
		Origin:  originalErr,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewActorTimeoutError(actorName string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  originalErr,
	}
}

// ErrorCode returns the AppError code found in err's chain, or "" if none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	switch ErrorCode(err) {
	case ErrUnauthorized, ErrInvalidToken:
		return true
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrCounterpartNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrInvalidContent, ErrSelfMessage, ErrInvalidTimestamp:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrNotAuthorized:
		return http.StatusForbidden
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
