package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so cloned and wrapped
// copies still match their predefined value with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err keeping the code, status and message of base.
func WrapAs(err error, base *Error) *Error {
	return Wrap(err, base.Code, base.Status, base.Message)
}

// Predefined errors for common scenarios.
var (
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrDuplicateUser       = New("DUPLICATE_USER", http.StatusConflict, "user already exists")
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrInvalidRefreshToken = New("INVALID_REFRESH_TOKEN", http.StatusUnauthorized, "invalid refresh token")
	ErrInvalidToken        = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid token")
	ErrExpiredToken        = New("TOKEN_EXPIRED", http.StatusUnauthorized, "token has expired")
	ErrUnauthorized        = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden           = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound            = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict            = New("CONFLICT", http.StatusConflict, "conflict")
	ErrDispatch            = New("DISPATCH_FAILED", http.StatusServiceUnavailable, "sync could not be started, try again")
	ErrHashing             = New("HASHING_FAILED", http.StatusInternalServerError, "failed to process credentials")
	ErrTimeout             = New("TIMEOUT", http.StatusGatewayTimeout, "upstream operation timed out")
	ErrInternal            = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss signals an absent cache entry; it never reaches clients.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapAs(err, ErrTimeout)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps err as an internal error, mapping deadline expiry to ErrTimeout.
func Internal(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTimeout.Code, ErrTimeout.Status, message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}
