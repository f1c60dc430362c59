package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"rollcall/internal/store"
)

// AppError carries a machine-readable code and a caller-safe message.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    any
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError without wrapping.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an AppError around an existing error.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation reports a missing or malformed mandatory field.
func Validation(message string, details any) *AppError {
	e := New(CodeValidation, message, http.StatusBadRequest)
	e.Details = details
	return e
}

// NotFound reports an unresolved reference.
func NotFound(message string) *AppError {
	return New(CodeNotFound, message, http.StatusNotFound)
}

// ToHTTP maps any error onto the AppError returned to callers. Unknown errors
// become a generic 500 so internals never leak.
func ToHTTP(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrUnavailable) {
		return Wrap(err, CodeServiceUnavailable, "record store is unavailable, retry later", http.StatusServiceUnavailable)
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred", http.StatusInternalServerError)
}
