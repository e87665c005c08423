package internal

import (
	"errors"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrInternal     = errors.New("internal error")
)

// AppError is the error payload written to clients. Only the message is exposed.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error() + ": " + e.Message
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// WrapError tags kind, one of the sentinels above, with a client-facing message.
// The result still matches kind with errors.Is.
func WrapError(kind error, msg string) *AppError {
	return &AppError{Code: StatusFor(kind), Message: msg, Err: kind}
}

// PublicMessage returns the text to show a client for err. Server-side
// failures never leak their cause.
func PublicMessage(err error, fallback string) string {
	if StatusFor(err) >= http.StatusInternalServerError {
		return "Internal Server Error"
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// StatusFor maps an error of the taxonomy above to its HTTP status.
func StatusFor(err error) int {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Code
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
