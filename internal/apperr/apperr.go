// Package apperr turns any error raised while serving a request into a flat
// AppError that handlers can render and admins can inspect.
package apperr

import (
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeConflict         Code = "CONFLICT"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeNetwork          Code = "NETWORK_ERROR"
	CodeDatabase         Code = "DATABASE_ERROR"
	CodePayment          Code = "PAYMENT_ERROR"
	CodeStorage          Code = "STORAGE_ERROR"
	CodeUnknown          Code = "UNKNOWN_ERROR"
)

// HTTPStatus maps a code to the status written by Respond.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNetwork:
		return http.StatusBadGateway
	case CodePayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the single error shape returned to clients.
type AppError struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// WithContext returns a copy of e with the given keys merged into its context.
func (e *AppError) WithContext(ctx map[string]interface{}) *AppError {
	cp := *e
	cp.Context = make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	for k, v := range ctx {
		cp.Context[k] = v
	}
	return &cp
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return New(code, message)
	}
	return &AppError{Code: code, Message: message, Details: err.Error(), cause: err}
}

func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

func NotFound(what string) *AppError {
	return New(CodeNotFound, what+" not found")
}

func Forbidden(message string) *AppError {
	return New(CodePermissionDenied, message)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

// Is reports whether err classifies to code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Classify(err, nil).Code == code
}
