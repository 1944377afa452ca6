// Package errors defines the service error taxonomy and its HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeRateLimited     ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream        ErrorCode = "UPSTREAM_ERROR"
	CodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	CodeUnavailable     ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error that knows how it should be presented over HTTP.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail key. It returns the receiver for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func NotFound(resource, id string) *ServiceError {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return newError(CodeNotFound, http.StatusNotFound, msg, nil)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Upstream reports a failure of the webhook or the Sheets API.
func Upstream(message string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, message, err)
}

func UpstreamTimeout(err error) *ServiceError {
	return newError(CodeUpstreamTimeout, http.StatusGatewayTimeout, "Upstream timed out", err)
}

func Unavailable(message string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message, err)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError unwraps err to a *ServiceError, or returns nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
