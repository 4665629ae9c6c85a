package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a Jira API error with type information.
// Code is the HTTP status code, or 0 when the request never got a response.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	URL     string
}

func (e *Error) Error() string {
	if e.Type == ErrorTypeParsing {
		return fmt.Sprintf("jira %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("jira %s error (status code: %d): %s", e.Type, e.Code, e.Message)
}

// Retryable reports whether the error is a transient server or connection failure
func (e *Error) Retryable() bool {
	return IsRetryableStatusCode(e.Code)
}

// FromStatus builds an Error for a non-successful HTTP response
func FromStatus(code int, url string) *Error {
	return &Error{
		Type:    TypeForStatus(code),
		Message: http.StatusText(code),
		Code:    code,
		URL:     url,
	}
}

// Network builds an Error for a request that failed before a response arrived
func Network(url string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNetwork,
		Message: err.Error(),
		Code:    0,
		URL:     url,
	}
}

// TypeForStatus maps an HTTP status code onto an ErrorType
func TypeForStatus(code int) ErrorType {
	switch {
	case code == 0:
		return ErrorTypeNetwork
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusNotFound:
		return ErrorTypeNotFound
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a transient error.
// 429 is deliberately absent: the tracker's throttling is handled by the page delay.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err wraps a retryable *Error
func IsRetryable(err error) bool {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// IsFatal reports whether err wraps an *Error. Every API error that reaches
// the caller aborts the run.
func IsFatal(err error) bool {
	var apiErr *Error
	return stderrors.As(err, &apiErr)
}

// StatusCode extracts the HTTP status code from err, or -1 if err is not an API error
func StatusCode(err error) int {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code
	}
	return -1
}
