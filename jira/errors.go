package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the closed taxonomy of integration failures.
type ErrorCode string

const (
	// transport
	CodeURLInvalid        ErrorCode = "URL_INVALID"
	CodeDNSError          ErrorCode = "DNS_ERROR"
	CodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeURLUnreachable    ErrorCode = "URL_UNREACHABLE"

	// auth
	CodeAuthConfig            ErrorCode = "AUTH_CONFIG_ERROR"
	CodeInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	CodeWrongAuthMethodCloud  ErrorCode = "WRONG_AUTH_METHOD_CLOUD"
	CodeWrongAuthMethodServer ErrorCode = "WRONG_AUTH_METHOD_SERVER"
	CodeForbidden             ErrorCode = "FORBIDDEN"
	CodeAuthenticationFailed  ErrorCode = "AUTHENTICATION_FAILED"

	// scope
	CodeNoProjects ErrorCode = "NO_PROJECTS"

	// protocol
	CodeAPINotFound      ErrorCode = "API_NOT_FOUND"
	CodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	CodeHTTPError        ErrorCode = "HTTP_ERROR"
	CodeUnexpected       ErrorCode = "UNEXPECTED_ERROR"

	// resource
	CodeNotFound ErrorCode = "NOT_FOUND"
	CodeInactive ErrorCode = "INACTIVE"

	// workflow
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// request handling
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeQueueFull      ErrorCode = "QUEUE_FULL"
)

// Error is the typed error returned by the client and the sync engine.
// Status is an HTTP-style status for translation at the controller boundary.
type Error struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Solution string    `json:"solution,omitempty"`
	Status   int       `json:"-"`
	Err      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with the default status for its code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusFor(code)}
}

// Errorf is NewError with formatting.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

func statusFor(code ErrorCode) int {
	switch code {
	case CodeURLInvalid, CodeAuthConfig, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeWrongAuthMethodCloud, CodeWrongAuthMethodServer, CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNoProjects:
		return http.StatusForbidden
	case CodeNotFound, CodeAPINotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeInactive, CodeInvalidTransition:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeDNSError, CodeConnectionRefused, CodeURLUnreachable, CodeHTTPError:
		return http.StatusBadGateway
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	case CodeUnexpected:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
