// Package apperrors defines the coded errors shared by the quota ledger, the
// platform client and the HTTP layer. Codes are stable identifiers surfaced
// to API clients; upstream platform failures keep their detail here but are
// flattened to a generic message at the HTTP boundary.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// Ledger caps reached. Retryable after the daily reset.
	CodeQuotaExceeded     Code = "QUOTA_EXCEEDED"
	CodeUserQuotaExceeded Code = "USER_QUOTA_EXCEEDED"

	// Credential configuration problems.
	CodeNoCredentialAvailable Code = "NO_CREDENTIAL_AVAILABLE"
	CodeCredentialNotFound    Code = "CREDENTIAL_NOT_FOUND"

	// Upstream platform failures.
	CodePlatformAuthError     Code = "PLATFORM_AUTH_ERROR"
	CodePlatformQuotaExceeded Code = "PLATFORM_QUOTA_EXCEEDED"
	CodePlatformAPIError      Code = "PLATFORM_API_ERROR"

	CodeChannelNotFound Code = "CHANNEL_NOT_FOUND"
)

// Error carries a stable code plus optional upstream detail.
type Error struct {
	Code    Code
	Message string
	// UpstreamStatus is the HTTP status returned by the platform, when the
	// error originates there.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsPlatform reports whether err originated at the platform API.
func IsPlatform(err error) bool {
	switch CodeOf(err) {
	case CodePlatformAuthError, CodePlatformQuotaExceeded, CodePlatformAPIError:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status the HTTP layer should respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeQuotaExceeded, CodeUserQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeCredentialNotFound, CodeChannelNotFound:
		return http.StatusNotFound
	case CodeNoCredentialAvailable:
		return http.StatusServiceUnavailable
	case CodePlatformAuthError, CodePlatformQuotaExceeded, CodePlatformAPIError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
