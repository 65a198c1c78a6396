package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is a failed call to the Life Lessons API or another remote service.
// Status is 0 when the request never produced a response.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func statusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }

func IsForbidden(err error) bool { return statusOf(err) == http.StatusForbidden }

func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsUnavailable reports transport failures, timeouts and 5xx responses:
// the remote state is unknown rather than refused.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	status := statusOf(err)
	return status == 0 || status >= 500
}
