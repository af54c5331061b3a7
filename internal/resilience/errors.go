package resilience

import (
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// statusOverloaded is Anthropic's "overloaded" answer.
const statusOverloaded = 529

// StatusError records the HTTP status an upstream of a given kind answered
// with. Whether it is retried depends on both.
type StatusError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status is worth another attempt for the
// error's kind.
func (e *StatusError) Retryable() bool {
	return RetryableStatus(e.Kind, e.StatusCode)
}

// MarkStatus attaches the upstream kind and HTTP status to err.
func MarkStatus(kind Kind, err error, statusCode int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Kind: kind, StatusCode: statusCode, Err: err}
}

// RetryableStatus classifies an HTTP status per upstream kind. Throttling,
// timeouts and gateway failures are retried everywhere; the chat models
// also answer 529 when overloaded. Auth failures and conflicts never are:
// a CRM 401 needs a fresh token and a vector 409 means the resource exists.
func RetryableStatus(kind Kind, statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case statusOverloaded:
		return kind == KindChat
	default:
		return false
	}
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// AlreadyExists reports whether err is a vector store 409, which a create
// call treats as success.
func AlreadyExists(err error) bool {
	return hasStatus(err, KindVector, http.StatusConflict)
}

// Unauthorized reports whether err is a CRM 401, meaning the access token
// was rejected.
func Unauthorized(err error) bool {
	return hasStatus(err, KindCRM, http.StatusUnauthorized)
}

func hasStatus(err error, kind Kind, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Kind == kind && se.StatusCode == statusCode
}

// IsTransient reports whether err is worth retrying: a retryable status for
// its kind, a network timeout, or a dropped connection. An open circuit is
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
