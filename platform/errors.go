package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/pulsedash/dashboard/models"
)

// Kind classifies an upstream failure. Rate limits, server errors and
// timeouts are transient; unauthorized and malformed responses are not.
type Kind int

const (
	KindRateLimited Kind = iota
	KindUnauthorized
	KindServerError
	KindTimeout
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure from one platform.
type Error struct {
	Platform   models.Platform
	Kind       Kind
	StatusCode int

	cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Platform, e.Kind)

	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}

	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}

	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the breaker may retry this failure.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServerError, KindTimeout:
		return true
	default:
		return false
	}
}

// FromStatus classifies a non-2xx HTTP status: 429 and 5xx are transient,
// 401/403 are unauthorized, any other 4xx is a malformed request.
func FromStatus(p models.Platform, status int) *Error {
	e := &Error{Platform: p, StatusCode: status}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status >= 500:
		e.Kind = KindServerError
	default:
		e.Kind = KindMalformed
	}

	return e
}

// FromTransport classifies a failed round trip. Timeouts get their own
// kind so they stay distinguishable from server errors; other network
// failures are treated as transient server errors.
func FromTransport(p models.Platform, err error) *Error {
	e := &Error{Platform: p, cause: err}

	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
	case errors.Is(err, context.Canceled):
		e.Kind = KindMalformed // caller went away; never retried
	default:
		e.Kind = KindServerError
	}

	return e
}

// IsUnauthorized reports whether err is a classified unauthorized failure,
// the signal for the credential layer to attempt a refresh.
func IsUnauthorized(err error) bool {
	var e *Error

	return errors.As(err, &e) && e.Kind == KindUnauthorized
}
