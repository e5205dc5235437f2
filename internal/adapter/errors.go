package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrSessionExpired is returned when the token cannot be refreshed and the user must log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoSession is returned when no token is stored for the session.
	ErrNoSession = errors.New("no authenticated session")
)

// Kind classifies a failed provider call.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthFailed
	KindRateLimited
	KindForbidden
	KindNotFound
	KindClientError
	KindServerError
	KindNetworkError
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindAuthFailed:   "auth_failed",
	KindRateLimited:  "rate_limited",
	KindForbidden:    "forbidden",
	KindNotFound:     "not_found",
	KindClientError:  "client_error",
	KindServerError:  "server_error",
	KindNetworkError: "network_error",
	KindCanceled:     "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether the retry policy may repeat a call that failed this way.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindServerError || k == KindNetworkError
}

// KindForStatus maps an HTTP status code to a Kind. 2xx maps to KindUnknown.
func KindForStatus(code int) Kind {
	switch {
	case code == 401:
		return KindAuthFailed
	case code == 403:
		return KindForbidden
	case code == 404:
		return KindNotFound
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindServerError
	case code >= 400:
		return KindClientError
	}
	return KindUnknown
}

// Error is the final outcome of a provider call that did not succeed.
type Error struct {
	Op         string // "athlete" or "activities"
	Kind       Kind
	StatusCode int // 0 when no response was received
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s after %d attempt(s)", e.Op, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Cause is the fixed set of reasons surfaced to the presentation layer.
type Cause string

const (
	CauseNone           Cause = ""
	CauseExpiredSession Cause = "expired-session"
	CauseRateLimited    Cause = "rate-limited"
	CauseTimeout        Cause = "timeout"
	CauseConnectivity   Cause = "connectivity"
	CauseGeneric        Cause = "generic"
)

// CauseOf classifies err into a Cause using typed errors only.
func CauseOf(err error) Cause {
	if err == nil {
		return CauseNone
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoSession) {
		return CauseExpiredSession
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CauseTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}

	switch KindOf(err) {
	case KindAuthFailed:
		return CauseExpiredSession
	case KindRateLimited:
		return CauseRateLimited
	case KindCanceled:
		return CauseTimeout
	case KindNetworkError:
		return CauseConnectivity
	}
	return CauseGeneric
}
