package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{200, KindUnknown},
		{400, KindClientError},
		{401, KindAuthFailed},
		{403, KindForbidden},
		{404, KindNotFound},
		{422, KindClientError},
		{429, KindRateLimited},
		{500, KindServerError},
		{503, KindServerError},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.code); got != tt.want {
			t.Errorf("KindForStatus(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindRateLimited:  true,
		KindServerError:  true,
		KindNetworkError: true,
	}
	for k := KindUnknown; k <= KindCanceled; k++ {
		if got := k.Retryable(); got != retryable[k] {
			t.Errorf("%s.Retryable() = %v, want %v", k, got, retryable[k])
		}
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("fetch page 2: %w", &Error{Op: "activities", Kind: KindForbidden, StatusCode: 403, Attempts: 1})
	if got := KindOf(err); got != KindForbidden {
		t.Errorf("Expected forbidden, got %s", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("Expected unknown for plain error, got %s", got)
	}
}

func TestCauseOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Cause
	}{
		{"nil", nil, CauseNone},
		{"session expired", fmt.Errorf("refresh: %w", ErrSessionExpired), CauseExpiredSession},
		{"no session", ErrNoSession, CauseExpiredSession},
		{"auth failed", &Error{Kind: KindAuthFailed}, CauseExpiredSession},
		{"rate limited", &Error{Kind: KindRateLimited}, CauseRateLimited},
		{"deadline", fmt.Errorf("page 1: %w", context.DeadlineExceeded), CauseTimeout},
		{"canceled kind", &Error{Kind: KindCanceled, Err: context.Canceled}, CauseTimeout},
		{"network timeout", &Error{Kind: KindNetworkError, Err: timeoutErr{}}, CauseTimeout},
		{"network", &Error{Kind: KindNetworkError, Err: errors.New("connection refused")}, CauseConnectivity},
		{"server", &Error{Kind: KindServerError, StatusCode: 502}, CauseGeneric},
		{"not found", &Error{Kind: KindNotFound, StatusCode: 404}, CauseGeneric},
		{"plain", errors.New("boom"), CauseGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CauseOf(tt.err); got != tt.want {
				t.Errorf("CauseOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Op: "athlete", Kind: KindServerError, StatusCode: 503, Attempts: 4, Err: errors.New("unavailable")}
	want := "athlete: server_error after 4 attempt(s) (HTTP 503): unavailable"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("Expected Unwrap to expose the cause")
	}
}
