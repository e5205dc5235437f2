package auth

import (
	"errors"
	"fmt"
)

// ErrAuthentication is wrapped by every login failure; the caller must
// restart the authorization flow.
var ErrAuthentication = errors.New("authentication failed")

var (
	ErrAccessDenied     = fmt.Errorf("%w: access denied by user", ErrAuthentication)
	ErrProviderError    = fmt.Errorf("%w: provider returned an error", ErrAuthentication)
	ErrMissingParameter = fmt.Errorf("%w: missing code or state", ErrAuthentication)
	ErrInvalidState     = fmt.Errorf("%w: invalid state", ErrAuthentication)
	ErrMissingVerifier  = fmt.Errorf("%w: missing PKCE verifier", ErrAuthentication)
	ErrExchangeFailed   = fmt.Errorf("%w: token exchange failed", ErrAuthentication)
)

// ErrorCode returns the short code put in the login error redirect.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrProviderError):
		return "api_error"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameters"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrMissingVerifier):
		return "missing_verifier"
	case errors.Is(err, ErrExchangeFailed):
		return "token_exchange_failed"
	}
	return "auth_failed"
}
