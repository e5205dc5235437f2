package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/jun/stravastats/internal/model"
)

// GenerateVerifier returns a PKCE code verifier: 32 random bytes,
// unpadded base64url, 43 characters over [A-Za-z0-9_-].
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge is the S256 code challenge for verifier.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewState returns a CSRF state value: 32 random bytes, hex encoded.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsExpired reports whether a token expiring at expiresAt (epoch seconds)
// should be refreshed at now. The boundary now == expiresAt-buffer counts as expired.
func IsExpired(expiresAt int64, now time.Time, buffer time.Duration) bool {
	return model.TokenState{ExpiresAt: expiresAt}.Expired(now, buffer)
}
