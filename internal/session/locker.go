package session

import (
	"context"
)

// Locker serializes read-modify-write sequences on one session's state
// (token refresh, cache refetch) across concurrent requests.
type Locker interface {
	// Acquire blocks until the lock on key is held or ctx is done.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LockKey scopes a lock to one purpose within a session.
func LockKey(sessionID, purpose string) string {
	return sessionID + "#" + purpose
}
