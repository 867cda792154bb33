package playbackmodule

import (
	"context"
	"time"
)

// SessionRegistry is the ephemeral, TTL-bound store of admitted sessions and
// per-user active-session membership. Expiry is purely passive: entries
// vanish when their TTL elapses and nothing sweeps them.
//
// Acquire is the one correctness-critical operation: the quota check and the
// membership write must be a single atomic step against the backing store.
// The in-process implementation serializes commands through an actor
// goroutine; the Redis implementation runs a Lua script. A read-then-write
// across two round trips would admit two sessions racing past the same
// count.
type SessionRegistry interface {
	// Acquire admits the session if the user's live-session count is below
	// limit. It either fully succeeds or leaves no trace.
	Acquire(ctx context.Context, userID string, limit int, state SessionState, ttl time.Duration) (bool, error)

	// Get returns the live session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*SessionState, error)

	// Touch extends the session's TTL and its membership TTL by ttl from
	// now, never past the session's token expiry. A missing or expired
	// session fails with ErrSessionExpired and is never resurrected.
	Touch(ctx context.Context, sessionID string, ttl time.Duration) (*SessionState, error)

	// Release removes the session and its membership. Releasing a
	// non-member is a no-op.
	Release(ctx context.Context, userID, sessionID string) error

	// ActiveSessions lists the user's live sessions.
	ActiveSessions(ctx context.Context, userID string) ([]SessionState, error)
}
