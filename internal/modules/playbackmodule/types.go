package playbackmodule

import (
	"errors"
	"time"
)

var (
	// ErrValidation wraps all input validation failures.
	ErrValidation = errors.New("validation error")
	// ErrAccessDenied is returned when the resolver grants no entitlement.
	ErrAccessDenied = errors.New("access denied")
	// ErrConcurrentStreamLimit is returned when admission would exceed the
	// user's concurrent-stream quota. User-actionable, not a fault.
	ErrConcurrentStreamLimit = errors.New("concurrent stream limit exceeded")
	// ErrSessionNotFound is returned when no live session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a heartbeat hits a session whose
	// TTL has elapsed. The session is never resurrected.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenUnauthorized is returned for a bad or expired token signature.
	ErrTokenUnauthorized = errors.New("invalid stream token")
	// ErrTokenForbidden is returned when a valid token claims another film.
	ErrTokenForbidden = errors.New("token not valid for this film")
)

// SessionState is the authoritative, ephemeral record of an admitted
// playback session. It lives only in the session registry and vanishes when
// its TTL elapses; the durable PlaybackLog row mirrors it for reporting.
type SessionState struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	FilmID         string    `json:"film_id"`
	DeviceID       string    `json:"device_id"`
	Quality        string    `json:"quality"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
	StartTime      time.Time `json:"start_time"`
	// ExpiresAt is the current TTL expiry; heartbeats push it forward.
	ExpiresAt time.Time `json:"expires_at"`
	// TokenExpiresAt caps how far heartbeats may extend ExpiresAt, so a
	// session never outlives the token issued with it.
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// StartInput is the request to admit a new playback session.
type StartInput struct {
	UserID    string
	FilmID    string
	DeviceID  string
	Quality   string
	Territory string
	IPAddress string
	UserAgent string
}

// StartResult is returned for an admitted session.
type StartResult struct {
	SessionID string        `json:"session_id"`
	FilmID    string        `json:"film_id"`
	Quality   string        `json:"quality"`
	StreamURL string        `json:"stream_url"`
	Tokens    *IssuedTokens `json:"tokens"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// HeartbeatResult acknowledges a session refresh.
type HeartbeatResult struct {
	SessionID string    `json:"session_id"`
	Updated   bool      `json:"updated"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StopResult acknowledges an explicit session stop.
type StopResult struct {
	SessionID string `json:"session_id"`
	Stopped   bool   `json:"stopped"`
}
