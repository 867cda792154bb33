package playbackmodule

import (
	"context"
	"time"
)

// MemoryRegistry is the single-instance session registry. All admission
// state is owned by one actor goroutine and every operation is a command
// sent to it, so the quota check and the membership write cannot interleave
// with another caller's. Expiry is lazy: entries past their deadline are
// purged when the user or session is next read.
type MemoryRegistry struct {
	cmds chan func()
	stop chan struct{}

	// owned by the actor goroutine
	sessions map[string]*SessionState
	members  map[string]map[string]struct{}

	now func() time.Time
}

// NewMemoryRegistry creates and starts an in-process session registry
func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{
		cmds:     make(chan func()),
		stop:     make(chan struct{}),
		sessions: make(map[string]*SessionState),
		members:  make(map[string]map[string]struct{}),
		now:      time.Now,
	}
	go r.run()
	return r
}

// Close stops the actor goroutine. The command channel is unbuffered, so a
// call racing with Close either runs to completion or fails with
// context.Canceled; no caller is left blocked.
func (r *MemoryRegistry) Close() {
	close(r.stop)
}

func (r *MemoryRegistry) run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd()
		case <-r.stop:
			return
		}
	}
}

// send runs fn on the actor goroutine and waits for it to finish
func (r *MemoryRegistry) send(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case r.cmds <- func() {
		fn()
		close(done)
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stop:
		return context.Canceled
	}
	<-done
	return nil
}

// Acquire implements SessionRegistry
func (r *MemoryRegistry) Acquire(ctx context.Context, userID string, limit int, state SessionState, ttl time.Duration) (bool, error) {
	var granted bool
	err := r.send(ctx, func() {
		now := r.now()
		r.purgeUser(userID, now)

		if len(r.members[userID]) >= limit {
			return
		}

		s := state
		s.ExpiresAt = now.Add(ttl)
		if !s.TokenExpiresAt.IsZero() && s.ExpiresAt.After(s.TokenExpiresAt) {
			s.ExpiresAt = s.TokenExpiresAt
		}
		r.sessions[s.SessionID] = &s
		if r.members[userID] == nil {
			r.members[userID] = make(map[string]struct{})
		}
		r.members[userID][s.SessionID] = struct{}{}
		granted = true
	})
	return granted, err
}

// Get implements SessionRegistry
func (r *MemoryRegistry) Get(ctx context.Context, sessionID string) (*SessionState, error) {
	var found *SessionState
	err := r.send(ctx, func() {
		if s := r.liveSession(sessionID, r.now()); s != nil {
			copied := *s
			found = &copied
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrSessionNotFound
	}
	return found, nil
}

// Touch implements SessionRegistry
func (r *MemoryRegistry) Touch(ctx context.Context, sessionID string, ttl time.Duration) (*SessionState, error) {
	var refreshed *SessionState
	err := r.send(ctx, func() {
		now := r.now()
		s := r.liveSession(sessionID, now)
		if s == nil {
			return
		}

		target := now.Add(ttl)
		if !s.TokenExpiresAt.IsZero() && target.After(s.TokenExpiresAt) {
			target = s.TokenExpiresAt
		}
		s.ExpiresAt = target

		copied := *s
		refreshed = &copied
	})
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, ErrSessionExpired
	}
	return refreshed, nil
}

// Release implements SessionRegistry
func (r *MemoryRegistry) Release(ctx context.Context, userID, sessionID string) error {
	return r.send(ctx, func() {
		delete(r.sessions, sessionID)
		if members := r.members[userID]; members != nil {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(r.members, userID)
			}
		}
	})
}

// ActiveSessions implements SessionRegistry
func (r *MemoryRegistry) ActiveSessions(ctx context.Context, userID string) ([]SessionState, error) {
	var out []SessionState
	err := r.send(ctx, func() {
		now := r.now()
		r.purgeUser(userID, now)
		for sessionID := range r.members[userID] {
			out = append(out, *r.sessions[sessionID])
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// liveSession returns the session if it has not expired, purging it
// otherwise. Must run on the actor goroutine.
func (r *MemoryRegistry) liveSession(sessionID string, now time.Time) *SessionState {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if !s.ExpiresAt.After(now) {
		delete(r.sessions, sessionID)
		if members := r.members[s.UserID]; members != nil {
			delete(members, sessionID)
		}
		return nil
	}
	return s
}

// purgeUser drops the user's expired sessions. Must run on the actor
// goroutine.
func (r *MemoryRegistry) purgeUser(userID string, now time.Time) {
	for sessionID := range r.members[userID] {
		s, ok := r.sessions[sessionID]
		if !ok || !s.ExpiresAt.After(now) {
			delete(r.sessions, sessionID)
			delete(r.members[userID], sessionID)
		}
	}
	if len(r.members[userID]) == 0 {
		delete(r.members, userID)
	}
}
