package playbackmodule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(sessionID, userID string) SessionState {
	return SessionState{
		SessionID: sessionID,
		UserID:    userID,
		FilmID:    "film-1",
		DeviceID:  "device-1",
		Quality:   "auto",
		StartTime: time.Now(),
	}
}

func TestMemoryRegistryAcquire(t *testing.T) {
	registry := NewMemoryRegistry()
	defer registry.Close()
	ctx := context.Background()

	granted, err := registry.Acquire(ctx, "user-1", 1, testState("s-1", "user-1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = registry.Acquire(ctx, "user-1", 1, testState("s-2", "user-1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, granted, "second session must be refused at limit 1")

	// Another user is unaffected.
	granted, err = registry.Acquire(ctx, "user-2", 1, testState("s-3", "user-2"), time.Hour)
	require.NoError(t, err)
	assert.True(t, granted)

	// Releasing frees the slot.
	require.NoError(t, registry.Release(ctx, "user-1", "s-1"))
	granted, err = registry.Acquire(ctx, "user-1", 1, testState("s-2", "user-1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestMemoryRegistryConcurrentAcquire(t *testing.T) {
	registry := NewMemoryRegistry()
	defer registry.Close()
	ctx := context.Background()

	const attempts = 50
	const limit = 2

	var grantedCount int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			granted, err := registry.Acquire(ctx, "user-1", limit,
				testState(fmt.Sprintf("s-%d", i), "user-1"), time.Hour)
			assert.NoError(t, err)
			if granted {
				atomic.AddInt64(&grantedCount, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(limit), grantedCount, "exactly the quota must be admitted")

	active, err := registry.ActiveSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, limit)
}

func TestMemoryRegistryExpiry(t *testing.T) {
	registry := NewMemoryRegistry()
	defer registry.Close()
	ctx := context.Background()

	current := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }

	granted, err := registry.Acquire(ctx, "user-1", 1, testState("s-1", "user-1"), time.Hour)
	require.NoError(t, err)
	require.True(t, granted)

	// Still live just before expiry.
	current = current.Add(59 * time.Minute)
	state, err := registry.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", state.SessionID)

	// Past expiry the session is gone and never comes back.
	current = current.Add(2 * time.Minute)

	_, err = registry.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = registry.Touch(ctx, "s-1", time.Hour)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// The expired session no longer holds a slot.
	granted, err = registry.Acquire(ctx, "user-1", 1, testState("s-2", "user-1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestMemoryRegistryTouch(t *testing.T) {
	registry := NewMemoryRegistry()
	defer registry.Close()
	ctx := context.Background()

	current := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }

	state := testState("s-1", "user-1")
	state.TokenExpiresAt = current.Add(90 * time.Minute)

	granted, err := registry.Acquire(ctx, "user-1", 1, state, time.Hour)
	require.NoError(t, err)
	require.True(t, granted)

	t.Run("extends the deadline", func(t *testing.T) {
		current = current.Add(30 * time.Minute)
		refreshed, err := registry.Touch(ctx, "s-1", time.Hour)
		require.NoError(t, err)
		// now+1h exceeds the token cap; the deadline stops there.
		assert.Equal(t, state.TokenExpiresAt, refreshed.ExpiresAt)
	})

	t.Run("never extends past the token expiry", func(t *testing.T) {
		current = current.Add(45 * time.Minute)
		refreshed, err := registry.Touch(ctx, "s-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, state.TokenExpiresAt, refreshed.ExpiresAt)

		// Once the cap itself passes, the session is dead for good.
		current = state.TokenExpiresAt.Add(time.Second)
		_, err = registry.Touch(ctx, "s-1", time.Hour)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})
}

func TestMemoryRegistryReleaseIdempotent(t *testing.T) {
	registry := NewMemoryRegistry()
	defer registry.Close()
	ctx := context.Background()

	granted, err := registry.Acquire(ctx, "user-1", 1, testState("s-1", "user-1"), time.Hour)
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, registry.Release(ctx, "user-1", "s-1"))
	require.NoError(t, registry.Release(ctx, "user-1", "s-1"))
	require.NoError(t, registry.Release(ctx, "user-1", "never-existed"))
}

func TestMemoryRegistryContextCancellation(t *testing.T) {
	registry := NewMemoryRegistry()
	registry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := registry.Acquire(ctx, "user-1", 1, testState("s-1", "user-1"), time.Hour)
	assert.Error(t, err)
}
