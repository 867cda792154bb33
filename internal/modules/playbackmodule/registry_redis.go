package playbackmodule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "session:"
	redisMembersPrefix = "active-streams:"
)

// acquireScript prunes expired members, checks the quota and admits the
// session in one atomic step. Anything less than a single script reintroduces
// the read-then-write race this registry exists to prevent.
var acquireScript = redis.NewScript(`
local membersKey = KEYS[1]
local sessionKey = KEYS[2]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local sessionID = ARGV[3]
local expiresAt = tonumber(ARGV[4])
local payload = ARGV[5]

redis.call('ZREMRANGEBYSCORE', membersKey, '-inf', now)
if redis.call('ZCARD', membersKey) >= limit then
  return 0
end

redis.call('ZADD', membersKey, expiresAt, sessionID)
local last = redis.call('ZRANGE', membersKey, -1, -1, 'WITHSCORES')
redis.call('PEXPIREAT', membersKey, tonumber(last[2]))
redis.call('SET', sessionKey, payload, 'PXAT', expiresAt)
return 1
`)

// touchScript refreshes a live session, capped at its token expiry. ZADD XX
// never re-adds a pruned member, so an expired session cannot be
// resurrected.
var touchScript = redis.NewScript(`
local sessionKey = KEYS[1]
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local membersPrefix = ARGV[3]
local sessionID = ARGV[4]

local payload = redis.call('GET', sessionKey)
if not payload then
  return false
end

local env = cjson.decode(payload)
local target = now + ttl
if env.token_expires_at_ms and env.token_expires_at_ms > 0 and target > env.token_expires_at_ms then
  target = env.token_expires_at_ms
end

redis.call('PEXPIREAT', sessionKey, target)
local membersKey = membersPrefix .. env.user_id
redis.call('ZADD', membersKey, 'XX', target, sessionID)
local last = redis.call('ZRANGE', membersKey, -1, -1, 'WITHSCORES')
if last[2] then
  redis.call('PEXPIREAT', membersKey, tonumber(last[2]))
end
return {payload, tostring(target)}
`)

// redisEnvelope is the stored session payload. The flat millisecond fields
// exist so the touch script can read them with cjson.
type redisEnvelope struct {
	State            SessionState `json:"state"`
	UserID           string       `json:"user_id"`
	TokenExpiresAtMS int64        `json:"token_expires_at_ms"`
}

// RedisRegistry is the multi-instance session registry. All admission state
// lives in Redis; the atomic primitives are Lua scripts so concurrent
// request handlers on any number of instances serialize on the store.
type RedisRegistry struct {
	client *redis.Client
	logger hclog.Logger
	now    func() time.Time
}

// NewRedisRegistry creates a Redis-backed session registry
func NewRedisRegistry(client *redis.Client, logger hclog.Logger) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		logger: logger.Named("session-registry"),
		now:    time.Now,
	}
}

// Acquire implements SessionRegistry
func (r *RedisRegistry) Acquire(ctx context.Context, userID string, limit int, state SessionState, ttl time.Duration) (bool, error) {
	now := r.now()
	state.ExpiresAt = now.Add(ttl)
	if !state.TokenExpiresAt.IsZero() && state.ExpiresAt.After(state.TokenExpiresAt) {
		state.ExpiresAt = state.TokenExpiresAt
	}

	payload, err := json.Marshal(redisEnvelope{
		State:            state,
		UserID:           userID,
		TokenExpiresAtMS: state.TokenExpiresAt.UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode session: %w", err)
	}

	granted, err := acquireScript.Run(ctx, r.client,
		[]string{redisMembersPrefix + userID, redisSessionPrefix + state.SessionID},
		now.UnixMilli(), limit, state.SessionID, state.ExpiresAt.UnixMilli(), payload,
	).Int()
	if err != nil {
		// Never retried here: a failed admission leaves no state, so the
		// caller retries the whole start instead.
		return false, fmt.Errorf("failed to run acquire: %w", err)
	}

	return granted == 1, nil
}

// Get implements SessionRegistry
func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (*SessionState, error) {
	payload, err := r.client.Get(ctx, redisSessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &env.State, nil
}

// Touch implements SessionRegistry
func (r *RedisRegistry) Touch(ctx context.Context, sessionID string, ttl time.Duration) (*SessionState, error) {
	res, err := touchScript.Run(ctx, r.client,
		[]string{redisSessionPrefix + sessionID},
		r.now().UnixMilli(), ttl.Milliseconds(), redisMembersPrefix, sessionID,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run touch: %w", err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("unexpected touch reply: %v", res)
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(parts[0].(string)), &env); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	var targetMS int64
	if _, err := fmt.Sscanf(parts[1].(string), "%d", &targetMS); err != nil {
		return nil, fmt.Errorf("unexpected touch expiry: %v", parts[1])
	}
	env.State.ExpiresAt = time.UnixMilli(targetMS)

	return &env.State, nil
}

// Release implements SessionRegistry. Both deletes are idempotent, so a
// double release is a no-op.
func (r *RedisRegistry) Release(ctx context.Context, userID, sessionID string) error {
	pipe := r.client.Pipeline()
	pipe.ZRem(ctx, redisMembersPrefix+userID, sessionID)
	pipe.Del(ctx, redisSessionPrefix+sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}

// ActiveSessions implements SessionRegistry
func (r *RedisRegistry) ActiveSessions(ctx context.Context, userID string) ([]SessionState, error) {
	now := r.now()
	ids, err := r.client.ZRangeByScore(ctx, redisMembersPrefix+userID, &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", now.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisSessionPrefix + id
	}
	payloads, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	var sessions []SessionState
	for _, p := range payloads {
		raw, ok := p.(string)
		if !ok {
			// Member outlived its session key; skip it.
			continue
		}
		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			r.logger.Warn("skipping undecodable session payload", "error", err)
			continue
		}
		sessions = append(sessions, env.State)
	}
	return sessions, nil
}
