// Package lock implements the named, Redis-backed exclusive lock that
// serializes pod commands and other at-most-one operations across the
// worker pool. It follows the Redis-cache-with-fallback shape the rest of
// the codebase uses for non-authoritative state, but here Redis itself is
// the source of truth for the lock, not a cache in front of the database.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "kd.exclusivelock."
	payloadKeyPrefix = "kd.exclusivelock-payload."
)

// ErrHeld is returned by Acquire when the lock is already held and blocking
// was not requested. A blocking Acquire whose ctx ends first returns
// ctx.Err() instead.
var ErrHeld = errors.New("lock: already held")

// ErrNotOwner is returned by Release/SetPayload when the token presented
// does not match the current holder (the lock was never held, already
// released, or expired and was re-acquired by someone else).
var ErrNotOwner = errors.New("lock: token does not match current holder")

// Manager acquires and releases named exclusive locks backed by Redis.
type Manager struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a lock Manager.
func New(rdb *redis.Client, logger *slog.Logger) *Manager {
	return &Manager{rdb: rdb, logger: logger}
}

// Handle is the serializable form of a held lock, shippable across process
// boundaries (e.g. handed to an asynchronous worker that releases it on
// completion).
type Handle struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func lockKey(name string) string    { return keyPrefix + name }
func payloadKey(name string) string { return payloadKeyPrefix + name }

// Acquire attempts to take the named lock for ttl. If blocking is true and
// the lock is held, Acquire polls until it becomes free or ctx is
// cancelled; otherwise it returns ErrHeld immediately.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration, blocking bool) (Handle, error) {
	token := uuid.New().String()

	for {
		ok, err := m.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
		if err != nil {
			return Handle{}, fmt.Errorf("acquiring lock %q: %w", name, err)
		}
		if ok {
			return Handle{Name: name, Token: token}, nil
		}
		if !blocking {
			return Handle{}, ErrHeld
		}

		select {
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// releaseScript atomically deletes the lock key (and its payload) only if
// the caller's token still matches the current holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("DEL", KEYS[2])
	return 1
else
	return 0
end
`)

// Release drops the lock if h's token still matches the current holder.
func (m *Manager) Release(ctx context.Context, h Handle) error {
	res, err := releaseScript.Run(ctx, m.rdb, []string{lockKey(h.Name), payloadKey(h.Name)}, h.Token).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %q: %w", h.Name, err)
	}
	if res == 0 {
		return ErrNotOwner
	}
	return nil
}

// setPayloadScript writes the payload only if the caller's token still
// matches the current holder, giving the payload key the lock key's
// remaining TTL (SET ... EX <ttl>), or no TTL if the lock key has none.
var setPayloadScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	local ttl = redis.call("TTL", KEYS[1])
	if ttl > 0 then
		redis.call("SET", KEYS[2], ARGV[2], "EX", ttl)
	else
		redis.call("SET", KEYS[2], ARGV[2])
	end
	return 1
else
	return 0
end
`)

// SetPayload attaches operation metadata to the lock, JSON-encoded. A TTL
// already set on the lock key is preserved on the payload key; a lock with
// no TTL gets a payload with no TTL either.
func (m *Manager) SetPayload(ctx context.Context, h Handle, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling lock payload: %w", err)
	}

	res, err := setPayloadScript.Run(ctx, m.rdb, []string{lockKey(h.Name), payloadKey(h.Name)}, h.Token, raw).Int()
	if err != nil {
		return fmt.Errorf("setting lock payload %q: %w", h.Name, err)
	}
	if res == 0 {
		return ErrNotOwner
	}
	return nil
}

// Payload reads the current payload for name, decoding it into dst.
// Returns redis.Nil if no payload is set.
func (m *Manager) Payload(ctx context.Context, name string, dst any) error {
	raw, err := m.rdb.Get(ctx, payloadKey(name)).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// IsHeld reports whether name is currently locked, without acquiring it.
func (m *Manager) IsHeld(ctx context.Context, name string) (bool, error) {
	n, err := m.rdb.Exists(ctx, lockKey(name)).Result()
	if err != nil {
		return false, fmt.Errorf("checking lock %q: %w", name, err)
	}
	return n > 0, nil
}
