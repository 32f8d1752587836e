// Package kv defines the KeyValueStore (C1): opaque get/put/del with TTL,
// used for sessions, token records, rate counters, and authorization-code
// grants, per spec.md §2/§6. It owns all ephemeral state; the durable row
// in store/postgres is authoritative whenever the two disagree.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value (or has expired).
var ErrNotFound = errors.New("kv: key not found")

// Store is the opaque get/put/del-with-TTL interface every component that
// touches ephemeral state depends on. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL. ttl <= 0 means no
	// expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value under key only if key does not already exist,
	// returning whether the set happened. This is the primitive behind
	// every atomicity requirement in spec.md §5 (authorization-code
	// consumption, reservation submission, rotation marking).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Incr atomically increments the integer at key by 1, creating it at 1
	// if absent, and returns the new value. Used for rate counters and
	// failed_login_attempts (spec.md §5: "Failed-login increment uses
	// atomic increment").
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Expire sets (or refreshes) the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time-to-live for key, or 0 if the key is
	// absent or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SAdd adds member to the set at key.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error

	// SIsMember reports whether member is in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)
}

// Locker is the per-identity advisory lock named in spec.md §5 ("a named
// KeyValueStore lock with a 30-second lease"). It is implemented on top of
// Store.SetNX so any Store backing (Redis, in-memory) gets it for free.
type Locker struct {
	store Store
}

// NewLocker wraps store with the advisory-lock helper.
func NewLocker(store Store) *Locker {
	return &Locker{store: store}
}

// Lock attempts to acquire an advisory lock on key for lease, returning an
// unlock function. If the lock is already held, ok is false and unlock is
// nil.
func (l *Locker) Lock(ctx context.Context, key string, lease time.Duration) (unlock func(context.Context), ok bool, err error) {
	lockKey := "lock:" + key
	acquired, err := l.store.SetNX(ctx, lockKey, "1", lease)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return func(unlockCtx context.Context) { _ = l.store.Del(unlockCtx, lockKey) }, true, nil
}
