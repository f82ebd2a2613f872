// Package kv abstracts the external key-value store that acts as the system
// of record for every persisted entity (orders, promo codes, OTP records,
// identity links, conversational state, idempotency markers).
//
// The Store interface mirrors the small set of primitives the application
// actually consumes: plain string keys with TTLs, lists, sorted sets, sets,
// and counters. It is implemented twice:
//   - Redis (production), see redis.go
//   - in-memory (tests and local development), see memory.go
//
// Services never talk to the Redis client directly; they depend on Store so
// business logic stays testable without a running server.
package kv

import (
	"context"
	"time"
)

// NoTTL marks a key that should not expire.
const NoTTL time.Duration = 0

// Store is the key-value contract consumed by the application.
//
// Implementations must be safe for concurrent use. All methods honor the
// provided context for cancellation and deadlines.
type Store interface {
	// Get returns the string value of key. The boolean reports presence;
	// a missing or expired key is ("", false, nil), not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A positive ttl bounds the key's lifetime;
	// NoTTL persists it until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only when key does not already exist and reports
	// whether the write happened. It is the building block for idempotency
	// markers and cooldowns.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys. Deleting a missing key is not an error.
	Del(ctx context.Context, keys ...string) error

	// MGet returns the present values for keys, keyed by key. Missing keys
	// are simply absent from the result.
	MGet(ctx context.Context, keys ...string) (map[string]string, error)

	// LPush prepends values to the list at key, creating it when absent.
	LPush(ctx context.Context, key string, values ...string) error

	// LRange returns list elements between start and stop inclusive,
	// following Redis index semantics (negative indexes count from the end).
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim keeps only list elements between start and stop inclusive.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// ZAdd inserts member with score into the sorted set at key, replacing
	// the member's previous score if present.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRevRange returns members ordered by descending score, between start
	// and stop inclusive.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Incr atomically increments the integer at key and returns the result.
	// A missing key counts from zero.
	//
	// Incr and Expire are part of the store's primitive surface so counter
	// state (attempt budgets, usage tallies) can move between backends
	// without widening the interface later; only the backend tests call
	// them today.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
