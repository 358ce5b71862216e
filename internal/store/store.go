// Package store defines the key-value contract the auth core depends on.
//
// The core treats the store as a shared, network-accessed service: every
// operation is a single round trip and may block. Two production
// implementations exist (Redis and Postgres) plus an in-memory one for
// tests and local development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("key not found")

// KV is the minimal key-value surface the auth core requires.
//
// SetIfAbsent must be atomic: concurrent callers for the same key observe
// exactly one success. SetWithTTL installs a value that the store itself
// expires after ttl.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Pinger reports store reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
