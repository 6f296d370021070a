// Package cache defines the key-value TTL store shared by every instance of the server.
// Tokens, throttle windows and HMAC nonces all live here.
package cache

import (
	"context"
	"time"
)

// Store is the contract the core requires of the shared store. SetNX and Delete must be
// atomic: exactly one concurrent caller observes true.
type Store interface {
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}
