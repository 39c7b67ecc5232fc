// Package cache provides the read-through cache used by the services.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by operations on a cache that is not configured.
var ErrUnavailable = errors.New("cache unavailable")

// Cache stores JSON-serializable values under string keys.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get decodes the value stored under key into dst. It reports false on a miss.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores value under key for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
	Close() error
}

// Nop is a Cache that never stores anything. It is used when no cache server is configured.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error               { return nil }
func (Nop) Ping(context.Context) error                            { return ErrUnavailable }
func (Nop) Close() error                                          { return nil }
