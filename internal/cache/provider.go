package cache

import (
	"context"
	"errors"
)

// Provider defines the cache operations needed by the fetch service. Values
// are raw catalog payloads; expiry and eviction policy belong to the provider.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Entries() int
	SizeBytes() int64
	Close() error
}

// ErrCacheMiss signals that a cache key was not found or had expired.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Entries reports an always-empty cache.
func (NoopProvider) Entries() int { return 0 }

// SizeBytes reports zero usage.
func (NoopProvider) SizeBytes() int64 { return 0 }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
