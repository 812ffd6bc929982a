// Package cache implements the result cache that sits between the search
// facade and the providers, plus an in-memory store.
package cache

import "context"

// Store is a key/value backend. Keys and values are opaque to the cache, and
// eviction or expiry is entirely the store's concern.
type Store interface {
	// Read returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
