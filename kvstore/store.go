// Package kvstore defines the persistent key-value contract consumed by the
// journal and store layers, plus an in-memory reference implementation used
// by tests. The core never assumes anything about a concrete backend beyond
// this contract: no file-system, object-store, or database client lives
// here.
package kvstore

import "context"

// ListResult is the page returned by Store.List.
type ListResult struct {
	Keys       []string
	NextCursor string // empty when there are no more pages
}

// Store is the persistent key-value contract per spec.md 6. Implementations
// are expected to be concurrency-safe for independent keys; callers never
// rely on multi-key transactions. Write throughput may be rate-limited by
// an implementation (e.g. a KV edge store capped at ~1 write/s/key); callers
// that need tighter coalescing wrap a Store rather than assuming none
// exists.
type Store interface {
	// Get returns the value for key and true, or nil and false if key is
	// absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value for key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Has reports whether key exists, without fetching its value.
	Has(ctx context.Context, key string) (bool, error)
	// List returns keys with the given prefix, in lexicographic order,
	// starting after cursor (empty cursor starts from the beginning) and
	// bounded by limit (0 means no limit).
	List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error)
	// IsEmpty reports whether the store holds no keys at all.
	IsEmpty(ctx context.Context) (bool, error)
	// Size returns the total number of keys in the store.
	Size(ctx context.Context) (int, error)
}
