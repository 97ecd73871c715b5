// Package cache holds computed views keyed by store revision. A mutation
// bumps the revision, so stale entries are never read again and simply age
// out through LRU eviction or TTL cleanup.
package cache

import (
	"fmt"
	"strings"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Key builds a cache key for a view computed at a given store revision.
// Parts distinguish parameters of the same view (person id, month, ...).
func Key(view string, revision uint64, parts ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d", view, revision)
	for _, p := range parts {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Errors are returned without caching.
func GetOrCompute[T any](c Cache[T], key string, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
