// Package contextcache provides the durable TTL'd key-value store used to
// stitch sessions across processing batches. It is an injected capability:
// implementations share their lifecycle with whatever connection they are
// built on, and nothing in this package is a singleton.
package contextcache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the minimal contract the extractor needs.
type Cache interface {
	// Get returns the value for key, reporting whether a live (non-expired)
	// entry was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous entry and
	// refreshing the TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// LastContextKey is the cache key holding a user's most recent raw event.
func LastContextKey(organizationID, userID string) string {
	return fmt.Sprintf("last-context:%s:%s", organizationID, userID)
}
