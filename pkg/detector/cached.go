package detector

import (
	"context"
	"sync"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// DefaultCacheTTL bounds how stale a memoized check result may be
const DefaultCacheTTL = 5 * time.Second

// Cached wraps a Detector and memoizes the most recent Check result
// for a short TTL window, bounding polling cost when several consumers
// query the same detector. There is a single cache slot, overwritten on
// every real check.
type Cached struct {
	inner Detector
	ttl   time.Duration

	mu        sync.Mutex
	last      *types.TerminationNotice
	checkedAt time.Time
}

// NewCached wraps inner with result memoization. A non-positive ttl
// uses DefaultCacheTTL.
func NewCached(inner Detector, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{inner: inner, ttl: ttl}
}

// Check returns the cached result while it is fresh, otherwise asks
// the wrapped detector and caches whatever it returns (including nil).
func (c *Cached) Check(ctx context.Context) *types.TerminationNotice {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checkedAt.IsZero() && time.Since(c.checkedAt) < c.ttl {
		return c.last
	}

	c.last = c.inner.Check(ctx)
	c.checkedAt = time.Now()
	return c.last
}

// Metadata delegates to the wrapped detector
func (c *Cached) Metadata(ctx context.Context) (*types.InstanceMetadata, error) {
	return c.inner.Metadata(ctx)
}
