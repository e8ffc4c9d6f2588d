// Package cache composes the L1 embedded store, the optional L2 remote
// store, and the single-flight in-node parse guarantee into the one
// lookup/compute path the worker loop calls. Grounded on spec.md §4.3's
// "Single-flight" paragraph: on an L1 miss a reservation stands in for the
// in-flight parse so at most one worker parses a given key at a time,
// other workers block on the same computation and share its result.
package cache

import (
	"context"
	"fmt"

	"github.com/docvellum/vellum/cache/l1"
	"github.com/docvellum/vellum/cache/l2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache is the two-level result cache plus single-flight reservation.
type Cache struct {
	l1     *l1.Store
	l2     *l2.Store // nil when no remote cache is configured
	group  singleflight.Group
	logger *zap.SugaredLogger
}

// New builds a Cache over an always-present L1 store and an optional L2
// store (nil disables cross-node caching).
func New(l1Store *l1.Store, l2Store *l2.Store, logger *zap.SugaredLogger) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{l1: l1Store, l2: l2Store, logger: logger}
}

// GetOrCompute probes L1 then, on a miss, calls hashFn to learn the content
// hash and probes L2 (when configured) under that hash; on a full miss it
// runs compute at most once per key across concurrently-waiting callers and
// writes the result through to L1 and, best-effort, L2. hashFn is only
// invoked on an L1 miss, so a warm L1 hit never pays for a hash it doesn't
// need; hashFn may be nil to disable the L2 path entirely. hit reports
// whether compute was skipped.
func (c *Cache) GetOrCompute(ctx context.Context, key l1.Key, hashFn func() (string, error), compute func(contentHash string) ([]byte, error)) (value []byte, hit bool, err error) {
	if v, ok, err := c.l1.Get(key); err != nil {
		return nil, false, fmt.Errorf("cache: l1 probe: %w", err)
	} else if ok {
		return v, true, nil
	}

	var contentHash string
	if hashFn != nil {
		contentHash, err = hashFn()
		if err != nil {
			return nil, false, err
		}
	}

	if c.l2 != nil && contentHash != "" {
		if v, ok, err := c.l2.Get(ctx, contentHash); err != nil {
			c.logger.Warnw("l2 probe failed, continuing to parse", "error", err)
		} else if ok {
			if err := c.l1.Put(key, v); err != nil {
				c.logger.Warnw("l1 write-through from l2 hit failed", "error", err)
			}
			return v, true, nil
		}
	}

	sfKey := key.Path
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		result, err := compute(contentHash)
		if err != nil {
			return nil, err
		}
		if err := c.l1.Put(key, result); err != nil {
			c.logger.Warnw("l1 write failed", "error", err)
		}
		if c.l2 != nil && contentHash != "" {
			if err := c.l2.Put(ctx, contentHash, result); err != nil {
				c.logger.Warnw("l2 write failed, continuing with l1-only caching", "error", err)
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Count returns the L1 entry cardinality.
func (c *Cache) Count() (int, error) {
	return c.l1.Count()
}

// Close releases both backing stores.
func (c *Cache) Close() error {
	if c.l2 != nil {
		if err := c.l2.Close(); err != nil {
			return err
		}
	}
	return c.l1.Close()
}
