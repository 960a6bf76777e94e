package engine

import (
	"github.com/concordkv/concordkv/internal/cache"
)

// CachedEngine wraps another Engine with the cache layer (spec §2: "wrapped
// by cross-cutting subsystems for caching") sitting in front of Get. A hit
// short-circuits the wrapped engine entirely; a miss falls through, and the
// result (if any) is populated back into the cache. Put/Delete invalidate
// the key so the cache can never serve a value stale relative to the
// wrapped engine's own read-your-writes guarantee.
type CachedEngine struct {
	Engine
	cache *cache.Cache
}

// NewCachedEngine wraps e with c. Ownership of c transfers to the returned
// CachedEngine: Close closes both.
func NewCachedEngine(e Engine, c *cache.Cache) *CachedEngine {
	return &CachedEngine{Engine: e, cache: c}
}

func (c *CachedEngine) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.Get(string(key)); ok {
		return v, nil
	}
	v, err := c.Engine.Get(key)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(string(key), v, 0)
	return v, nil
}

func (c *CachedEngine) Put(key, value []byte) error {
	if err := c.Engine.Put(key, value); err != nil {
		return err
	}
	c.cache.Delete(string(key))
	return nil
}

func (c *CachedEngine) Update(key, value []byte) error {
	if err := c.Engine.Update(key, value); err != nil {
		return err
	}
	c.cache.Delete(string(key))
	return nil
}

func (c *CachedEngine) Delete(key []byte) error {
	if err := c.Engine.Delete(key); err != nil {
		return err
	}
	c.cache.Delete(string(key))
	return nil
}

func (c *CachedEngine) BatchSet(kvs []KV) error {
	if err := c.Engine.BatchSet(kvs); err != nil {
		return err
	}
	for _, kv := range kvs {
		c.cache.Delete(string(kv.Key))
	}
	return nil
}

// CacheStats exposes the wrapped cache's stats for internal/metrics'
// cache-hit-rate gauge (spec §4.9).
func (c *CachedEngine) CacheStats() cache.Stats { return c.cache.Stats() }

func (c *CachedEngine) Close() error {
	c.cache.Close()
	return c.Engine.Close()
}
