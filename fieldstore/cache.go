package fieldstore

import "sync"

// pathCache memoizes the fully resolved path list per blueprint. Stale
// reads are a correctness bug, so every structural mutation and every
// cascade visit invalidates the blueprints it touched before the
// mutation returns.
type pathCache struct {
	mu      sync.RWMutex
	entries map[int64][]Path
}

func newPathCache() *pathCache {
	return &pathCache{entries: make(map[int64][]Path)}
}

func (c *pathCache) get(blueprintID int64) ([]Path, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths, ok := c.entries[blueprintID]
	return paths, ok
}

func (c *pathCache) put(blueprintID int64, paths []Path) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[blueprintID] = paths
}

func (c *pathCache) invalidate(blueprintID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, blueprintID)
}
