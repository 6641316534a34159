package quarry

import "sync"

// InsertPlan is the precomputed insert shape for one (connection, table)
// pair: insertable logical fields, their physical columns and the rendered
// statement text. Plans stay valid while the table's generated-field set is
// unchanged; running migrations concurrently with cached use is a caller
// contract violation.
type InsertPlan struct {
	Fields  []string
	Columns []string
	SQL     string
}

// InsertCache stores insert plans keyed by "<connection>:<table>". It is an
// explicit object rather than a package global so tests can isolate state by
// constructing a fresh cache.
type InsertCache struct {
	mu    sync.RWMutex
	plans map[string]*InsertPlan
}

// NewInsertCache builds an empty cache.
func NewInsertCache() *InsertCache {
	return &InsertCache{plans: map[string]*InsertPlan{}}
}

// GetOrBuild returns the cached plan for key, invoking build at most once
// per key in the common case. Two goroutines racing on first population may
// both build; entries for the same key are computed identically so the race
// is benign.
func (c *InsertCache) GetOrBuild(key string, build func() (*InsertPlan, error)) (*InsertPlan, error) {
	c.mu.RLock()
	plan, ok := c.plans[key]
	c.mu.RUnlock()
	if ok {
		return plan, nil
	}

	plan, err := build()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if existing, ok := c.plans[key]; ok {
		plan = existing
	} else {
		c.plans[key] = plan
	}
	c.mu.Unlock()
	return plan, nil
}

// Len reports the number of cached plans.
func (c *InsertCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}
