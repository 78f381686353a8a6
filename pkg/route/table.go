package route

import (
	"slices"
	"sync"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
)

// Table is the set of registered routes, kept in descending priority order.
// Routes of equal priority keep their registration order.
type Table struct {
	mu     sync.RWMutex
	routes []*core.Route
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add registers r. A path that is already registered is rejected with
// core.ErrDuplicateRoute and the table is left unchanged.
func (t *Table) Add(r *core.Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.routes {
		if existing.Path == r.Path {
			logger.Warn("[Rerouter][warning] A route with the path '%s' already exists. Duplicate route will not be added.", r.Path)
			return core.ErrDuplicateRoute.WithDetails(map[string]interface{}{"path": r.Path})
		}
	}
	t.routes = append(t.routes, r)
	slices.SortStableFunc(t.routes, func(a, b *core.Route) int {
		return b.Priority - a.Priority
	})
	return nil
}

// Len returns the number of routes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// Routes returns a copy of the routes in priority order.
func (t *Table) Routes() []core.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = *r
	}
	return out
}

func (t *Table) snapshot() []*core.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.routes)
}

// Get returns the route registered at path.
func (t *Table) Get(path string) (*core.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.routes {
		if r.Path == path {
			return r, true
		}
	}
	return nil, false
}

// PageByName returns the first route match target named name.
func (t *Table) PageByName(name string) (page.Matchable, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.routes {
		if r.Match != nil && r.Match.PageName() == name {
			return r.Match, true
		}
	}
	return nil, false
}

// Reset removes every route.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = nil
}
