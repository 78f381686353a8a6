package route

import (
	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// Match is a matched route together with the pages that matched.
type Match struct {
	Route *core.Route
	Pages []*page.Page
}

// Resolver finds the highest-priority routes that match a frame.
type Resolver struct {
	Table   *Table
	Matcher *Matcher
}

// NewResolver creates a resolver over table.
func NewResolver(table *Table, matcher *Matcher) *Resolver {
	return &Resolver{Table: table, Matcher: matcher}
}

// FindMatchedRoutes returns every matching route in the highest matching
// priority tier. Scanning stops at the first route ranked below that tier.
func (r *Resolver) FindMatchedRoutes(taskName string, f pixel.Frame, rot screen.Rotation) []Match {
	var (
		matches []Match
		highest *int
	)
	for _, rt := range r.Table.snapshot() {
		if highest != nil && rt.Priority < *highest {
			break
		}
		res := r.Matcher.MatchRoute(f, rot, rt, taskName)
		if !res.IsMatched {
			continue
		}
		if r.Matcher.Debug && rt.Debug {
			logger.Debug("[Rerouter] current match: %v", page.Names(res.MatchedPages))
		}
		if highest == nil {
			p := rt.Priority
			highest = &p
		}
		matches = append(matches, Match{Route: rt, Pages: res.MatchedPages})
	}
	return matches
}

// Paths returns the route paths of ms.
func Paths(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Route.Path
	}
	return out
}
