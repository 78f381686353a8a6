// Package route holds the route table and decides which routes match a frame.
package route

import (
	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// Result is the outcome of matching one route against a frame.
type Result struct {
	IsMatched    bool
	MatchedPages []*page.Page
}

// Matcher evaluates single routes.
type Matcher struct {
	PageThreshold      float64
	GroupPageThreshold float64
	// Debug enables trace logging for routes that also have Debug set.
	Debug bool
}

// NewMatcher returns a Matcher using the thresholds in d.
func NewMatcher(d core.Defaults, debug bool) *Matcher {
	return &Matcher{
		PageThreshold:      d.PageThreshold,
		GroupPageThreshold: d.GroupPageThreshold,
		Debug:              debug,
	}
}

// MatchRoute matches r against f. Routes for another rotation never match.
// CustomMatch is consulted only when Match is unset or did not match.
func (m *Matcher) MatchRoute(f pixel.Frame, rot screen.Rotation, r *core.Route, taskName string) Result {
	debug := m.Debug && r.Debug
	if r.Rotation != rot {
		if debug {
			logger.Debug("[Rerouter] findMatchedRoute %s not match rotation, skip", r.Path)
		}
		return Result{}
	}

	var res Result
	if r.Match != nil {
		res.IsMatched, res.MatchedPages = page.Match(f, r.Match, m.PageThreshold, m.GroupPageThreshold, debug)
	}
	if !res.IsMatched && r.CustomMatch != nil {
		res.IsMatched = r.CustomMatch(taskName, f)
		if debug {
			logger.Debug("[Rerouter] findMatchedRoute %s customMatch() => %t", r.Path, res.IsMatched)
		}
	}
	if debug {
		first := ""
		if len(res.MatchedPages) > 0 {
			first = res.MatchedPages[0].Name
		}
		logger.Debug("[Rerouter] findMatchedRoute %s match: %t, firstPage: %s", r.Path, res.IsMatched, first)
	}
	return res
}
