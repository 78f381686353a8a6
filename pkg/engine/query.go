package engine

import (
	"context"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/route"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// DefaultWaitInterval is the poll interval for WaitForPage and WaitForRoute.
const DefaultWaitInterval = 600 * time.Millisecond

// GoNext taps m's next target.
func (e *Engine) GoNext(m page.Matchable) error {
	next, _ := m.Targets()
	if next == nil {
		warning("%s action == goNext, but no next xy", m.PageName())
		return core.ErrMissingTarget.WithDetails(map[string]interface{}{"page": m.PageName(), "target": "next"})
	}
	return e.screen.Tap(next.X, next.Y)
}

// GoBack taps m's back target.
func (e *Engine) GoBack(m page.Matchable) error {
	_, back := m.Targets()
	if back == nil {
		warning("%s action == goBack, but no back xy", m.PageName())
		return core.ErrMissingTarget.WithDetails(map[string]interface{}{"page": m.PageName(), "target": "back"})
	}
	return e.screen.Tap(back.X, back.Y)
}

// IsPageMatch captures the screen and matches m against it.
func (e *Engine) IsPageMatch(m page.Matchable) (bool, error) {
	f, err := e.screen.Capture()
	if err != nil {
		return false, err
	}
	defer f.Release()
	return e.IsPageMatchFrame(m, f), nil
}

// IsPageMatchFrame matches m against f.
func (e *Engine) IsPageMatchFrame(m page.Matchable, f pixel.Frame) bool {
	ok, _ := page.Match(f, m, e.cfg.Defaults.PageThreshold, e.cfg.Defaults.GroupPageThreshold, e.cfg.Debug)
	return ok
}

// IsPageNameMatchFrame looks up a page by name and matches it against f.
func (e *Engine) IsPageNameMatchFrame(name string, f pixel.Frame) bool {
	m, ok := e.PageByName(name)
	if !ok {
		warning("isPageMatchImage %s not exist", name)
		return false
	}
	return e.IsPageMatchFrame(m, f)
}

// PagesMatching captures the screen and returns every child of g that
// matches, ignoring g's operator.
func (e *Engine) PagesMatching(g *page.GroupPage) ([]*page.Page, error) {
	f, err := e.screen.Capture()
	if err != nil {
		return nil, err
	}
	defer f.Release()
	return e.PagesMatchingFrame(g, f), nil
}

// PagesMatchingFrame is PagesMatching against f.
func (e *Engine) PagesMatchingFrame(g *page.GroupPage, f pixel.Frame) []*page.Page {
	return page.PagesMatching(f, g, e.cfg.Defaults.GroupPageThreshold, e.cfg.Debug)
}

// WaitForPage polls until m matched matchTimes times or timeout elapsed.
func (e *Engine) WaitForPage(ctx context.Context, m page.Matchable, timeout time.Duration, matchTimes int, interval time.Duration) bool {
	return e.waitFor(ctx, func() bool {
		ok, err := e.IsPageMatch(m)
		if err != nil {
			logger.Debug("[Rerouter] waitForPage capture failed: %v", err)
		}
		return ok
	}, timeout, matchTimes, interval)
}

// IsRouteMatch captures the screen and matches cfg, resolved with the engine
// defaults, against it.
func (e *Engine) IsRouteMatch(cfg core.RouteConfig) (bool, error) {
	f, err := e.screen.Capture()
	if err != nil {
		return false, err
	}
	defer f.Release()
	return e.IsRouteMatchFrame(cfg, f), nil
}

// IsRouteMatchFrame matches cfg against f using the frame's orientation.
func (e *Engine) IsRouteMatchFrame(cfg core.RouteConfig, f pixel.Frame) bool {
	r := e.cfg.Defaults.WrapRoute(cfg)
	return e.matcher.MatchRoute(f, screen.FrameRotation(f), r, "waitScreenForMatchingRoute").IsMatched
}

// IsRoutePathMatchFrame looks up a registered route and matches it against f.
func (e *Engine) IsRoutePathMatchFrame(path string, f pixel.Frame) bool {
	cfg, ok := e.RouteByPath(path)
	if !ok {
		warning("isRouteMatchImage %s not exist", path)
		return false
	}
	return e.IsRouteMatchFrame(cfg, f)
}

// WaitForRoute polls until cfg matched matchTimes times or timeout elapsed.
func (e *Engine) WaitForRoute(ctx context.Context, cfg core.RouteConfig, timeout time.Duration, matchTimes int, interval time.Duration) bool {
	return e.waitFor(ctx, func() bool {
		ok, err := e.IsRouteMatch(cfg)
		if err != nil {
			logger.Debug("[Rerouter] waitForRoute capture failed: %v", err)
		}
		return ok
	}, timeout, matchTimes, interval)
}

func (e *Engine) waitFor(ctx context.Context, action func() bool, timeout time.Duration, matchTimes int, interval time.Duration) bool {
	if matchTimes <= 0 {
		matchTimes = 1
	}
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	start := e.clock.Now()
	matched := 0
	for e.clock.Now().Sub(start) < timeout {
		if action() {
			matched++
		}
		if matched >= matchTimes {
			break
		}
		if err := e.sleep(ctx, interval); err != nil {
			break
		}
	}
	return matched >= matchTimes
}

// CurrentMatchNames returns the names of registered route pages that match
// the current screen.
func (e *Engine) CurrentMatchNames() ([]string, error) {
	f, err := e.screen.Capture()
	if err != nil {
		return nil, err
	}
	defer f.Release()
	return e.CurrentMatchNamesFrame(f), nil
}

// CurrentMatchNamesFrame is CurrentMatchNames against f.
func (e *Engine) CurrentMatchNamesFrame(f pixel.Frame) []string {
	thres := e.cfg.Defaults.PageThreshold
	var names []string
	for _, r := range e.table.Routes() {
		switch m := r.Match.(type) {
		case *page.Page:
			if page.MatchPage(f, m, thres, e.cfg.Debug) {
				names = append(names, m.Name)
			}
		case *page.GroupPage:
			if len(page.MatchGroupPage(f, m, thres, e.cfg.Debug)) > 0 {
				names = append(names, m.Name)
			}
		}
	}
	e.log("current match: %v", names)
	return names
}

// Routes returns a copy of the registered routes in priority order.
func (e *Engine) Routes() []core.Route {
	return e.table.Routes()
}

// RouteByPath returns the config a registered route was created from.
func (e *Engine) RouteByPath(path string) (core.RouteConfig, bool) {
	r, ok := e.table.Get(path)
	if !ok {
		return core.RouteConfig{}, false
	}
	return r.Source, true
}

// PageByName returns the match target of the first route whose page or
// group is named name.
func (e *Engine) PageByName(name string) (page.Matchable, bool) {
	return e.table.PageByName(name)
}

// FindMatchedRoutes resolves f against the route table using the frame's
// orientation.
func (e *Engine) FindMatchedRoutes(taskName string, f pixel.Frame) []route.Match {
	return e.resolver.FindMatchedRoutes(taskName, f, screen.FrameRotation(f))
}
