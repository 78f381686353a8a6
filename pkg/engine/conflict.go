package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/notify"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/route"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

const (
	// ConflictWindow is how long a conflict counts towards a storm.
	ConflictWindow = 60 * time.Second
	// ConflictLimit conflicts within ConflictWindow restart the app.
	ConflictLimit = 5
)

// ConflictArgs is passed to a ConflictHandler.
type ConflictArgs struct {
	StrictMode bool
	TaskName   string
	Frame      pixel.Frame
	Matches    []route.Match
	Finish     core.FinishFunc
	Screen     *screen.Screen
}

// ConflictHandler decides what to do when several routes match at the same
// priority. A returned error ends the route loop and is returned by Start.
type ConflictHandler func(ConflictArgs) error

// DefaultConflictHandler fails in strict mode. Otherwise it finishes the
// round and presses BACK.
func DefaultConflictHandler(a ConflictArgs) error {
	if a.StrictMode {
		return core.ErrRouteConflict.
			WithMessage(fmt.Sprintf("route conflict in task %q: %s", a.TaskName, strings.Join(route.Paths(a.Matches), ", "))).
			WithDetails(map[string]interface{}{"task": a.TaskName, "routes": route.Paths(a.Matches)})
	}
	logger.Warn("[Rerouter][warning] conflict in task %q, finish round and go back", a.TaskName)
	if a.Finish != nil {
		a.Finish(false)
	}
	if a.Screen != nil {
		if err := a.Screen.Keycode("BACK"); err != nil {
			logger.Warn("[Rerouter][warning] keycode BACK failed: %v", err)
		}
	}
	return nil
}

// ConflictTracker counts conflicts in a sliding window.
type ConflictTracker struct {
	Window time.Duration
	Limit  int
	times  []time.Time
}

// NewConflictTracker returns a tracker with the stock window and limit.
func NewConflictTracker() *ConflictTracker {
	return &ConflictTracker{Window: ConflictWindow, Limit: ConflictLimit}
}

// Observe records a conflict at now and reports whether the limit was
// reached. Reaching it resets the log to just now.
func (c *ConflictTracker) Observe(now time.Time) bool {
	c.times = append(c.times, now)
	for len(c.times) > 0 && now.Sub(c.times[0]) > c.Window {
		c.times = c.times[1:]
	}
	if len(c.times) >= c.Limit {
		c.times = []time.Time{now}
		return true
	}
	return false
}

// Len returns the number of conflicts currently in the window.
func (c *ConflictTracker) Len() int {
	return len(c.times)
}

// matchedPageNames lists each page name found across matches once, in order.
func matchedPageNames(matches []route.Match) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range matches {
		for _, n := range page.Names(m.Pages) {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

func conflictDetails(matches []route.Match) string {
	lines := make([]string, len(matches))
	for i, m := range matches {
		path := "emptyRoutePath"
		if m.Route != nil && m.Route.Path != "" {
			path = m.Route.Path
		}
		names := make([]string, len(m.Pages))
		for j, p := range m.Pages {
			names[j] = p.Name
		}
		lines[i] = fmt.Sprintf("%s: (%s)", path, strings.Join(names, ", "))
	}
	return strings.Join(lines, "\n")
}

// handleConflict reports a conflict, restarts the app on a conflict storm and
// otherwise delegates to the configured handler.
func (e *Engine) handleConflict(ctx context.Context, taskName string, f pixel.Frame, matches []route.Match, finish core.FinishFunc) error {
	details := conflictDetails(matches)
	msg := fmt.Sprintf("a route conflict when in Task: %q, details: \n%s", taskName, details)
	warning("%s", msg)
	e.notify("slack", func(n Notifier) error {
		return n.SendSlack("Conflict Routes Report", fmt.Sprintf("%s just logged %s", e.cfg.DeviceID, msg))
	})
	e.record(journal.Event{Kind: journal.KindConflict, Task: taskName, Path: matches[0].Route.Path, Pages: matchedPageNames(matches), Detail: details})

	if e.conflicts.Observe(e.clock.Now()) {
		warning("%d route conflicts within %s, restarting app", e.conflicts.Limit, e.conflicts.Window)
		e.record(journal.Event{Kind: journal.KindRestart, Task: taskName, Detail: details})
		e.RestartApp(ctx)
		return nil
	}

	if e.cfg.StrictMode {
		e.saveScreenshot("", e.cfg.DeviceID+"_conflictedRoutes", true, 0, f)
	}

	handler := e.cfg.ConflictHandler
	if handler == nil {
		handler = DefaultConflictHandler
	}
	return callConflictHandler(handler, ConflictArgs{
		StrictMode: e.cfg.StrictMode,
		TaskName:   taskName,
		Frame:      f,
		Matches:    matches,
		Finish:     finish,
		Screen:     e.screen,
	})
}

func callConflictHandler(h ConflictHandler, a ConflictArgs) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.ErrRouteConflict.WithMessage(fmt.Sprintf("conflict handler panicked: %v", r))
		}
	}()
	return h(a)
}

// notify calls fn with the configured notifier, logging failures.
func (e *Engine) notify(what string, fn func(Notifier) error) bool {
	if e.cfg.Notifier == nil {
		return false
	}
	if err := fn(e.cfg.Notifier); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			logger.Debug("[Rerouter] %s not configured, skipped", what)
		} else {
			logger.Warn("[Rerouter] failed to send %s: %v", what, err)
		}
		return false
	}
	return true
}
