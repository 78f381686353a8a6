package core

import (
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// Context tracks route matching state within one route loop.
type Context struct {
	Task   *Task
	Screen *screen.Screen

	Path            string
	LastMatchedPath string
	MatchTimes      int
	MatchStart      time.Time
	MatchDuring     time.Duration

	running *atomic.Bool
}

// NewContext creates a context bound to the engine's running flag.
func NewContext(task *Task, scr *screen.Screen, lastMatchedPath string, running *atomic.Bool) *Context {
	return &Context{
		Task:            task,
		Screen:          scr,
		LastMatchedPath: lastMatchedPath,
		running:         running,
	}
}

// ScriptRunning reports whether the engine is still running.
func (c *Context) ScriptRunning() bool {
	return c.running != nil && c.running.Load()
}

// Observe records that path (empty for no match) was seen at now. The streak
// restarts whenever path differs from the previous iteration's path.
func (c *Context) Observe(path string, now time.Time) {
	if c.MatchStart.IsZero() {
		c.MatchStart = now
	}
	c.Path = path
	if path != c.LastMatchedPath {
		c.MatchTimes = 0
		c.MatchStart = now
	}
	c.MatchDuring = now.Sub(c.MatchStart)
	c.MatchTimes++
}

// Settle marks the current path as the last matched one.
func (c *Context) Settle() {
	c.LastMatchedPath = c.Path
}
