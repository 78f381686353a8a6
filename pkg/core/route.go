package core

import (
	"time"

	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// ActionKind selects what a route does once it is stably matched.
type ActionKind int

const (
	ActionGoNext      ActionKind = iota // Tap the first matched page's Next target
	ActionGoBack                        // Tap the first matched page's Back target
	ActionKeycodeBack                   // Send the BACK key
	ActionCustom                        // Run a user callback
)

// String returns the string representation of ActionKind
func (k ActionKind) String() string {
	switch k {
	case ActionGoNext:
		return "goNext"
	case ActionGoBack:
		return "goBack"
	case ActionKeycodeBack:
		return "keycodeBack"
	case ActionCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// FinishFunc ends the current route round. exitTask also ends the task visit.
type FinishFunc func(exitTask bool)

// ActionFunc is a user callback run for a matched route.
type ActionFunc func(ctx *Context, f pixel.Frame, matched []*page.Page, finish FinishFunc) error

// RouteHook runs before or after a route action.
type RouteHook func(ctx *Context, f pixel.Frame, matched []*page.Page) error

// CustomMatchFunc decides a match when no page matched.
type CustomMatchFunc func(taskName string, f pixel.Frame) bool

// Action is a route action. Build one with GoNext, GoBack, KeycodeBack or Custom.
type Action struct {
	Kind ActionKind
	Func ActionFunc
}

var (
	GoNext      = Action{Kind: ActionGoNext}
	GoBack      = Action{Kind: ActionGoBack}
	KeycodeBack = Action{Kind: ActionKeycodeBack}
)

// Custom wraps fn as an action.
func Custom(fn ActionFunc) Action {
	return Action{Kind: ActionCustom, Func: fn}
}

// RouteConfig is a route as registered. Nil fields take engine defaults.
type RouteConfig struct {
	Path        string
	Action      Action
	Match       page.Matchable
	CustomMatch CustomMatchFunc
	Rotation    *screen.Rotation

	ShouldMatchTimes  *int
	ShouldMatchDuring *time.Duration
	BeforeActionDelay *time.Duration
	AfterActionDelay  *time.Duration
	Priority          *int
	Debug             *bool

	BeforeRoute RouteHook
	AfterRoute  RouteHook
}

// Route is a fully resolved route.
type Route struct {
	Path        string
	Action      Action
	Match       page.Matchable
	CustomMatch CustomMatchFunc
	Rotation    screen.Rotation

	ShouldMatchTimes  int
	ShouldMatchDuring time.Duration
	BeforeActionDelay time.Duration
	AfterActionDelay  time.Duration
	Priority          int
	Debug             bool

	BeforeRoute RouteHook
	AfterRoute  RouteHook

	// Source is the config the route was resolved from.
	Source RouteConfig
}
