package jsengine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// Input is what a script can drive. *screen.Screen implements it.
type Input interface {
	Tap(x, y int) error
	Swipe(fromX, fromY, toX, toY, steps int) error
	Keycode(code string) error
	Typing(text string) error
}

// Call is the route state a script runs against.
type Call struct {
	Input   Input
	Context *core.Context
	Frame   pixel.Frame
	Pages   []*page.Page
	Finish  core.FinishFunc
}

// routeState is exposed to scripts as the global `route`.
type routeState struct {
	Path            string   `json:"path"`
	LastMatchedPath string   `json:"lastMatchedPath"`
	MatchTimes      int      `json:"matchTimes"`
	MatchDuring     int64    `json:"matchDuring"`
	Task            string   `json:"task"`
	TaskRunTimes    int      `json:"taskRunTimes"`
	Pages           []string `json:"pages"`
}

// Run executes src with route bindings installed:
//
//	tap(x, y)  swipe(x1, y1, x2, y2[, steps])  keycode(code)  type(text)
//	pixel(x, y) -> {r, g, b}  finishRound(exitTask)  route  log(...)
//
// Device errors raised by bindings abort the script and are returned.
func (e *Engine) Run(name, src string, c Call) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.compile(name, src)
	if err != nil {
		return err
	}
	e.bind(c)
	defer e.unbind()

	if _, err := e.run(p); err != nil {
		return fmt.Errorf("script %s: %w", name, err)
	}
	return nil
}

// Action wraps src as a custom route action.
func (e *Engine) Action(name, src string, in Input) core.ActionFunc {
	return func(ctx *core.Context, f pixel.Frame, pages []*page.Page, finish core.FinishFunc) error {
		return e.Run(name, src, Call{Input: in, Context: ctx, Frame: f, Pages: pages, Finish: finish})
	}
}

// Hook wraps src as a before/after route hook. finishRound is not available.
func (e *Engine) Hook(name, src string, in Input) core.RouteHook {
	return func(ctx *core.Context, f pixel.Frame, pages []*page.Page) error {
		return e.Run(name, src, Call{Input: in, Context: ctx, Frame: f, Pages: pages})
	}
}

var routeBindings = []string{"tap", "swipe", "keycode", "type", "pixel", "finishRound", "route", "log"}

func (e *Engine) bind(c Call) {
	rt := e.runtime
	needInput := func(what string) {
		if c.Input == nil {
			panic(rt.NewTypeError(what + " is not available without a screen"))
		}
	}

	rt.Set("tap", func(x, y int) error {
		needInput("tap")
		return c.Input.Tap(x, y)
	})
	rt.Set("swipe", func(call goja.FunctionCall) goja.Value {
		needInput("swipe")
		if len(call.Arguments) < 4 {
			panic(rt.NewTypeError("swipe requires 4 arguments"))
		}
		steps := 4
		if len(call.Arguments) > 4 {
			steps = int(call.Argument(4).ToInteger())
		}
		err := c.Input.Swipe(
			int(call.Argument(0).ToInteger()), int(call.Argument(1).ToInteger()),
			int(call.Argument(2).ToInteger()), int(call.Argument(3).ToInteger()),
			steps)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return goja.Undefined()
	})
	rt.Set("keycode", func(code string) error {
		needInput("keycode")
		return c.Input.Keycode(code)
	})
	rt.Set("type", func(text string) error {
		needInput("type")
		return c.Input.Typing(text)
	})
	rt.Set("pixel", func(x, y int) map[string]int {
		if c.Frame == nil {
			return nil
		}
		px := c.Frame.ColorAt(x, y)
		return map[string]int{"r": int(px.R), "g": int(px.G), "b": int(px.B)}
	})
	rt.Set("finishRound", func(call goja.FunctionCall) goja.Value {
		if c.Finish == nil {
			panic(rt.NewTypeError("finishRound is only available in actions"))
		}
		c.Finish(call.Argument(0).ToBoolean())
		return goja.Undefined()
	})
	rt.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		logger.Info("[script] %s", fmt.Sprint(args...))
		return goja.Undefined()
	})

	state := routeState{Pages: page.Names(c.Pages)}
	if ctx := c.Context; ctx != nil {
		state.Path = ctx.Path
		state.LastMatchedPath = ctx.LastMatchedPath
		state.MatchTimes = ctx.MatchTimes
		state.MatchDuring = ctx.MatchDuring.Milliseconds()
		if ctx.Task != nil {
			state.Task = ctx.Task.Name
			state.TaskRunTimes = ctx.Task.RunTimes
		}
	}
	rt.Set("route", state)
}

func (e *Engine) unbind() {
	for _, name := range routeBindings {
		e.runtime.Set(name, goja.Undefined())
	}
}
