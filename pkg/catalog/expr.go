package catalog

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// MatchEnv is the environment of a customMatch expression.
//
//	task == "daily" && Pixel(10, 20).R > 200 && Similar(30, 40, 255, 0, 0) > 0.9
type MatchEnv struct {
	Task   string `expr:"task"`
	Width  int    `expr:"width"`
	Height int    `expr:"height"`

	frame pixel.Frame
}

// Pixel returns the color at a logical point.
func (e MatchEnv) Pixel(x, y int) pixel.RGB {
	if e.frame == nil {
		return pixel.RGB{}
	}
	return e.frame.ColorAt(x, y)
}

// Similar scores the color at a logical point against r, g, b.
func (e MatchEnv) Similar(x, y, r, g, b int) float64 {
	return pixel.Similarity(e.Pixel(x, y), pixel.RGB{R: uint8(r), G: uint8(g), B: uint8(b)})
}

// TaskEnv is the environment of a task skipWhen expression.
type TaskEnv struct {
	Name     string `expr:"name"`
	RunTimes int    `expr:"runTimes"`
	Hour     int    `expr:"hour"`
	Weekday  int    `expr:"weekday"`
}

func compileBool(src string, env interface{}) (*vm.Program, error) {
	program, err := expr.Compile(src,
		expr.Env(env),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid expression %q", src)).WithCause(err)
	}
	return program, nil
}

func runBool(program *vm.Program, env interface{}, what string) bool {
	result, err := expr.Run(program, env)
	if err != nil {
		logger.Warn("[catalog] %s evaluation failed: %v", what, err)
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

// CompileCustomMatch compiles src into a route custom matcher.
func CompileCustomMatch(path, src string) (core.CustomMatchFunc, error) {
	program, err := compileBool(src, MatchEnv{})
	if err != nil {
		return nil, err
	}
	return func(taskName string, f pixel.Frame) bool {
		env := MatchEnv{Task: taskName, frame: f}
		if f != nil {
			env.Width, env.Height = f.Size()
		}
		return runBool(program, env, "customMatch of "+path)
	}, nil
}

// CompileSkipWhen compiles src into a BeforeTask hook that skips the route
// loop when src is true. now supplies the clock for hour and weekday.
func CompileSkipWhen(name, src string, now func() time.Time) (core.TaskHook, error) {
	program, err := compileBool(src, TaskEnv{})
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return func(t *core.Task) core.TaskDirective {
		ts := now().In(logger.Location())
		env := TaskEnv{Name: t.Name, RunTimes: t.RunTimes, Hour: ts.Hour(), Weekday: int(ts.Weekday())}
		if runBool(program, env, "skipWhen of "+name) {
			return core.SkipRouteLoop
		}
		return core.Continue
	}, nil
}
