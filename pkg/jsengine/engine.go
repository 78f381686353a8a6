// Package jsengine runs JavaScript route actions and hooks.
package jsengine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 30 * time.Second

// Engine wraps a goja runtime. Globals persist across runs, so scripts can
// keep counters between route visits.
type Engine struct {
	mu       sync.Mutex
	runtime  *goja.Runtime
	output   *goja.Object
	programs map[string]*goja.Program
	timeout  time.Duration
}

// New creates an engine with console and output installed.
func New() *Engine {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	e := &Engine{
		runtime:  rt,
		output:   rt.NewObject(),
		programs: make(map[string]*goja.Program),
		timeout:  DefaultTimeout,
	}
	rt.Set("console", e.console())
	rt.Set("output", e.output)
	return e
}

// SetTimeout changes how long a script may run before it is interrupted.
// Zero disables the limit.
func (e *Engine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

func (e *Engine) console() *goja.Object {
	logTo := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			log("[script] %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	c := e.runtime.NewObject()
	c.Set("log", logTo(logger.Info))
	c.Set("info", logTo(logger.Info))
	c.Set("debug", logTo(logger.Debug))
	c.Set("warn", logTo(logger.Warn))
	c.Set("error", logTo(logger.Error))
	return c
}

// SetVariable defines a global visible to every script.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Set(name, value)
}

// SetVariables defines several globals.
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// GetOutput returns a snapshot of the values scripts stored on output.
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj := e.output
	if v := e.runtime.Get("output"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		obj = v.ToObject(e.runtime)
	}
	out := make(map[string]interface{}, len(obj.Keys()))
	for _, k := range obj.Keys() {
		out[k] = obj.Get(k).Export()
	}
	return out
}

// Compile parses src once and caches the program under name.
func (e *Engine) Compile(name, src string) (*goja.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compile(name, src)
}

func (e *Engine) compile(name, src string) (*goja.Program, error) {
	key := name + "\x00" + src
	if p, ok := e.programs[key]; ok {
		return p, nil
	}
	p, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	e.programs[key] = p
	return p, nil
}

// run executes p under the engine timeout. The caller holds e.mu.
func (e *Engine) run(p *goja.Program) (goja.Value, error) {
	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			e.runtime.Interrupt(fmt.Sprintf("script exceeded %s", e.timeout))
		})
		defer func() {
			timer.Stop()
			e.runtime.ClearInterrupt()
		}()
	}
	return e.runtime.RunProgram(p)
}

func (e *Engine) exec(name, src string) (goja.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.compile(name, src)
	if err != nil {
		return nil, err
	}
	v, err := e.run(p)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return v, nil
}

// Eval evaluates an expression and exports its value.
func (e *Engine) Eval(src string) (interface{}, error) {
	v, err := e.exec("eval", src)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// EvalString evaluates an expression and formats its value. Null and
// undefined give "".
func (e *Engine) EvalString(src string) (string, error) {
	v, err := e.Eval(src)
	if err != nil || v == nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// RunScript runs src for its side effects.
func (e *Engine) RunScript(src string) error {
	_, err := e.exec("script", src)
	return err
}

// ExpandVariables replaces each ${expr} in text with the value of expr.
// Unbalanced or failing expressions are left untouched.
func (e *Engine) ExpandVariables(text string) (string, error) {
	var b strings.Builder
	for {
		open := strings.Index(text, "${")
		if open < 0 {
			b.WriteString(text)
			return b.String(), nil
		}
		end := closingBrace(text, open+2)
		if end < 0 {
			b.WriteString(text)
			return b.String(), nil
		}
		b.WriteString(text[:open])
		if v, err := e.EvalString(text[open+2 : end]); err == nil {
			b.WriteString(v)
		} else {
			logger.Debug("[script] cannot expand %q: %v", text[open:end+1], err)
			b.WriteString(text[open : end+1])
		}
		text = text[end+1:]
	}
}

// closingBrace returns the index of the brace closing the one opened just
// before from, or -1.
func closingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Close interrupts any running script and drops compiled programs.
// Safe to call multiple times.
func (e *Engine) Close() {
	e.runtime.Interrupt("engine closed")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]*goja.Program)
}
