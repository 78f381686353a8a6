package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/jsengine"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// Registrar accepts routes and tasks. *engine.Engine implements it.
type Registrar interface {
	AddRoute(cfg core.RouteConfig) error
	AddTask(cfg core.TaskConfig) error
}

// Options configures how a catalog is turned into engine configs.
type Options struct {
	// Input receives taps and key events from step actions and scripts.
	Input jsengine.Input
	// Scripts runs script actions and hooks; created on demand when nil.
	Scripts *jsengine.Engine
	// Now is the clock for skipWhen; defaults to time.Now.
	Now func() time.Time
}

// Index resolves page and group names.
type Index struct {
	pages  map[string]*page.Page
	groups map[string]*page.GroupPage
}

// Index builds the name index, validating groups.
func (c *Catalog) Index() (*Index, error) {
	idx := &Index{pages: make(map[string]*page.Page), groups: make(map[string]*page.GroupPage)}
	for _, p := range c.Pages {
		if p.Name == "" {
			return nil, core.ErrInvalidConfig.WithMessage("page without a name")
		}
		if _, dup := idx.pages[p.Name]; dup {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("duplicate page %q", p.Name))
		}
		idx.pages[p.Name] = p
	}
	for _, g := range c.Groups {
		if _, dup := idx.groups[g.Name]; dup || idx.pages[g.Name] != nil {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("duplicate group %q", g.Name))
		}
		op, err := page.ParseMatchOp(g.Op)
		if err != nil {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("group %q", g.Name)).WithCause(err)
		}
		group := &page.GroupPage{Name: g.Name, Op: op, Next: g.Next, Back: g.Back, Threshold: g.Threshold}
		for _, name := range g.Pages {
			p, ok := idx.pages[name]
			if !ok {
				return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("group %q references unknown page %q", g.Name, name))
			}
			group.Pages = append(group.Pages, p)
		}
		idx.groups[g.Name] = group
	}
	return idx, nil
}

// Lookup returns the page or group called name.
func (idx *Index) Lookup(name string) (page.Matchable, bool) {
	if p, ok := idx.pages[name]; ok {
		return p, true
	}
	if g, ok := idx.groups[name]; ok {
		return g, true
	}
	return nil, false
}

// Routes converts the route specs into route configs.
func (c *Catalog) Routes(opts Options) ([]core.RouteConfig, error) {
	idx, err := c.Index()
	if err != nil {
		return nil, err
	}
	b := &builder{opts: opts}
	routes := make([]core.RouteConfig, 0, len(c.RouteSpecs))
	for _, spec := range c.RouteSpecs {
		cfg, err := b.route(idx, spec)
		if err != nil {
			return nil, err
		}
		routes = append(routes, cfg)
	}
	return routes, nil
}

// TaskConfigs converts the task specs into task configs.
func (c *Catalog) TaskConfigs(opts Options) ([]core.TaskConfig, error) {
	tasks := make([]core.TaskConfig, 0, len(c.Tasks))
	for _, spec := range c.Tasks {
		cfg := core.TaskConfig{
			Name:             spec.Name,
			MaxTaskRunTimes:  spec.MaxTaskRunTimes,
			MaxTaskDuring:    millis(spec.MaxTaskDuring),
			MinRoundInterval: millis(spec.MinRoundInterval),
			ForceStop:        spec.ForceStop,
			FindRouteDelay:   millis(spec.FindRouteDelay),
		}
		if spec.SkipWhen != "" {
			hook, err := CompileSkipWhen(spec.Name, spec.SkipWhen, opts.Now)
			if err != nil {
				return nil, err
			}
			cfg.BeforeTask = hook
		}
		tasks = append(tasks, cfg)
	}
	return tasks, nil
}

// Apply registers every route and task with reg. Duplicates are logged by
// the registrar and skipped; any other error stops registration.
func (c *Catalog) Apply(reg Registrar, opts Options) error {
	routes, err := c.Routes(opts)
	if err != nil {
		return err
	}
	tasks, err := c.TaskConfigs(opts)
	if err != nil {
		return err
	}
	for _, r := range routes {
		if err := reg.AddRoute(r); err != nil && !errors.Is(err, core.ErrDuplicateRoute) {
			return err
		}
	}
	for _, t := range tasks {
		if err := reg.AddTask(t); err != nil && !errors.Is(err, core.ErrDuplicateTask) {
			return err
		}
	}
	logger.Info("[catalog] registered %d routes, %d tasks", len(routes), len(tasks))
	return nil
}

type builder struct {
	opts Options
}

func (b *builder) scripts() *jsengine.Engine {
	if b.opts.Scripts == nil {
		b.opts.Scripts = jsengine.New()
	}
	return b.opts.Scripts
}

func (b *builder) route(idx *Index, spec RouteSpec) (core.RouteConfig, error) {
	cfg := core.RouteConfig{
		Path:              spec.Path,
		ShouldMatchTimes:  spec.ShouldMatchTimes,
		ShouldMatchDuring: millis(spec.ShouldMatchDuring),
		BeforeActionDelay: millis(spec.BeforeActionDelay),
		AfterActionDelay:  millis(spec.AfterActionDelay),
		Priority:          spec.Priority,
		Debug:             spec.Debug,
	}
	invalid := func(format string, args ...interface{}) error {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("route %q: ", spec.Path) + fmt.Sprintf(format, args...))
	}

	if spec.Match == "" && spec.CustomMatch == "" {
		return cfg, invalid("needs match or customMatch")
	}
	if spec.Match != "" {
		m, ok := idx.Lookup(spec.Match)
		if !ok {
			return cfg, invalid("unknown page %q", spec.Match)
		}
		cfg.Match = m
	}
	if spec.CustomMatch != "" {
		fn, err := CompileCustomMatch(spec.Path, spec.CustomMatch)
		if err != nil {
			return cfg, err
		}
		cfg.CustomMatch = fn
	}
	if spec.Rotation != "" {
		rot, err := screen.ParseRotation(spec.Rotation)
		if err != nil {
			return cfg, invalid("%v", err)
		}
		cfg.Rotation = &rot
	}

	action, err := b.action(spec)
	if err != nil {
		return cfg, err
	}
	cfg.Action = action

	if spec.BeforeRoute != "" {
		cfg.BeforeRoute = b.scripts().Hook(spec.Path+"#beforeRoute", spec.BeforeRoute, b.opts.Input)
	}
	if spec.AfterRoute != "" {
		cfg.AfterRoute = b.scripts().Hook(spec.Path+"#afterRoute", spec.AfterRoute, b.opts.Input)
	}
	return cfg, nil
}

func (b *builder) action(spec RouteSpec) (core.Action, error) {
	a := spec.Action
	if a.IsZero() {
		return core.Action{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("route %q has no action", spec.Path))
	}
	if a.Kind != "" {
		switch a.Kind {
		case "goNext":
			return core.GoNext, nil
		case "goBack":
			return core.GoBack, nil
		case "keycodeBack":
			return core.KeycodeBack, nil
		default:
			return core.Action{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("route %q: unknown action %q", spec.Path, a.Kind))
		}
	}

	in := b.opts.Input
	needsInput := a.Tap != nil || a.Swipe != nil || a.Keycode != "" || a.Type != ""
	if needsInput && in == nil {
		return core.Action{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("route %q: step actions need a screen", spec.Path))
	}

	var script core.ActionFunc
	if a.Script != "" {
		js := b.scripts()
		if _, err := js.Compile(spec.Path+"#action", a.Script); err != nil {
			return core.Action{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("route %q", spec.Path)).WithCause(err)
		}
		script = js.Action(spec.Path+"#action", a.Script, in)
	}
	var expand func(string) (string, error)
	if a.Type != "" {
		expand = b.scripts().ExpandVariables
	}

	return core.Custom(func(ctx *core.Context, f pixel.Frame, pages []*page.Page, finish core.FinishFunc) error {
		if a.Tap != nil {
			if err := in.Tap(a.Tap.X, a.Tap.Y); err != nil {
				return err
			}
		}
		if s := a.Swipe; s != nil {
			if err := in.Swipe(s.From.X, s.From.Y, s.To.X, s.To.Y, s.Steps); err != nil {
				return err
			}
		}
		if a.Keycode != "" {
			if err := in.Keycode(a.Keycode); err != nil {
				return err
			}
		}
		if a.Type != "" {
			text, err := expand(a.Type)
			if err != nil {
				return err
			}
			if err := in.Typing(text); err != nil {
				return err
			}
		}
		if script != nil {
			if err := script(ctx, f, pages, finish); err != nil {
				return err
			}
		}
		if a.Finish != nil {
			finish(*a.Finish)
		}
		return nil
	}), nil
}

func millis(ms *int) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}
