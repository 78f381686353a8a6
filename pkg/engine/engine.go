// Package engine drives a device through registered routes: it captures the
// screen, resolves the matching route and performs its action, task by task.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/device"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/route"
	"github.com/devicelab-dev/rerouter/pkg/screen"
	"github.com/devicelab-dev/rerouter/pkg/storage"
)

// Notifier delivers reports to external services. Implemented by notify.Client.
type Notifier interface {
	SendSlack(title, message string) error
	SendEvent(name, value string) error
	UpdateStatus(deviceID, licenseID, status string) error
	SendLog(channel, level, title, message string) error
}

// Recorder persists engine events. Implemented by journal.Journal.
type Recorder interface {
	Record(e journal.Event) error
}

// UnknownRouteFunc runs when no route matches the current frame.
type UnknownRouteFunc func(ctx *core.Context, f pixel.Frame, finish core.FinishFunc)

// StartAppFunc runs after the engine had to launch the app.
type StartAppFunc func(ctx *core.Context, finish core.FinishFunc)

// PageReferenceConfig controls saving marked reference images of matched pages.
type PageReferenceConfig struct {
	Enable bool
	// Folder defaults to <image root>/pageReference.
	Folder string
	Color  *color.RGBA
}

// LogScreenshotConfig controls periodic raw screenshots for debugging.
type LogScreenshotConfig struct {
	// Folder is relative to the image root and defaults to the device id.
	// Logging is off when both are empty.
	Folder   string
	Interval time.Duration
	MaxFiles int
	MaxDays  int
}

// Config configures an Engine.
type Config struct {
	PackageName     string
	TaskDelay       time.Duration
	StartAppDelay   time.Duration
	StartAppRetries int
	StopAppDelay    time.Duration
	AutoLaunchApp   bool

	StrictMode        bool
	CheckFrozenScreen bool
	SaveMatchedScreen bool
	PageReference     PageReferenceConfig
	LogScreenshot     LogScreenshotConfig

	InstanceID string
	DeviceID   string
	Debug      bool

	Defaults core.Defaults
	Screen   screen.Config

	ConflictHandler ConflictHandler
	Clock           Clock
	Notifier        Notifier
	Journal         Recorder
	Images          *storage.Store
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		TaskDelay:       2000 * time.Millisecond,
		StartAppDelay:   6000 * time.Millisecond,
		StartAppRetries: 3,
		StopAppDelay:    3000 * time.Millisecond,
		AutoLaunchApp:   true,
		LogScreenshot: LogScreenshotConfig{
			Interval: 10 * time.Second,
			MaxFiles: 100,
		},
		Defaults: core.DefaultDefaults(),
		Screen:   screen.DefaultConfig(),
	}
}

// Engine runs tasks against one device.
type Engine struct {
	cfg    Config
	dev    device.Device
	screen *screen.Screen
	clock  Clock
	// grab acquires a logical frame; the caller owns and releases it.
	grab func() (pixel.Frame, error)

	table    *route.Table
	matcher  *route.Matcher
	resolver *route.Resolver

	mu       sync.Mutex
	tasks    []*core.Task
	routeCtx *core.Context

	unknownAction  UnknownRouteFunc
	startAppAction StartAppFunc

	running atomic.Bool
	state   atomic.Int32

	loopMu   sync.Mutex
	loopDone chan struct{}

	conflicts   *ConflictTracker
	frozen      *FrozenMonitor
	lastLogShot time.Time

	statusMu    sync.Mutex
	localStatus core.GameStatus
	cloudStatus core.GameStatus
}

// New creates an engine for dev.
func New(dev device.Device, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.StartAppRetries == 0 {
		cfg.StartAppRetries = 3
	}
	if cfg.StopAppDelay == 0 {
		cfg.StopAppDelay = 3000 * time.Millisecond
	}
	cfg.Defaults.Rotation = cfg.Screen.Rotation

	e := &Engine{
		cfg:    cfg,
		dev:    dev,
		screen: screen.New(dev, cfg.Screen),
		clock:  cfg.Clock,
	}
	e.grab = e.screen.Capture
	e.Reset()
	return e
}

// Reset drops registered routes, tasks and actions and clears run state.
// Configuration and device are kept. If a Start is in progress, Reset stops
// it and waits for the loop to return before swapping state, so it must not
// be called from a hook running inside that loop.
func (e *Engine) Reset() {
	e.Stop()
	<-e.idle()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = route.NewTable()
	e.matcher = route.NewMatcher(e.cfg.Defaults, e.cfg.Debug)
	e.resolver = route.NewResolver(e.table, e.matcher)
	e.tasks = nil
	e.routeCtx = nil
	e.unknownAction = nil
	e.startAppAction = nil
	e.conflicts = NewConflictTracker()
	if e.frozen != nil {
		e.frozen.Reset()
	}
	e.frozen = NewFrozenMonitor()
	e.lastLogShot = time.Time{}

	e.statusMu.Lock()
	e.localStatus, e.cloudStatus = "", ""
	e.statusMu.Unlock()
}

// Screen returns the engine's screen.
func (e *Engine) Screen() *screen.Screen {
	return e.screen
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Engine) State() core.EngineState {
	return core.EngineState(e.state.Load())
}

func (e *Engine) setState(s core.EngineState) {
	e.state.Store(int32(s))
}

// Running reports whether the task loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// AddRoute registers a route. Paths must be unique; a duplicate is logged,
// ignored and reported as core.ErrDuplicateRoute.
func (e *Engine) AddRoute(cfg core.RouteConfig) error {
	return e.table.Add(e.cfg.Defaults.WrapRoute(cfg))
}

// AddTask registers a task. Names must be unique; a duplicate is logged,
// ignored and reported as core.ErrDuplicateTask.
func (e *Engine) AddTask(cfg core.TaskConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tasks {
		if t.Name == cfg.Name {
			warning("A task with the name '%s' already exists. Duplicate task will not be added.", cfg.Name)
			return core.ErrDuplicateTask.WithDetails(map[string]interface{}{"name": cfg.Name})
		}
	}
	e.tasks = append(e.tasks, e.cfg.Defaults.WrapTask(cfg))
	return nil
}

// Tasks returns the registered tasks.
func (e *Engine) Tasks() []*core.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*core.Task(nil), e.tasks...)
}

// SetUnknownRouteAction sets what to do when no route matches. Nil clears it.
func (e *Engine) SetUnknownRouteAction(fn UnknownRouteFunc) {
	e.unknownAction = fn
}

// SetStartAppAction sets what to do after the app had to be launched.
func (e *Engine) SetStartAppAction(fn StartAppFunc) {
	e.startAppAction = fn
}

// Start runs the task loop until Stop is called, ctx is cancelled or a
// conflict handler fails. It blocks. With no tasks registered it logs and
// returns nil immediately.
func (e *Engine) Start(ctx context.Context, packageName string) error {
	if packageName != "" {
		e.cfg.PackageName = packageName
	}
	tasks := e.Tasks()
	if len(tasks) == 0 {
		logger.Info("[Rerouter] Rerouter start failed, no tasks ...")
		return nil
	}
	if err := e.init(); err != nil {
		return err
	}

	logger.Info("[Rerouter] Rerouter started ...")
	done := e.begin()
	err := e.taskLoop(ctx, tasks)
	e.running.Store(false)
	e.setState(core.StateIdle)
	close(done)
	logger.Info("[Rerouter] Rerouter stopped ...")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) init() error {
	if err := e.screen.Init(); err != nil {
		return fmt.Errorf("failed to init screen: %w", err)
	}
	if e.cfg.Images != nil {
		if e.cfg.PageReference.Enable && e.cfg.PageReference.Folder == "" {
			e.cfg.PageReference.Folder = e.cfg.Images.Root() + "/pageReference"
		}
		if e.cfg.LogScreenshot.Folder == "" {
			e.cfg.LogScreenshot.Folder = e.cfg.DeviceID
		}
	}
	return nil
}

// begin marks the engine running and returns the channel idle hands out
// until Start returns.
func (e *Engine) begin() chan struct{} {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	done := make(chan struct{})
	e.loopDone = done
	e.running.Store(true)
	e.setState(core.StateRunning)
	return done
}

// idle returns a channel closed once no task loop is running.
func (e *Engine) idle() <-chan struct{} {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.loopDone == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return e.loopDone
}

// Stop asks the task loop to end after the current step. Safe to call from
// any goroutine.
func (e *Engine) Stop() {
	if e.running.Swap(false) {
		logger.Info("[Rerouter] Rerouter stop called, trying to stop task loop")
	}
}

// sleep pauses through the engine clock.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	return e.clock.Sleep(ctx, d)
}

func (e *Engine) record(ev journal.Event) {
	if e.cfg.Journal == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	if err := e.cfg.Journal.Record(ev); err != nil {
		logger.Warn("[Rerouter] failed to record %s event: %v", ev.Kind, err)
	}
}

func (e *Engine) log(format string, args ...interface{}) {
	e.logImpl(true, format, args...)
}

// logImpl logs only when both the engine and the caller have debug enabled.
func (e *Engine) logImpl(debug bool, format string, args ...interface{}) {
	if !debug || !e.cfg.Debug {
		return
	}
	logger.Debug("[Rerouter][debug] "+format, args...)
}

func warning(format string, args ...interface{}) {
	logger.Warn("[Rerouter][warning] "+format, args...)
}
