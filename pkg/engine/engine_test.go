package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/device/mock"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	black = color.RGBA{A: 255}

	errTooManySleeps = errors.New("fake clock: too many sleeps")
)

// fakeClock advances instantly on Sleep and fails after limit sleeps so a
// broken loop ends the test instead of hanging it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
	limit  int
	// onSleep, when set, runs before each Sleep checks its context.
	onSleep func(time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), limit: 10000}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.onSleep(d)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	if c.sleeps > c.limit {
		return errTooManySleeps
	}
	c.now = c.now.Add(d)
	return nil
}

type slackMsg struct{ title, message string }

type logMsg struct{ channel, level, title, message string }

type fakeNotifier struct {
	mu       sync.Mutex
	slack    []slackMsg
	events   []string
	statuses []string
	logs     []logMsg
	failNext error
}

func (n *fakeNotifier) SendSlack(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slack = append(n.slack, slackMsg{title, message})
	return nil
}

func (n *fakeNotifier) SendEvent(name, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, name)
	return nil
}

func (n *fakeNotifier) UpdateStatus(_, _, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failNext; err != nil {
		n.failNext = nil
		return err
	}
	n.statuses = append(n.statuses, status)
	return nil
}

func (n *fakeNotifier) SendLog(channel, level, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, logMsg{channel, level, title, message})
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []journal.Event
}

func (r *fakeRecorder) Record(e journal.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeRecorder) kinds() []journal.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []journal.Kind
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *fakeRecorder) count(k journal.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

type harness struct {
	e        *Engine
	dev      *mock.Device
	clock    *fakeClock
	notifier *fakeNotifier
	journal  *fakeRecorder
}

func newHarness(t *testing.T, dev *mock.Device, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		dev:      dev,
		clock:    newFakeClock(),
		notifier: &fakeNotifier{},
		journal:  &fakeRecorder{},
	}
	cfg := DefaultConfig()
	cfg.Clock = h.clock
	cfg.Notifier = h.notifier
	cfg.Journal = h.journal
	if mutate != nil {
		mutate(&cfg)
	}
	h.e = New(dev, cfg)
	return h
}

// screenWith returns a 640x360 black image with the given pixels set.
func screenWith(px map[image.Point]color.RGBA) *image.RGBA {
	img := mock.Solid(640, 360, black)
	for p, c := range px {
		img.SetRGBA(p.X, p.Y, c)
	}
	return img
}

func homePage() *page.Page {
	return &page.Page{
		Name:   "home",
		Points: []page.Point{{X: 10, Y: 10, R: 255}},
		Next:   &page.XY{X: 100, Y: 50},
		Back:   &page.XY{X: 5, Y: 5},
	}
}

func homeScreen() *image.RGBA {
	return screenWith(map[image.Point]color.RGBA{{10, 10}: red})
}

// frameLog records every frame the engine acquires.
type frameLog struct {
	mu     sync.Mutex
	frames []*pixel.ImageFrame
}

func trackFrames(t *testing.T, e *Engine) *frameLog {
	t.Helper()
	l := &frameLog{}
	grab := e.grab
	e.grab = func() (pixel.Frame, error) {
		f, err := grab()
		if err != nil {
			return nil, err
		}
		img, ok := f.(*pixel.ImageFrame)
		if !ok {
			t.Fatalf("captured frame is %T", f)
		}
		l.mu.Lock()
		l.frames = append(l.frames, img)
		l.mu.Unlock()
		return f, nil
	}
	return l
}

// held returns how many acquired frames were never released.
func (l *frameLog) held() (held, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.frames {
		if !f.Released() {
			held++
		}
	}
	return held, len(l.frames)
}

func shopPage() *page.Page {
	return &page.Page{
		Name:   "shop",
		Points: []page.Point{{X: 20, Y: 20, G: 255}},
		Next:   &page.XY{X: 300, Y: 200},
	}
}

func shopScreen() *image.RGBA {
	return screenWith(map[image.Point]color.RGBA{{20, 20}: {G: 255, A: 255}})
}

func mustAddRoute(t *testing.T, e *Engine, cfg core.RouteConfig) {
	t.Helper()
	if err := e.AddRoute(cfg); err != nil {
		t.Fatalf("AddRoute(%s): %v", cfg.Path, err)
	}
}

func mustAddTask(t *testing.T, e *Engine, cfg core.TaskConfig) {
	t.Helper()
	if err := e.AddTask(cfg); err != nil {
		t.Fatalf("AddTask(%s): %v", cfg.Name, err)
	}
}

func TestStart_NoTasks(t *testing.T) {
	h := newHarness(t, mock.New(mock.Config{}), nil)
	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() = %v, want nil", err)
	}
	if h.dev.Screenshots() != 0 {
		t.Error("engine should not capture without tasks")
	}
}

func TestStart_WaitsForStableMatchThenGoesNext(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	var seenTimes int
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:             "/home",
		Match:            homePage(),
		Action:           core.GoNext,
		ShouldMatchTimes: core.Ptr(3),
		AfterRoute: func(ctx *core.Context, _ pixel.Frame, _ []*page.Page) error {
			seenTimes = ctx.MatchTimes
			h.e.Stop()
			return nil
		},
	})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	if got := dev.Screenshots(); got != 3 {
		t.Errorf("screenshots = %d, want 3", got)
	}
	taps := dev.Taps()
	if len(taps) != 1 || taps[0].X != 100 || taps[0].Y != 50 {
		t.Errorf("taps = %+v, want one tap at (100,50)", taps)
	}
	if seenTimes != 3 {
		t.Errorf("MatchTimes at action = %d, want 3", seenTimes)
	}
	if h.journal.count(journal.KindMatched) != 1 {
		t.Errorf("journal = %v, want one matched event", h.journal.kinds())
	}
	if h.e.Running() || h.e.State() != core.StateIdle {
		t.Errorf("engine should be idle after Start returns, state=%v", h.e.State())
	}
}

func TestStart_ShouldMatchDuring(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	var during time.Duration
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:              "/home",
		Match:             homePage(),
		Action:            core.KeycodeBack,
		ShouldMatchDuring: core.Ptr(5 * time.Second),
		AfterRoute: func(ctx *core.Context, _ pixel.Frame, _ []*page.Page) error {
			during = ctx.MatchDuring
			h.e.Stop()
			return nil
		},
	})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	// FindRouteDelay is 2s: matched at 0s, 2s, 4s and acted on at 6s.
	if during != 6*time.Second {
		t.Errorf("MatchDuring = %v, want 6s", during)
	}
	if keys := dev.Keys(); len(keys) != 1 || keys[0] != "BACK" {
		t.Errorf("keys = %v", keys)
	}
}

func TestStart_UnknownRouteAction(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{mock.Solid(640, 360, black)}})
	h := newHarness(t, dev, nil)
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/home", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	calls := 0
	h.e.SetUnknownRouteAction(func(ctx *core.Context, _ pixel.Frame, finish core.FinishFunc) {
		calls++
		if ctx.Path != "" {
			t.Errorf("unknown route ctx.Path = %q", ctx.Path)
		}
		if calls == 2 {
			h.e.Stop()
		}
	})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("unknown action calls = %d, want 2", calls)
	}
	if len(dev.Taps()) != 0 {
		t.Error("no route matched, nothing should be tapped")
	}
	if h.journal.count(journal.KindUnknown) != 2 {
		t.Errorf("journal = %v", h.journal.kinds())
	}
}

func TestStart_CallbackPanicIsIsolated(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	afterCalled := false
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:  "/home",
		Match: homePage(),
		Action: core.Custom(func(*core.Context, pixel.Frame, []*page.Page, core.FinishFunc) error {
			panic("boom")
		}),
		BeforeRoute: func(*core.Context, pixel.Frame, []*page.Page) error {
			return errors.New("before failed")
		},
		AfterRoute: func(*core.Context, pixel.Frame, []*page.Page) error {
			afterCalled = true
			h.e.Stop()
			return nil
		},
	})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !afterCalled {
		t.Error("afterRoute should run after a panicking action")
	}
}

func TestStart_ConflictDefaultHandler(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, func(c *Config) { c.DeviceID = "emulator-5554" })
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{
		Name:      "main",
		AfterTask: func(*core.Task) { h.e.Stop() },
	})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if keys := dev.Keys(); len(keys) != 1 || keys[0] != "BACK" {
		t.Errorf("keys = %v, want [BACK]", keys)
	}
	if len(dev.Taps()) != 0 {
		t.Error("conflicting routes must not act")
	}
	if len(h.notifier.slack) != 1 || h.notifier.slack[0].title != "Conflict Routes Report" {
		t.Errorf("slack = %+v", h.notifier.slack)
	}
	if h.journal.count(journal.KindConflict) != 1 {
		t.Errorf("journal = %v", h.journal.kinds())
	}
}

func TestStart_ConflictStrictModeFails(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, func(c *Config) { c.StrictMode = true })
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	err := h.e.Start(context.Background(), "")
	if !errors.Is(err, core.ErrRouteConflict) {
		t.Fatalf("Start() = %v, want ErrRouteConflict", err)
	}
	if h.e.Running() {
		t.Error("engine should not be running after a fatal conflict")
	}
}

func TestStart_ConflictHandlerPanic(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, func(c *Config) {
		c.ConflictHandler = func(ConflictArgs) error { panic("handler") }
	})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); !errors.Is(err, core.ErrRouteConflict) {
		t.Fatalf("Start() = %v, want ErrRouteConflict", err)
	}
}

func TestStart_ConflictStormRestartsApp(t *testing.T) {
	const pkg = "com.example.game"
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}, Foreground: pkg})

	var h *harness
	handlerCalls := 0
	h = newHarness(t, dev, func(c *Config) {
		c.ConflictHandler = func(a ConflictArgs) error {
			handlerCalls++
			if len(a.Matches) != 2 {
				t.Errorf("matches = %d, want 2", len(a.Matches))
			}
			if len(dev.Stopped()) > 0 {
				h.e.Stop()
			}
			return nil
		}
	})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), pkg); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if diff := cmp.Diff([]string{pkg}, dev.Stopped()); diff != "" {
		t.Errorf("stopped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{pkg}, dev.Started()); diff != "" {
		t.Errorf("started mismatch (-want +got):\n%s", diff)
	}
	// Conflicts 1-4 reach the handler, the 5th restarts, the 6th reaches it again.
	if handlerCalls != 5 {
		t.Errorf("handler calls = %d, want 5", handlerCalls)
	}
	if h.journal.count(journal.KindRestart) != 1 || h.journal.count(journal.KindConflict) != 6 {
		t.Errorf("journal = %v", h.journal.kinds())
	}
}

func TestStart_FrozenScreenPowersOff(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{mock.Solid(640, 360, black)}})
	h := newHarness(t, dev, func(c *Config) { c.CheckFrozenScreen = true })
	mustAddTask(t, h.e, core.TaskConfig{Name: "main", FindRouteDelay: core.Ptr(time.Minute)})

	unknown := 0
	h.e.SetUnknownRouteAction(func(*core.Context, pixel.Frame, core.FinishFunc) { unknown++ })

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if dev.PowerOffs() != 1 {
		t.Errorf("power offs = %d, want 1", dev.PowerOffs())
	}
	// One baseline sample plus ten frozen ones; the last trips before the route pass.
	if unknown != 10 {
		t.Errorf("route passes = %d, want 10", unknown)
	}
	if len(h.notifier.logs) != 1 || h.notifier.logs[0].title != "ScreenFrozen" {
		t.Errorf("logs = %+v", h.notifier.logs)
	}
	if h.journal.count(journal.KindFrozen) != 1 {
		t.Errorf("journal = %v", h.journal.kinds())
	}
}

func TestStart_MinRoundIntervalAndSkipRouteLoop(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	var runs []time.Time
	mustAddTask(t, h.e, core.TaskConfig{
		Name:             "daily",
		MinRoundInterval: core.Ptr(10 * time.Second),
		// older hook name
		BeforeRoute: func(*core.Task) core.TaskDirective {
			runs = append(runs, h.clock.Now())
			if len(runs) == 2 {
				h.e.Stop()
			}
			return core.SkipRouteLoop
		},
	})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if gap := runs[1].Sub(runs[0]); gap != 12*time.Second {
		t.Errorf("gap between rounds = %v, want 12s", gap)
	}
	if dev.Screenshots() != 0 {
		t.Error("SkipRouteLoop must not capture")
	}
}

func TestStart_ForceStop(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{mock.Solid(640, 360, black)}})
	h := newHarness(t, dev, nil)
	mustAddTask(t, h.e, core.TaskConfig{
		Name:          "timed",
		ForceStop:     core.Ptr(true),
		MaxTaskDuring: core.Ptr(5 * time.Second),
		AfterTask:     func(*core.Task) { h.e.Stop() },
	})

	passes := 0
	h.e.SetUnknownRouteAction(func(*core.Context, pixel.Frame, core.FinishFunc) { passes++ })

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	// Passes at 0s, 2s and 4s; at 6s the task has exceeded 5s.
	if passes != 3 {
		t.Errorf("route passes = %d, want 3", passes)
	}
}

func TestStart_MaxTaskRunTimes(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	rounds := 0
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:  "/home",
		Match: homePage(),
		Action: core.Custom(func(_ *core.Context, _ pixel.Frame, _ []*page.Page, finish core.FinishFunc) error {
			finish(false)
			return nil
		}),
	})
	mustAddTask(t, h.e, core.TaskConfig{
		Name:            "main",
		MaxTaskRunTimes: core.Ptr(3),
		AfterTask: func(t *core.Task) {
			rounds++
			if t.RunTimes == 2 {
				h.e.Stop()
			}
		},
	})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if rounds != 3 {
		t.Errorf("rounds = %d, want 3", rounds)
	}
}

func TestStart_ExitTaskEndsRounds(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	rounds := 0
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:  "/home",
		Match: homePage(),
		Action: core.Custom(func(_ *core.Context, _ pixel.Frame, _ []*page.Page, finish core.FinishFunc) error {
			finish(true)
			return nil
		}),
	})
	mustAddTask(t, h.e, core.TaskConfig{
		Name:            "main",
		MaxTaskRunTimes: core.Ptr(5),
		AfterTask:       func(*core.Task) { rounds++ },
	})
	mustAddTask(t, h.e, core.TaskConfig{
		Name:       "stopper",
		BeforeTask: func(*core.Task) core.TaskDirective { h.e.Stop(); return core.SkipRouteLoop },
	})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if rounds != 1 {
		t.Errorf("rounds = %d, want 1 after finish(true)", rounds)
	}
}

func TestStart_AutoLaunchApp(t *testing.T) {
	const pkg = "com.example.game"
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)
	mustAddTask(t, h.e, core.TaskConfig{
		Name:      "main",
		AfterTask: func(*core.Task) { h.e.Stop() },
	})

	launched := 0
	h.e.SetStartAppAction(func(_ *core.Context, finish core.FinishFunc) {
		launched++
		finish(false)
	})

	if err := h.e.Start(context.Background(), pkg); err != nil {
		t.Fatal(err)
	}
	if launched != 1 {
		t.Errorf("startApp action calls = %d, want 1", launched)
	}
	if diff := cmp.Diff([]string{pkg}, dev.Started()); diff != "" {
		t.Errorf("started mismatch (-want +got):\n%s", diff)
	}
	if h.journal.count(journal.KindLaunch) != 1 {
		t.Errorf("journal = %v", h.journal.kinds())
	}
}

func TestStart_CaptureErrorContinues(t *testing.T) {
	dev := mock.New(mock.Config{ScreenshotErr: errors.New("adb offline")})
	h := newHarness(t, dev, nil)
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})
	h.clock.limit = 5

	err := h.e.Start(context.Background(), "")
	if !errors.Is(err, errTooManySleeps) {
		t.Fatalf("Start() = %v, want the loop to keep retrying", err)
	}
	if dev.Screenshots() < 3 {
		t.Errorf("screenshots = %d, want retries", dev.Screenshots())
	}
}

func TestStart_ContextCanceled(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.e.Start(ctx, ""); err != nil {
		t.Fatalf("Start() = %v, want nil on cancel", err)
	}
}

func TestStart_WritesJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, func(c *Config) { c.Journal = j })
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:       "/home",
		Match:      homePage(),
		Action:     core.GoBack,
		AfterRoute: func(*core.Context, pixel.Frame, []*page.Page) error { h.e.Stop(); return nil },
	})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	stats, err := j.RouteStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].Path != "/home" || stats[0].Hits != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if taps := dev.Taps(); len(taps) != 1 || taps[0].X != 5 {
		t.Errorf("goBack taps = %+v", taps)
	}
}

func TestAddRoute_Duplicate(t *testing.T) {
	h := newHarness(t, mock.New(mock.Config{}), nil)
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/home", Match: homePage()})
	if err := h.e.AddRoute(core.RouteConfig{Path: "/home", Match: homePage()}); !errors.Is(err, core.ErrDuplicateRoute) {
		t.Errorf("duplicate route err = %v", err)
	}
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})
	if err := h.e.AddTask(core.TaskConfig{Name: "main"}); !errors.Is(err, core.ErrDuplicateTask) {
		t.Errorf("duplicate task err = %v", err)
	}
	if len(h.e.Routes()) != 1 || len(h.e.Tasks()) != 1 {
		t.Errorf("routes=%d tasks=%d", len(h.e.Routes()), len(h.e.Tasks()))
	}

	h.e.Reset()
	if len(h.e.Routes()) != 0 || len(h.e.Tasks()) != 0 {
		t.Error("Reset should drop routes and tasks")
	}
}

func TestRoutes_ReturnsCopies(t *testing.T) {
	h := newHarness(t, mock.New(mock.Config{}), nil)
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/home", Match: homePage()})

	routes := h.e.Routes()
	routes[0].Path = "/mutated"
	if got := h.e.Routes()[0].Path; got != "/home" {
		t.Errorf("registered path changed to %q", got)
	}
	cfg, ok := h.e.RouteByPath("/home")
	if !ok || cfg.Path != "/home" || cfg.ShouldMatchTimes != nil {
		t.Errorf("RouteByPath = %+v, %v", cfg, ok)
	}
	if _, ok := h.e.RouteByPath("/missing"); ok {
		t.Error("unexpected route")
	}
}

func TestStart_ReleasesFrames(t *testing.T) {
	twoRoutes := func(t *testing.T, e *Engine) {
		mustAddRoute(t, e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
		mustAddRoute(t, e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	}

	tests := []struct {
		name    string
		strict  bool
		setup   func(t *testing.T, h *harness, cancel context.CancelFunc)
		wantErr error
		want    int
	}{
		{
			name: "matched iterations",
			setup: func(t *testing.T, h *harness, _ context.CancelFunc) {
				mustAddRoute(t, h.e, core.RouteConfig{
					Path:             "/home",
					Match:            homePage(),
					Action:           core.GoNext,
					ShouldMatchTimes: core.Ptr(3),
					AfterRoute:       func(*core.Context, pixel.Frame, []*page.Page) error { h.e.Stop(); return nil },
				})
			},
			want: 3,
		},
		{
			name:   "strict conflict",
			strict: true,
			setup: func(t *testing.T, h *harness, _ context.CancelFunc) {
				twoRoutes(t, h.e)
			},
			wantErr: core.ErrRouteConflict,
			want:    1,
		},
		{
			name: "cancelled during after-action delay",
			setup: func(t *testing.T, h *harness, cancel context.CancelFunc) {
				mustAddRoute(t, h.e, core.RouteConfig{
					Path:             "/home",
					Match:            homePage(),
					Action:           core.GoNext,
					AfterActionDelay: core.Ptr(7 * time.Second),
					AfterRoute: func(*core.Context, pixel.Frame, []*page.Page) error {
						t.Error("afterRoute ran after cancellation")
						return nil
					},
				})
				h.clock.onSleep = func(d time.Duration) {
					if d == 7*time.Second {
						cancel()
					}
				}
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
			h := newHarness(t, dev, func(c *Config) { c.StrictMode = tt.strict })
			frames := trackFrames(t, h.e)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(t, h, cancel)
			mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

			err := h.e.Start(ctx, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Start() = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Start() = %v", err)
			}
			held, total := frames.held()
			if total != tt.want || held != 0 {
				t.Errorf("frames: %d of %d still held, want 0 of %d", held, total, tt.want)
			}
		})
	}
}

func TestStart_ShouldMatchDuringKeepsFiringUntilPathChanges(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	h := newHarness(t, dev, nil)

	var homeActsAt []int
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:              "/home",
		Match:             homePage(),
		Action:            core.KeycodeBack,
		ShouldMatchDuring: core.Ptr(5 * time.Second),
		AfterRoute: func(*core.Context, pixel.Frame, []*page.Page) error {
			homeActsAt = append(homeActsAt, dev.Screenshots())
			if len(homeActsAt) == 3 {
				dev.SetFrames(shopScreen())
			}
			return nil
		},
	})

	var shopAt int
	var shopDuring time.Duration
	mustAddRoute(t, h.e, core.RouteConfig{
		Path:              "/shop",
		Match:             shopPage(),
		Action:            core.GoNext,
		ShouldMatchDuring: core.Ptr(5 * time.Second),
		AfterRoute: func(ctx *core.Context, _ pixel.Frame, _ []*page.Page) error {
			shopAt = dev.Screenshots()
			shopDuring = ctx.MatchDuring
			h.e.Stop()
			return nil
		},
	})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	// Gated on captures 1-3, then every stable capture acts.
	if diff := cmp.Diff([]int{4, 5, 6}, homeActsAt); diff != "" {
		t.Errorf("home action captures mismatch (-want +got):\n%s", diff)
	}
	if len(dev.Keys()) != 3 {
		t.Errorf("keys = %v, want 3 BACK presses", dev.Keys())
	}
	// The new path starts its own window: gated on 7-9, acts on 10.
	if shopAt != 10 || shopDuring != 6*time.Second {
		t.Errorf("shop acted at capture %d with MatchDuring %v, want 10 and 6s", shopAt, shopDuring)
	}
	if taps := dev.Taps(); len(taps) != 1 || taps[0].X != 300 {
		t.Errorf("taps = %+v", taps)
	}
}

func TestReset_WaitsForRunningLoop(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{mock.Solid(640, 360, black)}})
	h := newHarness(t, dev, nil)
	h.clock.limit = 1 << 30
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/home", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	looping := make(chan struct{})
	var once sync.Once
	h.clock.onSleep = func(time.Duration) {
		once.Do(func() { close(looping) })
		time.Sleep(time.Millisecond)
	}

	errc := make(chan error, 1)
	go func() { errc <- h.e.Start(context.Background(), "") }()
	<-looping

	h.e.Reset()
	if h.e.Running() || h.e.State() != core.StateIdle {
		t.Errorf("after Reset: running=%v state=%v", h.e.Running(), h.e.State())
	}
	if len(h.e.Routes()) != 0 || len(h.e.Tasks()) != 0 {
		t.Error("Reset should drop routes and tasks")
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Reset")
	}
}

func TestStart_ConflictJournalsPageNames(t *testing.T) {
	dev := mock.New(mock.Config{Frames: []image.Image{homeScreen()}})
	var h *harness
	h = newHarness(t, dev, func(c *Config) {
		c.ConflictHandler = func(ConflictArgs) error { h.e.Stop(); return nil }
	})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/a", Match: homePage(), Action: core.GoNext})
	mustAddRoute(t, h.e, core.RouteConfig{Path: "/b", Match: homePage(), Action: core.GoNext})
	mustAddTask(t, h.e, core.TaskConfig{Name: "main"})

	if err := h.e.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	if len(h.journal.events) != 1 {
		t.Fatalf("events = %+v", h.journal.events)
	}
	ev := h.journal.events[0]
	if diff := cmp.Diff([]string{"home"}, ev.Pages); diff != "" {
		t.Errorf("conflict pages mismatch (-want +got):\n%s", diff)
	}
	if ev.Detail != "/a: (home)\n/b: (home)" {
		t.Errorf("detail = %q", ev.Detail)
	}
}
