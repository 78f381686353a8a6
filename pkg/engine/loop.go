package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/storage"
)

// taskLoop visits tasks round robin while the engine is running.
func (e *Engine) taskLoop(ctx context.Context, tasks []*core.Task) error {
	for idx := 0; e.running.Load(); idx++ {
		task := tasks[idx%len(tasks)]
		now := e.clock.Now()

		if task.HasRun() && now.Sub(task.LastRunTime) <= task.MinRoundInterval {
			e.log("Task: %s during: %d <= minRoundInterval, skip", task.Name, now.Sub(task.LastRunTime).Milliseconds())
			if err := e.sleep(ctx, e.cfg.TaskDelay); err != nil {
				return err
			}
			continue
		}

		if err := e.runTask(ctx, task, now); err != nil {
			return err
		}
		if err := e.sleep(ctx, e.cfg.TaskDelay); err != nil {
			return err
		}
	}
	return nil
}

// runTask runs up to MaxTaskRunTimes rounds of task.
func (e *Engine) runTask(ctx context.Context, task *core.Task, now time.Time) error {
	task.StartTime = now
	task.RunTimes = 0

	exitTask := false
	for i := 0; i < task.MaxTaskRunTimes && e.running.Load() && !exitTask; i++ {
		e.log("Task: %s run %d", task.Name, task.RunTimes)

		skip := false
		if task.BeforeTask != nil {
			e.log("Task: %s run %d do beforeTask()", task.Name, task.RunTimes)
			directive := core.Continue
			err := safeCall(func() error {
				directive = task.BeforeTask(task)
				return nil
			})
			if err != nil {
				warning("Task: %s beforeTask callback error: %v", task.Name, err)
			}
			skip = directive == core.SkipRouteLoop
		}

		if skip {
			e.log("Task: %s run %d skipRouteLoop", task.Name, task.RunTimes)
		} else {
			exit, err := e.routeLoop(ctx, task)
			if err != nil {
				return err
			}
			exitTask = exit
		}

		if task.AfterTask != nil {
			e.log("Task: %s run %d do afterTask()", task.Name, task.RunTimes)
			if err := safeCall(func() error { task.AfterTask(task); return nil }); err != nil {
				warning("Task: %s afterTask callback error: %v", task.Name, err)
			}
		}

		task.RunTimes++
		task.LastRunTime = now
		during := e.clock.Now().Sub(task.StartTime)
		if task.MaxTaskDuring > 0 && during >= task.MaxTaskDuring {
			e.log("Task: %s taskDuring: %d/%d reached, stop", task.Name, during.Milliseconds(), task.MaxTaskDuring.Milliseconds())
			break
		}
	}
	return nil
}

// routeLoop captures, resolves and acts until the round is finished, the
// engine stops or a conflict handler fails. It reports whether the round
// asked to exit the task.
func (e *Engine) routeLoop(ctx context.Context, task *core.Task) (bool, error) {
	e.setState(core.StateRouteLooping)
	defer e.setState(core.StateRunning)

	rc := e.newRouteContext(task)

	loop := true
	exitTask := false
	finish := func(exit bool) {
		loop = false
		exitTask = exit
		e.log("finish round: %s; exitTask: %t", task.Name, exit)
	}

	for loop && e.running.Load() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if e.cfg.CheckFrozenScreen && e.checkScreenFrozen() {
			e.Stop()
			break
		}

		now := e.clock.Now()
		if task.ForceStop && task.MaxTaskDuring > 0 && now.Sub(task.StartTime) > task.MaxTaskDuring {
			e.log("Task %s AutoStop, exceed taskRunDuring", task.Name)
			break
		}

		if e.cfg.AutoLaunchApp && e.CheckAndStartApp(ctx) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if e.startAppAction != nil {
				if err := safeCall(func() error { e.startAppAction(rc, finish); return nil }); err != nil {
					warning("startApp action error: %v", err)
				}
			}
			continue
		}

		f, err := e.capture()
		if err != nil {
			logger.Warn("[Rerouter] %v", core.ErrCaptureFailed.WithCause(err))
			if err := e.sleep(ctx, task.FindRouteDelay); err != nil {
				return false, err
			}
			continue
		}
		rot, err := e.screen.Rotation()
		if err != nil {
			rot = e.cfg.Screen.Rotation
		}

		matches := e.resolver.FindMatchedRoutes(task.Name, f, rot)
		path := ""
		if len(matches) > 0 {
			path = matches[0].Route.Path
		}
		rc.Observe(path, now)

		switch len(matches) {
		case 0:
			e.record(journal.Event{Kind: journal.KindUnknown, Task: task.Name})
			if e.unknownAction != nil {
				if err := safeCall(func() error { e.unknownAction(rc, f, finish); return nil }); err != nil {
					warning("unknown route action error: %v", err)
				}
			}
		case 1:
			if e.cfg.SaveMatchedScreen {
				e.saveScreenshot("matched", path, false, 0, f)
			}
			acted, err := e.doActionForRoute(ctx, rc, f, matches[0], finish)
			if acted {
				e.record(journal.Event{Kind: journal.KindMatched, Task: task.Name, Path: path, Pages: page.Names(matches[0].Pages)})
			}
			if err != nil {
				f.Release()
				return false, err
			}
		default:
			if err := e.handleConflict(ctx, task.Name, f, matches, finish); err != nil {
				f.Release()
				return false, err
			}
		}

		rc.Settle()
		f.Release()
		if err := e.sleep(ctx, task.FindRouteDelay); err != nil {
			return false, err
		}
	}
	return exitTask, nil
}

func (e *Engine) newRouteContext(task *core.Task) *core.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	last := ""
	if e.routeCtx != nil {
		last = e.routeCtx.LastMatchedPath
	}
	e.routeCtx = core.NewContext(task, e.screen, last, &e.running)
	return e.routeCtx
}

// RouteContext returns the context of the current or last route loop.
func (e *Engine) RouteContext() *core.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routeCtx
}

// capture grabs a logical frame, saving a periodic raw log screenshot first
// when configured.
func (e *Engine) capture() (pixel.Frame, error) {
	e.maybeLogScreenshot()
	return e.grab()
}

func (e *Engine) maybeLogScreenshot() {
	lc := e.cfg.LogScreenshot
	if e.cfg.Images == nil || lc.Folder == "" {
		return
	}
	now := e.clock.Now()
	if !e.lastLogShot.IsZero() && now.Sub(e.lastLogShot) <= lc.Interval {
		return
	}
	e.lastLogShot = now

	raw, err := e.screen.CaptureRaw()
	if err != nil {
		logger.Warn("[Rerouter] log screenshot failed: %v", err)
		return
	}
	defer raw.Release()
	e.saveScreenshot(lc.Folder, "log", true, lc.MaxDays, raw)
	if _, err := e.cfg.Images.Prune(lc.Folder, lc.MaxFiles, lc.MaxDays); err != nil {
		logger.Warn("[Rerouter] Warning in removeOldestFilesIfExceedsLimit: %v", err)
	}
}

func (e *Engine) saveScreenshot(folder, suffix string, timestamp bool, maxDays int, f pixel.Frame) {
	if e.cfg.Images == nil {
		return
	}
	if _, err := e.cfg.Images.SaveScreenshot(folder, suffix, timestamp, maxDays, f.Image()); err != nil {
		logger.Warn("[Rerouter] failed to save screenshot %s/%s: %v", folder, suffix, err)
	}
}

// Images returns the image store, or nil.
func (e *Engine) Images() *storage.Store {
	return e.cfg.Images
}

// safeCall runs fn, turning a returned error or a panic into a
// core.ErrCallbackFailed.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.ErrCallbackFailed.WithMessage(fmt.Sprintf("callback panicked: %v", r))
		}
	}()
	if err := fn(); err != nil {
		return core.ErrCallbackFailed.WithCause(err)
	}
	return nil
}
