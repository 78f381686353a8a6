package engine

import (
	"context"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// InfiniteRetries makes StartApp and StopApp retry until they succeed.
const InfiniteRetries = -1

const defaultAppRetryDelay = 3000 * time.Millisecond

// CheckInApp reports whether the configured package is in the foreground.
// With no package configured it reports true.
func (e *Engine) CheckInApp() bool {
	pkg := e.cfg.PackageName
	if pkg == "" {
		return true
	}
	current, _, err := e.dev.ForegroundApp()
	if err == nil && current == pkg {
		return true
	}
	onTop, err := e.dev.IsAppOnTop(pkg)
	if err != nil {
		logger.Debug("[Rerouter] isAppOnTop failed: %v", err)
		return false
	}
	return onTop
}

// CheckAndStartApp launches the app if it is not in the foreground and
// reports whether it had to.
func (e *Engine) CheckAndStartApp(ctx context.Context) bool {
	if e.CheckInApp() {
		return false
	}
	logger.Info("[Rerouter] AppIsNotStarted, startApp %s", e.cfg.PackageName)
	e.record(journal.Event{Kind: journal.KindLaunch, Detail: e.cfg.PackageName})
	if err := e.StartApp(ctx, e.cfg.StartAppRetries, defaultAppRetryDelay); err != nil {
		logger.Warn("[Rerouter] startApp: %v", err)
	}
	return true
}

// StartApp launches the app until it is in the foreground or maxRetries
// attempts were made (InfiniteRetries for no limit). Each attempt waits
// StartAppDelay, or retryDelay when that is zero.
func (e *Engine) StartApp(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	logger.Info("[Rerouter] startApp: start")
	defer logger.Info("[Rerouter] startApp: done")

	pkg := e.cfg.PackageName
	if pkg == "" {
		logger.Info("[Rerouter] Rerouter start app failed, no packageName ...")
		return core.ErrNoPackage
	}
	delay := e.cfg.StartAppDelay
	if delay == 0 {
		delay = retryDelay
	}

	inApp := e.CheckInApp()
	infinite := maxRetries == InfiniteRetries
	for attempts := 0; !inApp && (infinite || attempts < maxRetries); {
		if err := e.dev.StartApp(pkg); err != nil {
			logger.Warn("[Rerouter] start %s failed: %v", pkg, err)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		inApp = e.CheckInApp()
		attempts++
		if infinite && attempts%5 == 0 {
			logger.Info("[Rerouter] startApp: still trying after %d attempts...", attempts)
		}
	}
	if !inApp {
		return core.ErrAppNotLaunched.WithDetails(map[string]interface{}{"package": pkg})
	}
	return nil
}

// StopApp force-stops the app until it leaves the foreground or maxRetries
// attempts were made.
func (e *Engine) StopApp(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	logger.Info("[Rerouter] stopApp: start")
	defer logger.Info("[Rerouter] stopApp: done")

	pkg := e.cfg.PackageName
	if pkg == "" {
		logger.Info("[Rerouter] Rerouter stop app failed, no packageName ...")
		return core.ErrNoPackage
	}

	inApp := e.CheckInApp()
	infinite := maxRetries == InfiniteRetries
	for attempts := 0; inApp && (infinite || attempts < maxRetries); {
		if err := e.dev.StopApp(pkg); err != nil {
			logger.Warn("[Rerouter] stop %s failed: %v", pkg, err)
		}
		if err := e.sleep(ctx, retryDelay); err != nil {
			return err
		}
		inApp = e.CheckInApp()
		attempts++
		if infinite && attempts%5 == 0 {
			logger.Info("[Rerouter] stopApp: still trying after %d attempts...", attempts)
		}
	}
	return nil
}

// RestartApp stops and starts the app with the default retry policy.
func (e *Engine) RestartApp(ctx context.Context) {
	if err := e.StopApp(ctx, 3, e.cfg.StopAppDelay); err != nil {
		logger.Warn("[Rerouter] restartApp: %v", err)
	}
	if err := e.StartApp(ctx, 3, defaultAppRetryDelay); err != nil {
		logger.Warn("[Rerouter] restartApp: %v", err)
	}
}

// PowerOff shuts the device down.
func (e *Engine) PowerOff() error {
	return e.dev.PowerOff()
}
