package engine

import (
	"fmt"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// EventRunning is sent when a new account starts running.
const EventRunning = "running"

// UpdateGameStatus records status locally and pushes it to the status
// service. It returns false when the remote status already matched or the
// update failed, and true when no remote identity is configured.
func (e *Engine) UpdateGameStatus(status core.GameStatus) bool {
	e.statusMu.Lock()
	e.localStatus = status
	cloud := e.cloudStatus
	e.statusMu.Unlock()

	if status == core.GameStatusNewAccount {
		e.notify("event", func(n Notifier) error { return n.SendEvent(EventRunning, "") })
	}

	if e.cfg.InstanceID == "" || e.cfg.DeviceID == "" {
		logger.Warn("[Rerouter] Instance ID or Device ID is empty. Skipping cloud status update.")
		return true
	}
	if cloud == status {
		return false
	}

	ok := e.notify("status", func(n Notifier) error {
		return n.UpdateStatus(e.cfg.DeviceID, e.cfg.InstanceID, string(status))
	})
	if !ok {
		return false
	}
	e.statusMu.Lock()
	e.cloudStatus = status
	e.statusMu.Unlock()
	return true
}

// GameStatus returns the last status passed to UpdateGameStatus.
func (e *Engine) GameStatus() core.GameStatus {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.localStatus
}

// SendLog sends a remote log entry prefixed with the device and license ids.
func (e *Engine) SendLog(channel, level, title, message string) bool {
	license := e.cfg.InstanceID
	if license == "" {
		license = "DEBUG"
	}
	message = fmt.Sprintf("deviceId: %s\nlicenseId: %s\n%s", e.cfg.DeviceID, license, message)
	return e.notify("log", func(n Notifier) error {
		return n.SendLog(channel, level, title, message)
	})
}
