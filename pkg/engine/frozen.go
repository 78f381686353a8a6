package engine

import (
	"time"

	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// FrozenMonitor detects a screen that stops changing. It samples at most
// once per Interval and reports a freeze after Limit consecutive samples
// scoring above Threshold against the previous one.
type FrozenMonitor struct {
	Interval  time.Duration
	Threshold float64
	Limit     int

	lastCheck time.Time
	last      pixel.Frame
	streak    int
}

// NewFrozenMonitor returns a monitor sampling once a minute that trips after
// ten near-identical samples.
func NewFrozenMonitor() *FrozenMonitor {
	return &FrozenMonitor{Interval: time.Minute, Threshold: 0.999, Limit: 10}
}

// Check samples a frame via capture if Interval has passed since the last
// sample and reports whether the freeze limit was reached.
func (m *FrozenMonitor) Check(now time.Time, capture func() (pixel.Frame, error)) (bool, error) {
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.Interval {
		return false, nil
	}
	m.lastCheck = now

	f, err := capture()
	if err != nil {
		return false, err
	}
	if m.last == nil {
		m.last = f
		return false, nil
	}

	score := pixel.FrameSimilarity(f, m.last)
	logger.Info("[Rerouter] checkScreenFrozen: score: %f", score)
	if score > m.Threshold {
		m.streak++
		logger.Info("[Rerouter] Screen is frozen, times %d", m.streak)
	} else {
		m.streak = 0
	}
	m.last.Release()
	m.last = f

	if m.streak >= m.Limit {
		m.last.Release()
		m.last = nil
		m.streak = 0
		return true, nil
	}
	return false, nil
}

// Streak returns the current run of near-identical samples.
func (m *FrozenMonitor) Streak() int {
	return m.streak
}

// Reset releases the cached frame and clears the streak.
func (m *FrozenMonitor) Reset() {
	if m.last != nil {
		m.last.Release()
		m.last = nil
	}
	m.streak = 0
	m.lastCheck = time.Time{}
}

// checkScreenFrozen runs the frozen monitor and powers the device off when
// it trips. It reports whether that happened.
func (e *Engine) checkScreenFrozen() bool {
	frozen, err := e.frozen.Check(e.clock.Now(), e.grab)
	if err != nil {
		logger.Warn("[Rerouter] checkScreenFrozen capture failed: %v", err)
		return false
	}
	if !frozen {
		return false
	}

	const msg = "Screen is frozen for more than 10 times (minutes), restarting emulator..."
	logger.Warn("[Rerouter] Screen is frozen for more than %d times (minutes), powering off", e.frozen.Limit)
	e.SendLog("Rerouter", "warning", "ScreenFrozen", msg)
	e.record(journal.Event{Kind: journal.KindFrozen, Detail: msg})
	if err := e.dev.PowerOff(); err != nil {
		logger.Error("[Rerouter] power off failed: %v", err)
	}
	return true
}
