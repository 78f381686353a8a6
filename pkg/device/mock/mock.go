// Package mock provides a scripted device for running the engine without hardware.
package mock

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

// ErrNoFrames is returned by Screenshot when no frames are scripted.
var ErrNoFrames = errors.New("mock: no frames scripted")

// Config configures mock device behavior.
type Config struct {
	// Width and Height are the reported screen size. Defaults to 640x360.
	Width  int
	Height int
	// Frames are returned by Screenshot in order; the last one repeats.
	Frames []image.Image
	// ScreenshotErr makes every Screenshot call fail.
	ScreenshotErr error
	// Foreground is the package initially holding focus.
	Foreground string
	// LaunchFails keeps StartApp from bringing the package to the foreground.
	LaunchFails bool
}

// Touch is a recorded input event in device pixels.
type Touch struct {
	Kind   string // tap, down, move, up
	X, Y   int
	During time.Duration
}

// Device is a mock implementation of device.Device.
type Device struct {
	mu         sync.Mutex
	cfg        Config
	frameIdx   int
	foreground string

	touches   []Touch
	keys      []string
	typed     []string
	started   []string
	stopped   []string
	powerOffs int
	shots     int
}

// New creates a new mock device.
func New(cfg Config) *Device {
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 360
	}
	return &Device{cfg: cfg, foreground: cfg.Foreground}
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// SetFrames replaces the scripted frames and rewinds to the first one.
func (d *Device) SetFrames(frames ...image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Frames = frames
	d.frameIdx = 0
}

// SetForeground changes the focused package.
func (d *Device) SetForeground(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = pkg
}

// Screenshot returns the next scripted frame.
func (d *Device) Screenshot() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shots++
	if d.cfg.ScreenshotErr != nil {
		return nil, d.cfg.ScreenshotErr
	}
	if len(d.cfg.Frames) == 0 {
		return nil, ErrNoFrames
	}
	img := d.cfg.Frames[d.frameIdx]
	if d.frameIdx < len(d.cfg.Frames)-1 {
		d.frameIdx++
	}
	return img, nil
}

// ScreenSize returns the configured size.
func (d *Device) ScreenSize() (int, int, error) {
	return d.cfg.Width, d.cfg.Height, nil
}

func (d *Device) record(kind string, x, y int, during time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touches = append(d.touches, Touch{Kind: kind, X: x, Y: y, During: during})
	return nil
}

// Tap records a tap.
func (d *Device) Tap(x, y int, during time.Duration) error { return d.record("tap", x, y, during) }

// TapDown records a touch start.
func (d *Device) TapDown(x, y int, during time.Duration) error { return d.record("down", x, y, during) }

// MoveTo records a touch move.
func (d *Device) MoveTo(x, y int, during time.Duration) error { return d.record("move", x, y, during) }

// TapUp records a touch end.
func (d *Device) TapUp(x, y int, during time.Duration) error { return d.record("up", x, y, during) }

// Keycode records a key event.
func (d *Device) Keycode(code string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, code)
	return nil
}

// Typing records typed text.
func (d *Device) Typing(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

// ForegroundApp returns the focused package.
func (d *Device) ForegroundApp() (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground, "", nil
}

// IsAppOnTop reports whether pkg is focused.
func (d *Device) IsAppOnTop(pkg string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pkg != "" && d.foreground == pkg, nil
}

// StartApp records the launch and focuses pkg unless LaunchFails is set.
func (d *Device) StartApp(pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, pkg)
	if !d.cfg.LaunchFails {
		d.foreground = pkg
	}
	return nil
}

// StopApp records the stop and clears focus if pkg held it.
func (d *Device) StopApp(pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, pkg)
	if d.foreground == pkg {
		d.foreground = ""
	}
	return nil
}

// PowerOff records a power-off.
func (d *Device) PowerOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powerOffs++
	return nil
}

// Touches returns a copy of recorded touch events.
func (d *Device) Touches() []Touch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Touch(nil), d.touches...)
}

// Taps returns recorded taps only.
func (d *Device) Taps() []Touch {
	var taps []Touch
	for _, t := range d.Touches() {
		if t.Kind == "tap" {
			taps = append(taps, t)
		}
	}
	return taps
}

// Keys returns recorded key events.
func (d *Device) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

// Typed returns recorded text input.
func (d *Device) Typed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.typed...)
}

// Started returns packages passed to StartApp.
func (d *Device) Started() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.started...)
}

// Stopped returns packages passed to StopApp.
func (d *Device) Stopped() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stopped...)
}

// PowerOffs returns how many times PowerOff was called.
func (d *Device) PowerOffs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powerOffs
}

// Screenshots returns how many times Screenshot was called.
func (d *Device) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots
}
