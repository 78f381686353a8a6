// Package screen maps a fixed logical coordinate space onto the device
// screen for capture and input.
package screen

import (
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/devicelab-dev/rerouter/pkg/device"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// Rotation is the screen orientation a route expects.
type Rotation int

const (
	Horizontal Rotation = iota
	Vertical
)

// String returns the rotation name.
func (r Rotation) String() string {
	switch r {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// ParseRotation accepts "horizontal" or "vertical". Empty means horizontal.
func ParseRotation(s string) (Rotation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "horizontal", "landscape":
		return Horizontal, nil
	case "vertical", "portrait":
		return Vertical, nil
	default:
		return Horizontal, fmt.Errorf("unknown rotation %q", s)
	}
}

// RotationOf returns Horizontal when width exceeds height.
func RotationOf(width, height int) Rotation {
	if width > height {
		return Horizontal
	}
	return Vertical
}

// Config describes the logical space and where it sits on the device.
type Config struct {
	// DevWidth and DevHeight are the logical dimensions pages are authored in.
	DevWidth  int
	DevHeight int
	// ScreenWidth, ScreenHeight and the offsets select the device region the
	// logical space maps onto. Zero sizes are filled from the device at Init.
	ScreenWidth   int
	ScreenHeight  int
	ScreenOffsetX int
	ScreenOffsetY int
	ActionDuring  time.Duration
	Rotation      Rotation
}

// DefaultConfig returns a 640x360 horizontal logical space.
func DefaultConfig() Config {
	return Config{
		DevWidth:     640,
		DevHeight:    360,
		ActionDuring: 180 * time.Millisecond,
		Rotation:     Horizontal,
	}
}

// Device is what Screen needs from the device layer.
type Device interface {
	device.Capturer
	device.Input
}

// Screen captures frames and injects input in logical coordinates.
type Screen struct {
	dev   Device
	cfg   Config
	sleep func(time.Duration)
}

// New creates a Screen. Call Init before capturing to size the mapping.
func New(dev Device, cfg Config) *Screen {
	if cfg.DevWidth == 0 || cfg.DevHeight == 0 {
		d := DefaultConfig()
		cfg.DevWidth, cfg.DevHeight = d.DevWidth, d.DevHeight
	}
	return &Screen{dev: dev, cfg: cfg, sleep: time.Sleep}
}

// Init fills unset screen dimensions from the device size, oriented by the
// configured rotation.
func (s *Screen) Init() error {
	w, h, err := s.dev.ScreenSize()
	if err != nil {
		return fmt.Errorf("read screen size: %w", err)
	}
	long, short := max(w, h), min(w, h)
	dw, dh := long, short
	if s.cfg.Rotation == Vertical {
		dw, dh = short, long
	}
	if s.cfg.ScreenWidth == 0 {
		s.cfg.ScreenWidth = dw
	}
	if s.cfg.ScreenHeight == 0 {
		s.cfg.ScreenHeight = dh
	}
	logger.Info("screenWidth: %d, screenHeight: %d", s.cfg.ScreenWidth, s.cfg.ScreenHeight)
	return nil
}

// Config returns the current configuration.
func (s *Screen) Config() Config {
	return s.cfg
}

// SetActionDuring changes the hold time used for taps and key events.
func (s *Screen) SetActionDuring(d time.Duration) {
	s.cfg.ActionDuring = d
}

// X maps a logical x to a device x.
func (s *Screen) X(devX int) int {
	return s.cfg.ScreenOffsetX + devX*s.cfg.ScreenWidth/s.cfg.DevWidth
}

// Y maps a logical y to a device y.
func (s *Screen) Y(devY int) int {
	return s.cfg.ScreenOffsetY + devY*s.cfg.ScreenHeight/s.cfg.DevHeight
}

// Tap taps a logical point.
func (s *Screen) Tap(x, y int) error {
	return s.dev.Tap(s.X(x), s.Y(y), s.cfg.ActionDuring)
}

// TapDown starts a touch at a logical point.
func (s *Screen) TapDown(x, y int) error {
	return s.dev.TapDown(s.X(x), s.Y(y), s.cfg.ActionDuring)
}

// MoveTo moves the active touch to a logical point.
func (s *Screen) MoveTo(x, y int) error {
	return s.dev.MoveTo(s.X(x), s.Y(y), s.cfg.ActionDuring)
}

// TapUp ends the touch at a logical point.
func (s *Screen) TapUp(x, y int) error {
	return s.dev.TapUp(s.X(x), s.Y(y), s.cfg.ActionDuring)
}

// Swipe drags from one logical point to another in steps.
func (s *Screen) Swipe(fromX, fromY, toX, toY, steps int) error {
	if steps <= 0 {
		steps = 4
	}
	const hold = 40 * time.Millisecond
	stepX := float64(toX-fromX) / float64(steps)
	stepY := float64(toY-fromY) / float64(steps)

	x, y := s.X(fromX), s.Y(fromY)
	if err := s.dev.TapDown(x, y, hold); err != nil {
		return err
	}
	s.sleep(10 * time.Millisecond)
	if err := s.dev.MoveTo(x, y, hold); err != nil {
		return err
	}
	s.sleep(10 * time.Millisecond)

	for i := 0; i < steps; i++ {
		x = s.X(fromX + int(stepX*float64(i)))
		y = s.Y(fromY + int(stepY*float64(i)))
		if err := s.dev.MoveTo(x, y, hold); err != nil {
			return err
		}
		s.sleep(100 * time.Millisecond)
	}

	if err := s.dev.MoveTo(s.X(toX), s.Y(toY), hold); err != nil {
		return err
	}
	s.sleep(500 * time.Millisecond)
	if err := s.dev.TapUp(s.X(toX), s.Y(toY), hold); err != nil {
		return err
	}
	s.sleep(500 * time.Millisecond)
	return nil
}

// Keycode sends a key event such as "BACK" or "HOME".
func (s *Screen) Keycode(code string) error {
	return s.dev.Keycode(code, s.cfg.ActionDuring)
}

// Typing enters text.
func (s *Screen) Typing(text string) error {
	return s.dev.Typing(text)
}

// Rotation reads the current device orientation.
func (s *Screen) Rotation() (Rotation, error) {
	w, h, err := s.dev.ScreenSize()
	if err != nil {
		return Horizontal, err
	}
	return RotationOf(w, h), nil
}

// FrameRotation returns the orientation of a captured frame.
func FrameRotation(f pixel.Frame) Rotation {
	w, h := f.Size()
	return RotationOf(w, h)
}

// Capture grabs the device screen, crops it to the configured region and
// scales it to the logical size.
func (s *Screen) Capture() (pixel.Frame, error) {
	img, err := s.dev.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return pixel.NewImageFrame(s.toLogical(img)), nil
}

// CaptureRaw grabs the device screen without scaling.
func (s *Screen) CaptureRaw() (pixel.Frame, error) {
	img, err := s.dev.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return pixel.NewImageFrame(img), nil
}

func (s *Screen) toLogical(img image.Image) image.Image {
	b := img.Bounds()
	src := b
	if s.cfg.ScreenWidth > 0 && s.cfg.ScreenHeight > 0 {
		origin := b.Min.Add(image.Pt(s.cfg.ScreenOffsetX, s.cfg.ScreenOffsetY))
		src = image.Rectangle{Min: origin, Max: origin.Add(image.Pt(s.cfg.ScreenWidth, s.cfg.ScreenHeight))}.Intersect(b)
	}
	if src.Dx() == s.cfg.DevWidth && src.Dy() == s.cfg.DevHeight && src == b {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.cfg.DevWidth, s.cfg.DevHeight))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
