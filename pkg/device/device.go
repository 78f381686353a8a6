// Package device provides the device capabilities the engine drives:
// screen capture, input injection and app lifecycle.
package device

import (
	"image"
	"time"
)

// Capturer grabs the raw device screen.
type Capturer interface {
	Screenshot() (image.Image, error)
	ScreenSize() (width, height int, err error)
}

// Input injects touch, key and text events in device pixels.
type Input interface {
	Tap(x, y int, during time.Duration) error
	TapDown(x, y int, during time.Duration) error
	MoveTo(x, y int, during time.Duration) error
	TapUp(x, y int, during time.Duration) error
	Keycode(code string, during time.Duration) error
	Typing(text string) error
}

// Apps controls the foreground application.
type Apps interface {
	// ForegroundApp returns the focused package and activity.
	ForegroundApp() (pkg, activity string, err error)
	// IsAppOnTop reports whether pkg owns the resumed activity.
	IsAppOnTop(pkg string) (bool, error)
	StartApp(pkg string) error
	StopApp(pkg string) error
	// PowerOff shuts the device or emulator down.
	PowerOff() error
}

// Device is everything the engine needs from a connected device.
type Device interface {
	Capturer
	Input
	Apps
}
