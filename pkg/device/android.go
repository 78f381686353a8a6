package device

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// AndroidDevice drives an Android device or emulator through adb.
type AndroidDevice struct {
	serial string
	adb    adbRunner
}

// DeviceInfo describes a device as adb and getprop report it.
type DeviceInfo struct {
	Serial     string
	State      string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// New polls `adb get-state` at connectPoll up to connectAttempts times.
const (
	connectPoll     = 500 * time.Millisecond
	connectAttempts = 10
)

// New connects to serial, or to the first ready device when serial is empty,
// and waits for it to report the "device" state.
func New(serial string) (*AndroidDevice, error) {
	run, err := lookupADB()
	if err != nil {
		return nil, err
	}
	if serial == "" {
		if serial, err = firstReady(run); err != nil {
			return nil, fmt.Errorf("auto-detect device: %w", err)
		}
	}
	d := &AndroidDevice{serial: serial, adb: run.target(serial)}

	ready := func() error {
		out, err := d.adb.call("get-state")
		if err != nil {
			return err
		}
		if state := strings.TrimSpace(out); state != "device" {
			return fmt.Errorf("device %s is %s", serial, state)
		}
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(connectPoll), connectAttempts)
	if err := backoff.Retry(ready, policy); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", serial, err)
	}
	return d, nil
}

// ListDevices returns every device adb reports.
func ListDevices() ([]DeviceInfo, error) {
	run, err := lookupADB()
	if err != nil {
		return nil, err
	}
	out, err := run.call("devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

// FirstAvailable connects to the first device in the "device" state.
func FirstAvailable() (*AndroidDevice, error) {
	return New("")
}

func firstReady(run adbRunner) (string, error) {
	out, err := run.call("devices")
	if err != nil {
		return "", err
	}
	for _, d := range parseDevices(out) {
		if d.State == "device" {
			return d.Serial, nil
		}
	}
	return "", errors.New("no device in the ready state")
}

func parseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		if f := strings.Fields(line); len(f) >= 2 {
			devices = append(devices, DeviceInfo{Serial: f[0], State: f[1]})
		}
	}
	return devices
}

// Serial returns the serial this device was opened with.
func (d *AndroidDevice) Serial() string { return d.serial }

// Shell runs cmd through `adb shell` and returns its stdout.
func (d *AndroidDevice) Shell(cmd string) (string, error) {
	return d.adb.call("shell", cmd)
}

func (d *AndroidDevice) prop(name string) string {
	out, err := d.Shell("getprop " + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Info reads model, brand and SDK level from system properties. Unreadable
// properties are left empty.
func (d *AndroidDevice) Info() (DeviceInfo, error) {
	return DeviceInfo{
		Serial:     d.serial,
		State:      "device",
		Model:      d.prop("ro.product.model"),
		SDK:        d.prop("ro.build.version.sdk"),
		Brand:      d.prop("ro.product.brand"),
		IsEmulator: d.prop("ro.kernel.qemu") == "1",
	}, nil
}

// Screenshot captures the screen as a PNG and decodes it.
func (d *AndroidDevice) Screenshot() (image.Image, error) {
	out, err := d.adb.call("exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(strings.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode screencap: %w", err)
	}
	return img, nil
}

// ScreenSize returns the effective display size in pixels.
func (d *AndroidDevice) ScreenSize() (int, int, error) {
	out, err := d.Shell("wm size")
	if err != nil {
		return 0, 0, err
	}
	return parseWMSize(out)
}

// Tap touches (x, y). A positive during holds the touch for that long.
func (d *AndroidDevice) Tap(x, y int, during time.Duration) error {
	if during <= 0 {
		_, err := d.Shell(fmt.Sprintf("input tap %d %d", x, y))
		return err
	}
	_, err := d.Shell(fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, during.Milliseconds()))
	return err
}

// TapDown starts a touch at (x, y).
func (d *AndroidDevice) TapDown(x, y int, during time.Duration) error {
	return d.motion("DOWN", x, y, during)
}

// MoveTo moves an active touch to (x, y).
func (d *AndroidDevice) MoveTo(x, y int, during time.Duration) error {
	return d.motion("MOVE", x, y, during)
}

// TapUp ends a touch at (x, y).
func (d *AndroidDevice) TapUp(x, y int, during time.Duration) error {
	return d.motion("UP", x, y, during)
}

func (d *AndroidDevice) motion(action string, x, y int, during time.Duration) error {
	if _, err := d.Shell(fmt.Sprintf("input motionevent %s %d %d", action, x, y)); err != nil {
		return err
	}
	if during > 0 {
		time.Sleep(during)
	}
	return nil
}

// Keycode sends a key event. Codes without the KEYCODE_ prefix get one.
func (d *AndroidDevice) Keycode(code string, during time.Duration) error {
	key := strings.ToUpper(code)
	if _, err := strconv.Atoi(key); err != nil && !strings.HasPrefix(key, "KEYCODE_") {
		key = "KEYCODE_" + key
	}
	if during >= 500*time.Millisecond {
		_, err := d.Shell("input keyevent --longpress " + key)
		return err
	}
	_, err := d.Shell("input keyevent " + key)
	return err
}

// Typing enters text into the focused field.
func (d *AndroidDevice) Typing(text string) error {
	_, err := d.Shell("input text " + escapeInputText(text))
	return err
}

// ForegroundApp returns the package and activity holding window focus.
func (d *AndroidDevice) ForegroundApp() (string, string, error) {
	out, err := d.Shell("dumpsys window windows")
	if err != nil {
		return "", "", err
	}
	pkg, activity := parseFocusedApp(out)
	return pkg, activity, nil
}

// IsAppOnTop reports whether pkg owns the resumed activity.
func (d *AndroidDevice) IsAppOnTop(pkg string) (bool, error) {
	out, err := d.Shell("dumpsys activity activities | grep mResumedActivity")
	if err != nil {
		// grep exits non-zero when nothing is resumed
		return false, nil
	}
	return strings.Contains(out, pkg+"/"), nil
}

// StartApp launches the package's launcher activity.
func (d *AndroidDevice) StartApp(pkg string) error {
	_, err := d.Shell(fmt.Sprintf("monkey --pct-syskeys 0 -p %s -c android.intent.category.LAUNCHER 1", pkg))
	return err
}

// StopApp force-stops the package.
func (d *AndroidDevice) StopApp(pkg string) error {
	_, err := d.Shell("am force-stop " + pkg)
	return err
}

// PowerOff shuts the device down.
func (d *AndroidDevice) PowerOff() error {
	_, err := d.Shell("reboot -p")
	return err
}

// adbRunner invokes the adb binary, optionally pinned to one serial.
type adbRunner struct {
	bin    string
	serial string
}

func lookupADB() (adbRunner, error) {
	bin, err := exec.LookPath("adb")
	if err != nil {
		return adbRunner{}, fmt.Errorf("adb not found in PATH: %w", err)
	}
	return adbRunner{bin: bin}, nil
}

func (r adbRunner) target(serial string) adbRunner {
	r.serial = serial
	return r
}

func (r adbRunner) call(args ...string) (string, error) {
	full := args
	if r.serial != "" {
		full = append([]string{"-s", r.serial}, args...)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(r.bin, full...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, msg)
	}
	return stdout.String(), nil
}

// parseWMSize reads `wm size` output. An override size wins over the
// physical size.
func parseWMSize(out string) (int, int, error) {
	var w, h int
	found := false
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "size:")
		if idx < 0 {
			continue
		}
		dims := strings.TrimSpace(line[idx+len("size:"):])
		parts := strings.Split(dims, "x")
		if len(parts) != 2 {
			continue
		}
		pw, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		ph, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			continue
		}
		w, h, found = pw, ph, true
	}
	if !found {
		return 0, 0, fmt.Errorf("unexpected wm size output: %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

// parseFocusedApp extracts package and activity from the mCurrentFocus
// line of `dumpsys window windows`, e.g.
// mCurrentFocus=Window{29199c5 u0 com.example/com.example.Main}
func parseFocusedApp(out string) (string, string) {
	_, after, ok := strings.Cut(out, "mCurrentFocus")
	if !ok {
		return "", ""
	}
	fields := strings.Split(after, " ")
	if len(fields) < 3 {
		return "", ""
	}
	target := strings.SplitN(fields[2], "\n", 2)[0]
	target = strings.ReplaceAll(target, "}", "")
	pkg, activity, _ := strings.Cut(target, "/")
	return strings.TrimSpace(pkg), strings.TrimSpace(activity)
}

func escapeInputText(text string) string {
	r := strings.NewReplacer(" ", "%s", "'", `\'`, `"`, `\"`, "&", `\&`, "(", `\(`, ")", `\)`, ";", `\;`)
	return r.Replace(text)
}
