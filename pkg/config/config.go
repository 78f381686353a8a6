// Package config handles configuration for rerouter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/engine"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/notify"
	"github.com/devicelab-dev/rerouter/pkg/screen"
	"github.com/devicelab-dev/rerouter/pkg/storage"
)

// Config represents the workspace configuration (rerouter.yaml).
// Durations are in milliseconds.
type Config struct {
	Engine   EngineSection   `yaml:"engine"`
	Screen   ScreenSection   `yaml:"screen"`
	Logger   LoggerSection   `yaml:"logger"`
	Notify   NotifySection   `yaml:"notify"`
	Journal  JournalSection  `yaml:"journal"`
	Device   DeviceSection   `yaml:"device"`
	Catalog  []string        `yaml:"catalog"` // Catalog files, relative to the config file
	Defaults DefaultsSection `yaml:"defaults"`

	dir string
}

// EngineSection configures the task loop.
type EngineSection struct {
	PackageName     string `yaml:"packageName"`
	TaskDelay       *int   `yaml:"taskDelay"`
	StartAppDelay   *int   `yaml:"startAppDelay"`
	StartAppRetries *int   `yaml:"startAppRetries"`
	StopAppDelay    *int   `yaml:"stopAppDelay"`
	AutoLaunchApp   *bool  `yaml:"autoLaunchApp"`

	StrictMode        bool   `yaml:"strictMode"`
	CheckFrozenScreen bool   `yaml:"checkFrozenScreen"`
	SaveMatchedScreen bool   `yaml:"saveMatchedScreen"`
	SaveImageRoot     string `yaml:"saveImageRoot"`
	SavePageReference bool   `yaml:"savePageReference"`

	LogScreenshot LogScreenshotSection `yaml:"logScreenshot"`

	InstanceID string `yaml:"instanceId"`
	DeviceID   string `yaml:"deviceId"`
	Debug      bool   `yaml:"debug"`
}

// LogScreenshotSection configures periodic raw screenshots.
type LogScreenshotSection struct {
	Folder   string `yaml:"folder"`
	Interval *int   `yaml:"interval"`
	MaxFiles *int   `yaml:"maxFiles"`
	MaxDays  int    `yaml:"maxDays"`
}

// ScreenSection configures the logical coordinate space.
type ScreenSection struct {
	DevWidth      int    `yaml:"devWidth"`
	DevHeight     int    `yaml:"devHeight"`
	ScreenWidth   int    `yaml:"screenWidth"`
	ScreenHeight  int    `yaml:"screenHeight"`
	ScreenOffsetX int    `yaml:"screenOffsetX"`
	ScreenOffsetY int    `yaml:"screenOffsetY"`
	Rotation      string `yaml:"rotation"`
	ActionDuring  *int   `yaml:"actionDuring"`
}

// LoggerSection configures logging.
type LoggerSection struct {
	Level              string `yaml:"level"`
	TimezoneOffsetHour *int   `yaml:"timezoneOffsetHour"`
	File               string `yaml:"file"`
}

// NotifySection holds external service endpoints.
type NotifySection struct {
	SlackURL         string `yaml:"slackUrl"`
	StatusURL        string `yaml:"statusUrl"`
	StatusKey        string `yaml:"statusKey"`
	LogURL           string `yaml:"logUrl"`
	GA4MeasurementID string `yaml:"ga4MeasurementId"`
	GA4APISecret     string `yaml:"ga4ApiSecret"`
}

// JournalSection configures the event journal. An empty path disables it.
type JournalSection struct {
	Path string `yaml:"path"`
}

// DeviceSection selects the device.
type DeviceSection struct {
	Serial string `yaml:"serial"` // Empty picks the first available device
}

// DefaultsSection overrides route and task defaults.
type DefaultsSection struct {
	PageThreshold      *float64 `yaml:"pageThreshold"`
	GroupPageThreshold *float64 `yaml:"groupPageThreshold"`
	ShouldMatchTimes   *int     `yaml:"shouldMatchTimes"`
	ShouldMatchDuring  *int     `yaml:"shouldMatchDuring"`
	BeforeActionDelay  *int     `yaml:"beforeActionDelay"`
	AfterActionDelay   *int     `yaml:"afterActionDelay"`
	Priority           *int     `yaml:"priority"`
	MaxTaskRunTimes    *int     `yaml:"maxTaskRunTimes"`
	MaxTaskDuring      *int     `yaml:"maxTaskDuring"`
	MinRoundInterval   *int     `yaml:"minRoundInterval"`
	ForceStop          *bool    `yaml:"forceStop"`
	FindRouteDelay     *int     `yaml:"findRouteDelay"`
}

// Load loads configuration from a file. Relative paths inside it resolve
// against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return &cfg, nil
}

// LoadFromDir looks for rerouter.yaml or rerouter.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"rerouter.yaml", "rerouter.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return empty config
	return &Config{dir: dir}, nil
}

// Path resolves p against the config file's directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// CatalogPaths returns the catalog files with relative paths resolved.
func (c *Config) CatalogPaths() []string {
	paths := make([]string, len(c.Catalog))
	for i, p := range c.Catalog {
		paths[i] = c.Path(p)
	}
	return paths
}

// JournalPath returns the resolved journal path, or empty when disabled.
func (c *Config) JournalPath() string {
	return c.Path(c.Journal.Path)
}

// ApplyLogger configures the global logger.
func (c *Config) ApplyLogger() error {
	if err := logger.SetLevel(c.Logger.Level); err != nil {
		return core.ErrInvalidConfig.WithMessage("logger.level").WithCause(err)
	}
	logger.SetTimezoneOffset(c.Logger.TimezoneOffsetHour)
	if c.Logger.File != "" {
		if err := logger.Init(c.Path(c.Logger.File)); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	return nil
}

// NotifyConfig returns the notifier settings.
func (c *Config) NotifyConfig() notify.Config {
	n := c.Notify
	return notify.Config{
		SlackURL:         n.SlackURL,
		StatusURL:        n.StatusURL,
		StatusKey:        n.StatusKey,
		LogURL:           n.LogURL,
		GA4MeasurementID: n.GA4MeasurementID,
		GA4APISecret:     n.GA4APISecret,
	}
}

// ScreenConfig returns the logical screen settings.
func (c *Config) ScreenConfig() (screen.Config, error) {
	s := c.Screen
	cfg := screen.DefaultConfig()
	if s.DevWidth > 0 && s.DevHeight > 0 {
		cfg.DevWidth, cfg.DevHeight = s.DevWidth, s.DevHeight
	}
	cfg.ScreenWidth, cfg.ScreenHeight = s.ScreenWidth, s.ScreenHeight
	cfg.ScreenOffsetX, cfg.ScreenOffsetY = s.ScreenOffsetX, s.ScreenOffsetY
	set(&cfg.ActionDuring, millis(s.ActionDuring))

	rot, err := screen.ParseRotation(s.Rotation)
	if err != nil {
		return cfg, core.ErrInvalidConfig.WithMessage("screen.rotation").WithCause(err)
	}
	cfg.Rotation = rot
	return cfg, nil
}

// DefaultsConfig returns the stock defaults with overrides applied.
func (c *Config) DefaultsConfig() core.Defaults {
	o := c.Defaults
	d := core.DefaultDefaults()
	set(&d.PageThreshold, o.PageThreshold)
	set(&d.GroupPageThreshold, o.GroupPageThreshold)
	set(&d.ShouldMatchTimes, o.ShouldMatchTimes)
	set(&d.ShouldMatchDuring, millis(o.ShouldMatchDuring))
	set(&d.BeforeActionDelay, millis(o.BeforeActionDelay))
	set(&d.AfterActionDelay, millis(o.AfterActionDelay))
	set(&d.Priority, o.Priority)
	set(&d.MaxTaskRunTimes, o.MaxTaskRunTimes)
	set(&d.MaxTaskDuring, millis(o.MaxTaskDuring))
	set(&d.MinRoundInterval, millis(o.MinRoundInterval))
	set(&d.ForceStop, o.ForceStop)
	set(&d.FindRouteDelay, millis(o.FindRouteDelay))
	d.Debug = c.Engine.Debug
	return d
}

// EngineConfig maps the file onto an engine configuration. Clock, notifier
// and journal are left for the caller to wire.
func (c *Config) EngineConfig() (engine.Config, error) {
	e := c.Engine
	cfg := engine.DefaultConfig()

	scr, err := c.ScreenConfig()
	if err != nil {
		return cfg, err
	}
	cfg.Screen = scr
	cfg.Defaults = c.DefaultsConfig()
	cfg.Defaults.Rotation = scr.Rotation

	cfg.PackageName = e.PackageName
	set(&cfg.TaskDelay, millis(e.TaskDelay))
	set(&cfg.StartAppDelay, millis(e.StartAppDelay))
	set(&cfg.StartAppRetries, e.StartAppRetries)
	set(&cfg.StopAppDelay, millis(e.StopAppDelay))
	set(&cfg.AutoLaunchApp, e.AutoLaunchApp)

	cfg.StrictMode = e.StrictMode
	cfg.CheckFrozenScreen = e.CheckFrozenScreen
	cfg.SaveMatchedScreen = e.SaveMatchedScreen
	cfg.PageReference.Enable = e.SavePageReference
	cfg.InstanceID = e.InstanceID
	cfg.DeviceID = e.DeviceID
	cfg.Debug = e.Debug

	ls := e.LogScreenshot
	cfg.LogScreenshot.Folder = ls.Folder
	set(&cfg.LogScreenshot.Interval, millis(ls.Interval))
	set(&cfg.LogScreenshot.MaxFiles, ls.MaxFiles)
	cfg.LogScreenshot.MaxDays = ls.MaxDays

	if e.SaveImageRoot != "" || e.SaveMatchedScreen || e.SavePageReference || ls.Folder != "" {
		cfg.Images = storage.New(c.Path(e.SaveImageRoot))
	}
	return cfg, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func millis(ms *int) *time.Duration {
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}
