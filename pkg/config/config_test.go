package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/screen"
	"github.com/devicelab-dev/rerouter/pkg/storage"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rerouter.yaml")

	content := `
engine:
  packageName: com.example.game
  taskDelay: 500
  startAppRetries: 5
  autoLaunchApp: false
  strictMode: true
  checkFrozenScreen: true
  saveImageRoot: images
  logScreenshot:
    folder: shots
    interval: 2000
  instanceId: inst-1
  deviceId: dev-1
screen:
  devWidth: 1280
  devHeight: 720
  rotation: vertical
  actionDuring: 90
logger:
  level: debug
  timezoneOffsetHour: 8
notify:
  slackUrl: https://hooks.example.com/x
  statusKey: secret
journal:
  path: journal.db
device:
  serial: emulator-5554
catalog:
  - routes.yaml
  - /abs/extra.yaml
defaults:
  pageThreshold: 0.8
  shouldMatchDuring: 1500
  forceStop: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.PackageName != "com.example.game" {
		t.Errorf("expected packageName com.example.game, got %s", cfg.Engine.PackageName)
	}
	if cfg.Device.Serial != "emulator-5554" {
		t.Errorf("expected serial emulator-5554, got %s", cfg.Device.Serial)
	}
	paths := cfg.CatalogPaths()
	if len(paths) != 2 || paths[0] != filepath.Join(dir, "routes.yaml") || paths[1] != "/abs/extra.yaml" {
		t.Errorf("unexpected catalog paths %v", paths)
	}
	if cfg.JournalPath() != filepath.Join(dir, "journal.db") {
		t.Errorf("unexpected journal path %s", cfg.JournalPath())
	}
	if n := cfg.NotifyConfig(); n.SlackURL != "https://hooks.example.com/x" || n.StatusKey != "secret" {
		t.Errorf("unexpected notify config %+v", n)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig: %v", err)
	}
	if ec.TaskDelay != 500*time.Millisecond || ec.StartAppRetries != 5 || ec.AutoLaunchApp {
		t.Errorf("unexpected engine timing %+v", ec)
	}
	if ec.StartAppDelay != 6*time.Second {
		t.Errorf("unset startAppDelay should keep default, got %v", ec.StartAppDelay)
	}
	if !ec.StrictMode || !ec.CheckFrozenScreen || ec.InstanceID != "inst-1" || ec.DeviceID != "dev-1" {
		t.Errorf("unexpected engine flags %+v", ec)
	}
	if ec.LogScreenshot.Folder != "shots" || ec.LogScreenshot.Interval != 2*time.Second || ec.LogScreenshot.MaxFiles != 100 {
		t.Errorf("unexpected logScreenshot %+v", ec.LogScreenshot)
	}
	if ec.Images == nil || ec.Images.Root() != filepath.Join(dir, "images") {
		t.Errorf("expected image root under config dir, got %+v", ec.Images)
	}
	if ec.Screen.DevWidth != 1280 || ec.Screen.Rotation != screen.Vertical || ec.Screen.ActionDuring != 90*time.Millisecond {
		t.Errorf("unexpected screen %+v", ec.Screen)
	}
	d := ec.Defaults
	if d.PageThreshold != 0.8 || d.ShouldMatchDuring != 1500*time.Millisecond || !d.ForceStop {
		t.Errorf("unexpected defaults %+v", d)
	}
	if d.GroupPageThreshold != 0.9 || d.Rotation != screen.Vertical {
		t.Errorf("unset defaults should keep stock values, got %+v", d)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/rerouter.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rerouter.yaml")

	content := `catalog: [invalid yaml`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rerouter.yaml")

	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Catalog) != 0 {
		t.Errorf("expected empty catalog, got %v", cfg.Catalog)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if ec.Images != nil {
		t.Error("no image options set, expected nil image store")
	}
	if ec.Screen.DevWidth != 640 || ec.Screen.DevHeight != 360 || !ec.AutoLaunchApp {
		t.Errorf("expected stock engine config, got %+v", ec)
	}
}

func TestEngineConfig_SaveMatchedScreenUsesDefaultRoot(t *testing.T) {
	cfg := &Config{Engine: EngineSection{SaveMatchedScreen: true}}
	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if ec.Images == nil || ec.Images.Root() != storage.DefaultRoot {
		t.Errorf("expected default image root, got %+v", ec.Images)
	}
}

func TestEngineConfig_BadRotation(t *testing.T) {
	cfg := &Config{Screen: ScreenSection{Rotation: "sideways"}}
	_, err := cfg.EngineConfig()
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyLogger(t *testing.T) {
	if err := (&Config{Logger: LoggerSection{Level: "loud"}}).ApplyLogger(); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if err := (&Config{Logger: LoggerSection{Level: "info"}}).ApplyLogger(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromDir_ConfigYaml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rerouter.yaml")

	content := `device: {serial: abc}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.Serial != "abc" {
		t.Errorf("expected serial abc, got %s", cfg.Device.Serial)
	}
}

func TestLoadFromDir_ConfigYml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rerouter.yml")

	content := `device: {serial: def}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.Serial != "def" {
		t.Errorf("expected serial def, got %s", cfg.Device.Serial)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should return empty config rooted at dir
	if cfg.Device.Serial != "" {
		t.Errorf("expected empty serial, got %s", cfg.Device.Serial)
	}
	if got := cfg.Path("x.yaml"); got != filepath.Join(dir, "x.yaml") {
		t.Errorf("Path resolved to %s", got)
	}
}

func TestLoadFromDir_PrefersYamlOverYml(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "rerouter.yaml"), []byte(`device: {serial: yaml}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rerouter.yml"), []byte(`device: {serial: yml}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should prefer rerouter.yaml
	if cfg.Device.Serial != "yaml" {
		t.Errorf("expected serial yaml (from rerouter.yaml), got %s", cfg.Device.Serial)
	}
}
