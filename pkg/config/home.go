package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "REROUTER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the directory holding images and the journal. It is
// $REROUTER_HOME when set, <home> when the binary lives in <home>/bin, and
// the working directory otherwise. The result is cached.
func GetHome() string {
	homeOnce.Do(func() { homeDir = findHome() })
	return homeDir
}

// GetImagesDir returns <home>/images.
func GetImagesDir() string { return filepath.Join(GetHome(), "images") }

// GetJournalPath returns <home>/journal.db.
func GetJournalPath() string { return filepath.Join(GetHome(), "journal.db") }

// ResetHome drops the cached home so the next GetHome resolves again.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}

func findHome() string {
	if dir := os.Getenv(envHome); dir != "" {
		return dir
	}
	if dir, ok := installRoot(); ok {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// installRoot reports the parent of the executable's bin directory.
func installRoot() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	if real, err := filepath.EvalSymlinks(exe); err == nil {
		exe = real
	}
	bin := filepath.Dir(exe)
	if filepath.Base(bin) != "bin" {
		return "", false
	}
	return filepath.Dir(bin), true
}
