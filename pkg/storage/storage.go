// Package storage writes screenshots and page reference images to disk and
// prunes old captures.
package storage

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// DefaultRoot is where captures go when no root is configured.
const DefaultRoot = "/sdcard/Pictures/Screenshots/robotmon"

// MarkRadius is the radius of the circle drawn at each reference point.
const MarkRadius = 3

// DefaultMarkColor is used when no marker color is configured.
var DefaultMarkColor = color.RGBA{R: 255, A: 255}

var dateFolder = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Store saves images under a root directory.
type Store struct {
	root string
	now  func() time.Time
}

// New creates a store rooted at root.
func New(root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{root: root, now: time.Now}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) folder(folder string) string {
	return filepath.Join(s.root, strings.TrimPrefix(folder, "/"))
}

// SaveScreenshot writes img into folder under the root and returns the path.
// With timestamp the name is "YYYY-MM-DDTHH.MM.SS_suffix.png", otherwise
// "suffix.png". When maxDays > 0 the file goes into a per-day subfolder.
func (s *Store) SaveScreenshot(folder, suffix string, timestamp bool, maxDays int, img image.Image) (string, error) {
	now := s.now().In(logger.Location())
	dir := s.folder(folder)
	if maxDays > 0 {
		dir = filepath.Join(dir, now.Format("2006-01-02"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	name := suffix + ".png"
	if timestamp {
		name = now.Format("2006-01-02T15.04.05") + "_" + suffix + ".png"
	}
	path := filepath.Join(dir, name)
	if err := writePNG(path, img); err != nil {
		return "", err
	}
	logger.Info("Write to file: %s", path)
	return path, nil
}

// SavePointsMarked writes img with a circle drawn at each point to
// folder/name.png. An existing file is left untouched and reported as not
// written.
func (s *Store) SavePointsMarked(folder, name string, img image.Image, points []image.Point, c *color.RGBA) (bool, error) {
	path := filepath.Join(folder, name+".png")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", folder, err)
	}
	mark := DefaultMarkColor
	if c != nil {
		mark = *c
	}
	if err := writePNG(path, pixel.MarkPoints(img, points, MarkRadius, mark)); err != nil {
		return false, err
	}
	logger.Info("[savePointsMarkedImage]: %s", name)
	return true, nil
}

// Prune removes old captures from folder. With maxDays > 0 whole date
// folders older than maxDays are removed; otherwise only the newest maxFiles
// files directly in folder are kept.
func (s *Store) Prune(folder string, maxFiles, maxDays int) (int, error) {
	base := s.folder(folder)
	if maxDays > 0 {
		return s.pruneByDays(base, maxDays)
	}
	return pruneByCount(base, maxFiles)
}

func (s *Store) pruneByDays(base string, maxDays int) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-time.Duration(maxDays) * 24 * time.Hour)

	deleted := 0
	for _, e := range entries {
		if !e.IsDir() || !dateFolder.MatchString(e.Name()) {
			continue
		}
		day, err := time.Parse("2006-01-02", e.Name())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		logger.Info("Deleting date folder: %s (older than %d days)", e.Name(), maxDays)
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err != nil {
			logger.Warn("failed to delete %s: %v", e.Name(), err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logger.Info("Cleaned up %d date folders older than %d days", deleted, maxDays)
	}
	return deleted, nil
}

func pruneByCount(base string, maxFiles int) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(base, e.Name()), mod: info.ModTime()})
	}
	if len(files) <= maxFiles {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	stale := files[:len(files)-maxFiles]
	for _, f := range stale {
		if err := os.Remove(f.path); err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", f.path, err)
		}
	}
	logger.Info("Deleted %d files, keeping newest %d files", len(stale), maxFiles)
	return len(stale), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
