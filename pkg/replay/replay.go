// Package replay runs saved screenshots through the route resolver and
// checks that each one resolves to exactly the route its file name promises.
package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/route"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// DefaultErrorLog is the error log file written when errors are found.
const DefaultErrorLog = "errorLog.txt"

// Registrar receives the routes under test. Tasks are accepted and ignored
// so a catalog can be applied unchanged.
type Registrar interface {
	AddRoute(cfg core.RouteConfig) error
	AddTask(cfg core.TaskConfig) error
}

// Options configures a replay run.
type Options struct {
	// Setup registers the routes to test.
	Setup func(reg Registrar) error
	// Dir holds the .png frames. The part of a file name before the first
	// dot names the page or first path segment it should resolve to.
	Dir      string
	Rotation screen.Rotation
	Defaults core.Defaults
	Debug    bool
	// ErrorLogPath receives one line per error; empty disables it.
	ErrorLogPath     string
	EnforceNameMatch bool
	Verbose          bool
}

// DefaultOptions returns options that write errorLog.txt and enforce name
// matching.
func DefaultOptions() Options {
	return Options{
		Rotation:         screen.Horizontal,
		Defaults:         core.DefaultDefaults(),
		ErrorLogPath:     DefaultErrorLog,
		EnforceNameMatch: true,
		Verbose:          true,
	}
}

// NoMatchError reports a frame no route matched.
type NoMatchError struct {
	File string
}

func (e *NoMatchError) Error() string {
	return "No matching route found for the image file: " + e.File
}

// ConflictError reports a frame several same-priority routes matched.
type ConflictError struct {
	File  string
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Multiple matching routes found for the image file: %s; Conflicting routes: %s", e.File, strings.Join(e.Paths, ", "))
}

// NameMismatchError reports a frame that matched a route other than the one
// its file name names.
type NameMismatchError struct {
	File  string
	Path  string
	Pages []string
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("Mismatch: Image file %s did not find an exact path for route %s, which includes pages [%s]", e.File, e.Path, strings.Join(e.Pages, ", "))
}

// FileResult is the outcome for one frame.
type FileResult struct {
	File  string
	Paths []string
	Pages []string
	Err   error
}

// Result summarizes a replay run.
type Result struct {
	Files   []FileResult
	Skipped []string
}

// Errors returns the per-file errors in file order.
func (r *Result) Errors() []error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// routeSet registers routes into a private table.
type routeSet struct {
	defaults core.Defaults
	table    *route.Table
}

func (s *routeSet) AddRoute(cfg core.RouteConfig) error {
	return s.table.Add(s.defaults.WrapRoute(cfg))
}

func (s *routeSet) AddTask(core.TaskConfig) error { return nil }

// Run replays every .png in opts.Dir. It returns core.ErrReplayFailed,
// wrapping every per-file error, when any frame fails.
func Run(opts Options) (*Result, error) {
	if opts.Setup == nil {
		return nil, core.ErrInvalidConfig.WithMessage("replay needs a route setup")
	}
	if opts.Defaults == (core.Defaults{}) {
		opts.Defaults = core.DefaultDefaults()
	}
	opts.Defaults.Rotation = opts.Rotation
	opts.Defaults.Debug = opts.Debug

	set := &routeSet{defaults: opts.Defaults, table: route.NewTable()}
	if err := opts.Setup(set); err != nil {
		return nil, fmt.Errorf("failed to set up routes: %w", err)
	}
	resolver := route.NewResolver(set.table, route.NewMatcher(opts.Defaults, opts.Debug))

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("screenshots directory does not exist: %s: %w", opts.Dir, err)
	}

	res := &Result{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".png") {
			if opts.Verbose {
				logger.Info("[replay] Skipping non-png file: %s", name)
			}
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Files = append(res.Files, replayFile(resolver, opts, name))
	}

	errs := res.Errors()
	if len(errs) == 0 {
		return res, nil
	}

	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	report := strings.Join(lines, "\n")
	if opts.ErrorLogPath != "" {
		if err := os.WriteFile(opts.ErrorLogPath, []byte(report), 0o644); err != nil {
			logger.Warn("[replay] failed to write %s: %v", opts.ErrorLogPath, err)
		}
	}
	return res, core.ErrReplayFailed.
		WithMessage("Errors encountered:\n" + report).
		WithCause(errors.Join(errs...))
}

func replayFile(resolver *route.Resolver, opts Options, name string) FileResult {
	fr := FileResult{File: name}
	f, err := pixel.LoadPNG(filepath.Join(opts.Dir, name))
	if err != nil {
		fr.Err = fmt.Errorf("%s: %w", name, err)
		return fr
	}
	defer f.Release()

	matches := resolver.FindMatchedRoutes("", f, opts.Rotation)
	fr.Paths = route.Paths(matches)

	switch len(matches) {
	case 0:
		if opts.Verbose {
			logger.Info("[replay] No match for file: %s", name)
		}
		fr.Err = &NoMatchError{File: name}
	case 1:
		m := matches[0]
		fr.Pages = page.Names(m.Pages)
		if opts.Verbose {
			logger.Info("[replay] Matched file: %s -> %s [%s]", name, m.Route.Path, strings.Join(fr.Pages, ", "))
		}
		if opts.EnforceNameMatch && !nameMatches(name, m) {
			fr.Err = &NameMismatchError{File: name, Path: m.Route.Path, Pages: fr.Pages}
		}
	default:
		if opts.Verbose {
			list := make([]string, len(matches))
			for i, m := range matches {
				list[i] = fmt.Sprintf("%s [%s]", m.Route.Path, strings.Join(page.Names(m.Pages), ", "))
			}
			logger.Info("[replay] Multiple matches for file: %s -> %s", name, strings.Join(list, " | "))
		}
		fr.Err = &ConflictError{File: name, Paths: fr.Paths}
	}
	return fr
}

// nameMatches reports whether the file's first dotted name segment equals a
// matched page name or the route's first path segment.
func nameMatches(file string, m route.Match) bool {
	base := strings.TrimSuffix(file, ".png")
	first, _, _ := strings.Cut(base, ".")
	for _, p := range m.Pages {
		if p.Name == first {
			return true
		}
	}
	segments := strings.Split(m.Route.Path, "/")
	return len(segments) > 1 && segments[1] == first
}
