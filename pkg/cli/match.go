package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/catalog"
	"github.com/devicelab-dev/rerouter/pkg/config"
	"github.com/devicelab-dev/rerouter/pkg/device/mock"
	"github.com/devicelab-dev/rerouter/pkg/engine"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

var matchCommand = &cli.Command{
	Name:      "match",
	Usage:     "Show which pages and routes match saved screenshots",
	ArgsUsage: "<png>...",
	Description: `Resolve each screenshot against the catalog without a device and
print the matching page names and the routes that would fire.

Examples:
  rerouter match home.png
  rerouter match --task daily shots/*.png`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "task",
			Usage: "Task name routes are resolved for (empty: no task)",
		},
	},
	Action: runMatch,
}

// offlineEngine builds an engine over a mock device so the catalog can be
// resolved against saved frames.
func offlineEngine(cfg *config.Config, cat *catalog.Catalog) (*engine.Engine, error) {
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	ecfg.Images = nil
	eng := engine.New(mock.New(mock.Config{}), ecfg)
	if err := cat.Apply(eng, catalog.Options{Input: eng.Screen()}); err != nil {
		return nil, err
	}
	return eng, nil
}

func runMatch(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one screenshot is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := setupLogging(c, cfg); err != nil {
		return err
	}
	cat, err := loadCatalog(c, cfg)
	if err != nil {
		return err
	}
	eng, err := offlineEngine(cfg, cat)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, path := range c.Args().Slice() {
		f, err := pixel.LoadPNG(path)
		if err != nil {
			printFailure(w, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		printMatch(w, eng, c.String("task"), path, f)
		f.Release()
	}
	return nil
}

func printMatch(w io.Writer, eng *engine.Engine, task, path string, f pixel.Frame) {
	fmt.Fprintln(w, paint(ansiBold, path))

	names := eng.CurrentMatchNamesFrame(f)
	if len(names) == 0 {
		fmt.Fprintln(w, "  pages:  "+paint(ansiGray, "(none)"))
	} else {
		fmt.Fprintf(w, "  pages:  %s\n", strings.Join(names, ", "))
	}

	matches := eng.FindMatchedRoutes(task, f)
	switch {
	case len(matches) == 0:
		fmt.Fprintln(w, "  routes: "+paint(ansiGray, "(none)"))
	case len(matches) > 1:
		fmt.Fprintln(w, "  routes: "+paint(ansiYellow, "conflict"))
	default:
		fmt.Fprintln(w, "  routes:")
	}
	for _, m := range matches {
		fmt.Fprintf(w, "    %s (priority %d)\n", m.Route.Path, m.Route.Priority)
	}
}
