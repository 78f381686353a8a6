package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/catalog"
	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/device/mock"
	"github.com/devicelab-dev/rerouter/pkg/replay"
	"github.com/devicelab-dev/rerouter/pkg/screen"
)

var replayCommand = &cli.Command{
	Name:      "replay",
	Usage:     "Check that every screenshot in a folder resolves to exactly one route",
	ArgsUsage: "<folder>",
	Description: `Replay saved screenshots through the route resolver. The part of each
file name before the first dot must name the matched page or the first
segment of the matched route path, e.g. home.1.png or shop.png.

Examples:
  rerouter replay testdata/frames
  rerouter replay --error-log "" --no-name-check frames/`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "error-log",
			Usage: "File receiving one line per failed frame (empty disables)",
			Value: replay.DefaultErrorLog,
		},
		&cli.BoolFlag{
			Name:  "no-name-check",
			Usage: "Only require one match per frame, ignore file names",
		},
		&cli.StringFlag{
			Name:  "rotation",
			Usage: "Frame rotation (horizontal, vertical), overrides config",
		},
	},
	Action: runReplay,
}

func runReplay(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one screenshot folder is required")
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
	scr, err := cfg.ScreenConfig()
	if err != nil {
		return err
	}
	rot := scr.Rotation
	if r := c.String("rotation"); r != "" {
		if rot, err = screen.ParseRotation(r); err != nil {
			return err
		}
	}

	input := screen.New(mock.New(mock.Config{}), scr)
	opts := replay.DefaultOptions()
	opts.Dir = c.Args().First()
	opts.Rotation = rot
	opts.Defaults = cfg.DefaultsConfig()
	opts.Debug = cfg.Engine.Debug
	opts.ErrorLogPath = c.String("error-log")
	opts.EnforceNameMatch = !c.Bool("no-name-check")
	opts.Setup = func(reg replay.Registrar) error {
		return cat.Apply(reg, catalog.Options{Input: input})
	}

	res, err := replay.Run(opts)
	if res == nil {
		return err
	}
	printReplay(c.App.Writer, res)
	if errors.Is(err, core.ErrReplayFailed) {
		// Per-frame errors are already printed.
		return cli.Exit(fmt.Sprintf("%d frame(s) failed", len(res.Errors())), 1)
	}
	return err
}

func printReplay(w io.Writer, res *replay.Result) {
	failed := 0
	for _, f := range res.Files {
		if f.Err != nil {
			failed++
			printFailure(w, f.Err.Error())
			continue
		}
		printSetupSuccess(w, fmt.Sprintf("%s → %s [%s]", f.File, strings.Join(f.Paths, ", "), strings.Join(f.Pages, ", ")))
	}
	fmt.Fprintf(w, "\n  %d frames, %d passed, %d failed, %d skipped\n",
		len(res.Files), len(res.Files)-failed, failed, len(res.Skipped))
}
