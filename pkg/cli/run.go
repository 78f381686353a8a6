package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/catalog"
	"github.com/devicelab-dev/rerouter/pkg/config"
	"github.com/devicelab-dev/rerouter/pkg/device"
	"github.com/devicelab-dev/rerouter/pkg/engine"
	"github.com/devicelab-dev/rerouter/pkg/journal"
	"github.com/devicelab-dev/rerouter/pkg/jsengine"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/notify"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Drive the app on a device with the catalog's routes and tasks",
	Description: `Connect to a device, register the catalog and run its tasks until
every task is exhausted or the process is interrupted.

Examples:
  rerouter run
  rerouter run --package com.example.game --serial emulator-5554
  rerouter --catalog extra.yaml run --strict`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "serial",
			Aliases: []string{"s"},
			Usage:   "Device serial (default: config device.serial or first available)",
			EnvVars: []string{"ANDROID_SERIAL"},
		},
		&cli.StringFlag{
			Name:  "package",
			Usage: "App package to keep in the foreground, overrides config",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Stop on route conflicts",
		},
		&cli.StringFlag{
			Name:  "journal",
			Usage: "Journal database path, overrides config",
		},
	},
	Action: runRun,
}

// runEnv is everything a run needs besides the device.
type runEnv struct {
	cfg     *config.Config
	engine  engine.Config
	catalog *catalog.Catalog
	pkg     string
	journal string
}

func prepareRun(c *cli.Context) (*runEnv, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(c, cfg); err != nil {
		return nil, err
	}
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	if c.Bool("strict") {
		ecfg.StrictMode = true
	}
	cat, err := loadCatalog(c, cfg)
	if err != nil {
		return nil, err
	}

	env := &runEnv{
		cfg:     cfg,
		engine:  ecfg,
		catalog: cat,
		pkg:     ecfg.PackageName,
		journal: cfg.JournalPath(),
	}
	if p := c.String("package"); p != "" {
		env.pkg = p
	}
	if j := c.String("journal"); j != "" {
		env.journal = j
	}
	return env, nil
}

func runRun(c *cli.Context) error {
	env, err := prepareRun(c)
	if err != nil {
		return err
	}
	defer logger.Close()

	serial := c.String("serial")
	if serial == "" {
		serial = env.cfg.Device.Serial
	}
	dev, err := connectAndroid(c.App.Writer, serial)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runEngine(ctx, c.App.Writer, env, dev)
}

// runEngine wires notifier, journal and catalog into an engine on dev and
// runs it until ctx is done or every task is exhausted.
func runEngine(ctx context.Context, w io.Writer, env *runEnv, dev device.Device) error {
	ecfg := env.engine
	ecfg.Notifier = notify.New(env.cfg.NotifyConfig())

	if env.journal != "" {
		j, err := journal.Open(env.journal)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		ecfg.Journal = j
		logger.Info("Journal: %s (run %s)", env.journal, j.RunID())
	}

	eng := engine.New(dev, ecfg)
	scripts := jsengine.New()
	defer scripts.Close()

	if err := env.catalog.Apply(eng, catalog.Options{Input: eng.Screen(), Scripts: scripts}); err != nil {
		return err
	}
	printSetupSuccess(w, fmt.Sprintf("Registered %d routes, %d tasks", len(eng.Routes()), len(eng.Tasks())))

	printSetupStep(w, "Running...")
	started := time.Now()
	err := eng.Start(ctx, env.pkg)
	if err != nil && !errors.Is(err, context.Canceled) {
		printFailure(w, err.Error())
		return err
	}
	printSetupSuccess(w, "Stopped after "+formatDuration(time.Since(started)))
	return nil
}
