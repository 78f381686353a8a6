// Package cli provides the command-line interface for rerouter.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/catalog"
	"github.com/devicelab-dev/rerouter/pkg/config"
	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file or directory holding rerouter.yaml",
		EnvVars: []string{"REROUTER_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:  "catalog",
		Usage: "Extra catalog file (repeatable), merged after the configured ones",
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (ERROR, WARN, INFO, DEBUG, TRACE, ALL), overrides config",
		EnvVars: []string{"REROUTER_LOG_LEVEL"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"REROUTER_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "rerouter",
		Usage:   "Screen-state automation for Android apps",
		Version: Version,
		Description: `rerouter watches a device screen, recognizes the current page from
pixel colors and performs the action registered for it.

Examples:
  rerouter run --package com.example.game
  rerouter match screenshot.png
  rerouter replay testdata/frames
  rerouter stats`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			matchCommand,
			replayCommand,
			statsCommand,
			devicesCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, which may name a file or a directory. Without
// it the working directory is searched.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.IsDir() {
		return config.LoadFromDir(path)
	}
	return config.Load(path)
}

// setupLogging applies the config's logger section, then the flags.
func setupLogging(c *cli.Context, cfg *config.Config) error {
	if err := cfg.ApplyLogger(); err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		if err := logger.SetLevel(lvl); err != nil {
			return err
		}
	}
	if c.Bool("verbose") {
		_ = logger.SetLevel("DEBUG")
	}
	return nil
}

// loadCatalog merges the configured catalog files with --catalog ones.
func loadCatalog(c *cli.Context, cfg *config.Config) (*catalog.Catalog, error) {
	paths := append(cfg.CatalogPaths(), c.StringSlice("catalog")...)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files: set catalog in rerouter.yaml or pass --catalog")
	}
	return catalog.Load(paths...)
}
