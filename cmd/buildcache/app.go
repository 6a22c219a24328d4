// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
	"github.com/bureau-foundation/buildcache/lib/artifactcache"
	"github.com/bureau-foundation/buildcache/lib/config"
	"github.com/bureau-foundation/buildcache/lib/version"
)

// app holds what every subcommand shares: the output streams and the
// values of the common flags.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer

	configPath string
	workspace  string
}

func newApp(ctx context.Context, stdout, stderr io.Writer) *app {
	return &app{ctx: ctx, stdout: stdout, stderr: stderr}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:       "buildcache",
		Summary:    "Rule keys and the local artifact cache",
		HelpOutput: a.stderr,
		Description: `buildcache computes content-addressed rule keys for a graph of rules
declared in a YAML or JSONC rule file, stores the outputs of built rules
in the local artifact cache, and fetches and materializes them back into
a workspace.`,
		Subcommands: []*cli.Command{
			a.keyCommand(),
			a.storeCommand(),
			a.fetchCommand(),
			a.metadataCommand(),
			a.cleanCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					fmt.Fprintf(a.stdout, "buildcache %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// commonFlags registers --config and --workspace on flagSet.
func (a *app) commonFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&a.configPath, "config", "", "config file (default: $BUILDCACHE_CONFIG, else built-in defaults)")
	flagSet.StringVarP(&a.workspace, "workspace", "w", ".", "workspace root")
}

// loadConfig loads and validates the configuration named by --config,
// falling back to $BUILDCACHE_CONFIG and then to the defaults.
func (a *app) loadConfig() (*config.Config, error) {
	path := a.configPath
	if path == "" {
		path = os.Getenv("BUILDCACHE_CONFIG")
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads the config, creates the configured directories, and
// builds the logger, scoped to command.
func (a *app) setup(command string) (*config.Config, *slog.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.With("command", command), nil
}

// openCache returns the artifact cache cache.mode selects. The dir
// cache is also returned on its own for commands that store into it;
// it is nil when the mode is "none".
func openCache(cfg *config.Config, logger *slog.Logger) (artifactcache.ArtifactCache, *artifactcache.DirCache, error) {
	if cfg.Cache.Mode == "none" {
		return artifactcache.NewChain(logger, artifactcache.Noop{}), nil, nil
	}
	dir, err := artifactcache.NewDirCache(artifactcache.DirCacheConfig{
		Root:   cfg.Paths.Artifacts,
		Format: cfg.ArchiveFormat(),
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return artifactcache.NewChain(logger, dir), dir, nil
}
