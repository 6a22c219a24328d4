// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
	"github.com/bureau-foundation/buildcache/lib/buildinfo"
)

// targetLister is implemented by both build info stores.
type targetLister interface {
	Targets(ctx context.Context) ([]string, error)
}

func (a *app) metadataCommand() *cli.Command {
	var (
		outputJSON bool
		remove     bool
	)
	return &cli.Command{
		Name:    "metadata",
		Summary: "Show recorded build metadata",
		Description: `Print the metadata the build info store holds for each named target,
or list the targets with metadata when none is named.`,
		Usage: "buildcache metadata [flags] [target...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("metadata", pflag.ContinueOnError)
			a.commonFlags(flagSet)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			flagSet.BoolVar(&remove, "delete", false, "delete the metadata of the named targets")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, logger, err := a.setup("metadata")
			if err != nil {
				return err
			}
			stores := buildinfo.NewStoreManager(cfg.BuildInfoBackend(), logger)
			defer stores.Close()
			store, err := stores.Get(a.workspace)
			if err != nil {
				return err
			}

			if remove {
				if len(args) == 0 {
					return errors.New("--delete needs at least one target")
				}
				for _, target := range args {
					if err := store.DeleteMetadata(a.ctx, target); err != nil {
						return err
					}
					logger.Info("deleted metadata", "target", target)
				}
				return nil
			}

			if len(args) == 0 {
				lister, ok := store.(targetLister)
				if !ok {
					return fmt.Errorf("the %s store cannot list targets", cfg.BuildInfo.Store)
				}
				targets, err := lister.Targets(a.ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return a.writeJSON(targets)
				}
				for _, target := range targets {
					fmt.Fprintln(a.stdout, target)
				}
				return nil
			}

			all := make(map[string]map[string]string, len(args))
			for _, target := range args {
				metadata, err := store.ReadAllMetadata(a.ctx, target)
				if err != nil {
					return err
				}
				all[target] = metadata
			}
			if outputJSON {
				return a.writeJSON(all)
			}
			for _, target := range args {
				fmt.Fprintln(a.stdout, target)
				metadata := all[target]
				for _, key := range slices.Sorted(maps.Keys(metadata)) {
					fmt.Fprintf(a.stdout, "  %s = %s\n", key, metadata[key])
				}
			}
			return nil
		},
	}
}

func (a *app) writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

func (a *app) cleanCommand() *cli.Command {
	var keepWorkspace bool
	return &cli.Command{
		Name:    "clean",
		Summary: "Remove the local build cache",
		Description: `Remove the local artifact cache and temporary archives, and the
workspace's build info and artifact metadata. Run it when a fetch fails
with a local extraction error.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clean", pflag.ContinueOnError)
			a.commonFlags(flagSet)
			flagSet.BoolVar(&keepWorkspace, "keep-workspace", false, "leave the workspace's .buildcache directory alone")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, logger, err := a.setup("clean")
			if err != nil {
				return err
			}

			directories := []string{cfg.Paths.Artifacts, cfg.Paths.Temp}
			if !keepWorkspace {
				directories = append(directories, filepath.Join(a.workspace, filepath.Dir(buildinfo.StoreDirectory)))
			}
			for _, directory := range directories {
				if directory == "" {
					continue
				}
				if err := os.RemoveAll(directory); err != nil {
					return err
				}
				logger.Info("removed", "path", directory)
			}
			return nil
		},
	}
}
