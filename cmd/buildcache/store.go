// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
	"github.com/bureau-foundation/buildcache/lib/archive"
	"github.com/bureau-foundation/buildcache/lib/buildinfo"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

func (a *app) storeCommand() *cli.Command {
	var (
		rulesPath string
		buildID   string
	)
	return &cli.Command{
		Name:    "store",
		Summary: "Archive built outputs into the local cache",
		Description: `Record the outputs of each named rule as a built artifact: write its
metadata directory, archive the outputs with the metadata, and store the
archive in the local cache under the rule's key. The outputs must
already exist in the workspace.`,
		Usage: "buildcache store --rules FILE [flags] target...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("store", pflag.ContinueOnError)
			a.commonFlags(flagSet)
			flagSet.StringVarP(&rulesPath, "rules", "r", "", "rule file (YAML or JSONC)")
			flagSet.StringVar(&buildID, "build-id", "", "build ID to record (default: a new UUID)")
			return flagSet
		},
		Run: func(args []string) error {
			if rulesPath == "" {
				return errors.New("--rules is required")
			}
			if len(args) == 0 {
				return errors.New("at least one target is required")
			}
			cfg, logger, err := a.setup("store")
			if err != nil {
				return err
			}
			if cfg.Cache.ReadOnly {
				return errors.New("the cache is read-only (cache.read_only)")
			}
			_, dir, err := openCache(cfg, logger)
			if err != nil {
				return err
			}
			if dir == nil {
				return errors.New("cache.mode is none; nothing to store into")
			}

			graph, err := loadRules(rulesPath)
			if err != nil {
				return err
			}
			rules, err := graph.lookup(args)
			if err != nil {
				return err
			}

			stores := buildinfo.NewStoreManager(cfg.BuildInfoBackend(), logger)
			defer stores.Close()
			store, err := stores.Get(a.workspace)
			if err != nil {
				return err
			}

			if buildID == "" {
				buildID = uuid.NewString()
			}
			factory := rulekey.NewFactory(rulekey.NewFileHashCache(a.workspace), logger)
			format := cfg.ArchiveFormat()

			for _, rule := range rules {
				target := rule.BuildTarget()
				if !rule.IsCacheable() {
					logger.Info("skipping uncacheable rule", "target", target)
					continue
				}
				key, err := factory.Build(rule)
				if err != nil {
					return err
				}

				recorder, err := buildinfo.NewRecorder(a.workspace, target)
				if err != nil {
					return err
				}
				if err := recorder.AddRuleKey(buildinfo.KeyRuleKey, key); err != nil {
					return err
				}
				if err := recorder.RecordArtifact(rule.entry.Outputs...); err != nil {
					return err
				}
				artifact, err := recorder.Commit(buildID)
				if err != nil {
					return fmt.Errorf("recording %s: %w", target, err)
				}
				if err := store.UpdateMetadata(a.ctx, target, artifact.Metadata); err != nil {
					return err
				}

				temporary, err := os.CreateTemp(cfg.Paths.Temp, "buildcache_store_*"+format.Extension())
				if err != nil {
					return err
				}
				temporary.Close()
				archivePath := temporary.Name()

				stats, err := archive.Create(archivePath, a.workspace, artifact.Paths, format)
				if err == nil {
					err = dir.Store(a.ctx, target, key, archivePath, artifact.Metadata)
				}
				os.Remove(archivePath)
				if err != nil {
					return fmt.Errorf("storing %s: %w", target, err)
				}

				logger.Info("stored artifact",
					"target", target,
					"rule_key", key.String(),
					"entries", stats.Entries,
					"compressed_bytes", stats.CompressedSize,
				)
				fmt.Fprintf(a.stdout, "%s  %s  %d bytes\n", key, target, stats.UncompressedSize)
			}
			return nil
		},
	}
}
