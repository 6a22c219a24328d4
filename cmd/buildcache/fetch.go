// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
	"github.com/bureau-foundation/buildcache/lib/buildinfo"
	"github.com/bureau-foundation/buildcache/lib/cacheevent"
	"github.com/bureau-foundation/buildcache/lib/cachefetch"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
	"github.com/bureau-foundation/buildcache/lib/workpool"
)

func (a *app) fetchCommand() *cli.Command {
	var (
		rulesPath   string
		keyOverride string
		showMetrics bool
	)
	return &cli.Command{
		Name:    "fetch",
		Summary: "Fetch and materialize artifacts from the cache",
		Description: `Look up each named rule in the artifact cache by its rule key and, on a
hit, extract the artifact into the workspace and record its metadata in
the build info store. Fetches run concurrently on the worker pool.

Exits 1 when any target is not materialized from the cache.`,
		Usage: "buildcache fetch --rules FILE [flags] [target...]",
		Examples: []cli.Example{
			{Description: "Fetch every rule", Command: "buildcache fetch --rules BUILD.yaml -w ."},
			{Description: "Fetch by an explicit key", Command: "buildcache fetch --rules BUILD.yaml --key 3f9a... //app:main"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			a.commonFlags(flagSet)
			flagSet.StringVarP(&rulesPath, "rules", "r", "", "rule file (YAML or JSONC)")
			flagSet.StringVar(&keyOverride, "key", "", "fetch with this rule key instead of computing it (one target only)")
			flagSet.BoolVar(&showMetrics, "metrics", false, "print decompression metrics after fetching")
			return flagSet
		},
		Run: func(args []string) error {
			if rulesPath == "" {
				return errors.New("--rules is required")
			}
			if keyOverride != "" && len(args) != 1 {
				return errors.New("--key needs exactly one target")
			}
			cfg, logger, err := a.setup("fetch")
			if err != nil {
				return err
			}
			cache, _, err := openCache(cfg, logger)
			if err != nil {
				return err
			}
			graph, err := loadRules(rulesPath)
			if err != nil {
				return err
			}
			rules, err := graph.lookup(args)
			if err != nil {
				return err
			}

			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer provider.Shutdown(context.WithoutCancel(a.ctx))
			metrics, err := cacheevent.NewMetricsBus(provider.Meter("buildcache"))
			if err != nil {
				return err
			}
			events := cacheevent.Fanout{cacheevent.NewLogBus(logger), metrics}

			stores := buildinfo.NewStoreManager(cfg.BuildInfoBackend(), logger)
			defer stores.Close()
			pool := workpool.New(cfg.Pool.Capacity)
			files := rulekey.NewFileHashCache(a.workspace)
			factory := rulekey.NewFactory(files, logger)

			futures := make([]*workpool.Future[cachefetch.Result], len(rules))
			for i, rule := range rules {
				key, err := a.fetchKey(factory, rule, keyOverride)
				if err != nil {
					return err
				}
				fetcher, err := cachefetch.New(cachefetch.Config{
					Rule:          rule,
					Pool:          pool,
					FetchWeight:   cfg.Pool.FetchWeight,
					ExtractWeight: cfg.Pool.ExtractWeight,
					Format:        cfg.ArchiveFormat(),
					OnOutputsWillChange: func(context.Context) error {
						for _, output := range rule.entry.Outputs {
							files.Invalidate(output)
						}
						factory.Forget()
						return nil
					},
					Events:   events,
					Stores:   stores,
					TempDir:  cfg.Paths.Temp,
					Coalesce: cfg.Cache.CoalesceFetches,
					Logger:   logger,
				})
				if err != nil {
					return err
				}
				futures[i] = fetcher.FetchAndMaterialize(a.ctx, key, cache, a.workspace)
			}

			var errs []error
			materialized := 0
			for i, future := range futures {
				result, err := future.Wait(a.ctx)
				printResult(a.stdout, rules[i].BuildTarget(), result)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if result.State == cachefetch.StateDone {
					materialized++
				}
			}

			if showMetrics {
				if err := printMetrics(a.ctx, a.stdout, reader); err != nil {
					return err
				}
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}
			if materialized < len(rules) {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func (a *app) fetchKey(factory *rulekey.Factory, rule *fileRule, override string) (rulekey.RuleKey, error) {
	if override != "" {
		return rulekey.ParseRuleKey(override)
	}
	return factory.Build(rule)
}

func printResult(w io.Writer, target string, result cachefetch.Result) {
	fmt.Fprintf(w, "%s  %s  %s\n", target, result.State, result.Cache)
	for _, diagnostic := range result.Diagnostics {
		fmt.Fprintf(w, "  %s: %s\n", diagnostic.Kind, diagnostic.Message)
	}
}

// printMetrics writes one line per data point collected by reader.
func printMetrics(ctx context.Context, w io.Writer, reader *sdkmetric.ManualReader) error {
	var collected metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &collected); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}
	var lines []string
	for _, scope := range collected.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, formatAttributes(point.Attributes), point.Value))
				}
			case metricdata.Histogram[int64]:
				for _, point := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%d", m.Name, formatAttributes(point.Attributes), point.Count, point.Sum))
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%.3f", m.Name, formatAttributes(point.Attributes), point.Count, point.Sum))
				}
			}
		}
	}
	slices.Sort(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

func formatAttributes(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, set.Len())
	iterator := set.Iter()
	for iterator.Next() {
		kv := iterator.Attribute()
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
