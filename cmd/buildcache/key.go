// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

func (a *app) keyCommand() *cli.Command {
	var (
		rulesPath string
		trace     bool
		inputs    bool
	)
	return &cli.Command{
		Name:    "key",
		Summary: "Compute rule keys",
		Description: `Compute the rule key of each named target, or of every rule in the
rule file when no target is named. A rule key covers the rule's fields,
the content of its sources, and the keys of its dependencies.`,
		Usage: "buildcache key --rules FILE [flags] [target...]",
		Examples: []cli.Example{
			{Description: "Key every rule", Command: "buildcache key --rules BUILD.yaml"},
			{Description: "Show what one key covers", Command: "buildcache key --rules BUILD.yaml --trace //app:main"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("key", pflag.ContinueOnError)
			a.commonFlags(flagSet)
			flagSet.StringVarP(&rulesPath, "rules", "r", "", "rule file (YAML or JSONC)")
			flagSet.BoolVar(&trace, "trace", false, "print the readable trace of each key")
			flagSet.BoolVar(&inputs, "inputs", false, "print the paths and dependencies each rule reads")
			return flagSet
		},
		Run: func(args []string) error {
			if rulesPath == "" {
				return errors.New("--rules is required")
			}
			_, logger, err := a.setup("key")
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

			factory := rulekey.NewFactory(rulekey.NewFileHashCache(a.workspace), logger)
			for _, rule := range rules {
				key, err := factory.Build(rule)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s  %s\n", key, rule.BuildTarget())

				if trace {
					text, err := factory.Trace(rule)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "  trace: %s\n", text)
				}
				if inputs {
					paths, dependencies, err := factory.Inputs(rule)
					if err != nil {
						return err
					}
					for _, path := range paths {
						fmt.Fprintf(a.stdout, "  path: %s\n", path)
					}
					for _, dependency := range dependencies {
						fmt.Fprintf(a.stdout, "  dep: %s\n", dependency)
					}
				}
			}
			return nil
		},
	}
}
