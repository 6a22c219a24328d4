// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// ruleFile is the on-disk rule graph. YAML files and JSONC files
// (.json, .jsonc) share the schema.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules" json:"rules"`
}

type ruleEntry struct {
	Target string `yaml:"target" json:"target"`

	// Cacheable defaults to true.
	Cacheable *bool `yaml:"cacheable,omitempty" json:"cacheable,omitempty"`

	// Srcs are workspace-relative files or directories, hashed by
	// content.
	Srcs []string `yaml:"srcs,omitempty" json:"srcs,omitempty"`

	// Deps are the targets of other rules in the same file.
	Deps []string `yaml:"deps,omitempty" json:"deps,omitempty"`

	// Outputs are the workspace-relative paths the rule produces.
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Fields are arbitrary values that affect the rule's outputs,
	// such as flags or tool versions.
	Fields map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// fileRule is a rule from a rule file. It implements rulekey.BuildRule
// and cachefetch.Rule.
type fileRule struct {
	entry ruleEntry
	deps []rulekey.BuildRule
}

func (r *fileRule) BuildTarget() string { return r.entry.Target }

func (r *fileRule) IsCacheable() bool {
	return r.entry.Cacheable == nil || *r.entry.Cacheable
}

func (r *fileRule) AppendRuleKeyFields(fields rulekey.FieldSetter) error {
	srcs := make([]rulekey.SourcePath, len(r.entry.Srcs))
	for i, src := range r.entry.Srcs {
		srcs[i] = rulekey.PathSourcePath{Path: src}
	}
	if err := fields.Set("srcs", srcs); err != nil {
		return err
	}
	if err := fields.Set("deps", r.deps); err != nil {
		return err
	}
	if err := fields.Set("outputs", r.entry.Outputs); err != nil {
		return err
	}
	return fields.Set("fields", r.entry.Fields)
}

// ruleGraph is a parsed rule file with its dependencies resolved.
type ruleGraph struct {
	rules   map[string]*fileRule
	targets []string
}

// loadRules reads and resolves the rule file at path.
func loadRules(path string) (*ruleGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ruleFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	graph, err := resolveRules(file.Rules)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return graph, nil
}

// resolveRules validates entries and links every rule to its deps.
// Cycles are left for the rule key factory to report.
func resolveRules(entries []ruleEntry) (*ruleGraph, error) {
	graph := &ruleGraph{rules: make(map[string]*fileRule, len(entries))}
	var errs []error
	for _, entry := range entries {
		if err := validateEntry(entry); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := graph.rules[entry.Target]; exists {
			errs = append(errs, fmt.Errorf("duplicate rule %s", entry.Target))
			continue
		}
		graph.rules[entry.Target] = &fileRule{entry: entry}
		graph.targets = append(graph.targets, entry.Target)
	}

	for _, target := range graph.targets {
		rule := graph.rules[target]
		for _, dep := range rule.entry.Deps {
			resolved, ok := graph.rules[dep]
			if !ok {
				errs = append(errs, fmt.Errorf("rule %s: unknown dependency %s", target, dep))
				continue
			}
			rule.deps = append(rule.deps, resolved)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slices.Sort(graph.targets)
	return graph, nil
}

func validateEntry(entry ruleEntry) error {
	if !strings.HasPrefix(entry.Target, "//") {
		return fmt.Errorf("rule target %q must start with //", entry.Target)
	}
	for _, paths := range [][]string{entry.Srcs, entry.Outputs} {
		for _, p := range paths {
			if p == "" || path.IsAbs(p) || path.Clean(p) != p || p == ".." || strings.HasPrefix(p, "../") {
				return fmt.Errorf("rule %s: path %q must be clean and workspace-relative", entry.Target, p)
			}
		}
	}
	return nil
}

// lookup returns the rules for targets, or every rule when targets is
// empty.
func (g *ruleGraph) lookup(targets []string) ([]*fileRule, error) {
	if len(targets) == 0 {
		targets = g.targets
	}
	rules := make([]*fileRule, 0, len(targets))
	for _, target := range targets {
		rule, ok := g.rules[target]
		if !ok {
			return nil, fmt.Errorf("no rule %s", target)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
