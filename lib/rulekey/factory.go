// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Factory computes rule keys for a graph of rules. Dependency keys are
// computed on demand and memoized by target, so each rule in a build
// is hashed once no matter how many rules depend on it.
//
// Factory is safe for concurrent use. Two goroutines asking for the
// same uncached rule may both compute it; the results are identical.
type Factory struct {
	files  FileHasher
	logger *slog.Logger

	mu   sync.Mutex
	memo map[string]RuleKey
}

// NewFactory returns a factory that hashes source paths with files.
// A nil logger discards diagnostics.
func NewFactory(files FileHasher, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{files: files, logger: logger, memo: make(map[string]RuleKey)}
}

// Build returns the rule key of rule.
func (f *Factory) Build(rule BuildRule) (RuleKey, error) {
	return f.build(rule, nil)
}

// Trace returns the readable trace of everything Build hashes for
// rule. Dependencies appear as their rule keys.
func (f *Factory) Trace(rule BuildRule) (string, error) {
	builder := NewTraceBuilder(Options{
		Resolver: &chainResolver{factory: f, stack: []string{rule.BuildTarget()}},
		Logger:   f.logger,
	})
	if err := appendRule(builder, rule); err != nil {
		return "", err
	}
	return builder.Build()
}

// Inputs returns the workspace paths and dependency targets rule's
// fields refer to directly.
func (f *Factory) Inputs(rule BuildRule) (paths, dependencies []string, err error) {
	var collector *InputCollector
	builder := NewBuilder[RuleKey](NewDigestHasher(), Options{
		Logger: f.logger,
		Sink: func(writer Writer) Sink {
			collector = NewInputCollector(writer)
			return collector
		},
	})
	if err := appendRule(builder, rule); err != nil {
		return nil, nil, err
	}
	return collector.Paths(), collector.Dependencies(), nil
}

// Forget drops every memoized key. Call it when workspace files change
// between builds.
func (f *Factory) Forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.memo)
}

func (f *Factory) build(rule BuildRule, stack []string) (RuleKey, error) {
	target := rule.BuildTarget()
	if index := slices.Index(stack, target); index >= 0 {
		return RuleKey{}, &CycleError{Cycle: append(slices.Clone(stack[index:]), target)}
	}

	f.mu.Lock()
	key, ok := f.memo[target]
	f.mu.Unlock()
	if ok {
		return key, nil
	}

	builder := NewDigestBuilder(Options{
		Resolver: &chainResolver{factory: f, stack: append(slices.Clone(stack), target)},
		Logger:   f.logger.With("target", target),
	})
	if err := appendRule(builder, rule); err != nil {
		return RuleKey{}, fmt.Errorf("computing rule key for %s: %w", target, err)
	}
	key, err := builder.Build()
	if err != nil {
		return RuleKey{}, err
	}

	f.mu.Lock()
	f.memo[target] = key
	f.mu.Unlock()
	return key, nil
}

func appendRule(fields FieldSetter, rule BuildRule) error {
	if err := fields.Set(".target", rule.BuildTarget()); err != nil {
		return err
	}
	return rule.AppendRuleKeyFields(fields)
}

// chainResolver resolves dependencies through the factory while
// carrying the chain of targets being computed, for cycle detection.
type chainResolver struct {
	factory *Factory
	stack   []string
}

func (r *chainResolver) FileHash(path string) (Hash, error) {
	return r.factory.files.FileHash(path)
}

func (r *chainResolver) RuleKey(rule BuildRule) (RuleKey, error) {
	return r.factory.build(rule, r.stack)
}
