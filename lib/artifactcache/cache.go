// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bureau-foundation/buildcache/lib/archive"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// ArtifactCache is a store of built artifacts keyed by rule key.
type ArtifactCache interface {
	// Name identifies the backend in results, logs, and errors.
	Name() string

	// Fetch looks up key. On a hit the archive is written to the file
	// behind output. A returned error means the lookup itself failed;
	// callers treat it as a soft error.
	Fetch(ctx context.Context, target string, key rulekey.RuleKey, output *LazyPath) (CacheResult, error)
}

// LazyPath is a per-fetch temporary archive path, created on first use.
type LazyPath struct {
	directory string
	pattern   string

	once sync.Once
	path string
	err  error
}

// NewLazyPath returns a path in directory (the system temp directory
// if empty) whose name mentions target.
func NewLazyPath(directory, target string, format archive.Format) *LazyPath {
	if directory == "" {
		directory = os.TempDir()
	}
	return &LazyPath{
		directory: directory,
		pattern:   "buildcache_artifact_" + sanitize(target) + "_*" + format.Extension(),
	}
}

// Get creates the file on the first call and returns its path. Every
// call returns the same path.
func (p *LazyPath) Get() (string, error) {
	p.once.Do(func() {
		if err := os.MkdirAll(p.directory, 0o755); err != nil {
			p.err = fmt.Errorf("creating temporary directory: %w", err)
			return
		}
		file, err := os.CreateTemp(p.directory, p.pattern)
		if err != nil {
			p.err = fmt.Errorf("creating temporary archive: %w", err)
			return
		}
		p.path = file.Name()
		p.err = file.Close()
	})
	return p.path, p.err
}

// Created reports whether Get has created the file.
func (p *LazyPath) Created() bool {
	return p.path != "" && p.err == nil
}

// Remove deletes the file if it was created.
func (p *LazyPath) Remove() error {
	if !p.Created() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func sanitize(target string) string {
	target = strings.TrimPrefix(target, "//")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, target)
}

// Noop is a cache that never hits.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Fetch(context.Context, string, rulekey.RuleKey, *LazyPath) (CacheResult, error) {
	return Miss("noop"), nil
}

// Chain consults caches in order.
type Chain struct {
	caches []ArtifactCache
	logger *slog.Logger
}

// NewChain returns a cache that tries each of caches in turn.
func NewChain(logger *slog.Logger, caches ...ArtifactCache) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{caches: caches, logger: logger}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.caches))
	for i, cache := range c.caches {
		names[i] = cache.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Fetch returns the first hit. Levels that fail are logged and
// skipped; if no level hits and any failed, the result is a soft
// error naming every failure.
func (c *Chain) Fetch(ctx context.Context, target string, key rulekey.RuleKey, output *LazyPath) (CacheResult, error) {
	var failures []error
	for _, cache := range c.caches {
		if err := ctx.Err(); err != nil {
			return CacheResult{}, err
		}
		result, err := cache.Fetch(ctx, target, key, output)
		if err != nil {
			result = SoftError(cache.Name(), err)
		}
		switch {
		case result.Kind() == KindHit:
			return result, nil
		case result.Kind().IsFailure():
			c.logger.Warn("cache level failed",
				"cache", cache.Name(),
				"target", target,
				"rule_key", key.String(),
				"error", result.ErrorMessage(),
			)
			failures = append(failures, fmt.Errorf("%s: %s", cache.Name(), result.ErrorMessage()))
		}
	}
	if len(failures) > 0 {
		return SoftError(c.Name(), errors.Join(failures...)), nil
	}
	return Miss(c.Name()), nil
}
