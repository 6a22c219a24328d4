// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/buildcache/lib/archive"
	"github.com/bureau-foundation/buildcache/lib/clock"
	"github.com/bureau-foundation/buildcache/lib/codec"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// DirCache keeps artifacts in a local directory, sharded by the first
// byte of the rule key:
//
//	<root>/<hh>/<hex><ext>        the archive
//	<root>/<hh>/<hex>.meta.cbor   the entry record
//
// The entry record is written after the archive, so its presence
// marks a complete entry.
type DirCache struct {
	root   string
	format archive.Format
	clock  clock.Clock
	logger *slog.Logger
}

// DirCacheConfig configures a DirCache.
type DirCacheConfig struct {
	Root   string
	Format archive.Format
	// Clock stamps stored entries. Nil uses the real clock.
	Clock  clock.Clock
	Logger *slog.Logger
}

type entryRecord struct {
	Target   string            `cbor:"target"`
	RuleKey  rulekey.RuleKey   `cbor:"rule_key"`
	Format   archive.Format    `cbor:"format"`
	Metadata map[string]string `cbor:"metadata"`
	StoredAt time.Time         `cbor:"stored_at"`
}

// NewDirCache opens (creating if needed) a directory cache.
func NewDirCache(cfg DirCacheConfig) (*DirCache, error) {
	if cfg.Root == "" {
		return nil, errors.New("artifactcache: Root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", cfg.Root, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &DirCache{root: cfg.Root, format: cfg.Format, clock: cfg.Clock, logger: cfg.Logger}, nil
}

func (c *DirCache) Name() string { return "dir" }

func (c *DirCache) paths(key rulekey.RuleKey) (archivePath, recordPath string) {
	hex := key.String()
	shard := filepath.Join(c.root, hex[:2])
	return filepath.Join(shard, hex+c.format.Extension()), filepath.Join(shard, hex+".meta.cbor")
}

func (c *DirCache) Fetch(ctx context.Context, target string, key rulekey.RuleKey, output *LazyPath) (CacheResult, error) {
	if err := ctx.Err(); err != nil {
		return CacheResult{}, err
	}
	archivePath, recordPath := c.paths(key)

	var record entryRecord
	if err := codec.ReadFile(recordPath, &record); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Miss(c.Name()), nil
		}
		return CacheResult{}, fmt.Errorf("reading entry %s: %w", key, err)
	}
	if record.Format != c.format {
		return SoftError(c.Name(), fmt.Errorf("entry %s is %s, cache serves %s", key, record.Format, c.format)), nil
	}

	destination, err := output.Get()
	if err != nil {
		return CacheResult{}, err
	}
	if err := copyFile(destination, archivePath); err != nil {
		return CacheResult{}, fmt.Errorf("copying artifact %s: %w", key, err)
	}
	c.logger.Debug("dir cache hit",
		"target", target,
		"rule_key", key.String(),
		"stored_target", record.Target,
	)
	return Hit(c.Name(), record.Metadata), nil
}

// Store adds the archive at archivePath under key, replacing any
// existing entry.
func (c *DirCache) Store(ctx context.Context, target string, key rulekey.RuleKey, archivePath string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destination, recordPath := c.paths(key)
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("creating shard: %w", err)
	}

	temporary := destination + ".tmp"
	if err := copyFile(temporary, archivePath); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("storing artifact %s: %w", key, err)
	}
	if err := os.Rename(temporary, destination); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("storing artifact %s: %w", key, err)
	}

	record := entryRecord{
		Target:   target,
		RuleKey:  key,
		Format:   c.format,
		Metadata: metadata,
		StoredAt: c.clock.Now().UTC(),
	}
	if err := codec.WriteFile(recordPath, record); err != nil {
		return fmt.Errorf("storing entry %s: %w", key, err)
	}
	c.logger.Info("artifact stored",
		"target", target,
		"rule_key", key.String(),
	)
	return nil
}

// StoredAt returns when key was stored.
func (c *DirCache) StoredAt(key rulekey.RuleKey) (time.Time, bool) {
	_, recordPath := c.paths(key)
	var record entryRecord
	if err := codec.ReadFile(recordPath, &record); err != nil {
		return time.Time{}, false
	}
	return record.StoredAt, true
}

func copyFile(destination, source string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
