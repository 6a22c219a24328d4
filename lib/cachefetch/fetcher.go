// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/buildcache/lib/archive"
	"github.com/bureau-foundation/buildcache/lib/artifactcache"
	"github.com/bureau-foundation/buildcache/lib/buildinfo"
	"github.com/bureau-foundation/buildcache/lib/cacheevent"
	"github.com/bureau-foundation/buildcache/lib/clock"
	"github.com/bureau-foundation/buildcache/lib/rulekey"
	"github.com/bureau-foundation/buildcache/lib/workpool"
)

// Rule is the part of a build rule the fetcher needs.
type Rule interface {
	BuildTarget() string
	// IsCacheable reports whether the rule's outputs may come from a
	// cache.
	IsCacheable() bool
}

// StoreProvider hands out the build info store of a workspace.
// *buildinfo.StoreManager implements it.
type StoreProvider interface {
	Get(workspace string) (buildinfo.Store, error)
}

// OnDiskInfo reads the artifact metadata restored by an extraction.
// *buildinfo.OnDisk implements it.
type OnDiskInfo interface {
	GetValue(key string) (string, bool)
	ValidateArtifact(extracted []string) error
}

// Config configures a Fetcher for one rule.
type Config struct {
	Rule Rule

	// Pool runs the pipeline tasks. Required.
	Pool *workpool.Pool
	// FetchWeight and ExtractWeight are the pool weights of the two
	// pipeline tasks. Values below one mean one.
	FetchWeight   int64
	ExtractWeight int64

	// Format is the archive format the caches serve.
	Format archive.Format

	// OnOutputsWillChange runs after a hit is accepted and before the
	// workspace is touched. An error aborts the run as a local
	// extraction failure.
	OnOutputsWillChange func(ctx context.Context) error

	// Events receives the decompression events. Nil discards them.
	Events cacheevent.Bus

	// Stores provides the build info store. Required.
	Stores StoreProvider

	// OnDisk opens the on-disk artifact metadata of the rule. Nil
	// uses buildinfo.NewOnDisk.
	OnDisk func(workspace, target string) (OnDiskInfo, error)

	// TempDir holds downloaded archives. Empty means os.TempDir().
	TempDir string

	// Coalesce makes concurrent calls with the same rule key and
	// workspace share one run.
	Coalesce bool

	Logger *slog.Logger
	Clock  clock.Clock
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind int

const (
	// DiagnosticRuleKeyMismatch: the hit's metadata does not list the
	// rule key it was fetched with.
	DiagnosticRuleKeyMismatch DiagnosticKind = iota + 1
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticRuleKeyMismatch:
		return "rule-key-mismatch"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// Diagnostic is a non-fatal finding about a run.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
}

// Result describes a finished run.
type Result struct {
	Cache artifactcache.CacheResult
	// State is the final state; Trace lists every state in order,
	// starting with StatePending.
	State       State
	Trace       []State
	Diagnostics []Diagnostic

	// CompressedSize and OutputSize are set after an extraction.
	CompressedSize int64
	OutputSize     int64
}

// Fetcher runs the fetch pipeline of one rule.
type Fetcher struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
	events cacheevent.Bus
	onDisk func(workspace, target string) (OnDiskInfo, error)
	group  singleflight.Group
}

// New validates cfg and returns a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Rule == nil {
		return nil, errors.New("cachefetch: Rule is required")
	}
	if cfg.Pool == nil {
		return nil, errors.New("cachefetch: Pool is required")
	}
	if cfg.Stores == nil {
		return nil, errors.New("cachefetch: Stores is required")
	}
	fetcher := &Fetcher{
		config: cfg,
		logger: cfg.Logger,
		clock:  cfg.Clock,
		events: cfg.Events,
		onDisk: cfg.OnDisk,
	}
	if fetcher.logger == nil {
		fetcher.logger = slog.New(slog.DiscardHandler)
	}
	fetcher.logger = fetcher.logger.With("target", cfg.Rule.BuildTarget())
	if fetcher.clock == nil {
		fetcher.clock = clock.Real()
	}
	if fetcher.events == nil {
		fetcher.events = cacheevent.Discard{}
	}
	if fetcher.onDisk == nil {
		fetcher.onDisk = func(workspace, target string) (OnDiskInfo, error) {
			return buildinfo.NewOnDisk(workspace, target)
		}
	}
	return fetcher, nil
}

// FetchAndMaterialize fetches the artifact for key from cache and, on
// a hit, extracts it into workspace and records its metadata.
//
// The future fails only for hard errors (*MetadataIntegrityError,
// *LocalExtractionError) and cancellation; the Result is filled in
// either way. Cache-side failures resolve successfully with a
// SOFT_ERROR or ERROR result.
func (f *Fetcher) FetchAndMaterialize(ctx context.Context, key rulekey.RuleKey, cache artifactcache.ArtifactCache, workspace string) *workpool.Future[Result] {
	if !f.config.Rule.IsCacheable() {
		m := newMachine()
		m.advance(StateNotCacheable)
		return workpool.Resolved(Result{
			Cache: artifactcache.Ignored(),
			State: m.current(),
			Trace: m.trace,
		}, nil)
	}
	if !f.config.Coalesce {
		return f.start(ctx, key, cache, workspace)
	}

	// The shared run must outlive any one caller, so it ignores the
	// caller's cancellation; each caller stops waiting on its own ctx.
	detached := context.WithoutCancel(ctx)
	flight := key.String() + "\x00" + workspace
	return workpool.Go(func() (Result, error) {
		channel := f.group.DoChan(flight, func() (any, error) {
			return f.start(detached, key, cache, workspace).Wait(detached)
		})
		select {
		case shared := <-channel:
			result, _ := shared.Val.(Result)
			if shared.Shared {
				f.logger.Debug("fetch shared with a concurrent request", "rule_key", key.String())
			}
			result.Trace = slices.Clone(result.Trace)
			result.Diagnostics = slices.Clone(result.Diagnostics)
			return result, shared.Err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	})
}

// run is the state carried from the fetch task to the extract task.
type run struct {
	key       rulekey.RuleKey
	cache     artifactcache.ArtifactCache
	workspace string
	output    *artifactcache.LazyPath
	machine   *machine

	fetched     artifactcache.CacheResult
	keys        []rulekey.RuleKey
	diagnostics []Diagnostic
	compressed  int64
	outputSize  int64
	err         error
}

func (r *run) result() Result {
	return Result{
		Cache:          r.fetched,
		State:          r.machine.current(),
		Trace:          r.machine.trace,
		Diagnostics:    r.diagnostics,
		CompressedSize: r.compressed,
		OutputSize:     r.outputSize,
	}
}

func (f *Fetcher) start(ctx context.Context, key rulekey.RuleKey, cache artifactcache.ArtifactCache, workspace string) *workpool.Future[Result] {
	r := &run{
		key:       key,
		cache:     cache,
		workspace: workspace,
		output:    artifactcache.NewLazyPath(f.config.TempDir, f.config.Rule.BuildTarget(), f.config.Format),
		machine:   newMachine(),
	}
	fetched := workpool.Submit(ctx, f.config.Pool, f.config.FetchWeight, func(ctx context.Context) (*run, error) {
		f.fetch(ctx, r)
		return r, nil
	})
	return workpool.Then(ctx, fetched, f.config.Pool, f.config.ExtractWeight, func(ctx context.Context, r *run) (Result, error) {
		if r.err == nil && r.machine.current() == StateValidating {
			f.materialize(ctx, r)
		}
		return r.result(), r.err
	})
}

// fetch asks the cache and validates a hit. It leaves the run in a
// terminal cache state, in StateValidating with an accepted hit, or in
// StateFailed.
func (f *Fetcher) fetch(ctx context.Context, r *run) {
	target := f.config.Rule.BuildTarget()
	r.machine.advance(StateFetching)

	result := f.callCache(ctx, r)
	switch result.Kind() {
	case artifactcache.KindHit:
	case artifactcache.KindMiss:
		f.logger.Debug("cache miss", "rule_key", r.key.String(), "cache", result.Source())
		r.fetched = result
		r.machine.advance(StateMiss)
		f.discardOutput(r)
		return
	default:
		f.logger.Warn("cache error fetching artifact",
			"rule_key", r.key.String(),
			"cache", result.Source(),
			"error", result.ErrorMessage(),
		)
		r.fetched = result
		if result.Kind() == artifactcache.KindError {
			r.machine.advance(StateError)
		} else {
			r.machine.advance(StateSoftError)
		}
		f.discardOutput(r)
		return
	}

	r.fetched = result
	r.machine.advance(StateValidating)
	metadata := result.Metadata()
	backend := result.Source()
	if backend == "" {
		backend = r.cache.Name()
	}
	for _, name := range buildinfo.RuleKeyNames {
		value, ok := metadata[name]
		if !ok {
			continue
		}
		parsed, err := rulekey.ParseRuleKey(value)
		if err != nil {
			f.fail(r, &MetadataIntegrityError{
				Backend: backend, Target: target, RuleKey: r.key,
				Field: name, Value: value, Err: err,
			})
			return
		}
		if !slices.Contains(r.keys, parsed) {
			r.keys = append(r.keys, parsed)
		}
	}
	slices.SortFunc(r.keys, func(a, b rulekey.RuleKey) int {
		return bytes.Compare(a[:], b[:])
	})
	if _, ok := metadata[buildinfo.KeyOriginBuildID]; !ok {
		f.fail(r, &MetadataIntegrityError{
			Backend: backend, Target: target, RuleKey: r.key,
			Field: buildinfo.KeyOriginBuildID,
		})
		return
	}

	if !slices.Contains(r.keys, r.key) {
		message := fmt.Sprintf("rule keys in artifact don't match rule key used to fetch it: %s not in %v", r.key, r.keys)
		f.logger.Warn("rule keys in artifact don't match rule key used to fetch it",
			"rule_key", r.key.String(),
			"artifact_rule_keys", r.keys,
			"cache", backend,
		)
		r.diagnostics = append(r.diagnostics, Diagnostic{Kind: DiagnosticRuleKeyMismatch, Message: message})
	}
}

// callCache runs the backend, turning returned errors and panics into
// soft errors.
func (f *Fetcher) callCache(ctx context.Context, r *run) (result artifactcache.CacheResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = artifactcache.SoftError(r.cache.Name(), fmt.Errorf("cache panicked: %v", recovered))
		}
	}()
	result, err := r.cache.Fetch(ctx, f.config.Rule.BuildTarget(), r.key, r.output)
	if err != nil {
		return artifactcache.SoftError(r.cache.Name(), err)
	}
	if result.Kind() == artifactcache.KindIgnored {
		return artifactcache.SoftError(r.cache.Name(), errors.New("cache returned IGNORED for a cacheable rule"))
	}
	return result
}

// materialize extracts an accepted hit and records its metadata.
func (f *Fetcher) materialize(ctx context.Context, r *run) {
	target := f.config.Rule.BuildTarget()
	if f.cancelled(ctx, r) {
		return
	}
	r.machine.advance(StateExtracting)
	if f.config.OnOutputsWillChange != nil {
		if err := f.config.OnOutputsWillChange(ctx); err != nil {
			f.failLocal(r, fmt.Errorf("preparing outputs: %w", err))
			return
		}
	}
	if f.cancelled(ctx, r) {
		return
	}

	archivePath, err := r.output.Get()
	if err != nil {
		f.failLocal(r, err)
		return
	}
	started := cacheevent.Started(target, []rulekey.RuleKey{r.key}, f.clock.Now())
	f.events.Post(ctx, started)
	var extractErr error
	defer func() {
		f.events.Post(ctx, started.Finished(f.clock.Now(), r.outputSize, r.compressed, extractErr))
	}()

	if info, err := os.Stat(archivePath); err == nil {
		r.compressed = info.Size()
	}
	extractErr = f.extract(r, archivePath)
	if extractErr != nil {
		f.failLocal(r, extractErr)
		return
	}

	r.machine.advance(StatePersistingMetadata)
	store, err := f.config.Stores.Get(r.workspace)
	if err == nil {
		err = store.UpdateMetadata(ctx, target, r.fetched.Metadata())
	}
	if err != nil {
		f.failLocal(r, fmt.Errorf("recording metadata: %w", err))
		return
	}
	r.machine.advance(StateDone)
	f.logger.Info("artifact materialized from cache",
		"rule_key", r.key.String(),
		"cache", r.fetched.Source(),
		"compressed_bytes", r.compressed,
		"output_bytes", r.outputSize,
	)
}

func (f *Fetcher) extract(r *run, archivePath string) error {
	target := f.config.Rule.BuildTarget()
	extracted, err := archive.Extract(archivePath, r.workspace, f.config.Format, archive.OverwriteAndCleanDirectories)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", archivePath, err)
	}
	onDisk, err := f.onDisk(r.workspace, target)
	if err != nil {
		return err
	}
	if err := onDisk.ValidateArtifact(extracted); err != nil {
		return err
	}
	value, ok := onDisk.GetValue(buildinfo.KeyOutputSize)
	if !ok {
		return fmt.Errorf("extracted artifact has no %s metadata", buildinfo.KeyOutputSize)
	}
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", buildinfo.KeyOutputSize, err)
	}
	r.outputSize = size

	// The archive is kept for inspection when anything above fails.
	if err := r.output.Remove(); err != nil {
		f.logger.Warn("removing downloaded archive", "path", archivePath, "error", err)
	}
	return nil
}

func (f *Fetcher) fail(r *run, err error) {
	r.err = err
	r.machine.advance(StateFailed)
	f.logger.Error("materializing cached artifact failed", "rule_key", r.key.String(), "error", err)
}

// cancelled ends r with ctx's error when ctx is done. It runs only
// before extraction starts, so the workspace is untouched and the
// error carries no remediation hint.
func (f *Fetcher) cancelled(ctx context.Context, r *run) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	r.err = err
	r.machine.advance(StateFailed)
	f.discardOutput(r)
	f.logger.Info("fetch cancelled before extraction", "rule_key", r.key.String())
	return true
}

func (f *Fetcher) failLocal(r *run, err error) {
	f.fail(r, &LocalExtractionError{
		Target:  f.config.Rule.BuildTarget(),
		RuleKey: r.key,
		Stage:   r.machine.current(),
		Err:     err,
	})
}

func (f *Fetcher) discardOutput(r *run) {
	if err := r.output.Remove(); err != nil {
		f.logger.Debug("removing unused archive", "error", err)
	}
}
