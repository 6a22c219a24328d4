// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// Recorder collects what a successful local build of one rule
// produced and writes it as artifact metadata, ready to be archived
// and stored in a cache.
type Recorder struct {
	workspace string
	target    string
	directory string
	metadata  map[string]string
	paths     map[string]bool
}

// Artifact is the result of Recorder.Commit.
type Artifact struct {
	// Paths lists what to archive: the recorded outputs followed by
	// the metadata directory, workspace-relative and sorted.
	Paths []string
	// Metadata is the complete metadata written, including
	// origin_build_id, output_size, and recorded_paths.
	Metadata map[string]string
}

// NewRecorder returns a recorder for target in workspace.
func NewRecorder(workspace, target string) (*Recorder, error) {
	directory, err := MetadataDirectory(target)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		workspace: workspace,
		target:    target,
		directory: directory,
		metadata:  make(map[string]string),
		paths:     make(map[string]bool),
	}, nil
}

// AddMetadata sets one metadata value. Values computed by Commit
// override anything set here under the same key.
func (r *Recorder) AddMetadata(key, value string) {
	r.metadata[key] = value
}

// AddRuleKey records one of the rule's keys under a rule-key-family
// name.
func (r *Recorder) AddRuleKey(name string, key rulekey.RuleKey) error {
	if !IsRuleKeyName(name) {
		return fmt.Errorf("%q is not a rule key metadata name", name)
	}
	if key.IsZero() {
		return fmt.Errorf("recording %s for %s: zero rule key", name, r.target)
	}
	r.metadata[name] = key.String()
	return nil
}

// RecordArtifact adds workspace-relative output paths. Directories
// are recorded whole.
func (r *Recorder) RecordArtifact(paths ...string) error {
	for _, p := range paths {
		cleaned := path.Clean(filepath.ToSlash(p))
		if p == "" || path.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return fmt.Errorf("recording output of %s: %q is not a workspace-relative path", r.target, p)
		}
		if cleaned == MetadataRoot || strings.HasPrefix(cleaned, MetadataRoot+"/") {
			return fmt.Errorf("recording output of %s: %s is inside the metadata directory", r.target, p)
		}
		r.paths[cleaned] = true
	}
	return nil
}

// Commit writes the metadata directory, replacing any previous one,
// and returns what to archive.
func (r *Recorder) Commit(buildID string) (Artifact, error) {
	if buildID == "" {
		return Artifact{}, fmt.Errorf("committing %s: empty build id", r.target)
	}
	if _, ok := r.metadata[KeyRuleKey]; !ok {
		return Artifact{}, fmt.Errorf("committing %s: no %s recorded", r.target, KeyRuleKey)
	}

	recorded := slices.Sorted(maps.Keys(r.paths))
	size, err := r.outputSize(recorded)
	if err != nil {
		return Artifact{}, err
	}
	encoded, err := EncodeRecordedPaths(recorded)
	if err != nil {
		return Artifact{}, err
	}

	metadata := maps.Clone(r.metadata)
	metadata[KeyOriginBuildID] = buildID
	metadata[KeyOutputSize] = strconv.FormatInt(size, 10)
	metadata[KeyRecordedPaths] = encoded

	directory := filepath.Join(r.workspace, filepath.FromSlash(r.directory))
	if err := os.RemoveAll(directory); err != nil {
		return Artifact{}, fmt.Errorf("clearing metadata of %s: %w", r.target, err)
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating metadata directory of %s: %w", r.target, err)
	}
	for key, value := range metadata {
		if strings.ContainsAny(key, `/\`) || key == "" || key == "." || key == ".." {
			return Artifact{}, fmt.Errorf("committing %s: invalid metadata key %q", r.target, key)
		}
		if err := os.WriteFile(filepath.Join(directory, key), []byte(value), 0o644); err != nil {
			return Artifact{}, fmt.Errorf("writing %s of %s: %w", key, r.target, err)
		}
	}

	return Artifact{
		Paths:    append(recorded, r.directory),
		Metadata: metadata,
	}, nil
}

// outputSize sums the sizes of the regular files under paths.
func (r *Recorder) outputSize(paths []string) (int64, error) {
	var total int64
	for _, relative := range paths {
		start := filepath.Join(r.workspace, filepath.FromSlash(relative))
		err := filepath.WalkDir(start, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("measuring output %s of %s: %w", relative, r.target, err)
		}
	}
	return total, nil
}
