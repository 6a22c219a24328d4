// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MetadataRoot is the workspace-relative directory holding every
// rule's artifact metadata.
const MetadataRoot = ".buildcache/metadata"

// MetadataDirectory returns the workspace-relative, slash-separated
// directory holding target's artifact metadata. "//app/server:main"
// maps to ".buildcache/metadata/app/server/main/artifact".
func MetadataDirectory(target string) (string, error) {
	trimmed := strings.TrimPrefix(target, "//")
	trimmed = strings.ReplaceAll(trimmed, ":", "/")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", fmt.Errorf("invalid target %q", target)
	}
	cleaned := path.Clean(trimmed)
	if cleaned != trimmed || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid target %q: not a clean package path", target)
	}
	return MetadataRoot + "/" + cleaned + "/artifact", nil
}

// OnDisk reads the artifact metadata of one rule from the workspace,
// as written by a Recorder and restored by extracting an artifact.
type OnDisk struct {
	workspace string
	target    string
	directory string
}

// NewOnDisk returns the on-disk view of target's artifact metadata in
// workspace.
func NewOnDisk(workspace, target string) (*OnDisk, error) {
	directory, err := MetadataDirectory(target)
	if err != nil {
		return nil, err
	}
	return &OnDisk{workspace: workspace, target: target, directory: directory}, nil
}

// Directory returns the workspace-relative metadata directory.
func (o *OnDisk) Directory() string { return o.directory }

// GetValue returns the value of one metadata key. A key that was never
// written, or cannot be read, is absent.
func (o *OnDisk) GetValue(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(o.workspace, filepath.FromSlash(o.directory), key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ValidateArtifact checks the paths an extraction produced against the
// outputs recorded when the artifact was built. Every recorded output
// must have been extracted, and every extracted path must be a
// recorded output, lie inside one, or belong to the metadata
// directory.
func (o *OnDisk) ValidateArtifact(extracted []string) error {
	value, ok := o.GetValue(KeyRecordedPaths)
	if !ok {
		return fmt.Errorf("artifact for %s has no %s metadata", o.target, KeyRecordedPaths)
	}
	recorded, err := DecodeRecordedPaths(value)
	if err != nil {
		return fmt.Errorf("artifact for %s: %w", o.target, err)
	}

	present := make(map[string]bool, len(extracted))
	for _, name := range extracted {
		present[path.Clean(name)] = true
	}
	for _, output := range recorded {
		if !present[path.Clean(output)] {
			return fmt.Errorf("artifact for %s is missing recorded output %s", o.target, output)
		}
	}

	allowed := append([]string{o.directory}, recorded...)
	for name := range present {
		if !underAny(name, allowed) {
			return fmt.Errorf("artifact for %s contains unexpected path %s", o.target, name)
		}
	}
	return nil
}

func underAny(name string, roots []string) bool {
	for _, root := range roots {
		root = path.Clean(root)
		if name == root || strings.HasPrefix(name, root+"/") {
			return true
		}
	}
	return false
}
