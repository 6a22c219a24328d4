// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Well-known metadata keys. Values are always strings.
const (
	// KeyRuleKey is the default rule key of the build that produced
	// the artifact.
	KeyRuleKey = "rule_key"
	// KeyInputBasedRuleKey is the key computed from the contents of
	// the rule's inputs rather than their definitions.
	KeyInputBasedRuleKey = "input_based_rule_key"
	// KeyDepFileRuleKey is the key computed over only the inputs the
	// rule's dependency file reports as used.
	KeyDepFileRuleKey = "dep_file_rule_key"
	// KeyManifestKey is the key of the dependency-file manifest.
	KeyManifestKey = "manifest_key"

	// KeyOriginBuildID identifies the build that produced the
	// artifact. Every artifact in a cache must carry one.
	KeyOriginBuildID = "origin_build_id"
	// KeyOutputSize is the total size in bytes of the rule's outputs.
	KeyOutputSize = "output_size"
	// KeyRecordedPaths is a JSON array of the workspace-relative
	// output paths the artifact contains.
	KeyRecordedPaths = "recorded_paths"
)

// RuleKeyNames lists the metadata keys whose values are rule keys.
// Every present value must parse as one.
var RuleKeyNames = []string{
	KeyRuleKey,
	KeyInputBasedRuleKey,
	KeyDepFileRuleKey,
	KeyManifestKey,
}

// IsRuleKeyName reports whether key belongs to the rule key family.
func IsRuleKeyName(key string) bool {
	return slices.Contains(RuleKeyNames, key)
}

// EncodeRecordedPaths returns the metadata value for paths.
func EncodeRecordedPaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeRecordedPaths parses a recorded_paths metadata value.
func DecodeRecordedPaths(value string) ([]string, error) {
	var paths []string
	if err := json.Unmarshal([]byte(value), &paths); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyRecordedPaths, err)
	}
	return paths, nil
}
