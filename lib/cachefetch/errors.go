// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefetch

import (
	"fmt"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// RemediationHint is appended to every LocalExtractionError.
const RemediationHint = "Suggested fix: try removing the local build cache (buildcache clean)"

// MetadataIntegrityError rejects a hit whose metadata is unusable: a
// rule-key field that is not a rule key, or a missing required field.
type MetadataIntegrityError struct {
	// Backend names the cache that returned the artifact.
	Backend string
	Target  string
	RuleKey rulekey.RuleKey
	Field   string
	// Value is the offending value, empty for a missing field.
	Value string
	Err   error
}

func (e *MetadataIntegrityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("artifact %s for %s from cache %s is missing metadata %q",
			e.RuleKey, e.Target, e.Backend, e.Field)
	}
	return fmt.Sprintf("invalid %q rule key in metadata for artifact %s of %s returned by cache %s: %q: %v",
		e.Field, e.RuleKey, e.Target, e.Backend, e.Value, e.Err)
}

func (e *MetadataIntegrityError) Unwrap() error { return e.Err }

// LocalExtractionError is a failure after a hit was accepted. The
// workspace may hold a partial extraction.
type LocalExtractionError struct {
	Target  string
	RuleKey rulekey.RuleKey
	// Stage is where the run failed.
	Stage State
	Err   error
}

func (e *LocalExtractionError) Error() string {
	return fmt.Sprintf("materializing artifact for %s (rule key %s) failed in stage %s: %v. %s",
		e.Target, e.RuleKey, e.Stage, e.Err, RemediationHint)
}

func (e *LocalExtractionError) Unwrap() error { return e.Err }
