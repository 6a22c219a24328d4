// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactcache

import (
	"fmt"
	"maps"
)

// Kind classifies a CacheResult.
type Kind int

const (
	// KindMiss is the zero Kind: the cache has no artifact.
	KindMiss Kind = iota
	// KindHit means the artifact was written to the output path and
	// its metadata is attached.
	KindHit
	// KindError is a failure reported by the backend itself.
	KindError
	// KindSoftError is a failure the build treats as a miss.
	KindSoftError
	// KindIgnored means the cache was not consulted.
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindHit:
		return "HIT"
	case KindMiss:
		return "MISS"
	case KindError:
		return "ERROR"
	case KindSoftError:
		return "SOFT_ERROR"
	case KindIgnored:
		return "IGNORED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsSuccess reports whether the kind is a hit.
func (k Kind) IsSuccess() bool { return k == KindHit }

// IsFailure reports whether the kind is an error or soft error.
func (k Kind) IsFailure() bool { return k == KindError || k == KindSoftError }

// CacheResult is the outcome of one cache lookup. Build it with Hit,
// Miss, Error, SoftError, or Ignored.
type CacheResult struct {
	kind     Kind
	source   string
	metadata map[string]string
	message  string
}

// Hit returns a hit from source. The metadata map is copied.
func Hit(source string, metadata map[string]string) CacheResult {
	copied := maps.Clone(metadata)
	if copied == nil {
		copied = make(map[string]string)
	}
	return CacheResult{kind: KindHit, source: source, metadata: copied}
}

// Miss returns a miss from source.
func Miss(source string) CacheResult {
	return CacheResult{kind: KindMiss, source: source}
}

// Error returns a backend-reported failure.
func Error(source string, err error) CacheResult {
	return CacheResult{kind: KindError, source: source, message: errorText(err)}
}

// SoftError returns a failure to be treated as a miss.
func SoftError(source string, err error) CacheResult {
	return CacheResult{kind: KindSoftError, source: source, message: errorText(err)}
}

// Ignored returns the result for a lookup that was skipped.
func Ignored() CacheResult {
	return CacheResult{kind: KindIgnored}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (r CacheResult) Kind() Kind { return r.kind }

// Source names the backend that produced the result.
func (r CacheResult) Source() string { return r.source }

// Metadata returns the artifact metadata of a hit, or nil.
func (r CacheResult) Metadata() map[string]string { return r.metadata }

// ErrorMessage returns the failure text of an error or soft error.
func (r CacheResult) ErrorMessage() string { return r.message }

func (r CacheResult) String() string {
	switch {
	case r.kind.IsFailure():
		return fmt.Sprintf("%s from %s: %s", r.kind, r.source, r.message)
	case r.source != "":
		return fmt.Sprintf("%s from %s", r.kind, r.source)
	default:
		return r.kind.String()
	}
}
