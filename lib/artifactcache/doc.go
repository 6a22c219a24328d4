// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactcache defines the interface between the build and
// the caches that hold built artifacts, and provides the local
// backends.
//
// An [ArtifactCache] answers one question: given a target and a rule
// key, is there an artifact, and if so, what metadata did its producer
// record? On a hit the backend writes the archive to the [LazyPath]
// the caller supplied. The file behind a LazyPath is created only when
// a backend asks for it, so misses leave nothing behind.
//
// [CacheResult] carries the answer. Its constructors enforce that only
// hits carry metadata and only errors carry a message; code that
// consumes results switches on [CacheResult.Kind].
//
// Backends:
//
//   - [DirCache] stores artifacts in a sharded local directory and is
//     also the producer side ([DirCache.Store]).
//   - [Noop] never hits. It stands in when caching is disabled.
//   - [Chain] consults several caches in order and returns the first
//     hit, skipping levels that fail.
package artifactcache
