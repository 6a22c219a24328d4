// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachefetch fetches a rule's artifact from a cache and
// materializes it into the workspace.
//
// [Fetcher.FetchAndMaterialize] runs one rule's pipeline as two chained
// tasks on a [workpool.Pool]: fetch and validate, then extract and
// persist. Each run walks a small state machine (see [State]) and the
// [Result] reports the states it passed through.
//
// Failure policy: anything that goes wrong on the cache side (an error
// returned by the backend, an error result, a panic) becomes a
// SOFT_ERROR result and the build continues as if it had missed.
// Once a hit has been accepted, failures are hard: extraction may
// already have changed the workspace, so the pipeline returns a
// [*LocalExtractionError] asking the user to reset the local cache. A
// hit whose metadata does not hold valid rule keys is rejected with a
// [*MetadataIntegrityError] before anything on disk changes.
//
// A hit whose rule keys do not include the requested key is accepted.
// The mismatch is logged and reported as a [Diagnostic] on the result.
package cachefetch
