// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rulekey computes rule keys: fixed-size digests of everything
// that can affect a build rule's outputs. Two builds that compute the
// same rule key for a rule may share its outputs through the artifact
// cache; any change to a hashed input changes the key.
//
// The package is organized in layers:
//
//   - Hashers: a [Hasher] consumes a stream of typed writes. The
//     [DigestHasher] folds them into a BLAKE3 keyed digest in the rule
//     key domain. The [TraceHasher] records them as readable tokens,
//     for diffing two keys that should have matched.
//
//   - Scopes: a [ScopedHasher] groups writes into nested key, wrapper
//     and container scopes. Markers are written when a scope closes,
//     and key and wrapper markers are dropped when nothing was written
//     inside them, so a field whose value writes nothing leaves no
//     trace in the key.
//
//   - Traversal: a [Builder] walks a rule's configuration value graph.
//     Every value falls into exactly one [Shape]; references (rules,
//     source paths, artifacts, actions) are handed to a [Sink], which
//     decides how they are written. The [HashingSink] resolves them to
//     content hashes and dependency keys; the [InputCollector] records
//     them without reading anything.
//
//   - Factory: a [Factory] computes and memoizes keys across a graph
//     of rules, detects dependency cycles, and hashes workspace files
//     through a [FileHashCache].
//
// Raw filesystem paths ([FilePath]) are rejected: the same file has a
// different absolute path on every machine, and a key that includes
// one can never be shared. Use a [SourcePath].
package rulekey
