// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildinfo holds what the build knows about each rule's last
// build: the well-known metadata keys, the durable per-target metadata
// [Store], and the artifact metadata kept next to a rule's outputs in
// the workspace.
//
// Two stores implement [Store]. [SQLiteStore] keeps every target's
// metadata in one WAL-mode database and is the default; concurrent
// build processes sharing a workspace serialize on SQLite's write
// lock. [FilesystemStore] keeps one CBOR file per target and needs no
// database, at the cost of one file per rule. A [StoreManager] opens
// one store per workspace and hands it out to every fetch.
//
// Artifact metadata travels with the artifact. The producer side
// ([Recorder]) writes each metadata value as a file under the rule's
// metadata directory and includes that directory in the archive; after
// a cache hit is extracted, [OnDisk] reads the values back and checks
// that the extracted files match what the producer recorded.
package buildinfo
