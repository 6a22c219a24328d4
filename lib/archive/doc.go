// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs a rule's outputs into a single compressed tar
// file and unpacks it into a workspace.
//
// Archives are deterministic: entries are sorted, owners are zeroed,
// modification times are pinned to the Unix epoch, and permissions
// are reduced to 0644/0755 (files), 0755 (directories) and 0777
// (symlinks). The same output tree always produces the same bytes, so
// artifacts built on different machines deduplicate in the cache.
//
// Three container formats are supported: tar+zstd (the default, via
// klauspost/compress), tar+lz4 (via pierrec/lz4, for fast local
// caches) and plain tar.
//
// Extraction refuses entries that would escape the destination root,
// either by name ("../x", "/etc/x") or by writing through a symlink
// extracted earlier. With [OverwriteAndCleanDirectories], every
// directory recorded in the archive is emptied before its contents are
// written, so stale files from a previous build of the rule cannot
// survive a cache hit.
package archive
