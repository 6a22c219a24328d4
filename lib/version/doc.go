// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies the buildcache binary for --version.
//
// Release builds stamp the package variables through the linker:
//
//	go build -ldflags "-X github.com/bureau-foundation/buildcache/lib/version.Version=1.2.0 -X github.com/bureau-foundation/buildcache/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// An unstamped binary built from a checkout still reports its commit,
// taken from the vcs settings the go command embeds. Tests see
// neither and print "0.1.0-dev (unknown, unknown)".
package version
