// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for buildcache.
//
// Configuration is loaded from a single file specified by either the
// BUILDCACHE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. Without a
// file, callers use [Default].
//
// The file may contain environment-specific sections (development, ci,
// production) that override base values when [Config].Environment
// matches. CI defaults to JSON logs and a read-only cache when the
// file has no ci section.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BUILDCACHE_ROOT}, and ${VAR:-default} patterns are
// expanded.
//
// This package depends only on the archive and buildinfo packages,
// to validate format and store names.
package config
