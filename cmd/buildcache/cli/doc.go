// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the buildcache binary: a
// tree of [Command] values dispatched by their first positional
// argument, with pflag flag sets, generated help, and typo
// suggestions for unknown commands and flags.
package cli
