// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that a test waiting on a future or a coalesced fetch
// fails instead of hanging. [WriteTree] and [ReadTree] build and
// inspect small file trees for archive and extraction tests.
// [UniqueID] generates distinguishable identifiers such as build IDs.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
