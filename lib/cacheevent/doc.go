// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cacheevent carries the observable events of artifact
// materialization: a [DecompressionStarted] when extraction of a
// fetched artifact begins, and exactly one matching
// [DecompressionFinished] when it ends, successfully or not. The two
// share an ID.
//
// Events are posted to a [Bus]. [Recorder] keeps them for tests and
// tools, [LogBus] writes them to a structured logger, [MetricsBus]
// turns them into OpenTelemetry instruments, and [Fanout] posts to
// several buses at once.
package cacheevent
