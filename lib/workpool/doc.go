// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool runs tasks under a total weight budget and hands
// back their results as futures.
//
// Each task declares a weight: its relative cost in whatever resource
// the pool guards (CPU, disk bandwidth, open archives). A [Pool]
// admits tasks while the sum of running weights stays within its
// capacity, so a few heavy tasks apply the same backpressure as many
// light ones. Weights are clamped to [1, capacity]; a task heavier
// than the whole pool runs alone instead of waiting forever.
//
// [Submit] starts a task and [Then] chains a continuation onto a
// [Future]. A failed future skips its continuations and carries the
// error to the end of the chain. Panics in tasks become errors.
package workpool
