// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cacheevent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// Event is one of DecompressionStarted or DecompressionFinished.
type Event interface {
	// EventID pairs a Finished event with its Started event.
	EventID() uuid.UUID
	Name() string
}

// DecompressionStarted is posted before a fetched artifact is
// extracted into the workspace.
type DecompressionStarted struct {
	ID     uuid.UUID
	Target string
	// RuleKeys are the rule-key-family values of the artifact's
	// metadata, sorted.
	RuleKeys []rulekey.RuleKey
	Time     time.Time
}

// Started returns a new event with a fresh ID.
func Started(target string, keys []rulekey.RuleKey, now time.Time) DecompressionStarted {
	return DecompressionStarted{ID: uuid.New(), Target: target, RuleKeys: keys, Time: now}
}

func (e DecompressionStarted) EventID() uuid.UUID { return e.ID }
func (e DecompressionStarted) Name() string       { return "decompression_started" }

// Finished returns the event that closes e.
func (e DecompressionStarted) Finished(now time.Time, uncompressedSize, compressedSize int64, err error) DecompressionFinished {
	finished := DecompressionFinished{
		ID:               e.ID,
		Target:           e.Target,
		RuleKeys:         e.RuleKeys,
		UncompressedSize: uncompressedSize,
		CompressedSize:   compressedSize,
		Duration:         now.Sub(e.Time),
		Time:             now,
	}
	if err != nil {
		finished.Err = err.Error()
	}
	return finished
}

// DecompressionFinished is posted once per DecompressionStarted, after
// extraction succeeded or failed. Sizes are zero when unknown.
type DecompressionFinished struct {
	ID               uuid.UUID
	Target           string
	RuleKeys         []rulekey.RuleKey
	UncompressedSize int64
	CompressedSize   int64
	Duration         time.Duration
	// Err is empty on success.
	Err  string
	Time time.Time
}

func (e DecompressionFinished) EventID() uuid.UUID { return e.ID }
func (e DecompressionFinished) Name() string       { return "decompression_finished" }

// Bus receives events. Post must not block for long and must be safe
// for concurrent use.
type Bus interface {
	Post(ctx context.Context, event Event)
}

// Discard is a Bus that drops every event.
type Discard struct{}

func (Discard) Post(context.Context, Event) {}

// Fanout posts every event to each bus in order.
type Fanout []Bus

func (f Fanout) Post(ctx context.Context, event Event) {
	for _, bus := range f {
		bus.Post(ctx, event)
	}
}

// Recorder is a Bus that keeps every event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Post(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
