// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cacheevent

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

// LogBus writes events to a logger: starts at debug, successful
// finishes at info, and failed finishes at warn.
type LogBus struct {
	logger *slog.Logger
}

// NewLogBus returns a LogBus. A nil logger discards events.
func NewLogBus(logger *slog.Logger) *LogBus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogBus{logger: logger}
}

func (b *LogBus) Post(ctx context.Context, event Event) {
	switch event := event.(type) {
	case DecompressionStarted:
		b.logger.DebugContext(ctx, "decompression started",
			"event_id", event.ID.String(),
			"target", event.Target,
			"rule_keys", keyStrings(event.RuleKeys),
		)
	case DecompressionFinished:
		attributes := []any{
			"event_id", event.ID.String(),
			"target", event.Target,
			"uncompressed_bytes", event.UncompressedSize,
			"compressed_bytes", event.CompressedSize,
			"duration", event.Duration,
		}
		if event.Err != "" {
			b.logger.WarnContext(ctx, "decompression failed", append(attributes, "error", event.Err)...)
			return
		}
		b.logger.InfoContext(ctx, "decompression finished", attributes...)
	}
}

func keyStrings(keys []rulekey.RuleKey) []string {
	text := make([]string, len(keys))
	for i, key := range keys {
		text[i] = key.String()
	}
	return text
}
