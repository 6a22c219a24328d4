// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp events or measure durations hold a Clock:
//
//	type Fetcher struct {
//	    clock clock.Clock
//	}
//
// Production wiring passes Real(). Tests pass Fake() and step time
// explicitly, so event timestamps and durations are exact:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	c.Advance(250 * time.Millisecond)
package clock
