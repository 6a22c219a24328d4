// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cachefetch

import "testing"

func TestIllegalTransitionPanics(t *testing.T) {
	m := newMachine()
	m.advance(StateFetching)
	defer func() {
		if recover() == nil {
			t.Error("fetching -> done did not panic")
		}
	}()
	m.advance(StateDone)
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{
		StateNotCacheable: true,
		StateMiss:         true,
		StateError:        true,
		StateSoftError:    true,
		StateDone:         true,
		StateFailed:       true,
	}
	for state := StatePending; state <= StateFailed; state++ {
		if state.Terminal() != terminal[state] {
			t.Errorf("%s.Terminal() = %v", state, state.Terminal())
		}
	}
}
