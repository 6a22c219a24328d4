// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import "testing"

func expectPanic(t *testing.T, name string, function func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	function()
}

func TestScopeMarkersFollowContent(t *testing.T) {
	scoped := NewScopedHasher[string](NewTraceHasher())

	key := scoped.KeyScope("deps")
	container := scoped.ContainerScope(ContainerSequence)
	for _, value := range []string{"a", "b"} {
		element := container.Element()
		scoped.Hasher().PutString(value)
		element.Close()
	}
	container.Close()
	key.Close()

	got, err := scoped.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	want := `string("a"):string("b"):container(sequence,2):key(deps)`
	if got != want {
		t.Errorf("trace = %s, want %s", got, want)
	}
}

func TestEmptyScopesElideMarkers(t *testing.T) {
	scoped := NewScopedHasher[string](NewTraceHasher())

	key := scoped.KeyScope("unused")
	wrapper := scoped.WrapperScope(WrapperOptional)
	wrapper.Close()
	key.Close()

	pathKey := scoped.PathKeyScope("src/empty")
	pathKey.Close()

	got, err := scoped.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if got != "" {
		t.Errorf("trace = %q, want empty", got)
	}
}

func TestEmptyContainerStillWritesMarker(t *testing.T) {
	scoped := NewScopedHasher[string](NewTraceHasher())
	key := scoped.KeyScope("srcs")
	scoped.ContainerScope(ContainerMapping).Close()
	key.Close()

	got, err := scoped.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if want := "container(mapping,0):key(srcs)"; got != want {
		t.Errorf("trace = %s, want %s", got, want)
	}
}

func TestScopeClosedOutOfOrderPanics(t *testing.T) {
	scoped := NewScopedHasher[string](NewTraceHasher())
	outer := scoped.KeyScope("outer")
	scoped.KeyScope("inner")
	expectPanic(t, "closing the outer scope first", outer.Close)
}

func TestScopeClosedTwicePanics(t *testing.T) {
	scoped := NewScopedHasher[string](NewTraceHasher())
	scope := scoped.KeyScope("once")
	scope.Close()
	expectPanic(t, "second Close", scope.Close)
}

func TestHashFailsWithOpenScope(t *testing.T) {
	scoped := NewScopedHasher[RuleKey](NewDigestHasher())
	scoped.KeyScope("dangling")
	if _, err := scoped.Hash(); err == nil {
		t.Error("Hash succeeded with a scope still open")
	}
	if depth := scoped.Depth(); depth != 1 {
		t.Errorf("Depth() = %d, want 1", depth)
	}
}

func TestDigestMatchesAcrossHashers(t *testing.T) {
	// The scoped layer must not change what reaches the digest.
	direct := NewDigestHasher()
	direct.PutString("value")
	direct.PutKey("field")

	scoped := NewScopedHasher[RuleKey](NewDigestHasher())
	key := scoped.KeyScope("field")
	scoped.Hasher().PutString("value")
	key.Close()

	got, err := scoped.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if want := direct.Hash(); got != want {
		t.Errorf("scoped digest %s != direct digest %s", got, want)
	}
}

func TestDigestDomainsAreDistinct(t *testing.T) {
	if ruleKeyDomain == fileHashDomain {
		t.Fatal("rule key and file hash domains are identical")
	}
	for name, key := range map[string]domainKey{"rulekey": ruleKeyDomain, "filehash": fileHashDomain} {
		prefix := "buildcache."
		if got := string(key[:len(prefix)]); got != prefix {
			t.Errorf("domain key %s does not start with %q, got %q", name, prefix, got)
		}
	}
}
