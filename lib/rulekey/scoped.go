// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import "fmt"

// ScopedHasher layers nested scopes over a [Hasher]. A scope remembers
// how many writes had happened when it was opened. On Close, key and
// wrapper scopes emit their marker only if something was written
// inside them, so a value that writes nothing (a reference a sink
// chose to skip) also drops its key. Container scopes always emit
// their kind and element count: an empty sequence is distinguishable
// from an absent one, and [[], [a]] from [[a]].
//
// Scopes nest strictly. Always release a scope with defer:
//
//	scope := hasher.KeyScope("srcs")
//	defer scope.Close()
//
// Closing scopes out of order, or closing one twice, is a programming
// error and panics. Because release is deferred, an error or panic in
// the middle of a traversal unwinds every scope it opened and leaves
// the hasher at depth zero.
//
// ScopedHasher is not safe for concurrent use.
type ScopedHasher[K any] struct {
	hasher *countingHasher[K]
	open   []*Scope
}

// NewScopedHasher wraps hasher. All writes must go through the
// returned value's [ScopedHasher.Hasher] so that scopes can see them.
func NewScopedHasher[K any](hasher Hasher[K]) *ScopedHasher[K] {
	return &ScopedHasher[K]{hasher: &countingHasher[K]{inner: hasher}}
}

// Scope is an open region of the write stream. See [ScopedHasher].
type Scope struct {
	release func()
	closed  bool
}

// Close ends the scope and emits its marker if anything was written
// inside it.
func (s *Scope) Close() {
	if s.closed {
		panic("rulekey: scope closed twice")
	}
	s.closed = true
	s.release()
}

// ContainerScope is an open sequence or mapping. Each element is
// written inside its own [ContainerScope.Element] scope.
type ContainerScope struct {
	Scope
	element func() *Scope
}

// Element opens the scope for the next element.
func (c *ContainerScope) Element() *Scope {
	return c.element()
}

// Hasher returns the write side of the scoped hasher.
func (s *ScopedHasher[K]) Hasher() Hasher[K] {
	return s.hasher
}

// Depth returns the number of open scopes.
func (s *ScopedHasher[K]) Depth() int {
	return len(s.open)
}

// KeyScope opens a scope for a named field.
func (s *ScopedHasher[K]) KeyScope(key string) *Scope {
	return s.push(func(wrote bool) {
		if wrote {
			s.hasher.PutKey(key)
		}
	})
}

// PathKeyScope opens a scope for a field named by a workspace-relative
// path rather than an identifier.
func (s *ScopedHasher[K]) PathKeyScope(path string) *Scope {
	return s.push(func(wrote bool) {
		if wrote {
			s.hasher.PutPathKey(path)
		}
	})
}

// WrapperScope opens a scope around a single wrapped value.
func (s *ScopedHasher[K]) WrapperScope(wrapper Wrapper) *Scope {
	return s.push(func(wrote bool) {
		if wrote {
			s.hasher.PutWrapper(wrapper)
		}
	})
}

// ContainerScope opens a sequence or mapping.
func (s *ScopedHasher[K]) ContainerScope(container Container) *ContainerScope {
	elements := 0
	outer := s.push(func(bool) {
		s.hasher.PutContainer(container, elements)
	})
	scope := &ContainerScope{Scope: Scope{release: outer.release}}
	scope.element = func() *Scope {
		elements++
		return s.push(func(bool) {})
	}
	return scope
}

// Hash finalizes the underlying hasher. It fails if any scope is
// still open, which means a traversal returned without releasing it.
func (s *ScopedHasher[K]) Hash() (K, error) {
	if depth := len(s.open); depth != 0 {
		var zero K
		return zero, fmt.Errorf("rulekey: %d scope(s) still open at build", depth)
	}
	return s.hasher.inner.Hash(), nil
}

func (s *ScopedHasher[K]) push(onClose func(wrote bool)) *Scope {
	depth := len(s.open)
	start := s.hasher.count
	scope := &Scope{}
	scope.release = func() {
		if len(s.open) != depth+1 {
			panic(fmt.Sprintf("rulekey: scope at depth %d closed with %d scope(s) open", depth, len(s.open)))
		}
		s.open = s.open[:depth]
		onClose(s.hasher.count > start)
	}
	s.open = append(s.open, scope)
	return scope
}

// countingHasher forwards to inner and counts writes so that scopes
// can tell whether anything was written inside them.
type countingHasher[K any] struct {
	inner Hasher[K]
	count int
}

func (c *countingHasher[K]) PutKey(key string) { c.count++; c.inner.PutKey(key) }
func (c *countingHasher[K]) PutPathKey(path string) { c.count++; c.inner.PutPathKey(path) }
func (c *countingHasher[K]) PutWrapper(w Wrapper) { c.count++; c.inner.PutWrapper(w) }
func (c *countingHasher[K]) PutNull() { c.count++; c.inner.PutNull() }
func (c *countingHasher[K]) PutBool(value bool) { c.count++; c.inner.PutBool(value) }
func (c *countingHasher[K]) PutInt64(value int64) { c.count++; c.inner.PutInt64(value) }
func (c *countingHasher[K]) PutUint64(value uint64) { c.count++; c.inner.PutUint64(value) }
func (c *countingHasher[K]) PutString(value string) { c.count++; c.inner.PutString(value) }
func (c *countingHasher[K]) PutBytes(value []byte) { c.count++; c.inner.PutBytes(value) }
func (c *countingHasher[K]) PutRuleKey(key RuleKey) { c.count++; c.inner.PutRuleKey(key) }
func (c *countingHasher[K]) PutActionID(id string) { c.count++; c.inner.PutActionID(id) }
func (c *countingHasher[K]) Hash() K { return c.inner.Hash() }

func (c *countingHasher[K]) PutContainer(container Container, length int) {
	c.count++
	c.inner.PutContainer(container, length)
}

func (c *countingHasher[K]) PutFloat64(value float64) {
	c.count++
	c.inner.PutFloat64(value)
}

func (c *countingHasher[K]) PutSourcePath(path string, content Hash) {
	c.count++
	c.inner.PutSourcePath(path, content)
}

func (c *countingHasher[K]) PutTargetOutput(target, output string, key RuleKey) {
	c.count++
	c.inner.PutTargetOutput(target, output, key)
}

func (c *countingHasher[K]) PutNonHashingPath(path string) {
	c.count++
	c.inner.PutNonHashingPath(path)
}
