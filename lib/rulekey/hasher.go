// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import "fmt"

// Wrapper identifies a single-valued container around a hashed value.
// Wrapper tags are written into the digest, so their numeric values
// are protocol constants: changing them changes every rule key.
type Wrapper uint8

const (
	// WrapperDeferred marks a lazily computed value.
	WrapperDeferred Wrapper = 1
	// WrapperOptional marks a value that may be absent.
	WrapperOptional Wrapper = 2
	// WrapperChoiceLeft marks the left arm of a two-armed choice.
	WrapperChoiceLeft Wrapper = 3
	// WrapperChoiceRight marks the right arm of a two-armed choice.
	WrapperChoiceRight Wrapper = 4
)

// String returns the name of the wrapper kind.
func (w Wrapper) String() string {
	switch w {
	case WrapperDeferred:
		return "deferred"
	case WrapperOptional:
		return "optional"
	case WrapperChoiceLeft:
		return "left"
	case WrapperChoiceRight:
		return "right"
	default:
		return fmt.Sprintf("wrapper(%d)", uint8(w))
	}
}

// Container identifies a multi-valued container. Like Wrapper, the
// values are protocol constants.
type Container uint8

const (
	// ContainerSequence is an ordered sequence: element order is
	// significant.
	ContainerSequence Container = 1
	// ContainerMapping is a key-value mapping. Elements alternate key,
	// value, key, value.
	ContainerMapping Container = 2
)

// String returns the name of the container kind.
func (c Container) String() string {
	switch c {
	case ContainerSequence:
		return "sequence"
	case ContainerMapping:
		return "mapping"
	default:
		return fmt.Sprintf("container(%d)", uint8(c))
	}
}

// Hasher accumulates an ordered stream of typed writes and finalizes
// it into a result of type K. The digest hasher produces a [RuleKey];
// the trace hasher produces a human-readable string of the same
// stream, for diagnosing unexpected cache misses.
type Hasher[K any] interface {
	Writer

	// Hash finalizes the stream. The hasher must not be used again.
	Hash() K
}

// Writer is the write side of a [Hasher], independent of what the
// stream finalizes into. Sinks write values through a Writer.
//
// Scope markers (PutKey, PutPathKey, PutWrapper, PutContainer) are
// written after the content they describe. [ScopedHasher] is
// responsible for emitting them in the right order; code outside this
// package should not call them directly.
type Writer interface {
	PutKey(key string)
	PutPathKey(path string)
	PutWrapper(wrapper Wrapper)
	PutContainer(container Container, length int)

	PutNull()
	PutBool(value bool)
	PutInt64(value int64)
	PutUint64(value uint64)
	PutFloat64(value float64)
	PutString(value string)
	PutBytes(value []byte)

	// PutRuleKey writes the key of a dependency rule.
	PutRuleKey(key RuleKey)
	// PutActionID writes the stable identity of an action.
	PutActionID(id string)
	// PutSourcePath writes a workspace-relative path with the hash
	// of its content.
	PutSourcePath(path string, content Hash)
	// PutTargetOutput writes an output of another rule: the producing
	// target, the output name, and the producing rule's key.
	PutTargetOutput(target, output string, key RuleKey)
	// PutNonHashingPath writes a path's identity without its content.
	PutNonHashingPath(path string)
}
