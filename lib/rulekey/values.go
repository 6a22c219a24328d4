// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"fmt"
	"path"
	"reflect"
	"strings"
)

// Shape is the closed set of value shapes the builder knows how to
// hash. [ShapeOf] maps every Go value onto exactly one shape; a new
// kind of value is supported by adding a shape here and a case in
// [Builder], never by ad hoc type tests elsewhere.
type Shape int

const (
	// ShapeLeaf is the fallback: a primitive hashed by value.
	ShapeLeaf Shape = iota
	// ShapeArtifact is a content-addressed artifact reference.
	ShapeArtifact
	// ShapeSourcePath is a path-bearing source reference.
	ShapeSourcePath
	// ShapeComposite is a value that hashes its own fields.
	ShapeComposite
	// ShapeAction is a reference to an action.
	ShapeAction
	// ShapeBuildRule is a reference to another build rule.
	ShapeBuildRule
	// ShapeDeferred is a lazily computed value.
	ShapeDeferred
	// ShapeOptional is a value that may be absent.
	ShapeOptional
	// ShapeChoice is one arm of a two-armed choice.
	ShapeChoice
	// ShapeSequence is an ordered sequence.
	ShapeSequence
	// ShapeMapping is a key-value mapping.
	ShapeMapping
	// ShapeFilesystemPath is a raw filesystem path. Never hashable.
	ShapeFilesystemPath
	// ShapeIdentityOnly is a reference hashed by identity only.
	ShapeIdentityOnly
)

var shapeNames = [...]string{
	ShapeLeaf:           "leaf",
	ShapeArtifact:       "artifact",
	ShapeSourcePath:     "source-path",
	ShapeComposite:      "composite",
	ShapeAction:         "action",
	ShapeBuildRule:      "build-rule",
	ShapeDeferred:       "deferred",
	ShapeOptional:       "optional",
	ShapeChoice:         "choice",
	ShapeSequence:       "sequence",
	ShapeMapping:        "mapping",
	ShapeFilesystemPath: "filesystem-path",
	ShapeIdentityOnly:   "identity-only",
}

func (s Shape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// FieldSetter is the part of [Builder] that composites and rules use
// to contribute their fields.
type FieldSetter interface {
	Set(key string, value any) error
	SetPathKey(path string, value any) error
}

// Composite is a nested value that knows how to hash itself, field by
// field. Field order is part of the key, so implementations must set
// fields in a fixed order.
type Composite interface {
	AppendToRuleKey(fields FieldSetter) error
}

// Action is a reference to an action, hashed by its stable identity.
type Action interface {
	ActionID() string
}

// BuildRule is a reference to another build rule. A rule is hashed by
// its own rule key, which makes keys transitive: changing anything a
// dependency hashes changes every key above it.
type BuildRule interface {
	// BuildTarget returns the rule's fully qualified target name,
	// for example "//app/server:bin".
	BuildTarget() string

	// AppendRuleKeyFields sets every field that affects the rule's
	// outputs.
	AppendRuleKeyFields(fields FieldSetter) error
}

// Artifact is a content-addressed artifact. It is hashed through the
// source path it resolves to.
type Artifact interface {
	ArtifactSourcePath() SourcePath
}

// SourcePath is a reference to a file: either a file in the workspace
// ([PathSourcePath]) or an output of another rule
// ([BuildTargetSourcePath]). Unlike a raw [FilePath], a SourcePath is
// hashed by what it resolves to, which is the same on every machine.
type SourcePath interface {
	fmt.Stringer
	sourcePath()
}

// PathSourcePath is a workspace-relative file or directory, hashed by
// its path and the hash of its content.
type PathSourcePath struct {
	Path string
}

func (PathSourcePath) sourcePath() {}

func (p PathSourcePath) String() string { return p.Path }

// BuildTargetSourcePath is a named output of another rule, hashed by
// the producing rule's key.
type BuildTargetSourcePath struct {
	Rule   BuildRule
	Output string
}

func (BuildTargetSourcePath) sourcePath() {}

func (p BuildTargetSourcePath) String() string {
	if p.Output == "" {
		return p.Rule.BuildTarget()
	}
	return p.Rule.BuildTarget() + "[" + p.Output + "]"
}

// FilePath is a raw filesystem path. It exists so that rules can say
// "this is a path" in their field types; setting one into a rule key
// always fails, because the same file has different absolute paths on
// different machines. Use a [SourcePath] instead.
type FilePath string

// NonHashing marks a source path whose identity belongs in the key but
// whose content must not be read, for example a file that is only
// consulted for its location.
type NonHashing struct {
	Path SourcePath
}

// Deferred is a value computed on demand. It is forced exactly once
// per traversal, inside a deferred wrapper scope.
type Deferred func() (any, error)

// Option is a value that may be absent. Use [Some] and [None].
type Option[T any] struct {
	value   T
	present bool
}

// Some returns a present option.
func Some[T any](value T) Option[T] { return Option[T]{value: value, present: true} }

// None returns an absent option.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.value, o.present }

func (o Option[T]) ruleKeyOptional() (any, bool) { return o.value, o.present }

// Either holds exactly one of two values. Use [Left] and [Right].
type Either[L, R any] struct {
	left   L
	right  R
	isLeft bool
}

// Left returns an Either holding its left arm.
func Left[L, R any](value L) Either[L, R] { return Either[L, R]{left: value, isLeft: true} }

// Right returns an Either holding its right arm.
func Right[L, R any](value R) Either[L, R] { return Either[L, R]{right: value} }

func (e Either[L, R]) ruleKeyChoice() (any, bool) {
	if e.isLeft {
		return e.left, true
	}
	return e.right, false
}

// Map is a mapping with an explicit iteration order. Entries are
// hashed in slice order, so a Map hashes canonically only if its
// entries are sorted by key; the builder reports a diagnostic for an
// unsorted Map. Plain Go maps are always iterated in sorted key order.
type Map []Entry

// Entry is one key-value pair of a [Map].
type Entry struct {
	Key   any
	Value any
}

type optionalValue interface {
	ruleKeyOptional() (any, bool)
}

type choiceValue interface {
	ruleKeyChoice() (any, bool)
}

var mapType = reflect.TypeOf(Map(nil))

// ShapeOf returns the shape the builder will hash value as.
func ShapeOf(value any) Shape {
	shape, _ := classify(value)
	return shape
}

// classify maps value to its shape, in precedence order, and returns
// the value to dispatch on (non-nil pointers to non-reference values
// are dereferenced).
func classify(value any) (Shape, any) {
	switch v := value.(type) {
	case nil:
		return ShapeLeaf, nil
	case Artifact:
		return ShapeArtifact, v
	case SourcePath:
		return ShapeSourcePath, v
	case Composite:
		return ShapeComposite, v
	case Action:
		return ShapeAction, v
	case BuildRule:
		return ShapeBuildRule, v
	case Deferred:
		return ShapeDeferred, v
	case func() any:
		return ShapeDeferred, Deferred(func() (any, error) { return v(), nil })
	case optionalValue:
		return ShapeOptional, v
	case choiceValue:
		return ShapeChoice, v
	}

	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Slice, reflect.Array:
		if reflected.Type() != mapType && reflected.Type().Elem().Kind() != reflect.Uint8 {
			return ShapeSequence, value
		}
	}
	if reflected.Type() == mapType || reflected.Kind() == reflect.Map {
		return ShapeMapping, value
	}

	switch v := value.(type) {
	case FilePath:
		return ShapeFilesystemPath, v
	case NonHashing:
		return ShapeIdentityOnly, v
	}

	if reflected.Kind() == reflect.Pointer && !reflected.IsNil() {
		return classify(reflected.Elem().Interface())
	}
	return ShapeLeaf, value
}

// validateWorkspacePath rejects paths that would hash differently on
// different machines or escape the workspace.
func validateWorkspacePath(value string) error {
	if value == "" {
		return fmt.Errorf("empty path")
	}
	if path.IsAbs(value) {
		return fmt.Errorf("path %q is absolute; source paths must be workspace-relative", value)
	}
	if cleaned := path.Clean(value); cleaned != value || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path %q is not a clean workspace-relative path", value)
	}
	return nil
}
