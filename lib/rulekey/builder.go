// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
)

// DiagnosticKind classifies a non-fatal finding of a traversal.
type DiagnosticKind int

const (
	// DiagnosticUnsortedMap means a [Map] was hashed whose entries are
	// not in sorted key order. The key is still computed, but two
	// semantically equal maps built in different orders will get
	// different keys and miss the cache.
	DiagnosticUnsortedMap DiagnosticKind = iota + 1
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticUnsortedMap:
		return "unsorted-map"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// Diagnostic is a non-fatal finding attached to a build.
type Diagnostic struct {
	Kind    DiagnosticKind
	KeyPath string
	Message string
}

// Options configures a [Builder].
type Options struct {
	// Resolver resolves source paths and dependency rules. Required
	// for any value graph that contains references.
	Resolver Resolver

	// Logger receives warnings for diagnostics. If nil, a no-op
	// logger is used.
	Logger *slog.Logger

	// Sink binds the traversal to a consumer. If nil, the builder
	// uses a [HashingSink] over the builder's hasher and Resolver.
	Sink func(writer Writer) Sink
}

// Builder walks a rule's configuration value graph and drives a
// [ScopedHasher]. The same traversal produces a rule key from a
// [DigestHasher] or a readable trace from a [TraceHasher].
//
// A Builder is single-use and not safe for concurrent use.
type Builder[K any] struct {
	scoped      *ScopedHasher[K]
	sink        Sink
	logger      *slog.Logger
	keyPath     []string
	diagnostics []Diagnostic
}

// NewBuilder returns a builder that writes into hasher.
func NewBuilder[K any](hasher Hasher[K], options Options) *Builder[K] {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	scoped := NewScopedHasher(hasher)
	var sink Sink
	if options.Sink != nil {
		sink = options.Sink(scoped.Hasher())
	} else {
		sink = NewHashingSink(scoped.Hasher(), options.Resolver)
	}
	return &Builder[K]{scoped: scoped, sink: sink, logger: logger}
}

// NewDigestBuilder returns a builder that produces a [RuleKey].
func NewDigestBuilder(options Options) *Builder[RuleKey] {
	return NewBuilder[RuleKey](NewDigestHasher(), options)
}

// NewTraceBuilder returns a builder that produces a readable trace of
// everything a digest builder would hash.
func NewTraceBuilder(options Options) *Builder[string] {
	return NewBuilder[string](NewTraceHasher(), options)
}

// Set hashes value under the field name key. If value writes nothing,
// the key is omitted too.
func (b *Builder[K]) Set(key string, value any) error {
	scope := b.scoped.KeyScope(key)
	defer scope.Close()
	return b.setField(key, value)
}

// SetPathKey is Set for fields named by a workspace-relative path.
func (b *Builder[K]) SetPathKey(path string, value any) error {
	scope := b.scoped.PathKeyScope(path)
	defer scope.Close()
	return b.setField(path, value)
}

// Build finalizes the hasher.
func (b *Builder[K]) Build() (K, error) {
	return b.scoped.Hash()
}

// Diagnostics returns the non-fatal findings of the traversal so far.
func (b *Builder[K]) Diagnostics() []Diagnostic {
	return slices.Clone(b.diagnostics)
}

// Depth returns the number of scopes currently open. It is zero
// between calls to Set, including after a Set that failed.
func (b *Builder[K]) Depth() int {
	return b.scoped.Depth()
}

func (b *Builder[K]) setField(name string, value any) error {
	b.keyPath = append(b.keyPath, name)
	defer func() { b.keyPath = b.keyPath[:len(b.keyPath)-1] }()

	err := b.setValue(value)
	if err == nil {
		return nil
	}
	var setErr *SetError
	if errors.As(err, &setErr) {
		return err
	}
	return &SetError{KeyPath: slices.Clone(b.keyPath), Value: value, Err: err}
}

func (b *Builder[K]) setValue(value any) error {
	shape, value := classify(value)
	switch shape {
	case ShapeArtifact:
		return b.sink.Artifact(value.(Artifact))

	case ShapeSourcePath:
		return b.sink.SourcePath(value.(SourcePath))

	case ShapeComposite:
		return b.sink.Composite(value.(Composite), b)

	case ShapeAction:
		return b.sink.Action(value.(Action))

	case ShapeBuildRule:
		return b.sink.BuildRule(value.(BuildRule))

	case ShapeDeferred:
		scope := b.scoped.WrapperScope(WrapperDeferred)
		defer scope.Close()
		forced, err := value.(Deferred)()
		if err != nil {
			return fmt.Errorf("forcing deferred value: %w", err)
		}
		return b.setValue(forced)

	case ShapeOptional:
		scope := b.scoped.WrapperScope(WrapperOptional)
		defer scope.Close()
		inner, present := value.(optionalValue).ruleKeyOptional()
		if !present {
			return b.setValue(nil)
		}
		return b.setValue(inner)

	case ShapeChoice:
		inner, isLeft := value.(choiceValue).ruleKeyChoice()
		wrapper := WrapperChoiceRight
		if isLeft {
			wrapper = WrapperChoiceLeft
		}
		scope := b.scoped.WrapperScope(wrapper)
		defer scope.Close()
		return b.setValue(inner)

	case ShapeSequence:
		return b.setSequence(reflect.ValueOf(value))

	case ShapeMapping:
		return b.setMapping(value)

	case ShapeFilesystemPath:
		return &InvalidInputError{
			Value:  value,
			Reason: "raw filesystem paths cannot be reliably disambiguated and are disallowed from rule keys; use a source path",
		}

	case ShapeIdentityOnly:
		return b.sink.IdentityOnly(value.(NonHashing).Path)

	default:
		return b.sink.Leaf(value)
	}
}

func (b *Builder[K]) setSequence(sequence reflect.Value) error {
	container := b.scoped.ContainerScope(ContainerSequence)
	defer container.Close()
	for i := range sequence.Len() {
		if err := b.setElement(container, sequence.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder[K]) setMapping(value any) error {
	entries, canonical := mappingEntries(value)
	if !canonical {
		keyPath := strings.Join(b.keyPath, ".")
		b.diagnostics = append(b.diagnostics, Diagnostic{
			Kind:    DiagnosticUnsortedMap,
			KeyPath: keyPath,
			Message: "map entries are not sorted by key; expect unstable keys and cache misses",
		})
		b.logger.Warn("adding an unsorted map to the rule key, expect unstable ordering and cache misses",
			"key", keyPath,
			"entries", len(entries),
		)
	}

	container := b.scoped.ContainerScope(ContainerMapping)
	defer container.Close()
	for _, entry := range entries {
		if err := b.setElement(container, entry.Key); err != nil {
			return err
		}
		if err := b.setElement(container, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder[K]) setElement(container *ContainerScope, value any) error {
	scope := container.Element()
	defer scope.Close()
	return b.setValue(value)
}

// mappingEntries returns the entries of a Map or Go map in hashing
// order and whether that order is canonical. Go maps have no order of
// their own, so they are always sorted and always canonical.
func mappingEntries(value any) ([]Entry, bool) {
	if ordered, ok := value.(Map); ok {
		canonical := slices.IsSortedFunc(ordered, func(a, b Entry) int {
			return compareKeys(a.Key, b.Key)
		})
		return ordered, canonical
	}

	reflected := reflect.ValueOf(value)
	entries := make([]Entry, 0, reflected.Len())
	iterator := reflected.MapRange()
	for iterator.Next() {
		entries = append(entries, Entry{Key: iterator.Key().Interface(), Value: iterator.Value().Interface()})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return compareKeys(a.Key, b.Key)
	})
	return entries, true
}

// compareKeys orders map keys: numbers numerically, strings and
// everything else by their printed form. Keys of different kinds are
// ordered by kind first.
func compareKeys(a, b any) int {
	left, right := reflect.ValueOf(a), reflect.ValueOf(b)
	if !left.IsValid() || !right.IsValid() {
		return boolCompare(left.IsValid(), right.IsValid())
	}
	leftClass, rightClass := keyClass(left.Kind()), keyClass(right.Kind())
	if leftClass != rightClass {
		return leftClass - rightClass
	}
	switch leftClass {
	case keyClassBool:
		return boolCompare(left.Bool(), right.Bool())
	case keyClassInt:
		return cmpOrdered(left.Int(), right.Int())
	case keyClassUint:
		return cmpOrdered(left.Uint(), right.Uint())
	case keyClassFloat:
		return cmpOrdered(left.Float(), right.Float())
	case keyClassString:
		return strings.Compare(left.String(), right.String())
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

const (
	keyClassBool = iota
	keyClassInt
	keyClassUint
	keyClassFloat
	keyClassString
	keyClassOther
)

func keyClass(kind reflect.Kind) int {
	switch kind {
	case reflect.Bool:
		return keyClassBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return keyClassInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return keyClassUint
	case reflect.Float32, reflect.Float64:
		return keyClassFloat
	case reflect.String:
		return keyClassString
	default:
		return keyClassOther
	}
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
