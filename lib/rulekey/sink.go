// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// Sink consumes the reference shapes a traversal encounters. The
// [Builder] handles structure (keys, wrappers, containers) itself and
// hands every value that needs outside knowledge to its sink.
type Sink interface {
	// Leaf writes a primitive value.
	Leaf(value any) error
	Action(action Action) error
	BuildRule(rule BuildRule) error
	// Composite lets a nested value set its own fields through
	// fields, which is the builder driving the traversal.
	Composite(composite Composite, fields FieldSetter) error
	Artifact(artifact Artifact) error
	SourcePath(path SourcePath) error
	IdentityOnly(path SourcePath) error
}

// FileHasher hashes workspace files by content.
type FileHasher interface {
	FileHash(path string) (Hash, error)
}

// Resolver supplies what the hashing sink cannot compute from the value
// graph alone: the content hash of a workspace path and the rule key of
// a dependency.
type Resolver interface {
	FileHasher
	RuleKey(rule BuildRule) (RuleKey, error)
}

var errNoResolver = errors.New("value references a source path or rule but no resolver is configured")

// HashingSink is the standard sink: references are hashed by what they
// resolve to.
type HashingSink struct {
	writer   Writer
	resolver Resolver
}

// NewHashingSink returns a sink that writes into writer. resolver may
// be nil for value graphs that hold no references.
func NewHashingSink(writer Writer, resolver Resolver) *HashingSink {
	return &HashingSink{writer: writer, resolver: resolver}
}

func (s *HashingSink) Leaf(value any) error {
	return writeLeaf(s.writer, value)
}

func (s *HashingSink) Action(action Action) error {
	s.writer.PutActionID(action.ActionID())
	return nil
}

func (s *HashingSink) BuildRule(rule BuildRule) error {
	if s.resolver == nil {
		return errNoResolver
	}
	key, err := s.resolver.RuleKey(rule)
	if err != nil {
		return err
	}
	s.writer.PutRuleKey(key)
	return nil
}

func (s *HashingSink) Composite(composite Composite, fields FieldSetter) error {
	return appendComposite(composite, fields)
}

func (s *HashingSink) Artifact(artifact Artifact) error {
	return s.SourcePath(artifact.ArtifactSourcePath())
}

func (s *HashingSink) SourcePath(path SourcePath) error {
	if s.resolver == nil {
		return errNoResolver
	}
	switch p := path.(type) {
	case PathSourcePath:
		if err := validateWorkspacePath(p.Path); err != nil {
			return &InvalidInputError{Value: p, Reason: err.Error()}
		}
		content, err := s.resolver.FileHash(p.Path)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", p.Path, err)
		}
		s.writer.PutSourcePath(p.Path, content)
		return nil

	case BuildTargetSourcePath:
		key, err := s.resolver.RuleKey(p.Rule)
		if err != nil {
			return err
		}
		s.writer.PutTargetOutput(p.Rule.BuildTarget(), p.Output, key)
		return nil

	default:
		return &InvalidInputError{Value: path, Reason: "unknown source path type"}
	}
}

func (s *HashingSink) IdentityOnly(path SourcePath) error {
	if p, ok := path.(PathSourcePath); ok {
		if err := validateWorkspacePath(p.Path); err != nil {
			return &InvalidInputError{Value: p, Reason: err.Error()}
		}
	}
	s.writer.PutNonHashingPath(path.String())
	return nil
}

// InputCollector is a sink that records which files and rules a value
// graph refers to, without reading any of them. References are written
// by identity, so the builder's result is a key over the graph's shape
// and the names it mentions.
type InputCollector struct {
	writer       Writer
	paths        []string
	dependencies []string
}

// NewInputCollector returns a collector that writes into writer.
func NewInputCollector(writer Writer) *InputCollector {
	return &InputCollector{writer: writer}
}

// Paths returns the sorted, deduplicated workspace paths referenced.
func (c *InputCollector) Paths() []string {
	return sortedUnique(c.paths)
}

// Dependencies returns the sorted, deduplicated targets referenced.
func (c *InputCollector) Dependencies() []string {
	return sortedUnique(c.dependencies)
}

func (c *InputCollector) Leaf(value any) error {
	return writeLeaf(c.writer, value)
}

func (c *InputCollector) Action(action Action) error {
	c.writer.PutActionID(action.ActionID())
	return nil
}

func (c *InputCollector) BuildRule(rule BuildRule) error {
	c.dependencies = append(c.dependencies, rule.BuildTarget())
	c.writer.PutString(rule.BuildTarget())
	return nil
}

func (c *InputCollector) Composite(composite Composite, fields FieldSetter) error {
	return appendComposite(composite, fields)
}

func (c *InputCollector) Artifact(artifact Artifact) error {
	return c.SourcePath(artifact.ArtifactSourcePath())
}

func (c *InputCollector) SourcePath(path SourcePath) error {
	switch p := path.(type) {
	case PathSourcePath:
		if err := validateWorkspacePath(p.Path); err != nil {
			return &InvalidInputError{Value: p, Reason: err.Error()}
		}
		c.paths = append(c.paths, p.Path)
	case BuildTargetSourcePath:
		c.dependencies = append(c.dependencies, p.Rule.BuildTarget())
	}
	c.writer.PutNonHashingPath(path.String())
	return nil
}

func (c *InputCollector) IdentityOnly(path SourcePath) error {
	c.writer.PutNonHashingPath(path.String())
	return nil
}

// appendComposite records the composite's concrete type before its
// fields, so two composite types with identical fields hash apart.
func appendComposite(composite Composite, fields FieldSetter) error {
	if err := fields.Set(".type", typeName(composite)); err != nil {
		return err
	}
	return composite.AppendToRuleKey(fields)
}

func typeName(value any) string {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

var (
	ruleKeyType = reflect.TypeOf(RuleKey{})
	hashType    = reflect.TypeOf(Hash{})
)

// writeLeaf writes a primitive. Named types are written by their
// underlying kind, so an enum declared as a string type hashes like a
// string.
func writeLeaf(writer Writer, value any) error {
	if value == nil {
		writer.PutNull()
		return nil
	}
	reflected := reflect.ValueOf(value)
	switch reflected.Type() {
	case ruleKeyType:
		writer.PutRuleKey(value.(RuleKey))
		return nil
	case hashType:
		content := value.(Hash)
		writer.PutBytes(content[:])
		return nil
	}

	switch reflected.Kind() {
	case reflect.Bool:
		writer.PutBool(reflected.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writer.PutInt64(reflected.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		writer.PutUint64(reflected.Uint())
	case reflect.Float32, reflect.Float64:
		writer.PutFloat64(reflected.Float())
	case reflect.String:
		writer.PutString(reflected.String())
	case reflect.Slice:
		if reflected.Type().Elem().Kind() != reflect.Uint8 {
			return &InvalidInputError{Value: value, Reason: "unsupported slice type"}
		}
		writer.PutBytes(reflected.Bytes())
	case reflect.Array:
		if reflected.Type().Elem().Kind() != reflect.Uint8 {
			return &InvalidInputError{Value: value, Reason: "unsupported array type"}
		}
		buffer := make([]byte, reflected.Len())
		reflect.Copy(reflect.ValueOf(buffer), reflected)
		writer.PutBytes(buffer)
	case reflect.Pointer:
		if reflected.IsNil() {
			writer.PutNull()
			return nil
		}
		return &InvalidInputError{Value: value, Reason: "unsupported pointer type"}
	default:
		return &InvalidInputError{Value: value, Reason: "type cannot be added to a rule key"}
	}
	return nil
}

func sortedUnique(values []string) []string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
