// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// TraceHasher records the write stream as readable tokens instead of
// digesting it. Driving a trace and a digest hasher through the same
// traversal shows exactly which inputs went into a key, which is how
// two unexpectedly different keys get diffed.
//
// Tokens look like string("abc") or key(srcs) and are joined with ':'.
type TraceHasher struct {
	tokens []string
}

// NewTraceHasher returns an empty trace.
func NewTraceHasher() *TraceHasher {
	return &TraceHasher{}
}

func (t *TraceHasher) add(kind, value string) {
	t.tokens = append(t.tokens, kind+"("+value+")")
}

func (t *TraceHasher) PutKey(key string) { t.add("key", key) }
func (t *TraceHasher) PutPathKey(path string) { t.add("pathKey", strconv.Quote(path)) }

func (t *TraceHasher) PutWrapper(wrapper Wrapper) { t.add("wrapper", wrapper.String()) }

func (t *TraceHasher) PutContainer(container Container, length int) {
	t.add("container", container.String()+","+strconv.Itoa(length))
}

func (t *TraceHasher) PutNull() { t.tokens = append(t.tokens, "null()") }
func (t *TraceHasher) PutBool(value bool) { t.add("bool", strconv.FormatBool(value)) }
func (t *TraceHasher) PutInt64(value int64) { t.add("int", strconv.FormatInt(value, 10)) }
func (t *TraceHasher) PutUint64(value uint64) { t.add("uint", strconv.FormatUint(value, 10)) }
func (t *TraceHasher) PutString(value string) { t.add("string", strconv.Quote(value)) }
func (t *TraceHasher) PutBytes(value []byte) { t.add("bytes", hex.EncodeToString(value)) }
func (t *TraceHasher) PutRuleKey(key RuleKey) { t.add("ruleKey", key.String()) }
func (t *TraceHasher) PutActionID(id string) { t.add("action", id) }
func (t *TraceHasher) PutNonHashingPath(p string) { t.add("nonHashingPath", strconv.Quote(p)) }

func (t *TraceHasher) PutFloat64(value float64) {
	t.add("float", strconv.FormatFloat(value, 'g', -1, 64))
}

func (t *TraceHasher) PutSourcePath(path string, content Hash) {
	t.add("path", strconv.Quote(path)+","+content.String())
}

func (t *TraceHasher) PutTargetOutput(target, output string, key RuleKey) {
	t.add("targetOutput", target+","+strconv.Quote(output)+","+key.String())
}

// Hash returns the trace. Unlike the digest it is not fixed-length
// and must never be used as a cache key.
func (t *TraceHasher) Hash() string {
	return strings.Join(t.tokens, ":")
}
