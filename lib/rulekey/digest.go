// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/blake3"
)

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII domain name zero-padded to 32 bytes, so the keys stay
// readable in hex dumps. Changing a key invalidates every digest in
// its domain.
type domainKey [32]byte

var (
	ruleKeyDomain = domainKey{
		'b', 'u', 'i', 'l', 'd', 'c', 'a', 'c', 'h', 'e', '.',
		'r', 'u', 'l', 'e', 'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	fileHashDomain = domainKey{
		'b', 'u', 'i', 'l', 'd', 'c', 'a', 'c', 'h', 'e', '.',
		'f', 'i', 'l', 'e', 'h', 'a', 's', 'h', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Record tags. Every write starts with one of these bytes so that
// values of different types can never produce the same byte stream.
const (
	tagKey          byte = 0x01
	tagPathKey      byte = 0x02
	tagWrapper      byte = 0x03
	tagContainer    byte = 0x04
	tagNull         byte = 0x10
	tagBool         byte = 0x11
	tagInt64        byte = 0x12
	tagUint64       byte = 0x13
	tagFloat64      byte = 0x14
	tagString       byte = 0x15
	tagBytes        byte = 0x16
	tagRuleKey      byte = 0x20
	tagActionID     byte = 0x21
	tagSourcePath   byte = 0x22
	tagTargetOutput byte = 0x23
	tagNonHashing   byte = 0x24
)

// DigestHasher is the [Hasher] that produces rule keys. Strings and
// byte slices are length-prefixed, so adjacent writes are unambiguous.
type DigestHasher struct {
	hasher  *blake3.Hasher
	scratch [binary.MaxVarintLen64 + 1]byte
}

// NewDigestHasher returns a hasher in the rule key domain.
func NewDigestHasher() *DigestHasher {
	return &DigestHasher{hasher: newKeyed(ruleKeyDomain)}
}

func newKeyed(key domainKey) *blake3.Hasher {
	// NewKeyed only fails for a key of the wrong length, which the
	// domainKey type rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("rulekey: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func (d *DigestHasher) tag(tag byte) {
	d.scratch[0] = tag
	d.hasher.Write(d.scratch[:1])
}

func (d *DigestHasher) length(n int) {
	size := binary.PutUvarint(d.scratch[:], uint64(n))
	d.hasher.Write(d.scratch[:size])
}

func (d *DigestHasher) text(value string) {
	d.length(len(value))
	d.hasher.WriteString(value)
}

func (d *DigestHasher) fixed(value uint64) {
	binary.BigEndian.PutUint64(d.scratch[:8], value)
	d.hasher.Write(d.scratch[:8])
}

func (d *DigestHasher) PutKey(key string) {
	d.tag(tagKey)
	d.text(key)
}

func (d *DigestHasher) PutPathKey(path string) {
	d.tag(tagPathKey)
	d.text(path)
}

func (d *DigestHasher) PutWrapper(wrapper Wrapper) {
	d.tag(tagWrapper)
	d.tag(byte(wrapper))
}

func (d *DigestHasher) PutContainer(container Container, length int) {
	d.tag(tagContainer)
	d.tag(byte(container))
	d.length(length)
}

func (d *DigestHasher) PutNull() {
	d.tag(tagNull)
}

func (d *DigestHasher) PutBool(value bool) {
	d.tag(tagBool)
	if value {
		d.tag(1)
	} else {
		d.tag(0)
	}
}

func (d *DigestHasher) PutInt64(value int64) {
	d.tag(tagInt64)
	d.fixed(uint64(value))
}

func (d *DigestHasher) PutUint64(value uint64) {
	d.tag(tagUint64)
	d.fixed(value)
}

func (d *DigestHasher) PutFloat64(value float64) {
	d.tag(tagFloat64)
	d.fixed(math.Float64bits(value))
}

func (d *DigestHasher) PutString(value string) {
	d.tag(tagString)
	d.text(value)
}

func (d *DigestHasher) PutBytes(value []byte) {
	d.tag(tagBytes)
	d.length(len(value))
	d.hasher.Write(value)
}

func (d *DigestHasher) PutRuleKey(key RuleKey) {
	d.tag(tagRuleKey)
	d.hasher.Write(key[:])
}

func (d *DigestHasher) PutActionID(id string) {
	d.tag(tagActionID)
	d.text(id)
}

func (d *DigestHasher) PutSourcePath(path string, content Hash) {
	d.tag(tagSourcePath)
	d.text(path)
	d.hasher.Write(content[:])
}

func (d *DigestHasher) PutTargetOutput(target, output string, key RuleKey) {
	d.tag(tagTargetOutput)
	d.text(target)
	d.text(output)
	d.hasher.Write(key[:])
}

func (d *DigestHasher) PutNonHashingPath(path string) {
	d.tag(tagNonHashing)
	d.text(path)
}

// Hash returns the rule key for everything written so far.
func (d *DigestHasher) Hash() RuleKey {
	var key RuleKey
	copy(key[:], d.hasher.Sum(nil))
	return key
}
