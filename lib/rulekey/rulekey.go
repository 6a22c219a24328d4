// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of a RuleKey and of a content Hash.
const Size = 32

// RuleKey is the 32-byte BLAKE3 digest of a build rule's transitive
// configuration. Two rules with equal keys are interchangeable for
// caching: the key is both the artifact cache lookup key and the
// rule equality key.
type RuleKey [Size]byte

// String returns the 64-character lowercase hex form. This is the
// canonical external representation used in cache lookups, metadata,
// and logs.
func (k RuleKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k is the zero key. A zero key is never
// produced by a hasher and marks "not computed".
func (k RuleKey) IsZero() bool {
	return k == RuleKey{}
}

// MarshalText implements encoding.TextMarshaler so that CBOR and YAML
// carry rule keys as hex strings.
func (k RuleKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RuleKey) UnmarshalText(text []byte) error {
	parsed, err := ParseRuleKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseRuleKey parses the hex form of a rule key. Upper and lower case
// hex are both accepted; anything other than exactly 64 hex characters
// is rejected.
func ParseRuleKey(text string) (RuleKey, error) {
	var key RuleKey
	if len(text) != 2*Size {
		return key, fmt.Errorf("rule key %q is %d characters, want %d", text, len(text), 2*Size)
	}
	if _, err := hex.Decode(key[:], []byte(text)); err != nil {
		return RuleKey{}, fmt.Errorf("parsing rule key %q: %w", text, err)
	}
	return key, nil
}

// Hash is a 32-byte BLAKE3 content digest of a file or directory
// tree. Content hashes are computed in a different BLAKE3 domain
// than rule keys, so a file hash can never collide with a rule key.
type Hash [Size]byte

// String returns the hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}
