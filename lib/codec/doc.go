// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared CBOR configuration for on-disk state:
// artifact metadata sidecars in the directory cache and per-target
// records in the filesystem build info store.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items, so
// the same metadata always produces the same bytes. Types implementing
// encoding.TextMarshaler are written as text strings.
//
// Struct types carry `cbor` tags when they are only ever stored as
// CBOR, and `json` tags when they are also printed by the CLI;
// fxamacker/cbor reads json tags when cbor tags are absent. Never put
// both on one field.
package codec
