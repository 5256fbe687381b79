// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds logship's CBOR encoding configuration.
//
// logship uses two serialization formats with a clear boundary:
//
//   - JSON for everything that leaves the device: the ingestion
//     container posted to the backend, the mock ingest server's
//     /stats output, and the CLI's status output. The ingest schema
//     package owns that encoding.
//   - CBOR for local state that never leaves the device: the values in
//     the preference store (install identifier, session history,
//     per-group enabled flags).
//
// This package provides the shared CBOR modes so every package that
// touches the preference store encodes identically. The encoder uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. The same
// logical value always produces identical bytes, so an unchanged
// preference can be detected by comparing stored bytes.
//
// Two options differ from the core defaults:
//
//   - Timestamps encode as RFC 3339 text with nanoseconds. Core
//     deterministic encoding would otherwise write integer seconds and
//     truncate session start times.
//   - Types implementing encoding.TextMarshaler, such as uuid.UUID,
//     encode as their text form and decode through
//     encoding.TextUnmarshaler.
//
// The decoder ignores unknown struct fields, so an older binary can
// read a value written by a newer one. Maps decode as map[string]any.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is only ever stored locally as CBOR.
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags when `cbor` tags are absent,
//     so one `json` tag controls field naming and omitempty for both.
//
// Never put both tags on the same field.
package codec
