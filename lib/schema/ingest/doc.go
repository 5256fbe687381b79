// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest defines the log records logship delivers and their
// JSON wire form.
//
// Every record implements Log: a type tag plus a shared Envelope of
// common fields (timestamp, session id, device snapshot). Concrete
// record types embed Envelope and add their own fields. On the wire a
// record is a JSON object whose "type" member selects the concrete
// schema, and a batch is a Container: {"logs": [record, ...]}.
//
// Decoding is driven by a Serializer, an explicit registry from type
// tag to factory. The built-in types are registered by NewSerializer;
// feature packages register their own at startup. An unregistered tag
// is a hard error (*UnknownTypeError), never a silently dropped field.
//
// The same JSON encoding is used for persistence: the log store keeps
// the output of MarshalLog verbatim, so a record that round-trips
// through the store is exactly what will be sent.
package ingest
