// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logstore is the durable backlog of logs waiting to be sent.
//
// Each pending log is one row in the "logs" table, tagged with its
// group and holding the serialized record. Rows are identified by an
// AUTOINCREMENT id, so id order is insertion order and "oldest first"
// is ORDER BY id.
//
// The send path works in claims. Claim selects up to N of a group's
// oldest rows that no other in-flight batch holds and records them
// under a fresh batch id. A claimed row is invisible to later claims
// until its batch is deleted (sent, or given up) or released
// (suspended, to be retried later). Claims live in memory only: after
// a restart every row is unclaimed again, which is what makes
// delivery at-least-once.
//
// Integrity: every row stores the blake3-256 digest of its
// uncompressed payload. Payloads at or above the compression threshold
// are stored LZ4-compressed when that saves space. A row whose payload
// fails to decompress or whose digest does not match is deleted when a
// claim reads it and is never handed to the caller.
//
// Capacity: SetCapacity bounds a group's row count. The Put that
// pushes a group past its bound deletes the group's oldest rows in the
// same transaction, so the bound holds at every commit.
//
// The schema lives in Schema; the owner of the sqlitepool.Pool passes
// it in sqlitepool.Config.Schema. Open the pool with Durable set: a log
// whose Put returned must survive power loss.
package logstore
