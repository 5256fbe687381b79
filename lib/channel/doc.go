// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel accepts logs from producers, persists them, and
// ships them to the ingestion service in batches.
//
// Logs are routed to named groups, each with its own batching policy
// ([GroupConfig]) and optional [GroupListener] receiving per-log
// delivery outcomes. A group sends a batch as soon as
// MaxLogsPerBatch logs are pending, or BatchInterval after the first
// pending log, with at most MaxParallelBatches batches in flight.
//
// # Serialization
//
// Every state change runs on one worker goroutine, fed by an
// unbounded FIFO of tasks. Public methods post a task and return, so
// [Channel.Enqueue] never blocks on disk or network. Timers and
// transport callbacks also only post tasks. Nothing else touches group
// state, which is why none of it is locked.
//
// [Listener] hooks run on the worker, in registration order, before a
// log is persisted. A hook may enqueue further logs through the
// [Enqueuer] it is handed; those are processed immediately, ahead of
// the log that triggered them. The session tracker relies on this to
// put its start-session marker before the first log of a session.
//
// # Failure handling
//
//   - A successful batch deletes its rows and reports Success per log.
//   - A batch failing with a non-recoverable error is deleted and
//     reported as Failure per log.
//   - A batch still failing with a recoverable error after the
//     transport's retries keeps its rows. Sending is suspended for
//     Config.RetryCooldown and then resumes from the store.
//   - Logs that cannot be serialized or persisted are logged and
//     reported as Failure.
//
// Disabling the channel cancels in-flight batches, reports every
// stored log as failed with [ErrDisabled], and deletes the backlog.
// Logs enqueued while disabled are reported failed immediately.
package channel
