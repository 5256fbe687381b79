// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport delivers one request per batch to the ingestion
// endpoint and reports the outcome asynchronously.
//
// The primitive is a synchronous [Doer] (normally [HTTP]). [NewAsync]
// turns it into a [Caller]: every call runs in its own goroutine and
// reports through a [Callback] exactly once, unless it is cancelled
// first. Behaviour is layered on a Caller with [Stage] middleware
// composed by [Chain]:
//
//   - [GateStage] holds calls while the device is offline, aborts
//     in-flight attempts when connectivity drops without reporting
//     them, and replays them when it returns.
//   - [RetryStage] re-issues calls that fail with a recoverable error
//     after a jittered delay from a fixed interval schedule, honouring
//     retry hints sent by the server, and reports
//     [RetriesExhaustedError] once the schedule runs out.
//
// The standard pipeline is
//
//	caller := transport.Chain(transport.NewAsync(doer, logger),
//		transport.GateStage(monitor, logger),
//		transport.RetryStage(transport.RetryConfig{Clock: clk, Logger: logger}))
//
// Cancellation propagates inward through every stage. [Call.Cancel] is
// idempotent and no callback fires after it returns.
//
// [IsRecoverable] is the single classifier used by the retry stage and
// by the channel when deciding whether a failed batch is kept.
package transport
