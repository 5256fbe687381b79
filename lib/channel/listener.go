// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import "github.com/bureau-foundation/logship/lib/schema/ingest"

// Enqueuer accepts logs for a group. *Channel implements it; listener
// hooks receive an Enqueuer that processes logs inline.
type Enqueuer interface {
	Enqueue(log ingest.Log, group string)
}

// Listener observes and may mutate every log before it is persisted.
// Hooks run on the channel's worker goroutine and must not block.
type Listener interface {
	// EnqueuingLog runs before defaults are applied. Logs enqueued
	// through q are processed before log.
	EnqueuingLog(q Enqueuer, log ingest.Log, group string)
}

// PreparedListener is notified once a log has its timestamp and is
// about to be persisted.
type PreparedListener interface {
	PreparedLog(log ingest.Log, group string)
}

// FilterListener can veto persisting a log. A log is dropped if any
// filter returns true.
type FilterListener interface {
	ShouldFilter(log ingest.Log, group string) bool
}

// GroupEventListener observes group lifecycle operations.
type GroupEventListener interface {
	GroupAdded(name string, config GroupConfig)
	GroupRemoved(name string)
	GroupPaused(name string)
	GroupResumed(name string)
	GroupCleared(name string)
}

// EnabledListener is notified when the channel is enabled or disabled.
type EnabledListener interface {
	GloballyEnabled(enabled bool)
}

// ShutdownListener is notified once, during Shutdown, after in-flight
// batches are cancelled.
type ShutdownListener interface {
	Shutdown()
}

// GroupListener receives delivery outcomes for a group's logs. Methods
// run on the channel's worker goroutine.
type GroupListener interface {
	// BeforeSending runs right before a batch containing log is
	// submitted, and before Failure when a log is discarded unsent.
	BeforeSending(log ingest.Log)

	// Success runs once the ingestion service accepted log.
	Success(log ingest.Log)

	// Failure runs when log will never be delivered.
	Failure(log ingest.Log, err error)
}

// GroupCallbacks adapts optional functions to GroupListener.
type GroupCallbacks struct {
	OnBeforeSending func(log ingest.Log)
	OnSuccess       func(log ingest.Log)
	OnFailure       func(log ingest.Log, err error)
}

func (g GroupCallbacks) BeforeSending(log ingest.Log) {
	if g.OnBeforeSending != nil {
		g.OnBeforeSending(log)
	}
}

func (g GroupCallbacks) Success(log ingest.Log) {
	if g.OnSuccess != nil {
		g.OnSuccess(log)
	}
}

func (g GroupCallbacks) Failure(log ingest.Log, err error) {
	if g.OnFailure != nil {
		g.OnFailure(log, err)
	}
}
