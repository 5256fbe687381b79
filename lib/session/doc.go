// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session assigns a session identifier to every log a client
// sends.
//
// A [Tracker] is registered as a channel listener. When a log without
// an explicit timestamp is enqueued, the tracker stamps it with the
// current session, first starting a new one if there is none or the
// current one has timed out. Starting a session enqueues a
// start-session marker into the tracker's group ahead of the log that
// triggered it.
//
// The host application reports foreground transitions through
// [Tracker.Resumed] and [Tracker.Paused]. A session times out once
// nothing has been queued for [DefaultTimeout] and the application has
// spent at least that long in the background, or has never reported a
// foreground transition at all. A resume that follows such a stretch
// starts the new session right away.
//
// A log that carries its own timestamp is correlated instead: it gets
// the session that was active at that time, looked up in a bounded
// [History] of past sessions. The history is persisted in the
// preference store as "<unix-ms>/<session-id>" strings, newest
// sessions kept when the capacity is reached, so backdated logs
// written after a restart still find their session.
package session
