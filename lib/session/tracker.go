// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/logship/lib/channel"
	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/prefs"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
)

// DefaultTimeout is how long the application must be idle in the
// background before the next log starts a new session.
const DefaultTimeout = 20 * time.Second

// Store persists the session history. *prefs.Store implements it.
type Store interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Group receives start-session markers. Required.
	Group string

	// Enqueuer receives markers for sessions started outside a log
	// enqueue, i.e. from Resumed. Normally the channel. Required.
	Enqueuer channel.Enqueuer

	// Prefs persists the history. Nil keeps it in memory only.
	Prefs Store

	Clock clock.Clock

	Logger *slog.Logger

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// HistoryCapacity defaults to DefaultHistoryCapacity.
	HistoryCapacity int
}

// Tracker is the channel listener that stamps every log with a
// session identifier and decides when a new session starts. The host
// application reports foreground transitions through Resumed and
// Paused.
type Tracker struct {
	group    string
	enqueuer channel.Enqueuer
	prefs    Store
	clock    clock.Clock
	logger   *slog.Logger
	timeout  time.Duration

	mu          sync.Mutex
	history     *History
	current     *uuid.UUID
	lastQueued  time.Time
	lastResumed time.Time
	lastPaused  time.Time
}

var _ channel.Listener = (*Tracker)(nil)

// NewTracker returns a Tracker, loading any persisted history.
func NewTracker(config TrackerConfig) (*Tracker, error) {
	if config.Group == "" {
		return nil, fmt.Errorf("session: group is required")
	}
	if config.Enqueuer == nil {
		return nil, fmt.Errorf("session: enqueuer is required")
	}
	t := &Tracker{
		group:    config.Group,
		enqueuer: config.Enqueuer,
		prefs:    config.Prefs,
		clock:    config.Clock,
		logger:   config.Logger,
		timeout:  config.Timeout,
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}

	t.history = NewHistory(config.HistoryCapacity)
	if t.prefs != nil {
		var stored []string
		found, err := t.prefs.Get(context.Background(), prefs.KeySessions, &stored)
		if err != nil {
			t.logger.Warn("session history unreadable, starting empty", "error", err)
		}
		if found {
			history, err := ParseStrings(config.HistoryCapacity, stored)
			if err != nil {
				t.logger.Warn("session history partially restored", "error", err)
			}
			t.history = history
		}
	}
	return t, nil
}

// EnqueuingLog stamps log with a session identifier. A log with an
// explicit timestamp is correlated with the session active at that
// time; any other log gets the current session, which is renewed
// first if it has timed out. The renewal's start-session marker goes
// through q ahead of log.
func (t *Tracker) EnqueuingLog(q channel.Enqueuer, log ingest.Log, group string) {
	if ingest.IsSessionMarker(log) {
		return
	}
	envelope := log.Common()

	if !envelope.Timestamp.IsZero() {
		t.mu.Lock()
		entry, ok := t.history.Floor(envelope.Timestamp)
		t.mu.Unlock()
		if ok {
			sessionID := entry.SessionID
			envelope.SessionID = &sessionID
		}
		return
	}

	sessionID := t.startSessionIfNeeded(q)
	envelope.SessionID = &sessionID

	t.mu.Lock()
	t.lastQueued = t.clock.Now()
	t.mu.Unlock()
}

// Resumed records that the application came to the foreground,
// starting a new session if the previous one timed out.
func (t *Tracker) Resumed() {
	t.mu.Lock()
	t.lastResumed = t.clock.Now()
	t.mu.Unlock()
	t.startSessionIfNeeded(t.enqueuer)
}

// Paused records that the application went to the background.
func (t *Tracker) Paused() {
	t.mu.Lock()
	t.lastPaused = t.clock.Now()
	t.mu.Unlock()
}

// CurrentSession returns the active session, if one has started.
func (t *Tracker) CurrentSession() (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return uuid.Nil, false
	}
	return *t.current, true
}

// ClearSessions forgets the session history, in memory and in prefs.
// The current session continues.
func (t *Tracker) ClearSessions() {
	t.mu.Lock()
	t.history.Clear()
	t.mu.Unlock()
	if t.prefs != nil {
		if err := t.prefs.Delete(context.Background(), prefs.KeySessions); err != nil {
			t.logger.Warn("removing stored session history failed", "error", err)
		}
	}
}

// History returns a copy of the remembered sessions.
func (t *Tracker) History() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Entries()
}

// startSessionIfNeeded returns the session to stamp, generating a new
// one when there is none or the current one timed out. The marker is
// enqueued after the lock is released: q may process it inline and
// call back into EnqueuingLog.
func (t *Tracker) startSessionIfNeeded(q channel.Enqueuer) uuid.UUID {
	t.mu.Lock()
	now := t.clock.Now()
	if t.current != nil && !t.timedOutLocked(now) {
		sessionID := *t.current
		t.mu.Unlock()
		return sessionID
	}

	sessionID := uuid.New()
	t.current = &sessionID
	t.lastQueued = now
	t.history.Add(now, sessionID)
	stored := t.history.MarshalStrings()
	t.mu.Unlock()

	if t.prefs != nil {
		if err := t.prefs.Put(context.Background(), prefs.KeySessions, stored); err != nil {
			t.logger.Warn("persisting session history failed", "error", err)
		}
	}
	t.logger.Debug("session started", "session_id", sessionID)

	marker := &ingest.StartSessionLog{}
	markerSession := sessionID
	marker.SessionID = &markerSession
	q.Enqueue(marker, t.group)
	return sessionID
}

// timedOutLocked applies the session timeout rules:
//
//   - never paused: only if also never resumed and nothing was queued
//     for the timeout
//   - paused but never resumed: nothing queued for the timeout
//   - otherwise nothing queued for the timeout, and either still in
//     the background for the timeout or, before the last resume, in the
//     background for the timeout
func (t *Tracker) timedOutLocked(now time.Time) bool {
	noLogSentForLong := now.Sub(t.lastQueued) >= t.timeout
	if t.lastPaused.IsZero() {
		return t.lastResumed.IsZero() && noLogSentForLong
	}
	if t.lastResumed.IsZero() {
		return noLogSentForLong
	}
	isBackgroundForLong := !t.lastPaused.Before(t.lastResumed) && now.Sub(t.lastPaused) >= t.timeout
	lastActivity := t.lastPaused
	if t.lastQueued.After(lastActivity) {
		lastActivity = t.lastQueued
	}
	wasBackgroundForLong := t.lastResumed.Sub(lastActivity) >= t.timeout
	return noLogSentForLong && (isBackgroundForLong || wasBackgroundForLong)
}
