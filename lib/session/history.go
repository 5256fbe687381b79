// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCapacity is the number of past sessions remembered
// for correlating logs that carry an explicit timestamp.
const DefaultHistoryCapacity = 10

// Entry is one remembered session.
type Entry struct {
	Start     time.Time
	SessionID uuid.UUID
}

// History is a bounded list of sessions ordered by start time. Adding
// beyond capacity forgets the oldest entry. Not safe for concurrent
// use; the Tracker guards it.
type History struct {
	capacity int
	entries  []Entry
}

// NewHistory returns an empty history holding at most capacity
// entries. A capacity below one means DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Add records a session starting at start. An entry with the same
// start time is replaced.
func (h *History) Add(start time.Time, sessionID uuid.UUID) {
	start = start.Truncate(time.Millisecond)
	i := sort.Search(len(h.entries), func(i int) bool {
		return !h.entries[i].Start.Before(start)
	})
	entry := Entry{Start: start, SessionID: sessionID}
	switch {
	case i < len(h.entries) && h.entries[i].Start.Equal(start):
		h.entries[i] = entry
	default:
		h.entries = append(h.entries, Entry{})
		copy(h.entries[i+1:], h.entries[i:])
		h.entries[i] = entry
	}
	if excess := len(h.entries) - h.capacity; excess > 0 {
		h.entries = append(h.entries[:0], h.entries[excess:]...)
	}
}

// Floor returns the latest session that started at or before t.
func (h *History) Floor(t time.Time) (Entry, bool) {
	i := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Start.After(t)
	})
	if i == 0 {
		return Entry{}, false
	}
	return h.entries[i-1], true
}

// Clear forgets every session.
func (h *History) Clear() { h.entries = nil }

// Len returns the number of remembered sessions.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the remembered sessions, oldest first.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// MarshalStrings encodes the history as "<unix-ms>/<session-id>"
// strings for persistence.
func (h *History) MarshalStrings() []string {
	values := make([]string, len(h.entries))
	for i, entry := range h.entries {
		values[i] = strconv.FormatInt(entry.Start.UnixMilli(), 10) + "/" + entry.SessionID.String()
	}
	return values
}

// ParseStrings rebuilds a history from MarshalStrings output. Values
// that do not parse are skipped and reported in the returned error,
// which is informational: the history is usable either way.
func ParseStrings(capacity int, values []string) (*History, error) {
	h := NewHistory(capacity)
	var bad []string
	for _, value := range values {
		millis, id, ok := strings.Cut(value, "/")
		if !ok {
			bad = append(bad, value)
			continue
		}
		ms, err := strconv.ParseInt(millis, 10, 64)
		if err != nil {
			bad = append(bad, value)
			continue
		}
		sessionID, err := uuid.Parse(id)
		if err != nil {
			bad = append(bad, value)
			continue
		}
		h.Add(time.UnixMilli(ms), sessionID)
	}
	if len(bad) > 0 {
		return h, fmt.Errorf("session: skipped %d malformed history entries: %q", len(bad), bad)
	}
	return h, nil
}
