// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import "github.com/google/uuid"

// Type tags of the built-in records.
const (
	TypeStartSession = "startSession"
	TypeStartService = "startService"
	TypeEvent        = "event"
	TypePage         = "page"
)

// StartSessionLog marks the beginning of a session. Its SessionID is
// the new session.
type StartSessionLog struct {
	Envelope
}

func (*StartSessionLog) Type() string { return TypeStartSession }

// StartServiceLog announces which features were started in this
// process. It is always sent and never starts a session.
type StartServiceLog struct {
	Envelope
	Services []string `json:"services"`
}

func (*StartServiceLog) Type() string { return TypeStartService }

// EventLog is a named custom event with string properties.
type EventLog struct {
	Envelope
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (*EventLog) Type() string { return TypeEvent }

// PageLog records a page or screen view.
type PageLog struct {
	Envelope
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (*PageLog) Type() string { return TypePage }

// IsSessionMarker reports whether log is a record that the session
// tracker must not stamp or count as activity.
func IsSessionMarker(log Log) bool {
	switch log.Type() {
	case TypeStartSession, TypeStartService:
		return true
	}
	return false
}
