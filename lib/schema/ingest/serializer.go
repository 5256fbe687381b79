// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Factory returns a new zero-valued record ready to be decoded into.
type Factory func() Log

// UnknownTypeError reports a record whose type tag has no registered
// factory.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("ingest: unknown log type %q", e.Type)
}

// ErrMissingType is returned when a record has no "type" member.
var ErrMissingType = errors.New("ingest: log has no type")

// Serializer maps type tags to factories and converts records to and
// from JSON. Safe for concurrent use.
type Serializer struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewSerializer returns a Serializer with the built-in record types
// registered.
func NewSerializer() *Serializer {
	s := &Serializer{factories: make(map[string]Factory)}
	s.MustRegister(TypeStartSession, func() Log { return new(StartSessionLog) })
	s.MustRegister(TypeStartService, func() Log { return new(StartServiceLog) })
	s.MustRegister(TypeEvent, func() Log { return new(EventLog) })
	s.MustRegister(TypePage, func() Log { return new(PageLog) })
	return s
}

// Register adds a factory for typeName. The tag must be non-empty, not
// already registered, and equal to the Type() of the records the
// factory produces.
func (s *Serializer) Register(typeName string, factory Factory) error {
	if typeName == "" {
		return fmt.Errorf("ingest: register: empty type name")
	}
	if factory == nil {
		return fmt.Errorf("ingest: register %q: nil factory", typeName)
	}
	if got := factory().Type(); got != typeName {
		return fmt.Errorf("ingest: register %q: factory produces type %q", typeName, got)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.factories[typeName]; exists {
		return fmt.Errorf("ingest: register %q: already registered", typeName)
	}
	s.factories[typeName] = factory
	return nil
}

// MustRegister is Register for setup code; it panics on error.
func (s *Serializer) MustRegister(typeName string, factory Factory) {
	if err := s.Register(typeName, factory); err != nil {
		panic(err)
	}
}

// Registered reports whether typeName has a factory.
func (s *Serializer) Registered(typeName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[typeName]
	return ok
}

// MarshalLog encodes one record as a JSON object with "type" as its
// first member.
func (s *Serializer) MarshalLog(log Log) ([]byte, error) {
	if log == nil {
		return nil, fmt.Errorf("ingest: marshal: nil log")
	}
	body, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal %s: %w", log.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("ingest: marshal %s: record did not encode as an object", log.Type())
	}
	tag, err := json.Marshal(log.Type())
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal type tag: %w", err)
	}

	var buffer bytes.Buffer
	buffer.Grow(len(body) + len(tag) + 9)
	buffer.WriteString(`{"type":`)
	buffer.Write(tag)
	if len(body) > 2 {
		buffer.WriteByte(',')
	}
	buffer.Write(body[1:])
	return buffer.Bytes(), nil
}

// UnmarshalLog decodes one record, choosing the concrete type from its
// "type" member.
func (s *Serializer) UnmarshalLog(data []byte) (Log, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("ingest: unmarshal: %w", err)
	}
	if head.Type == nil {
		return nil, ErrMissingType
	}

	s.mu.RLock()
	factory, ok := s.factories[*head.Type]
	s.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: *head.Type}
	}

	log := factory()
	if err := json.Unmarshal(data, log); err != nil {
		return nil, fmt.Errorf("ingest: unmarshal %s: %w", *head.Type, err)
	}
	return log, nil
}

// MarshalContainer encodes logs as {"logs":[...]}, preserving order.
func (s *Serializer) MarshalContainer(logs []Log) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteString(`{"logs":[`)
	for i, log := range logs {
		if i > 0 {
			buffer.WriteByte(',')
		}
		encoded, err := s.MarshalLog(log)
		if err != nil {
			return nil, fmt.Errorf("ingest: container entry %d: %w", i, err)
		}
		buffer.Write(encoded)
	}
	buffer.WriteString(`]}`)
	return buffer.Bytes(), nil
}

// MarshalContainerAt is MarshalContainer for a container sent at
// sent: each record carries "toffset", its age in milliseconds at that
// instant. The logs are only read. The member is appended last, so it
// takes precedence over any Toffset already set on a log.
func (s *Serializer) MarshalContainerAt(logs []Log, sent time.Time) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteString(`{"logs":[`)
	for i, log := range logs {
		if i > 0 {
			buffer.WriteByte(',')
		}
		encoded, err := s.MarshalLog(log)
		if err != nil {
			return nil, fmt.Errorf("ingest: container entry %d: %w", i, err)
		}
		age := sent.Sub(log.Common().Timestamp).Milliseconds()
		if age == 0 {
			buffer.Write(encoded)
			continue
		}
		buffer.Write(encoded[:len(encoded)-1])
		buffer.WriteString(`,"toffset":`)
		buffer.WriteString(strconv.FormatInt(age, 10))
		buffer.WriteByte('}')
	}
	buffer.WriteString(`]}`)
	return buffer.Bytes(), nil
}

// UnmarshalContainer decodes a container. The first record that fails
// to decode fails the whole container.
func (s *Serializer) UnmarshalContainer(data []byte) ([]Log, error) {
	var container struct {
		Logs []json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("ingest: unmarshal container: %w", err)
	}
	logs := make([]Log, 0, len(container.Logs))
	for i, raw := range container.Logs {
		log, err := s.UnmarshalLog(raw)
		if err != nil {
			return nil, fmt.Errorf("ingest: container entry %d: %w", i, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}
