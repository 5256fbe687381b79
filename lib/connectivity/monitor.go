// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connectivity reports whether the ingestion endpoint is
// reachable. The transport gate holds calls while a Monitor reports
// offline and replays them when it comes back.
//
// Two monitors are provided: Manual, whose state is set by the host
// application from its own network callbacks, and Probe, which dials a
// TCP address periodically.
package connectivity

import "sync"

// Monitor is a source of connectivity state.
type Monitor interface {
	// Online reports the current state.
	Online() bool

	// Subscribe registers f to be called on every transition. f runs
	// synchronously on the goroutine that observed the change and
	// must not call back into the monitor.
	Subscribe(f func(online bool)) (unsubscribe func())
}

// subscribers is the transition fan-out shared by the monitors.
type subscribers struct {
	// notifyMu is held from a state change until every subscriber has
	// seen it, so transitions are delivered in the order they happen.
	notifyMu sync.Mutex

	mu     sync.Mutex
	online bool
	next   int
	funcs  map[int]func(bool)
}

func (s *subscribers) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *subscribers) Subscribe(f func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.funcs == nil {
		s.funcs = make(map[int]func(bool))
	}
	id := s.next
	s.next++
	s.funcs[id] = f
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.funcs, id)
			s.mu.Unlock()
		})
	}
}

// set records online and notifies subscribers if it changed. It
// reports whether a transition happened.
func (s *subscribers) set(online bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	funcs := make([]func(bool), 0, len(s.funcs))
	for _, f := range s.funcs {
		funcs = append(funcs, f)
	}
	s.mu.Unlock()

	for _, f := range funcs {
		f(online)
	}
	return true
}

// Manual is a Monitor driven by Set.
type Manual struct {
	subscribers
}

// NewManual returns a Manual monitor in the given state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// Set changes the state, notifying subscribers on a transition.
func (m *Manual) Set(online bool) {
	m.set(online)
}
