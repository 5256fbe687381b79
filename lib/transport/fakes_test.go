// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// recordingCaller is a Caller whose calls complete only when a test
// finishes them.
type recordingCaller struct {
	mu     sync.Mutex
	calls  []*recordedCall
	closed bool
}

type recordedCall struct {
	request  *Request
	callback Callback

	mu        sync.Mutex
	cancelled bool
}

func (r *recordingCaller) Call(request *Request, callback Callback) Call {
	call := &recordedCall{request: request, callback: callback}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return call
}

func (r *recordingCaller) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingCaller) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingCaller) call(i int) *recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

func (c *recordedCall) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *recordedCall) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// finish delivers an outcome the way a real caller would: only if the
// call has not been cancelled.
func (c *recordedCall) finish(response *Response, err error) {
	if c.isCancelled() {
		return
	}
	c.callback(response, err)
}

// finishAnyway delivers an outcome even after cancellation, simulating
// a completion racing with Cancel.
func (c *recordedCall) finishAnyway(response *Response, err error) {
	c.callback(response, err)
}

type outcome struct {
	response *Response
	err      error
}

// collector records callback invocations.
type collector struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (c *collector) callback(response *Response, err error) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, outcome{response, err})
	c.mu.Unlock()
}

func (c *collector) all() []outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outcome(nil), c.outcomes...)
}

type doerFunc func(ctx context.Context, request *Request) (*Response, error)

func (f doerFunc) Do(ctx context.Context, request *Request) (*Response, error) {
	return f(ctx, request)
}

// switchMonitor is a Connectivity whose state tests flip directly.
type switchMonitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]func(bool)
	next        int
}

func newSwitchMonitor(online bool) *switchMonitor {
	return &switchMonitor{online: online, subscribers: make(map[int]func(bool))}
}

func (m *switchMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *switchMonitor) Subscribe(f func(bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.subscribers[id] = f
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *switchMonitor) set(online bool) {
	m.mu.Lock()
	m.online = online
	var subscribers []func(bool)
	for _, f := range m.subscribers {
		subscribers = append(subscribers, f)
	}
	m.mu.Unlock()
	for _, f := range subscribers {
		f(online)
	}
}

func testRequest() *Request {
	return &Request{Method: "POST", URL: "http://ingest.invalid/logs"}
}
