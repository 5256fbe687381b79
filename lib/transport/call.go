// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
)

// Request is one outbound exchange. Body is evaluated on every attempt
// so that time-relative fields can be recomputed per retry; a nil Body
// sends no payload.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   func() ([]byte, error)
}

// Response is a fully read reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer performs a single synchronous exchange. Implementations return
// a *StatusError (along with the response) for any status other than
// 200.
type Doer interface {
	Do(ctx context.Context, request *Request) (*Response, error)
}

// Callback receives the outcome of a call. It runs on a transport
// goroutine and must not block.
type Callback func(response *Response, err error)

// Call is a handle to a pending call.
type Call interface {
	// Cancel aborts the call. After Cancel returns the callback will
	// not run. Calling Cancel more than once, or after the callback
	// ran, has no effect.
	Cancel()
}

// Caller starts calls.
type Caller interface {
	// Call starts request and returns immediately. callback runs
	// exactly once unless the returned Call is cancelled first.
	Call(request *Request, callback Callback) Call

	// Close aborts outstanding calls without running their callbacks
	// and releases the caller's resources.
	Close() error
}

// Stage decorates a Caller.
type Stage func(next Caller) Caller

// Chain wraps base in stages. The first stage listed is outermost and
// sees each call first.
func Chain(base Caller, stages ...Stage) Caller {
	caller := base
	for i := len(stages) - 1; i >= 0; i-- {
		caller = stages[i](caller)
	}
	return caller
}

// CancelFunc adapts a function to the Call interface.
type CancelFunc func()

// Cancel calls f.
func (f CancelFunc) Cancel() { f() }
