// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Async runs each call of a Doer in its own goroutine.
type Async struct {
	doer   Doer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewAsync returns a Caller running doer.
func NewAsync(doer Doer, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{doer: doer, logger: logger, ctx: ctx, cancel: cancel}
}

type asyncCall struct {
	cancel context.CancelFunc
	done   atomic.Bool
}

func (c *asyncCall) Cancel() {
	if c.done.CompareAndSwap(false, true) {
		c.cancel()
	}
}

// Call starts request in a new goroutine. After Close every call
// fails with ErrClosed.
func (a *Async) Call(request *Request, callback Callback) Call {
	ctx, cancel := context.WithCancel(a.ctx)
	call := &asyncCall{cancel: cancel}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		var response *Response
		var err error
		if a.closed.Load() {
			err = ErrClosed
		} else {
			response, err = a.doer.Do(ctx, request)
		}
		if a.closed.Load() && err != ErrClosed {
			return
		}
		if !call.done.CompareAndSwap(false, true) {
			a.logger.Debug("dropping result of cancelled call", "url", request.URL)
			return
		}
		callback(response, err)
	}()
	return call
}

// Close cancels every outstanding call and waits for their goroutines.
func (a *Async) Close() error {
	a.closed.Store(true)
	a.cancel()
	a.wg.Wait()
	return nil
}
