// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/logship/lib/clock"
)

// DefaultRetryIntervals is the retry schedule used when RetryConfig
// leaves Intervals empty: three retries, spread over roughly 25
// minutes with jitter.
var DefaultRetryIntervals = []time.Duration{
	10 * time.Second,
	5 * time.Minute,
	20 * time.Minute,
}

// Server retry hints, checked in order.
const (
	retryAfterMillisHeader = "x-ms-retry-after-ms"
	retryAfterHeader       = "Retry-After"
)

// RetryConfig configures RetryStage.
type RetryConfig struct {
	// Intervals is the delay before each retry. A call is attempted at
	// most len(Intervals)+1 times. Nil means DefaultRetryIntervals; an
	// empty non-nil slice disables retrying.
	Intervals []time.Duration

	// Clock schedules retries. Nil means clock.Real().
	Clock clock.Clock

	Logger *slog.Logger

	// Rand returns a uniform value in [0, n). Nil means
	// math/rand/v2.Int64N.
	Rand func(n int64) int64
}

// RetryStage retries recoverable failures. Each retry waits
// interval/2 plus a random share of the other half, unless the failed
// response carried a retry hint, which is used as the delay instead.
// Hints are capped at the longest interval.
func RetryStage(config RetryConfig) Stage {
	if config.Intervals == nil {
		config.Intervals = DefaultRetryIntervals
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Rand == nil {
		config.Rand = rand.Int64N
	}
	return func(next Caller) Caller {
		return &retrier{next: next, config: config}
	}
}

type retrier struct {
	next   Caller
	config RetryConfig
}

func (r *retrier) Call(request *Request, callback Callback) Call {
	call := &retryCall{retrier: r, request: request, callback: callback}
	call.attempt()
	return call
}

func (r *retrier) Close() error { return r.next.Close() }

type retryCall struct {
	retrier  *retrier
	request  *Request
	callback Callback

	mu      sync.Mutex
	seq     int // bumped when an attempt completes so stale handles are not kept
	retries int
	inner   Call
	timer   *clock.Timer
	done    bool
}

func (c *retryCall) attempt() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	seq := c.seq
	c.mu.Unlock()

	inner := c.retrier.next.Call(c.request, func(response *Response, err error) {
		c.complete(seq, response, err)
	})

	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		inner.Cancel()
		return
	}
	if c.seq == seq {
		c.inner = inner
	}
	c.mu.Unlock()
}

func (c *retryCall) complete(seq int, response *Response, err error) {
	intervals := c.retrier.config.Intervals

	c.mu.Lock()
	if c.done || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.seq++
	c.inner = nil

	if err == nil || !IsRecoverable(err) || c.retries >= len(intervals) {
		c.done = true
		attempts := c.retries + 1
		c.mu.Unlock()
		if err != nil && IsRecoverable(err) {
			err = &RetriesExhaustedError{Attempts: attempts, Err: err}
		}
		c.callback(response, err)
		return
	}

	delay, hinted := retryHint(err, slices.Max(intervals))
	if !hinted {
		delay = c.retrier.jitter(intervals[c.retries])
	}
	c.retries++
	retries := c.retries
	c.mu.Unlock()

	c.retrier.config.Logger.Warn("retrying request",
		"url", c.request.URL,
		"retry", retries,
		"max_retries", len(intervals),
		"delay", delay,
		"server_hint", hinted,
		"error", err,
	)

	timer := c.retrier.config.Clock.AfterFunc(delay, c.attempt)
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		timer.Stop()
		return
	}
	if c.seq == seq+1 && c.inner == nil {
		c.timer = timer
	}
	c.mu.Unlock()
}

func (c *retryCall) Cancel() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	inner, timer := c.inner, c.timer
	c.inner, c.timer = nil, nil
	c.mu.Unlock()

	timer.Stop()
	if inner != nil {
		inner.Cancel()
	}
}

func (r *retrier) jitter(interval time.Duration) time.Duration {
	half := interval / 2
	if half <= 0 {
		return interval
	}
	return half + time.Duration(r.config.Rand(int64(half)))
}

// retryHint extracts a server-requested delay from a failed response,
// capped at ceiling. Values too large for a time.Duration are capped
// too.
func retryHint(err error, ceiling time.Duration) (time.Duration, bool) {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Header == nil {
		return 0, false
	}
	if value := statusErr.Header.Get(retryAfterMillisHeader); value != "" {
		if millis, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil && millis >= 0 {
			return scaleHint(millis, time.Millisecond, ceiling), true
		}
	}
	if value := statusErr.Header.Get(retryAfterHeader); value != "" {
		if seconds, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil && seconds >= 0 {
			return scaleHint(seconds, time.Second, ceiling), true
		}
	}
	return 0, false
}

func scaleHint(n int64, unit, ceiling time.Duration) time.Duration {
	if n > math.MaxInt64/int64(unit) {
		return ceiling
	}
	return min(time.Duration(n)*unit, ceiling)
}
