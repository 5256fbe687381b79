// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bureau-foundation/logship/lib/netutil"
)

var (
	// ErrCancelled is reported by stages that abandon a call on their
	// own, such as a gate being closed. It is never recoverable.
	ErrCancelled = errors.New("transport: call cancelled")

	// ErrClosed is reported for calls made after Close.
	ErrClosed = errors.New("transport: caller closed")
)

// StatusError is a reply with a status other than 200.
type StatusError struct {
	StatusCode int
	Body       string
	Header     http.Header
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transport: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("transport: HTTP %d: %s", e.StatusCode, e.Body)
}

// RetriesExhaustedError reports a call that was still failing with a
// recoverable error when the retry schedule ran out.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("transport: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// IsRecoverable reports whether a later attempt of the same request
// might succeed. Status 408, 429, and 5xx are recoverable; every other
// status is not. Transient network failures are recoverable; malformed
// URLs, cancellation, and anything unrecognised are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRecoverableStatus(statusErr.StatusCode)
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return false
	}
	return netutil.IsTransient(err)
}

// IsRecoverableStatus classifies an HTTP status code.
func IsRecoverableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
