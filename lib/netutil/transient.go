// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"syscall"
)

// connectionFailure matches error text from stacks that flatten the
// underlying errno into a message ("connection reset by peer",
// "connection timed out", "connection aborted").
var connectionFailure = regexp.MustCompile(`connection (time|reset|abort)`)

// IsTransient reports whether err is a network failure that a later
// attempt may not hit: timeouts, unexpected EOF, resets, refused or
// aborted connections, unreachable networks, and DNS errors.
//
// Context cancellation is never transient: the caller gave up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
			syscall.EPIPE, syscall.ENETUNREACH, syscall.EHOSTUNREACH,
			syscall.ENETDOWN, syscall.ETIMEDOUT:
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return connectionFailure.MatchString(err.Error())
}

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or reset. The mock
// ingestion server uses it to keep client disconnects out of its logs.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
