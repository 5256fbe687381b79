// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
)

func TestIsRecoverableStatus(t *testing.T) {
	recoverable := []int{408, 429, 500, 501, 502, 503, 504}
	terminal := []int{400, 401, 402, 403, 404, 405, 406, 409, 410, 411, 412, 413, 414, 415}

	for _, code := range recoverable {
		if !IsRecoverable(&StatusError{StatusCode: code}) {
			t.Errorf("status %d: recoverable = false, want true", code)
		}
	}
	for _, code := range terminal {
		if IsRecoverable(&StatusError{StatusCode: code}) {
			t.Errorf("status %d: recoverable = true, want false", code)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRecoverableErrors(t *testing.T) {
	_, parseErr := url.Parse("http://[::1")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutError{}}, true},
		{"connection reset", &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "read", Net: "tcp", Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}}}, true},
		{"dns failure", &url.Error{Op: "Post", URL: "http://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}, true},
		{"unexpected eof", fmt.Errorf("reading: %w", io.ErrUnexpectedEOF), true},
		{"unreachable", syscall.EHOSTUNREACH, true},
		{"malformed url", parseErr, false},
		{"cancelled", ErrCancelled, false},
		{"context cancelled", fmt.Errorf("transport: %w", context.Canceled), false},
		{"closed", ErrClosed, false},
		{"exhausted 503", &RetriesExhaustedError{Attempts: 4, Err: &StatusError{StatusCode: 503}}, true},
		{"exhausted 413", &RetriesExhaustedError{Attempts: 1, Err: &StatusError{StatusCode: 413}}, false},
		{"unknown", errors.New("something else"), false},
		{"nil", nil, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsRecoverable(test.err); got != test.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}
