// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and network error helpers shared by the
// logship transport and tooling.
//
// Response helpers (ReadResponse, ErrorBody) bound body reads at
// MaxResponseSize. Ingestion replies are tiny JSON documents; the bound
// only exists so that a misbehaving endpoint cannot exhaust memory.
//
// IsTransient classifies errors from dialing and exchanging requests
// into those a later attempt may not see again (timeouts, resets,
// refused connections, DNS failures) and everything else.
package netutil

import (
	"io"
	"strings"
)

// MaxResponseSize bounds response body reads: 4 MB.
const MaxResponseSize int64 = 4 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an error response body for a diagnostic message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}

// Redact masks a secret for logging, keeping only the last eight
// characters. Secrets of eight characters or fewer are fully masked.
func Redact(secret string) string {
	const visible = 8
	if len(secret) <= visible {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-visible) + secret[len(secret)-visible:]
}
