// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"status":"ok"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"status":"ok"}` {
			t.Fatalf("got %q, want %q", data, `{"status":"ok"}`)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		data, err := ReadResponse(strings.NewReader(strings.Repeat("x", int(MaxResponseSize)+10)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if int64(len(data)) != MaxResponseSize {
			t.Fatalf("read %d bytes, want %d", len(data), MaxResponseSize)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(bytes.NewReader([]byte(`{"error":"bad secret"}`))); got != `{"error":"bad secret"}` {
		t.Fatalf("got %q", got)
	}
	if got := ErrorBody(&failReader{}); got != "" {
		t.Fatalf("expected empty from failing reader, got %q", got)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"a5b6c7d8-0000-1111-2222-333344445555", "****************************44445555"},
	}
	for _, test := range tests {
		if got := Redact(test.in); got != test.want {
			t.Errorf("Redact(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
