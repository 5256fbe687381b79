// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/logship/lib/process"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/testutil"
)

func TestParseProperties(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", args: nil, want: nil},
		{name: "pairs", args: []string{"plan=pro", "seats=3"}, want: map[string]string{"plan": "pro", "seats": "3"}},
		{name: "empty value", args: []string{"note="}, want: map[string]string{"note": ""}},
		{name: "value with equals", args: []string{"query=a=b"}, want: map[string]string{"query": "a=b"}},
		{name: "missing equals", args: []string{"plan"}, wantErr: true},
		{name: "missing key", args: []string{"=pro"}, wantErr: true},
		{name: "duplicate", args: []string{"a=1", "a=2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProperties(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseProperties(%v) succeeded, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProperties(%v): %v", tt.args, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseProperties(%v) = %v, want %v", tt.args, got, tt.want)
			}
			for key, value := range tt.want {
				if got[key] != value {
					t.Errorf("property %s = %q, want %q", key, got[key], value)
				}
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "logship ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"launch"}},
		{"event without name", []string{"event"}},
		{"bad property", []string{"event", "click", "plan"}},
		{"status with arguments", []string{"status", "extra"}},
		{"disable with two groups", []string{"disable", "analytics", "crashes"}},
		{"unknown flag", []string{"--frobnicate"}},
		{"bad log level", []string{"--log-level", "loud", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			var exitErr *process.ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != 2 {
				t.Errorf("run(%v) = %v, want a usage error", tt.args, err)
			}
		})
	}
}

func TestRunEventDelivers(t *testing.T) {
	serializer := ingest.NewSerializer()
	received := make(chan []ingest.Log, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "zstd" {
			http.Error(w, "expected zstd", http.StatusBadRequest)
			return
		}
		decoder, err := zstd.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer decoder.Close()
		body, err := io.ReadAll(decoder)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logs, err := serializer.UnmarshalContainer(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received <- logs
	}))
	defer server.Close()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "logship.yaml")
	content := `
app_secret: test-secret
log_url: ` + server.URL + `
storage:
  path: ` + filepath.Join(dir, "logship.db") + `
transport:
  compression: zstd
groups:
  - name: analytics
    max_logs_per_batch: 2
    batch_interval: 100ms
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	args := []string{"--config", configPath, "--wait", "5s", "event", "checkout", "plan=pro"}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}

	logs := testutil.RequireReceive(t, received, 5*time.Second, "waiting for the batch")
	var event *ingest.EventLog
	for _, log := range logs {
		if e, ok := log.(*ingest.EventLog); ok {
			event = e
		}
	}
	if event == nil {
		t.Fatalf("batch %v has no event", logs)
	}
	if event.Name != "checkout" || event.Properties["plan"] != "pro" {
		t.Errorf("event = %+v, want checkout with plan=pro", event)
	}
	if event.SessionID == nil {
		t.Error("event has no session id")
	}
	if !strings.Contains(stdout.String(), "pending 0, in flight 0") {
		t.Errorf("status output = %q, want an idle analytics group", stdout.String())
	}
}
