// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/testutil"
	"github.com/bureau-foundation/logship/lib/transport"
)

type capturedRequest struct {
	method string
	uri    string
	header http.Header
	body   []byte
}

func newCapturingServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- capturedRequest{method: r.Method, uri: r.URL.RequestURI(), header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func newTestClient(t *testing.T, baseURL string, clk clock.Clock) *Client {
	t.Helper()
	doer, err := transport.NewHTTP(transport.HTTPConfig{})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	caller := transport.NewAsync(doer, nil)
	client, err := New(Config{
		BaseURL:    baseURL,
		AppSecret:  "a5b6c7d8-secret",
		InstallID:  uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		Serializer: ingest.NewSerializer(),
		Clock:      clk,
	}, caller)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSendBuildsRequest(t *testing.T) {
	server, captured := newCapturingServer(t, http.StatusOK)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, server.URL+"/", clock.Fake(now))

	event := &ingest.EventLog{ID: uuid.New(), Name: "click"}
	event.Timestamp = now.Add(-1500 * time.Millisecond)
	page := &ingest.PageLog{Name: "home"}
	page.Timestamp = now

	done := make(chan error, 1)
	client.Send([]ingest.Log{event, page}, func(_ *transport.Response, err error) { done <- err })
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for send"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	request := testutil.RequireReceive(t, captured, time.Second, "captured request")
	if request.method != http.MethodPost {
		t.Errorf("method = %s", request.method)
	}
	if request.uri != "/logs?api_version=1.0.0" {
		t.Errorf("uri = %s", request.uri)
	}
	if got := request.header.Get(HeaderAppSecret); got != "a5b6c7d8-secret" {
		t.Errorf("App-Secret = %q", got)
	}
	if got := request.header.Get(HeaderInstallID); got != "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Errorf("Install-ID = %q", got)
	}
	if got := request.header.Get(HeaderContentType); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var container struct {
		Logs []struct {
			Type    string `json:"type"`
			Toffset int64  `json:"toffset"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(request.body, &container); err != nil {
		t.Fatalf("decoding body %s: %v", request.body, err)
	}
	if len(container.Logs) != 2 || container.Logs[0].Type != "event" || container.Logs[1].Type != "page" {
		t.Fatalf("container = %s", request.body)
	}
	if container.Logs[0].Toffset != 1500 || container.Logs[1].Toffset != 0 {
		t.Errorf("toffsets = %d, %d, want 1500, 0", container.Logs[0].Toffset, container.Logs[1].Toffset)
	}
	if event.Toffset != 0 {
		t.Errorf("toffset left set on the log: %d", event.Toffset)
	}
}

func TestSendReportsStatusError(t *testing.T) {
	server, _ := newCapturingServer(t, http.StatusForbidden)
	client := newTestClient(t, server.URL, clock.Real())

	done := make(chan error, 1)
	client.Send([]ingest.Log{&ingest.StartSessionLog{}}, func(_ *transport.Response, err error) { done <- err })
	err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for send")
	if err == nil || transport.IsRecoverable(err) {
		t.Fatalf("err = %v, want terminal status error", err)
	}
}

func TestSetBaseURL(t *testing.T) {
	client := newTestClient(t, "https://in.example.net", clock.Real())
	if got := client.URL(); got != "https://in.example.net/logs?api_version=1.0.0" {
		t.Errorf("URL() = %s", got)
	}
	if err := client.SetBaseURL("http://127.0.0.1:8080/prefix/"); err != nil {
		t.Fatalf("SetBaseURL: %v", err)
	}
	if got := client.URL(); got != "http://127.0.0.1:8080/prefix/logs?api_version=1.0.0" {
		t.Errorf("URL() after override = %s", got)
	}
	if err := client.SetBaseURL("ftp://nope"); err == nil {
		t.Error("expected error for non-HTTP scheme")
	}
}

func TestNewValidates(t *testing.T) {
	caller := transport.NewAsync(nil, nil)
	defer caller.Close()
	valid := Config{
		BaseURL:    "https://in.example.net",
		AppSecret:  "secret",
		InstallID:  uuid.New(),
		Serializer: ingest.NewSerializer(),
	}
	if _, err := New(valid, caller); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := []func(*Config){
		func(c *Config) { c.BaseURL = "" },
		func(c *Config) { c.BaseURL = "in.example.net" },
		func(c *Config) { c.AppSecret = "" },
		func(c *Config) { c.InstallID = uuid.Nil },
		func(c *Config) { c.Serializer = nil },
	}
	for i, mutate := range broken {
		config := valid
		mutate(&config)
		if _, err := New(config, caller); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if _, err := New(valid, nil); err == nil {
		t.Error("expected error for nil caller")
	}
}

// The channel may report a batch's logs to listeners while a body for
// them is still being built; building must only read them.
func TestSendBodyOnlyReadsLogs(t *testing.T) {
	server, _ := newCapturingServer(t, http.StatusOK)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, server.URL, clock.Fake(now))

	page := &ingest.PageLog{Name: "home"}
	page.Timestamp = now.Add(-time.Second)
	serializer := ingest.NewSerializer()

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := serializer.MarshalLog(page); err != nil {
				t.Errorf("MarshalLog: %v", err)
				return
			}
		}
	}()

	done := make(chan error, 1)
	client.Send([]ingest.Log{page}, func(_ *transport.Response, err error) { done <- err })
	err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for send")
	close(stop)
	testutil.RequireClosed(t, readerDone, 5*time.Second, "reader stops")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if page.Toffset != 0 {
		t.Errorf("Toffset written on the log: %d", page.Toffset)
	}
}
