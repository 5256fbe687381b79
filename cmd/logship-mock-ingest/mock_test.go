// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/logship/lib/ingestion"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
)

const (
	testSecret    = "mock-secret"
	testInstallID = "0f8fad5b-d9cb-469f-a165-70867728950e"
	testBody      = `{"logs":[` +
		`{"type":"startSession","timestamp":"2026-03-01T12:00:00Z"},` +
		`{"type":"event","timestamp":"2026-03-01T12:00:01Z","id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","name":"click"}` +
		`]}`
)

func newTestMock(t *testing.T, failEvery int) (*mock, *httptest.Server) {
	t.Helper()
	m := newMock(mockConfig{
		Serializer: ingest.NewSerializer(),
		AppSecret:  testSecret,
		FailEvery:  failEvery,
	})
	server := httptest.NewServer(m.Handler())
	t.Cleanup(server.Close)
	return m, server
}

func post(t *testing.T, server *httptest.Server, path, encoding string, body []byte, mutate func(http.Header)) int {
	t.Helper()
	request, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.Header.Set(ingestion.HeaderAppSecret, testSecret)
	request.Header.Set(ingestion.HeaderInstallID, testInstallID)
	request.Header.Set(ingestion.HeaderContentType, "application/json")
	if encoding != "" {
		request.Header.Set("Content-Encoding", encoding)
	}
	if mutate != nil {
		mutate(request.Header)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	response.Body.Close()
	return response.StatusCode
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buffer.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil)
}

func TestAcceptsEncodings(t *testing.T) {
	m, server := newTestMock(t, 0)
	body := []byte(testBody)

	for _, test := range []struct {
		encoding string
		body     []byte
	}{
		{"", body},
		{"gzip", gzipBytes(t, body)},
		{"zstd", zstdBytes(t, body)},
	} {
		if status := post(t, server, "/logs?api_version=1.0.0", test.encoding, test.body, nil); status != http.StatusOK {
			t.Errorf("encoding %q: status = %d", test.encoding, status)
		}
	}

	stats := m.Stats()
	if stats.Requests != 3 || stats.AcceptedBatches != 3 || stats.Logs != 6 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByType[ingest.TypeEvent] != 3 || stats.ByType[ingest.TypeStartSession] != 3 {
		t.Errorf("by type = %v", stats.ByType)
	}
	if stats.Installs != 1 {
		t.Errorf("installs = %d, want 1", stats.Installs)
	}
}

func TestRejectsBadRequests(t *testing.T) {
	m, server := newTestMock(t, 0)
	body := []byte(testBody)

	tests := []struct {
		name   string
		path   string
		body   []byte
		mutate func(http.Header)
		want   int
	}{
		{"missing api version", "/logs", body, nil, http.StatusBadRequest},
		{"wrong secret", "/logs?api_version=1.0.0", body,
			func(h http.Header) { h.Set(ingestion.HeaderAppSecret, "other") }, http.StatusUnauthorized},
		{"missing secret", "/logs?api_version=1.0.0", body,
			func(h http.Header) { h.Del(ingestion.HeaderAppSecret) }, http.StatusUnauthorized},
		{"bad install id", "/logs?api_version=1.0.0", body,
			func(h http.Header) { h.Set(ingestion.HeaderInstallID, "not-a-uuid") }, http.StatusBadRequest},
		{"malformed container", "/logs?api_version=1.0.0", []byte(`{"logs":[{"type":"event"`), nil, http.StatusBadRequest},
		{"unknown type", "/logs?api_version=1.0.0", []byte(`{"logs":[{"type":"crash","timestamp":"2026-03-01T12:00:00Z"}]}`), nil, http.StatusBadRequest},
		{"missing timestamp", "/logs?api_version=1.0.0", []byte(`{"logs":[{"type":"startSession"}]}`), nil, http.StatusBadRequest},
		{"unsupported encoding", "/logs?api_version=1.0.0", body,
			func(h http.Header) { h.Set("Content-Encoding", "br") }, http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if status := post(t, server, test.path, "", test.body, test.mutate); status != test.want {
				t.Errorf("status = %d, want %d", status, test.want)
			}
		})
	}

	if stats := m.Stats(); stats.AcceptedBatches != 0 || stats.Logs != 0 {
		t.Errorf("rejected requests were counted: %+v", stats)
	}
}

func TestFailEvery(t *testing.T) {
	m, server := newTestMock(t, 2)
	body := []byte(testBody)

	var statuses []int
	for range 4 {
		statuses = append(statuses, post(t, server, "/logs?api_version=1.0.0", "", body, nil))
	}
	want := []int{http.StatusOK, http.StatusServiceUnavailable, http.StatusOK, http.StatusServiceUnavailable}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", statuses, want)
			break
		}
	}
	if stats := m.Stats(); stats.AcceptedBatches != 2 || stats.Requests != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, server := newTestMock(t, 0)
	post(t, server, "/logs?api_version=1.0.0", "", []byte(testBody), nil)

	response, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer response.Body.Close()
	if !strings.HasPrefix(response.Header.Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", response.Header.Get("Content-Type"))
	}
	var stats Stats
	if err := json.NewDecoder(response.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Logs != 2 || stats.ByType[ingest.TypeEvent] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
