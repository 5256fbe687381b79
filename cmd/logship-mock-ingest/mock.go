// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/logship/lib/ingestion"
	"github.com/bureau-foundation/logship/lib/netutil"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
)

// maxRequestBody bounds a decompressed request body.
const maxRequestBody = 16 << 20

type mockConfig struct {
	Serializer *ingest.Serializer

	// AppSecret, when set, is the only App-Secret accepted.
	AppSecret string

	// FailEvery answers every Nth log request with 503.
	FailEvery int

	Logger *slog.Logger
}

// Stats are the mock's running totals.
type Stats struct {
	Requests        int            `json:"requests"`
	AcceptedBatches int            `json:"accepted_batches"`
	Logs            int            `json:"logs"`
	ByType          map[string]int `json:"by_type"`
	Installs        int            `json:"installs"`
}

type mock struct {
	config mockConfig
	logger *slog.Logger

	mu       sync.Mutex
	requests int
	batches  int
	logs     int
	byType   map[string]int
	installs map[uuid.UUID]bool
}

func newMock(config mockConfig) *mock {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &mock{
		config:   config,
		logger:   logger,
		byType:   make(map[string]int),
		installs: make(map[uuid.UUID]bool),
	}
}

// Handler routes the mock's endpoints.
func (m *mock) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /logs", m.handleLogs)
	mux.HandleFunc("GET /stats", m.handleStats)
	return mux
}

// Stats returns a snapshot of the totals.
func (m *mock) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType := make(map[string]int, len(m.byType))
	for logType, count := range m.byType {
		byType[logType] = count
	}
	return Stats{
		Requests:        m.requests,
		AcceptedBatches: m.batches,
		Logs:            m.logs,
		ByType:          byType,
		Installs:        len(m.installs),
	}
}

func (m *mock) handleLogs(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	sequence := m.requests
	m.mu.Unlock()

	if r.URL.Query().Get("api_version") == "" {
		m.reject(w, http.StatusBadRequest, "missing api_version")
		return
	}
	secret := r.Header.Get(ingestion.HeaderAppSecret)
	if secret == "" || (m.config.AppSecret != "" && secret != m.config.AppSecret) {
		m.reject(w, http.StatusUnauthorized, "invalid app secret")
		return
	}
	installID, err := uuid.Parse(r.Header.Get(ingestion.HeaderInstallID))
	if err != nil {
		m.reject(w, http.StatusBadRequest, "invalid install id")
		return
	}
	if m.config.FailEvery > 0 && sequence%m.config.FailEvery == 0 {
		m.reject(w, http.StatusServiceUnavailable, "injected failure")
		return
	}

	body, err := readBody(r)
	if err != nil {
		if netutil.IsExpectedCloseError(err) {
			m.logger.Debug("client went away mid-request", "error", err)
			return
		}
		m.reject(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := m.config.Serializer.UnmarshalContainer(body)
	if err != nil {
		m.reject(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, log := range logs {
		if log.Common().Timestamp.IsZero() {
			m.reject(w, http.StatusBadRequest, fmt.Sprintf("log %d has no timestamp", i))
			return
		}
	}

	m.mu.Lock()
	m.batches++
	m.logs += len(logs)
	for _, log := range logs {
		m.byType[log.Type()]++
	}
	m.installs[installID] = true
	m.mu.Unlock()

	m.logger.Info("accepted batch",
		"logs", len(logs),
		"install_id", installID,
		"app_secret", netutil.Redact(secret),
		"encoding", r.Header.Get("Content-Encoding"),
	)
	w.WriteHeader(http.StatusOK)
}

func (m *mock) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.Stats()); err != nil {
		m.logger.Warn("writing stats failed", "error", err)
	}
}

func (m *mock) reject(w http.ResponseWriter, status int, reason string) {
	m.logger.Warn("rejecting request", "status", status, "reason", reason)
	http.Error(w, reason, status)
}

// readBody returns the decompressed request body.
func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	switch encoding := r.Header.Get("Content-Encoding"); encoding {
	case "", "identity":
	case "gzip":
		decoder, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	case "zstd":
		decoder, err := zstd.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer decoder.Close()
		reader = decoder
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxRequestBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxRequestBody {
		return nil, fmt.Errorf("body exceeds %d bytes", maxRequestBody)
	}
	return body, nil
}
