// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingestion turns a batch of logs into the ingestion
// service's HTTP request: one POST per batch to
// <base>/logs?api_version=<version>, authenticated by the application
// secret and install identifier headers, carrying a JSON log container.
package ingestion

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/netutil"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/transport"
)

// DefaultAPIVersion is the api_version query parameter sent when
// Config leaves APIVersion empty.
const DefaultAPIVersion = "1.0.0"

// Request headers.
const (
	HeaderAppSecret   = "App-Secret"
	HeaderInstallID   = "Install-ID"
	HeaderContentType = "Content-Type"

	contentTypeJSON = "application/json"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the scheme and host of the ingestion service, with an
	// optional path prefix. Required.
	BaseURL string

	APIVersion string

	// AppSecret identifies the application. Required.
	AppSecret string

	// InstallID identifies this installation. Required.
	InstallID uuid.UUID

	// Serializer encodes the container. Required.
	Serializer *ingest.Serializer

	// Clock computes toffset at send time. Nil means clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Client sends batches through a transport.Caller.
type Client struct {
	caller     transport.Caller
	apiVersion string
	appSecret  string
	installID  uuid.UUID
	serializer *ingest.Serializer
	clock      clock.Clock
	logger     *slog.Logger

	mu      sync.RWMutex
	baseURL string
}

// New validates config and returns a Client sending through caller.
func New(config Config, caller transport.Caller) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("ingestion: caller is required")
	}
	if config.Serializer == nil {
		return nil, fmt.Errorf("ingestion: serializer is required")
	}
	if config.AppSecret == "" {
		return nil, fmt.Errorf("ingestion: app secret is required")
	}
	if config.InstallID == uuid.Nil {
		return nil, fmt.Errorf("ingestion: install id is required")
	}
	baseURL, err := normalizeBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		caller:     caller,
		apiVersion: config.APIVersion,
		appSecret:  config.AppSecret,
		installID:  config.InstallID,
		serializer: config.Serializer,
		clock:      config.Clock,
		logger:     config.Logger,
		baseURL:    baseURL,
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("ingestion: base URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("ingestion: base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("ingestion: base URL %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("ingestion: base URL %q has no host", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// SetBaseURL points later sends at a different ingestion service.
// Calls already started keep their URL.
func (c *Client) SetBaseURL(raw string) error {
	baseURL, err := normalizeBaseURL(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.baseURL = baseURL
	c.mu.Unlock()
	c.logger.Info("ingestion base URL changed", "base_url", baseURL)
	return nil
}

// URL returns the endpoint batches are posted to.
func (c *Client) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL + "/logs?api_version=" + url.QueryEscape(c.apiVersion)
}

// Send posts logs as one container. The request body is built on
// every attempt, so each log's toffset reflects its age at that
// attempt. Building the body only reads the logs; they must not be
// mutated until callback runs or the call is cancelled.
func (c *Client) Send(logs []ingest.Log, callback transport.Callback) transport.Call {
	header := http.Header{}
	header.Set(HeaderContentType, contentTypeJSON)
	header.Set(HeaderAppSecret, c.appSecret)
	header.Set(HeaderInstallID, c.installID.String())

	request := &transport.Request{
		Method: http.MethodPost,
		URL:    c.URL(),
		Header: header,
		Body:   func() ([]byte, error) { return c.body(logs) },
	}
	c.logger.Debug("submitting batch",
		"url", request.URL,
		"logs", len(logs),
		"app_secret", netutil.Redact(c.appSecret),
		"install_id", c.installID,
	)
	return c.caller.Call(request, callback)
}

func (c *Client) body(logs []ingest.Log) ([]byte, error) {
	return c.serializer.MarshalContainerAt(logs, c.clock.Now())
}

// Close closes the underlying caller.
func (c *Client) Close() error {
	return c.caller.Close()
}
