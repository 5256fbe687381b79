// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/logship/lib/netutil"
	"github.com/bureau-foundation/logship/lib/version"
)

// Request body compression.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// DefaultTimeout bounds a single HTTP exchange when HTTPConfig leaves
// Client nil.
const DefaultTimeout = 30 * time.Second

// HTTPConfig configures an HTTP Doer.
type HTTPConfig struct {
	// Client performs the exchange. Nil means a client with
	// DefaultTimeout.
	Client *http.Client

	// Compression is CompressionNone (or empty), CompressionGzip, or
	// CompressionZstd.
	Compression string

	Logger *slog.Logger
}

// HTTP is the Doer that talks to the ingestion endpoint.
type HTTP struct {
	client      *http.Client
	compression string
	encoder     *zstd.Encoder
	logger      *slog.Logger
}

// NewHTTP validates config and returns an HTTP Doer.
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	h := &HTTP{client: config.Client, compression: config.Compression, logger: config.Logger}
	if h.client == nil {
		h.client = &http.Client{Timeout: DefaultTimeout}
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	switch h.compression {
	case "", CompressionNone:
		h.compression = CompressionNone
	case CompressionGzip:
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("transport: creating zstd encoder: %w", err)
		}
		h.encoder = encoder
	default:
		return nil, fmt.Errorf("transport: unknown compression %q", h.compression)
	}
	return h, nil
}

// Do sends request and reads the whole reply. Any status other than
// 200 returns the response together with a *StatusError.
func (h *HTTP) Do(ctx context.Context, request *Request) (*Response, error) {
	var body []byte
	if request.Body != nil {
		var err error
		body, err = request.Body()
		if err != nil {
			return nil, fmt.Errorf("transport: building request body: %w", err)
		}
	}
	rawSize := len(body)
	body, encoding, err := h.compress(body)
	if err != nil {
		return nil, err
	}

	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, request.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	httpRequest.Header.Set("User-Agent", version.UserAgent())
	for key, values := range request.Header {
		httpRequest.Header[key] = append([]string(nil), values...)
	}
	if encoding != "" {
		httpRequest.Header.Set("Content-Encoding", encoding)
	}

	h.logger.Debug("sending request",
		"method", request.Method,
		"url", request.URL,
		"body_bytes", rawSize,
		"wire_bytes", len(body),
	)

	httpResponse, err := h.client.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", request.Method, request.URL, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		// The status is reported even if the body cannot be read.
		body := netutil.ErrorBody(httpResponse.Body)
		response := &Response{
			StatusCode: httpResponse.StatusCode,
			Header:     httpResponse.Header,
			Body:       []byte(body),
		}
		return response, &StatusError{
			StatusCode: httpResponse.StatusCode,
			Body:       body,
			Header:     httpResponse.Header,
		}
	}

	data, err := netutil.ReadResponse(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response: %w", err)
	}
	return &Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       data,
	}, nil
}

func (h *HTTP) compress(body []byte) ([]byte, string, error) {
	if len(body) == 0 {
		return body, "", nil
	}
	switch h.compression {
	case CompressionGzip:
		var buffer bytes.Buffer
		writer := gzip.NewWriter(&buffer)
		if _, err := writer.Write(body); err != nil {
			return nil, "", fmt.Errorf("transport: gzip: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("transport: gzip: %w", err)
		}
		return buffer.Bytes(), CompressionGzip, nil
	case CompressionZstd:
		return h.encoder.EncodeAll(body, nil), CompressionZstd, nil
	default:
		return body, "", nil
	}
}
