// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// logship-mock-ingest is a stand-in ingestion service for local
// testing. It accepts POST /logs exactly as the real service does
// (headers, api_version, gzip or zstd bodies, the {"logs":[...]}
// container), counts what it receives, and reports totals on GET
// /stats. --fail-every makes every Nth request fail with 503 to
// exercise client retries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/logship/lib/process"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		listen      string
		appSecret   string
		failEvery   int
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("logship-mock-ingest", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", "127.0.0.1:8086", "address to listen on")
	flagSet.StringVar(&appSecret, "app-secret", "", "required App-Secret header value (default: accept any)")
	flagSet.IntVar(&failEvery, "fail-every", 0, "answer every Nth log request with 503 (0 disables)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}
	if showVersion {
		fmt.Printf("logship-mock-ingest %s\n", version.Info())
		return nil
	}
	if failEvery < 0 {
		return &process.ExitError{Code: 2, Err: fmt.Errorf("--fail-every must not be negative")}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return &process.ExitError{Code: 2, Err: fmt.Errorf("--log-level: %w", err)}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := newMock(mockConfig{
		Serializer: ingest.NewSerializer(),
		AppSecret:  appSecret,
		FailEvery:  failEvery,
		Logger:     logger,
	})

	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}
	server := &http.Server{
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()
	logger.Info("mock ingestion service running",
		"address", listener.Addr().String(),
		"fail_every", failEvery,
		"app_secret_required", appSecret != "",
	)

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-serveDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	stats := mock.Stats()
	logger.Info("final totals",
		"requests", stats.Requests,
		"accepted_batches", stats.AcceptedBatches,
		"logs", stats.Logs,
	)
	return nil
}
