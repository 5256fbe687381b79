// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/logship/lib/clock"
)

// Dialer opens connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	// Address is the host:port dialed on every probe. Required.
	Address string

	// Interval between probes. Default 30s.
	Interval time.Duration

	// Timeout bounds each dial. Default 5s.
	Timeout time.Duration

	// Clock drives the probe ticker. Nil means clock.Real().
	Clock clock.Clock

	// Dialer opens probe connections. Nil means a *net.Dialer.
	Dialer Dialer

	Logger *slog.Logger
}

// Probe is a Monitor that considers the network online when a TCP
// connection to Address succeeds. It starts out online so that calls
// are attempted before the first probe completes.
type Probe struct {
	subscribers

	address  string
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	dialer   Dialer
	logger   *slog.Logger
}

// NewProbe validates config and returns a Probe. Call Run to start
// probing.
func NewProbe(config ProbeConfig) (*Probe, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("connectivity: probe address is required")
	}
	if _, _, err := net.SplitHostPort(config.Address); err != nil {
		return nil, fmt.Errorf("connectivity: probe address %q: %w", config.Address, err)
	}
	p := &Probe{
		address:  config.Address,
		interval: config.Interval,
		timeout:  config.Timeout,
		clock:    config.Clock,
		dialer:   config.Dialer,
		logger:   config.Logger,
	}
	if p.interval <= 0 {
		p.interval = 30 * time.Second
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.dialer == nil {
		p.dialer = &net.Dialer{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.online = true
	return p, nil
}

// Run probes immediately and then once per interval until ctx is
// cancelled.
func (p *Probe) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check runs one probe and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.address)
	online := err == nil
	if conn != nil {
		conn.Close()
	}
	if ctx.Err() != nil {
		return p.Online()
	}
	if p.set(online) {
		if online {
			p.logger.Info("network available", "probe_address", p.address)
		} else {
			p.logger.Warn("network unavailable", "probe_address", p.address, "error", err)
		}
	}
	return online
}
