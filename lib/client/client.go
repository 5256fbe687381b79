// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client assembles the delivery pipeline from a
// [config.Config]: the SQLite database, preferences, the log store,
// the transport chain, the ingestion client, the channel, and its
// device and session listeners.
//
// A [Client] is the context object handed to features that produce
// logs. There is no package-level instance.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/logship/lib/channel"
	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/config"
	"github.com/bureau-foundation/logship/lib/connectivity"
	"github.com/bureau-foundation/logship/lib/device"
	"github.com/bureau-foundation/logship/lib/ingestion"
	"github.com/bureau-foundation/logship/lib/logstore"
	"github.com/bureau-foundation/logship/lib/netutil"
	"github.com/bureau-foundation/logship/lib/prefs"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/session"
	"github.com/bureau-foundation/logship/lib/sqlitepool"
	"github.com/bureau-foundation/logship/lib/transport"
)

// Options supplies collaborators that are not part of the
// configuration file.
type Options struct {
	Logger *slog.Logger

	// Clock drives every timer in the pipeline. Nil means
	// clock.Real().
	Clock clock.Clock

	// Doer performs HTTP exchanges. Nil means a transport.HTTP built
	// from the transport section.
	Doer transport.Doer

	// Monitor reports network reachability. Nil means a
	// connectivity.Probe when a probe address is configured, and an
	// always-online monitor otherwise.
	Monitor connectivity.Monitor

	// Serializer decodes and encodes logs. Nil means
	// ingest.NewSerializer(). Register custom log types on it before
	// calling New.
	Serializer *ingest.Serializer

	// GroupListeners receive delivery outcomes, keyed by group name.
	GroupListeners map[string]channel.GroupListener
}

// Client is a running delivery pipeline.
type Client struct {
	logger     *slog.Logger
	pool       *sqlitepool.Pool
	prefs      *prefs.Store
	serializer *ingest.Serializer
	ingestion  *ingestion.Client
	channel    *channel.Channel
	stamper    *device.Stamper
	tracker    *session.Tracker
	monitor    connectivity.Monitor
	installID  uuid.UUID

	// groups holds the configured groups; a group is registered with
	// the channel only while its persisted flag is enabled.
	groups    map[string]config.GroupConfig
	listeners map[string]channel.GroupListener

	groupsMu       sync.Mutex
	disabledGroups map[string]bool

	stopProbe context.CancelFunc
	probeDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, opens the database, and starts the pipeline. The
// persisted enabled flag decides whether the channel starts enabled.
// ctx bounds startup only.
func New(ctx context.Context, cfg *config.Config, options Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	serializer := options.Serializer
	if serializer == nil {
		serializer = ingest.NewSerializer()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:    cfg.Storage.Path,
		Durable: true,
		Schema:  []string{logstore.Schema, prefs.Schema},
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{logger: logger, pool: pool, serializer: serializer}
	if err := c.build(ctx, cfg, options, clk); err != nil {
		c.abort()
		return nil, err
	}

	logger.Info("client started",
		"install_id", c.installID,
		"log_url", cfg.LogURL,
		"app_secret", netutil.Redact(cfg.AppSecret),
		"enabled", c.channel.IsEnabled(),
		"groups", len(cfg.Groups),
	)
	return c, nil
}

func (c *Client) build(ctx context.Context, cfg *config.Config, options Options, clk clock.Clock) error {
	var err error
	c.prefs, err = prefs.New(prefs.Config{Pool: c.pool, Clock: clk, Logger: c.logger})
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	c.installID, err = c.prefs.InstallID(ctx)
	if err != nil {
		return fmt.Errorf("client: install id: %w", err)
	}
	enabled, err := c.prefs.Enabled(ctx, "")
	if err != nil {
		c.logger.Warn("enabled flag unreadable, starting enabled", "error", err)
	}

	store, err := logstore.New(logstore.Config{
		Pool:              c.pool,
		CompressThreshold: cfg.Storage.CompressThreshold,
		Clock:             clk,
		Logger:            c.logger,
	})
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	doer := options.Doer
	if doer == nil {
		doer, err = transport.NewHTTP(transport.HTTPConfig{
			Client:      &http.Client{Timeout: cfg.Transport.Timeout},
			Compression: cfg.Transport.Compression,
			Logger:      c.logger,
		})
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
	}

	c.monitor = options.Monitor
	if c.monitor == nil {
		c.monitor, err = c.startMonitor(cfg.Transport.Connectivity, clk)
		if err != nil {
			return err
		}
	}

	caller := transport.Chain(transport.NewAsync(doer, c.logger),
		transport.GateStage(c.monitor, c.logger),
		transport.RetryStage(transport.RetryConfig{
			Intervals: cfg.Transport.RetryIntervals,
			Clock:     clk,
			Logger:    c.logger,
		}),
	)
	c.ingestion, err = ingestion.New(ingestion.Config{
		BaseURL:    cfg.LogURL,
		APIVersion: cfg.APIVersion,
		AppSecret:  cfg.AppSecret,
		InstallID:  c.installID,
		Serializer: c.serializer,
		Clock:      clk,
		Logger:     c.logger,
	}, caller)
	if err != nil {
		caller.Close()
		return fmt.Errorf("client: %w", err)
	}

	c.channel, err = channel.New(channel.Config{
		Store:         store,
		Ingestion:     c.ingestion,
		Serializer:    c.serializer,
		Clock:         clk,
		Logger:        c.logger,
		RetryCooldown: cfg.Channel.RetryCooldown,
		Disabled:      !enabled,
	})
	if err != nil {
		c.ingestion.Close()
		return fmt.Errorf("client: %w", err)
	}

	c.stamper = device.NewStamper(device.Config{
		AppVersion:        cfg.App.Version,
		AppBuild:          cfg.App.Build,
		AppNamespace:      cfg.App.Namespace,
		WrapperSDKName:    cfg.App.WrapperSDKName,
		WrapperSDKVersion: cfg.App.WrapperSDKVersion,
		Clock:             clk,
		Logger:            c.logger,
	})
	c.channel.AddListener(c.stamper)

	if cfg.Session.Group != "" {
		c.tracker, err = session.NewTracker(session.TrackerConfig{
			Group:           cfg.Session.Group,
			Enqueuer:        c.channel,
			Prefs:           c.prefs,
			Clock:           clk,
			Logger:          c.logger,
			Timeout:         cfg.Session.Timeout,
			HistoryCapacity: cfg.Session.HistoryCapacity,
		})
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		c.channel.AddListener(c.tracker)
	}

	flags, err := c.prefs.GroupFlags(ctx)
	if err != nil {
		c.logger.Warn("group flags unreadable, starting every group", "error", err)
	}
	c.groups = make(map[string]config.GroupConfig, len(cfg.Groups))
	c.listeners = options.GroupListeners
	c.disabledGroups = make(map[string]bool)
	for _, group := range cfg.Groups {
		c.groups[group.Name] = group
		if enabled, ok := flags[group.Name]; ok && !enabled {
			c.disabledGroups[group.Name] = true
			c.logger.Info("group disabled, not registering", "group", group.Name)
			continue
		}
		if err := c.addGroup(group); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) addGroup(group config.GroupConfig) error {
	err := c.channel.AddGroup(group.Name, channel.GroupConfig{
		MaxLogsPerBatch:    group.MaxLogsPerBatch,
		BatchInterval:      group.BatchInterval,
		MaxParallelBatches: group.MaxParallelBatches,
		MaxPersistedLogs:   group.MaxPersistedLogs,
	}, c.listeners[group.Name])
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// startMonitor returns a running Probe, or an always-online monitor
// when no probe address is configured.
func (c *Client) startMonitor(cfg config.ConnectivityConfig, clk clock.Clock) (connectivity.Monitor, error) {
	if cfg.ProbeAddress == "" {
		return connectivity.NewManual(true), nil
	}
	probe, err := connectivity.NewProbe(connectivity.ProbeConfig{
		Address:  cfg.ProbeAddress,
		Interval: cfg.ProbeInterval,
		Clock:    clk,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopProbe = cancel
	c.probeDone = make(chan struct{})
	go func() {
		defer close(c.probeDone)
		probe.Run(ctx)
	}()
	return probe, nil
}

// abort releases whatever build managed to start.
func (c *Client) abort() {
	if c.channel != nil {
		c.channel.Shutdown(context.Background())
	}
	c.stopMonitor()
	c.pool.Close()
}

func (c *Client) stopMonitor() {
	if c.stopProbe == nil {
		return
	}
	c.stopProbe()
	<-c.probeDone
}

// Channel returns the delivery channel.
func (c *Client) Channel() *channel.Channel { return c.channel }

// Tracker returns the session tracker, or nil when session tracking
// is disabled.
func (c *Client) Tracker() *session.Tracker { return c.tracker }

// Stamper returns the device metadata listener.
func (c *Client) Stamper() *device.Stamper { return c.stamper }

// Serializer returns the log type registry in use.
func (c *Client) Serializer() *ingest.Serializer { return c.serializer }

// InstallID returns the persistent installation identifier.
func (c *Client) InstallID() uuid.UUID { return c.installID }

// Enqueue queues log for group.
func (c *Client) Enqueue(log ingest.Log, group string) {
	c.channel.Enqueue(log, group)
}

// SetEnabled persists the enabled flag and applies it to the channel.
// Disabling deletes every stored log.
func (c *Client) SetEnabled(ctx context.Context, enabled bool) error {
	if err := c.prefs.SetEnabled(ctx, "", enabled); err != nil {
		return fmt.Errorf("client: persisting enabled flag: %w", err)
	}
	c.channel.SetEnabled(enabled)
	return nil
}

// SetGroupEnabled persists the enabled flag of one configured group.
// Disabling deletes the group's stored logs and unregisters it, so
// later logs for it are dropped; enabling registers it again.
func (c *Client) SetGroupEnabled(ctx context.Context, name string, enabled bool) error {
	group, ok := c.groups[name]
	if !ok {
		return fmt.Errorf("client: %w: %q", channel.ErrUnknownGroup, name)
	}
	if err := c.prefs.SetEnabled(ctx, name, enabled); err != nil {
		return fmt.Errorf("client: persisting enabled flag for %s: %w", name, err)
	}

	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if c.disabledGroups[name] == !enabled {
		return nil
	}
	if enabled {
		if err := c.addGroup(group); err != nil {
			return err
		}
		delete(c.disabledGroups, name)
	} else {
		c.channel.ClearGroup(name)
		c.channel.RemoveGroup(name)
		c.disabledGroups[name] = true
	}
	c.logger.Info("group enabled flag changed", "group", name, "enabled", enabled)
	return nil
}

// IsGroupEnabled reports whether a configured group is registered.
// Unknown groups report false.
func (c *Client) IsGroupEnabled(name string) bool {
	if _, ok := c.groups[name]; !ok {
		return false
	}
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	return !c.disabledGroups[name]
}

// IsEnabled reports whether the channel is enabled.
func (c *Client) IsEnabled() bool {
	return c.channel.IsEnabled()
}

// SetLogURL changes the ingestion base URL for subsequent batches.
func (c *Client) SetLogURL(raw string) error {
	return c.ingestion.SetBaseURL(raw)
}

// Close shuts the channel down and closes the database. Logs not yet
// delivered stay stored for the next process. Calling Close again
// returns the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.channel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("client: %w", err))
		}
		c.stopMonitor()
		if err := c.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("client: closing database: %w", err))
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Info("client closed")
	})
	return c.closeErr
}
