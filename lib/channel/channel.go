// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/logstore"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/transport"
)

var (
	// ErrDisabled is reported to GroupListener.Failure for logs
	// discarded because the channel is disabled.
	ErrDisabled = errors.New("channel: disabled")

	// ErrShutdown is returned by operations on a shut-down channel.
	ErrShutdown = errors.New("channel: shut down")

	// ErrUnknownGroup is returned for operations naming a group that
	// was never added.
	ErrUnknownGroup = errors.New("channel: unknown group")
)

// DefaultRetryCooldown is how long sending stays suspended after a
// batch exhausted its retries on a recoverable error.
const DefaultRetryCooldown = 10 * time.Minute

// maxNestedEnqueue bounds how deeply listener hooks may enqueue logs
// from inside other hooks.
const maxNestedEnqueue = 8

// Store is the persistent backlog. *logstore.Store implements it.
type Store interface {
	Put(ctx context.Context, group, logType string, payload []byte) (logstore.PutResult, error)
	SetCapacity(group string, max int)
	Claim(ctx context.Context, group string, limit int) (logstore.Batch, error)
	DeleteBatch(ctx context.Context, group, batchID string) error
	DeleteLogs(ctx context.Context, group string, ids []int64) error
	DeleteGroup(ctx context.Context, group string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
	Count(ctx context.Context, group string) (int, error)
	Release(group, batchID string)
	ReleaseAll()
	Close() error
}

// Ingestion submits one batch. *ingestion.Client implements it.
type Ingestion interface {
	Send(logs []ingest.Log, callback transport.Callback) transport.Call
	Close() error
}

// Config configures a Channel.
type Config struct {
	// Store persists logs. Required. Closed by Shutdown.
	Store Store

	// Ingestion sends batches. Required. Closed by Shutdown.
	Ingestion Ingestion

	// Serializer encodes logs for the store and decodes them for
	// sending. Required.
	Serializer *ingest.Serializer

	Clock clock.Clock

	Logger *slog.Logger

	// RetryCooldown defaults to DefaultRetryCooldown.
	RetryCooldown time.Duration

	// Disabled starts the channel disabled.
	Disabled bool
}

// Channel is the delivery pipeline. All methods are safe for
// concurrent use and none block on I/O except Sync, Status, and
// Shutdown, which wait for the worker.
type Channel struct {
	store         Store
	ingestion     Ingestion
	serializer    *ingest.Serializer
	clock         clock.Clock
	logger        *slog.Logger
	retryCooldown time.Duration

	queue        *taskQueue
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	enabledFlag atomic.Bool

	// Owned by the worker goroutine.
	ctx            context.Context
	groups         map[string]*group
	listeners      []Listener
	enabled        bool
	networkAllowed bool
	suspended      bool
	cooldown       *clock.Timer
	cooldownSeq    int
}

var _ Enqueuer = (*Channel)(nil)

// New validates config and starts the channel's worker.
func New(config Config) (*Channel, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("channel: store is required")
	}
	if config.Ingestion == nil {
		return nil, fmt.Errorf("channel: ingestion is required")
	}
	if config.Serializer == nil {
		return nil, fmt.Errorf("channel: serializer is required")
	}
	c := &Channel{
		store:          config.Store,
		ingestion:      config.Ingestion,
		serializer:     config.Serializer,
		clock:          config.Clock,
		logger:         config.Logger,
		retryCooldown:  config.RetryCooldown,
		queue:          newTaskQueue(),
		done:           make(chan struct{}),
		ctx:            context.Background(),
		groups:         make(map[string]*group),
		enabled:        !config.Disabled,
		networkAllowed: true,
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.retryCooldown <= 0 {
		c.retryCooldown = DefaultRetryCooldown
	}
	c.enabledFlag.Store(c.enabled)

	go c.run()
	return c, nil
}

func (c *Channel) run() {
	defer close(c.done)
	for {
		tasks := c.queue.take()
		if tasks == nil {
			return
		}
		for _, task := range tasks {
			task()
		}
	}
}

// post queues task for the worker, logging when the channel is shut
// down.
func (c *Channel) post(operation string, task func()) bool {
	if c.queue.post(task) {
		return true
	}
	c.logger.Debug("channel shut down, ignoring operation", "operation", operation)
	return false
}

// wait posts task and blocks until it ran.
func (c *Channel) wait(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if !c.queue.post(func() {
		task()
		close(finished)
	}) {
		return ErrShutdown
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddGroup registers a group. Logs for a name are ignored until its
// group is added. Rows left in the store by an earlier process are
// picked up and sent. Adding an existing name is ignored with a
// warning. listener may be nil.
func (c *Channel) AddGroup(name string, config GroupConfig, listener GroupListener) error {
	if name == "" {
		return fmt.Errorf("channel: group name is required")
	}
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return fmt.Errorf("channel: group %s: %w", name, err)
	}
	c.post("add_group", func() { c.addGroup(name, config, listener) })
	return nil
}

// RemoveGroup unregisters a group. Its in-flight batches are cancelled
// and their rows stay stored.
func (c *Channel) RemoveGroup(name string) {
	c.post("remove_group", func() { c.removeGroup(name) })
}

// PauseGroup stops a group from sending. Its logs are still persisted.
func (c *Channel) PauseGroup(name string) {
	c.post("pause_group", func() { c.pauseGroup(name) })
}

// ResumeGroup lets a paused group send again.
func (c *Channel) ResumeGroup(name string) {
	c.post("resume_group", func() { c.resumeGroup(name) })
}

// ClearGroup deletes a group's stored logs without reporting them.
func (c *Channel) ClearGroup(name string) {
	c.post("clear_group", func() { c.clearGroup(name) })
}

// Enqueue queues log for group and returns immediately. log must not
// be used by the caller afterwards.
func (c *Channel) Enqueue(log ingest.Log, group string) {
	c.post("enqueue", func() { c.enqueue(log, group, 0) })
}

// SetEnabled enables or disables the channel. Disabling cancels every
// in-flight batch and deletes the stored backlog, reporting each log
// to its group listener as failed with ErrDisabled.
func (c *Channel) SetEnabled(enabled bool) {
	c.enabledFlag.Store(enabled)
	c.post("set_enabled", func() { c.setEnabled(enabled) })
}

// IsEnabled reports the state most recently requested with SetEnabled.
func (c *Channel) IsEnabled() bool {
	return c.enabledFlag.Load()
}

// SetNetworkRequestsAllowed stops or restarts all network activity.
// While disallowed, in-flight batches are cancelled without losing
// their logs and new logs are only persisted.
func (c *Channel) SetNetworkRequestsAllowed(allowed bool) {
	c.post("set_network_requests_allowed", func() { c.setNetworkRequestsAllowed(allowed) })
}

// AddListener registers a listener. Listeners run in registration
// order.
func (c *Channel) AddListener(listener Listener) {
	c.post("add_listener", func() { c.listeners = append(c.listeners, listener) })
}

// RemoveListener unregisters a listener.
func (c *Channel) RemoveListener(listener Listener) {
	c.post("remove_listener", func() {
		for i, existing := range c.listeners {
			if existing == listener {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	})
}

// Sync waits until every operation posted before it has been
// processed. Batches submitted by those operations may still be in
// flight.
func (c *Channel) Sync(ctx context.Context) error {
	return c.wait(ctx, func() {})
}

// GroupStatus is a snapshot of one group.
type GroupStatus struct {
	Name     string
	Pending  int
	InFlight int
	Paused   bool
}

// Status returns a snapshot of every group, in no particular order.
func (c *Channel) Status(ctx context.Context) ([]GroupStatus, error) {
	var statuses []GroupStatus
	err := c.wait(ctx, func() {
		for _, g := range c.groups {
			statuses = append(statuses, GroupStatus{
				Name:     g.name,
				Pending:  g.pending,
				InFlight: len(g.batches),
				Paused:   g.paused,
			})
		}
	})
	return statuses, err
}

// Shutdown cancels in-flight batches without losing their logs,
// notifies ShutdownListeners, and closes the ingestion client and the
// store. Operations posted before Shutdown complete first; later ones
// are ignored. Calling Shutdown again waits for the first call.
func (c *Channel) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.queue.post(c.shutdown)
		c.queue.close()
	})
	select {
	case <-c.done:
		return c.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) shutdown() {
	c.logger.Info("shutting down channel")
	c.halt(false, ErrShutdown)
	c.cancelCooldown()
	c.enabled = false
	for _, listener := range c.listeners {
		if l, ok := listener.(ShutdownListener); ok {
			l.Shutdown()
		}
	}
	var errs []error
	if err := c.ingestion.Close(); err != nil {
		errs = append(errs, fmt.Errorf("channel: closing ingestion: %w", err))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("channel: closing store: %w", err))
	}
	c.shutdownErr = errors.Join(errs...)
}
