// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/logship/lib/clock"
	"github.com/bureau-foundation/logship/lib/schema/ingest"
	"github.com/bureau-foundation/logship/lib/transport"
)

// Group defaults.
const (
	DefaultMaxLogsPerBatch    = 50
	DefaultBatchInterval      = 3 * time.Second
	DefaultMaxParallelBatches = 3
)

// GroupConfig is the batching policy of one group.
type GroupConfig struct {
	// MaxLogsPerBatch is both the batch size and the pending count
	// that sends a batch without waiting for the interval.
	MaxLogsPerBatch int

	// BatchInterval is how long the first pending log waits for
	// company before a partial batch is sent.
	BatchInterval time.Duration

	// MaxParallelBatches bounds the group's in-flight batches.
	MaxParallelBatches int

	// MaxPersistedLogs bounds the group's stored backlog; the oldest
	// logs are evicted beyond it. Zero means unbounded.
	MaxPersistedLogs int
}

// withDefaults fills zero fields.
func (c GroupConfig) withDefaults() GroupConfig {
	if c.MaxLogsPerBatch == 0 {
		c.MaxLogsPerBatch = DefaultMaxLogsPerBatch
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	if c.MaxParallelBatches == 0 {
		c.MaxParallelBatches = DefaultMaxParallelBatches
	}
	return c
}

// Validate checks c after defaults are applied.
func (c GroupConfig) Validate() error {
	var errs []error
	if c.MaxLogsPerBatch < 1 {
		errs = append(errs, fmt.Errorf("max logs per batch must be positive, got %d", c.MaxLogsPerBatch))
	}
	if c.BatchInterval < 0 {
		errs = append(errs, fmt.Errorf("batch interval must not be negative, got %s", c.BatchInterval))
	}
	if c.MaxParallelBatches < 1 {
		errs = append(errs, fmt.Errorf("max parallel batches must be positive, got %d", c.MaxParallelBatches))
	}
	if c.MaxPersistedLogs < 0 {
		errs = append(errs, fmt.Errorf("max persisted logs must not be negative, got %d", c.MaxPersistedLogs))
	}
	return errors.Join(errs...)
}

// group is the worker-owned state of one registered group.
type group struct {
	name     string
	config   GroupConfig
	listener GroupListener

	// pending counts stored rows not claimed by an in-flight batch.
	pending int
	paused  bool

	timer     *clock.Timer
	scheduled bool
	timerSeq  int

	batches map[string]*inflight
}

type inflight struct {
	logs []ingest.Log
	call transport.Call
}

func (g *group) beforeSending(log ingest.Log) {
	if g.listener != nil {
		g.listener.BeforeSending(log)
	}
}

func (g *group) success(log ingest.Log) {
	if g.listener != nil {
		g.listener.Success(log)
	}
}

func (g *group) failure(log ingest.Log, err error) {
	if g.listener != nil {
		g.listener.Failure(log, err)
	}
}

func (g *group) addPending(n int) {
	g.pending += n
	if g.pending < 0 {
		g.pending = 0
	}
	if limit := g.config.MaxPersistedLogs; limit > 0 && g.pending > limit {
		g.pending = limit
	}
}

func (g *group) inflightLogs() int {
	n := 0
	for _, batch := range g.batches {
		n += len(batch.logs)
	}
	return n
}

// inline is the Enqueuer handed to listener hooks. Logs it receives
// are processed before the hook returns.
type inline struct {
	c     *Channel
	depth int
}

func (q inline) Enqueue(log ingest.Log, group string) {
	q.c.enqueue(log, group, q.depth)
}

func (c *Channel) lookup(name, operation string) *group {
	g := c.groups[name]
	if g == nil {
		c.logger.Warn("ignoring operation on unknown group",
			"operation", operation,
			"group", name,
			"error", ErrUnknownGroup,
		)
	}
	return g
}

func (c *Channel) addGroup(name string, config GroupConfig, listener GroupListener) {
	if _, exists := c.groups[name]; exists {
		c.logger.Warn("group already added, ignoring", "group", name)
		return
	}
	g := &group{
		name:     name,
		config:   config,
		listener: listener,
		batches:  make(map[string]*inflight),
	}
	c.store.SetCapacity(name, config.MaxPersistedLogs)
	count, err := c.store.Count(c.ctx, name)
	if err != nil {
		c.logger.Error("counting stored logs failed", "group", name, "error", err)
	}
	g.addPending(count)
	c.groups[name] = g
	c.logger.Info("group added",
		"group", name,
		"max_logs_per_batch", config.MaxLogsPerBatch,
		"batch_interval", config.BatchInterval,
		"max_parallel_batches", config.MaxParallelBatches,
		"max_persisted_logs", config.MaxPersistedLogs,
		"pending", g.pending,
	)
	for _, listener := range c.listeners {
		if l, ok := listener.(GroupEventListener); ok {
			l.GroupAdded(name, config)
		}
	}
	c.checkPending(g)
}

func (c *Channel) removeGroup(name string) {
	g := c.lookup(name, "remove_group")
	if g == nil {
		return
	}
	c.cancelTimer(g)
	for id, batch := range g.batches {
		batch.call.Cancel()
		c.store.Release(name, id)
	}
	clear(g.batches)
	delete(c.groups, name)
	c.logger.Info("group removed", "group", name)
	for _, listener := range c.listeners {
		if l, ok := listener.(GroupEventListener); ok {
			l.GroupRemoved(name)
		}
	}
}

func (c *Channel) pauseGroup(name string) {
	g := c.lookup(name, "pause_group")
	if g == nil || g.paused {
		return
	}
	g.paused = true
	c.cancelTimer(g)
	c.logger.Info("group paused", "group", name)
	for _, listener := range c.listeners {
		if l, ok := listener.(GroupEventListener); ok {
			l.GroupPaused(name)
		}
	}
}

func (c *Channel) resumeGroup(name string) {
	g := c.lookup(name, "resume_group")
	if g == nil || !g.paused {
		return
	}
	g.paused = false
	c.logger.Info("group resumed", "group", name)
	for _, listener := range c.listeners {
		if l, ok := listener.(GroupEventListener); ok {
			l.GroupResumed(name)
		}
	}
	c.checkPending(g)
}

func (c *Channel) clearGroup(name string) {
	g := c.lookup(name, "clear_group")
	if g == nil {
		return
	}
	c.cancelTimer(g)
	deleted, err := c.store.DeleteGroup(c.ctx, name)
	if err != nil {
		c.logger.Error("clearing group failed", "group", name, "error", err)
		return
	}
	g.pending = 0
	c.logger.Info("group cleared", "group", name, "deleted", deleted)
	for _, listener := range c.listeners {
		if l, ok := listener.(GroupEventListener); ok {
			l.GroupCleared(name)
		}
	}
}

func (c *Channel) enqueue(log ingest.Log, name string, depth int) {
	g := c.lookup(name, "enqueue")
	if g == nil {
		return
	}
	if log == nil {
		c.logger.Warn("ignoring nil log", "group", name)
		return
	}
	if depth > maxNestedEnqueue {
		c.logger.Warn("listeners nested enqueues too deeply, dropping log",
			"group", name,
			"log_type", log.Type(),
			"depth", depth,
		)
		return
	}
	if !c.enabled {
		g.beforeSending(log)
		g.failure(log, ErrDisabled)
		return
	}

	for _, listener := range c.listeners {
		listener.EnqueuingLog(inline{c: c, depth: depth + 1}, log, name)
	}
	envelope := log.Common()
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = c.clock.Now()
	}
	for _, listener := range c.listeners {
		if l, ok := listener.(PreparedListener); ok {
			l.PreparedLog(log, name)
		}
	}
	for _, listener := range c.listeners {
		if l, ok := listener.(FilterListener); ok && l.ShouldFilter(log, name) {
			c.logger.Debug("log filtered", "group", name, "log_type", log.Type())
			return
		}
	}

	payload, err := c.serializer.MarshalLog(log)
	if err != nil {
		c.logger.Error("serializing log failed", "group", name, "log_type", log.Type(), "error", err)
		g.failure(log, err)
		return
	}
	result, err := c.store.Put(c.ctx, name, log.Type(), payload)
	if err != nil {
		c.logger.Error("persisting log failed", "group", name, "log_type", log.Type(), "error", err)
		g.failure(log, err)
		return
	}
	g.addPending(1 - result.EvictedUnclaimed)
	c.checkPending(g)
}

// canSend reports whether g may start batches now.
func (c *Channel) canSend(g *group) bool {
	return c.enabled && c.networkAllowed && !c.suspended && !g.paused
}

// checkPending sends a full batch right away or arms the batch timer.
func (c *Channel) checkPending(g *group) {
	if !c.canSend(g) {
		return
	}
	switch {
	case g.pending >= g.config.MaxLogsPerBatch:
		c.trigger(g)
	case g.pending > 0 && !g.scheduled:
		c.armTimer(g)
	}
}

func (c *Channel) armTimer(g *group) {
	g.scheduled = true
	g.timerSeq++
	seq := g.timerSeq
	g.timer = c.clock.AfterFunc(g.config.BatchInterval, func() {
		c.post("batch_timer", func() {
			if c.groups[g.name] != g || g.timerSeq != seq {
				return
			}
			g.scheduled = false
			g.timer = nil
			c.trigger(g)
		})
	})
}

func (c *Channel) cancelTimer(g *group) {
	if !g.scheduled {
		return
	}
	g.timer.Stop()
	g.timer = nil
	g.scheduled = false
	g.timerSeq++
}

// trigger claims up to one batch of g's oldest pending logs and
// submits it.
func (c *Channel) trigger(g *group) {
	c.cancelTimer(g)
	if !c.canSend(g) {
		return
	}
	if len(g.batches) >= g.config.MaxParallelBatches {
		c.logger.Debug("batch limit reached, waiting for a slot",
			"group", g.name,
			"in_flight", len(g.batches),
		)
		return
	}
	limit := min(g.pending, g.config.MaxLogsPerBatch)
	if limit <= 0 {
		return
	}
	batch, err := c.store.Claim(c.ctx, g.name, limit)
	if err != nil {
		c.logger.Error("claiming batch failed", "group", g.name, "error", err)
		return
	}
	if len(batch.Entries) < limit {
		g.pending = 0
	} else {
		g.pending -= limit
	}
	if batch.ID == "" {
		return
	}

	logs := make([]ingest.Log, 0, len(batch.Entries))
	var corrupt []int64
	for _, entry := range batch.Entries {
		log, err := c.serializer.UnmarshalLog(entry.Payload)
		if err != nil {
			c.logger.Warn("deleting undecodable log",
				"group", g.name,
				"log_type", entry.Type,
				"row", entry.ID,
				"error", err,
			)
			corrupt = append(corrupt, entry.ID)
			continue
		}
		logs = append(logs, log)
	}
	if len(corrupt) > 0 {
		if err := c.store.DeleteLogs(c.ctx, g.name, corrupt); err != nil {
			c.logger.Error("deleting undecodable logs failed", "group", g.name, "error", err)
		}
	}
	if len(logs) == 0 {
		if err := c.store.DeleteBatch(c.ctx, g.name, batch.ID); err != nil {
			c.logger.Error("deleting empty batch failed", "group", g.name, "error", err)
		}
		c.checkPending(g)
		return
	}

	for _, log := range logs {
		g.beforeSending(log)
	}
	batchID := batch.ID
	entry := &inflight{logs: logs}
	g.batches[batchID] = entry
	c.logger.Debug("sending batch", "group", g.name, "batch_id", batchID, "logs", len(logs))
	entry.call = c.ingestion.Send(logs, func(_ *transport.Response, err error) {
		c.post("batch_done", func() { c.batchDone(g, batchID, err) })
	})
	c.checkPending(g)
}

// batchDone settles a batch. Results for batches cancelled in the
// meantime are ignored.
func (c *Channel) batchDone(g *group, batchID string, err error) {
	if c.groups[g.name] != g {
		return
	}
	batch, ok := g.batches[batchID]
	if !ok {
		return
	}
	delete(g.batches, batchID)

	switch {
	case err == nil:
		if err := c.store.DeleteBatch(c.ctx, g.name, batchID); err != nil {
			c.logger.Error("deleting sent batch failed", "group", g.name, "batch_id", batchID, "error", err)
		}
		c.logger.Debug("batch sent", "group", g.name, "batch_id", batchID, "logs", len(batch.logs))
		for _, log := range batch.logs {
			g.success(log)
		}
		c.checkPending(g)

	case transport.IsRecoverable(err):
		c.logger.Warn("batch failed with a recoverable error, suspending sending",
			"group", g.name,
			"batch_id", batchID,
			"logs", len(batch.logs),
			"cooldown", c.retryCooldown,
			"error", err,
		)
		c.store.Release(g.name, batchID)
		g.addPending(len(batch.logs))
		c.suspend()

	default:
		c.logger.Error("batch rejected, discarding logs",
			"group", g.name,
			"batch_id", batchID,
			"logs", len(batch.logs),
			"error", err,
		)
		if err := c.store.DeleteBatch(c.ctx, g.name, batchID); err != nil {
			c.logger.Error("deleting rejected batch failed", "group", g.name, "batch_id", batchID, "error", err)
		}
		for _, log := range batch.logs {
			g.failure(log, err)
		}
		c.checkPending(g)
	}
}
