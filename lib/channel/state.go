// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"slices"

	"github.com/bureau-foundation/logship/lib/logstore"
)

// discardPageSize is how many rows are read at a time when a disabled
// channel reports its backlog as failed.
const discardPageSize = 100

func (c *Channel) setEnabled(enabled bool) {
	if enabled == c.enabled {
		if enabled {
			c.resumeAll()
		}
		return
	}
	c.enabled = enabled
	if enabled {
		c.logger.Info("channel enabled")
		c.resumeAll()
	} else {
		c.logger.Info("channel disabled, discarding stored logs")
		c.halt(true, ErrDisabled)
		c.cancelCooldown()
		c.suspended = false
	}
	for _, listener := range c.listeners {
		if l, ok := listener.(EnabledListener); ok {
			l.GloballyEnabled(enabled)
		}
	}
}

func (c *Channel) setNetworkRequestsAllowed(allowed bool) {
	if !allowed {
		if c.networkAllowed {
			c.networkAllowed = false
			c.logger.Info("network requests disallowed, holding logs")
			c.halt(false, nil)
		}
		return
	}
	if !c.networkAllowed {
		c.logger.Info("network requests allowed")
	}
	c.networkAllowed = true
	c.resumeAll()
}

// halt stops every group: timers are cancelled and in-flight batches
// are cancelled without a result. With discard, the logs of those
// batches and the whole stored backlog are reported failed with err
// and deleted. Otherwise every claim is released and the rows stay.
func (c *Channel) halt(discard bool, err error) {
	for _, g := range c.groups {
		c.cancelTimer(g)
		for id, batch := range g.batches {
			batch.call.Cancel()
			if !discard {
				continue
			}
			for _, log := range batch.logs {
				g.failure(log, err)
			}
			if deleteErr := c.store.DeleteBatch(c.ctx, g.name, id); deleteErr != nil {
				c.logger.Error("deleting cancelled batch failed", "group", g.name, "batch_id", id, "error", deleteErr)
			}
		}
		clear(g.batches)
	}
	c.store.ReleaseAll()
	if !discard {
		return
	}

	for _, name := range c.groupNames() {
		g := c.groups[name]
		if g.listener != nil {
			c.reportBacklog(g, err)
		}
		if _, err := c.store.DeleteGroup(c.ctx, name); err != nil {
			c.logger.Error("deleting group backlog failed", "group", name, "error", err)
		}
		g.pending = 0
	}
	deleted, deleteErr := c.store.DeleteAll(c.ctx)
	if deleteErr != nil {
		c.logger.Error("deleting stored logs failed", "error", deleteErr)
		return
	}
	if deleted > 0 {
		c.logger.Info("deleted logs of unregistered groups", "deleted", deleted)
	}
}

// reportBacklog calls BeforeSending and Failure for every stored log
// of g, oldest first. The rows stay claimed until the caller deletes
// the group.
func (c *Channel) reportBacklog(g *group, err error) {
	for {
		batch, claimErr := c.store.Claim(c.ctx, g.name, discardPageSize)
		if claimErr != nil {
			c.logger.Error("reading backlog failed", "group", g.name, "error", claimErr)
			return
		}
		if batch.ID == "" {
			return
		}
		for _, entry := range batch.Entries {
			c.reportEntry(g, entry, err)
		}
	}
}

func (c *Channel) reportEntry(g *group, entry logstore.Entry, err error) {
	log, decodeErr := c.serializer.UnmarshalLog(entry.Payload)
	if decodeErr != nil {
		c.logger.Warn("skipping undecodable log", "group", g.name, "row", entry.ID, "error", decodeErr)
		return
	}
	g.beforeSending(log)
	g.failure(log, err)
}

// resumeAll lifts a suspension, recounts every group's backlog, and
// restarts sending where allowed.
func (c *Channel) resumeAll() {
	c.cancelCooldown()
	c.suspended = false
	for _, name := range c.groupNames() {
		g := c.groups[name]
		count, err := c.store.Count(c.ctx, name)
		if err != nil {
			c.logger.Error("counting stored logs failed", "group", name, "error", err)
			continue
		}
		g.pending = 0
		g.addPending(count - g.inflightLogs())
		c.checkPending(g)
	}
}

// suspend stops sending after a batch exhausted its retries. Sending
// resumes by itself after the retry cooldown.
func (c *Channel) suspend() {
	c.halt(false, nil)
	c.suspended = true
	c.cancelCooldown()
	seq := c.cooldownSeq
	c.cooldown = c.clock.AfterFunc(c.retryCooldown, func() {
		c.post("retry_cooldown", func() {
			if seq != c.cooldownSeq || !c.suspended {
				return
			}
			c.logger.Info("retry cooldown over, resuming sending")
			c.resumeAll()
		})
	})
}

func (c *Channel) cancelCooldown() {
	c.cooldown.Stop()
	c.cooldown = nil
	c.cooldownSeq++
}

// groupNames returns the registered group names in sorted order.
func (c *Channel) groupNames() []string {
	names := make([]string, 0, len(c.groups))
	for name := range c.groups {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
