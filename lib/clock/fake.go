// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Time moves only through
// Advance and Set. Safe for concurrent use.
//
// Do not call Advance or Set from inside an AfterFunc callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	queue   waiterQueue
	seq     uint64
	changed *sync.Cond
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// waiter is one pending timer, After channel, or ticker.
type waiter struct {
	deadline time.Time
	seq      uint64
	index    int

	callback func()
	channel  chan time.Time
	interval time.Duration
}

// waiterQueue is a min-heap ordered by deadline, then registration
// order.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// scheduleLocked registers w to fire at deadline. c.mu must be held.
func (c *FakeClock) scheduleLocked(w *waiter, deadline time.Time) {
	c.seq++
	w.deadline = deadline
	w.seq = c.seq
	heap.Push(&c.queue, w)
	c.changed.Broadcast()
}

// removeLocked unregisters w. Reports whether w was pending.
func (c *FakeClock) removeLocked(w *waiter) bool {
	if w.index < 0 {
		return false
	}
	heap.Remove(&c.queue, w.index)
	c.changed.Broadcast()
	return true
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns Now().Sub(t).
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives once the clock has advanced
// by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.scheduleLocked(&waiter{channel: channel, index: -1}, c.now.Add(d))
	return channel
}

// AfterFunc schedules f. With d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{callback: f, index: -1}
	c.scheduleLocked(w, c.now.Add(d))
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.removeLocked(w)
	}}
}

// NewTicker returns a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	w := &waiter{channel: channel, interval: d, index: -1}
	c.scheduleLocked(w, c.now.Add(d))
	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.interval = 0
		c.removeLocked(w)
	}}
}

// Advance moves the clock forward by d, firing everything that falls
// due in deadline order. Each waiter observes Now() equal to its own
// deadline while it fires, so a callback that schedules a new timer
// measures from the moment it was due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.runUntil(target)
}

// Set jumps the clock to t, firing everything due on the way. Setting
// a time in the past only moves Now backwards; nothing fires.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	if !t.After(c.now) {
		c.now = t
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.runUntil(t)
}

func (c *FakeClock) runUntil(target time.Time) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].deadline.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		w := heap.Pop(&c.queue).(*waiter)
		if w.deadline.After(c.now) {
			c.now = w.deadline
		}
		fired := c.now
		if w.interval > 0 {
			c.scheduleLocked(w, w.deadline.Add(w.interval))
		}
		c.changed.Broadcast()
		c.mu.Unlock()

		if w.callback != nil {
			w.callback()
			continue
		}
		select {
		case w.channel <- fired:
		default:
		}
	}
}

// WaitForTimers blocks until at least n waiters are pending. Use it to
// wait for a goroutine to arm a timer before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of pending waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
