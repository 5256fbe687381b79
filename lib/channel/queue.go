// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import "sync"

// taskQueue is the unbounded FIFO of work for the worker goroutine.
//
// The notify channel (capacity 1) wakes the worker when tasks arrive.
// A post while the worker is busy leaves one pending signal, which is
// all the worker needs to drain the whole slice on its next pass.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

// post appends task. It reports false once the queue is closed.
func (q *taskQueue) post(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.wake()
	return true
}

// close stops accepting tasks. Tasks already queued still run.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *taskQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take blocks until tasks are available and returns all of them in
// order. It returns nil once the queue is closed and drained.
func (q *taskQueue) take() []func() {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			tasks := q.tasks
			q.tasks = nil
			q.mu.Unlock()
			return tasks
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}
		<-q.notify
	}
}
