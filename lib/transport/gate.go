// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"sync"
)

// Connectivity reports whether the network is usable and announces
// changes. connectivity.Monitor implements it.
type Connectivity interface {
	Online() bool
	Subscribe(func(online bool)) (unsubscribe func())
}

// GateStage holds calls while monitor reports offline. When
// connectivity drops, in-flight attempts are cancelled without
// reporting to the caller and restarted from scratch once it returns.
func GateStage(monitor Connectivity, logger *slog.Logger) Stage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next Caller) Caller {
		g := &gate{
			next:   next,
			logger: logger,
			online: monitor.Online(),
			calls:  make(map[*gateCall]struct{}),
		}
		g.unsubscribe = monitor.Subscribe(g.setOnline)
		return g
	}
}

type gate struct {
	next        Caller
	logger      *slog.Logger
	unsubscribe func()

	// mu guards online and every gateCall's fields, so a completion
	// can never interleave with a connectivity sweep.
	mu     sync.Mutex
	online bool
	calls  map[*gateCall]struct{}
}

type gateCall struct {
	gate     *gate
	request  *Request
	callback Callback

	// attempt identifies the current inner call. Completions carrying
	// an older attempt belong to a call cancelled by a sweep.
	attempt int
	running bool
	inner   Call
	done    bool
}

func (g *gate) Call(request *Request, callback Callback) Call {
	call := &gateCall{gate: g, request: request, callback: callback}

	g.mu.Lock()
	g.calls[call] = struct{}{}
	online := g.online
	g.mu.Unlock()

	if online {
		g.start(call)
	} else {
		g.logger.Debug("holding call until network is available", "url", request.URL)
	}
	return call
}

func (g *gate) start(call *gateCall) {
	g.mu.Lock()
	if call.done || call.running || !g.online {
		g.mu.Unlock()
		return
	}
	call.running = true
	call.attempt++
	attempt := call.attempt
	g.mu.Unlock()

	inner := g.next.Call(call.request, func(response *Response, err error) {
		g.complete(call, attempt, response, err)
	})

	g.mu.Lock()
	if call.done || call.attempt != attempt {
		g.mu.Unlock()
		inner.Cancel()
		return
	}
	call.inner = inner
	g.mu.Unlock()
}

func (g *gate) complete(call *gateCall, attempt int, response *Response, err error) {
	g.mu.Lock()
	if call.done || call.attempt != attempt {
		g.mu.Unlock()
		return
	}
	call.done = true
	call.inner = nil
	delete(g.calls, call)
	g.mu.Unlock()

	call.callback(response, err)
}

func (g *gate) setOnline(online bool) {
	g.mu.Lock()
	if g.online == online {
		g.mu.Unlock()
		return
	}
	g.online = online

	var paused []Call
	var held []*gateCall
	for call := range g.calls {
		if online {
			held = append(held, call)
			continue
		}
		call.attempt++
		call.running = false
		if call.inner != nil {
			paused = append(paused, call.inner)
			call.inner = nil
		}
	}
	g.mu.Unlock()

	if online {
		g.logger.Info("network available, replaying held calls", "calls", len(held))
		for _, call := range held {
			g.start(call)
		}
		return
	}
	g.logger.Info("network lost, pausing in-flight calls", "calls", len(paused))
	for _, inner := range paused {
		inner.Cancel()
	}
}

func (c *gateCall) Cancel() {
	g := c.gate
	g.mu.Lock()
	if c.done {
		g.mu.Unlock()
		return
	}
	c.done = true
	inner := c.inner
	c.inner = nil
	delete(g.calls, c)
	g.mu.Unlock()

	if inner != nil {
		inner.Cancel()
	}
}

// Close stops watching connectivity, cancels every call the gate is
// tracking, and closes the next caller.
func (g *gate) Close() error {
	g.unsubscribe()

	g.mu.Lock()
	var inners []Call
	for call := range g.calls {
		call.done = true
		if call.inner != nil {
			inners = append(inners, call.inner)
			call.inner = nil
		}
	}
	clear(g.calls)
	g.mu.Unlock()

	for _, inner := range inners {
		inner.Cancel()
	}
	return g.next.Close()
}
