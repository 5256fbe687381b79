// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net/http"
	"testing"
)

func TestGateHoldsCallsWhileOffline(t *testing.T) {
	monitor := newSwitchMonitor(false)
	base := &recordingCaller{}
	results := &collector{}
	caller := GateStage(monitor, nil)(base)

	caller.Call(testRequest(), results.callback)
	if base.count() != 0 {
		t.Fatal("call started while offline")
	}

	monitor.set(true)
	if base.count() != 1 {
		t.Fatalf("calls after going online = %d, want 1", base.count())
	}
	base.call(0).finish(&Response{StatusCode: http.StatusOK}, nil)
	if got := results.all(); len(got) != 1 || got[0].err != nil {
		t.Fatalf("outcomes = %+v, want one success", got)
	}
}

func TestGatePausesAndReplaysOnConnectivityLoss(t *testing.T) {
	monitor := newSwitchMonitor(true)
	base := &recordingCaller{}
	results := &collector{}
	caller := GateStage(monitor, nil)(base)

	caller.Call(testRequest(), results.callback)
	first := base.call(0)

	monitor.set(false)
	if !first.isCancelled() {
		t.Fatal("in-flight call not cancelled on connectivity loss")
	}
	// A completion that lost the race with the pause must not reach
	// the caller.
	first.finishAnyway(nil, &StatusError{StatusCode: http.StatusBadGateway})
	if got := results.all(); len(got) != 0 {
		t.Fatalf("paused call reported: %+v", got)
	}

	monitor.set(true)
	if base.count() != 2 {
		t.Fatalf("calls after reconnect = %d, want a replay", base.count())
	}
	base.call(1).finish(&Response{StatusCode: http.StatusOK}, nil)
	base.call(1).finishAnyway(&Response{StatusCode: http.StatusOK}, nil)
	if got := results.all(); len(got) != 1 || got[0].err != nil {
		t.Fatalf("outcomes = %+v, want exactly one success", got)
	}
}

func TestGateCancelIsIdempotent(t *testing.T) {
	monitor := newSwitchMonitor(true)
	base := &recordingCaller{}
	results := &collector{}
	caller := GateStage(monitor, nil)(base)

	call := caller.Call(testRequest(), results.callback)
	call.Cancel()
	call.Cancel()
	if !base.call(0).isCancelled() {
		t.Fatal("inner call not cancelled")
	}

	monitor.set(false)
	monitor.set(true)
	if base.count() != 1 {
		t.Fatalf("cancelled call replayed: %d calls", base.count())
	}
	if got := results.all(); len(got) != 0 {
		t.Fatalf("cancelled call reported: %+v", got)
	}
}

func TestGateCloseCancelsTrackedCalls(t *testing.T) {
	monitor := newSwitchMonitor(true)
	base := &recordingCaller{}
	caller := GateStage(monitor, nil)(base)

	caller.Call(testRequest(), (&collector{}).callback)
	if err := caller.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !base.call(0).isCancelled() {
		t.Error("tracked call not cancelled by Close")
	}
	if !base.closed {
		t.Error("next caller not closed")
	}
	monitor.set(false)
	monitor.set(true)
	if base.count() != 1 {
		t.Error("gate still reacting to connectivity after Close")
	}
}
