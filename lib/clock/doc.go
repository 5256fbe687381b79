// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used throughout
// logship.
//
// Components hold a Clock field and never call time.Now, time.After,
// or time.AfterFunc directly. Production wiring passes Real(); tests
// pass Fake(start) and move time with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	channel := newChannel(fake)
//	channel.Enqueue(log, "analytics")
//	fake.WaitForTimers(1)       // batch timer armed
//	fake.Advance(3 * time.Second) // batch timer fires
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance,
// in deadline order. A callback may schedule further timers; timers
// that fall due within the same Advance fire in the same call.
package clock
