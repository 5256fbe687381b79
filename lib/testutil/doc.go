// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the channel helpers shared by logship tests.
//
// Transport callbacks, probe transitions, and httptest handlers all
// report through Go channels. [RequireReceive] and [RequireClosed]
// bound every such wait with a wall-clock timeout so a broken pipeline
// fails the test instead of hanging it; [RequireEmpty] asserts that
// nothing was produced. These helpers are the only real-time waits in
// the suite. Pipeline timing itself runs on clock.Fake.
package testutil
