// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for logship binaries.
// Fatal is the one place a binary writes an error to stderr without
// the structured logger, for failures before the logger exists.
package process
