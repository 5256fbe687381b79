// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for logship clients.
//
// Configuration is loaded from a single file specified by either the
// LOGSHIP_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files are YAML; files ending in .json or .jsonc are JSON
// with comments and trailing commas allowed.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production additionally requires an
// https log URL.
//
// Variable expansion is performed on the app secret, the log URL, the
// storage path, and the probe address after loading: ${HOME}, ${VAR},
// and ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with App, Storage, Transport, Session, Channel, Groups
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other logship packages.
package config
