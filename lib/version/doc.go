// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build information for the logship binaries
// and the SDK identity carried by every log.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected with
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/logship/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Development builds and tests see "unknown" and "0.1.0-dev".
// [Version] and [SDKName] appear in device metadata (sdkName,
// sdkVersion) and in the User-Agent header built by [UserAgent].
package version
