// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// SDKName identifies this library in device metadata and the
// User-Agent header.
const SDKName = "logship.go"

// Set via -ldflags -X at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"

	// Version is both the binaries' version and the SDK version
	// reported to the ingestion service. Set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns the --version line: "0.1.0-dev (abc1234-dirty, 2026-...)".
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// UserAgent is sent with every ingestion request:
// "logship.go/0.1.0-dev (linux; amd64)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", SDKName, Version, runtime.GOOS, runtime.GOARCH)
}
