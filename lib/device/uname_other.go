// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package device

import (
	"os"
	"runtime"
)

func readSystemInfo() systemInfo {
	hostname, _ := os.Hostname()
	return systemInfo{machine: runtime.GOARCH, hostname: hostname}
}
