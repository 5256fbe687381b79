// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin || freebsd || netbsd || openbsd

package device

import "golang.org/x/sys/unix"

func readSystemInfo() systemInfo {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return systemInfo{}
	}
	return systemInfo{
		release:  unix.ByteSliceToString(utsname.Release[:]),
		build:    unix.ByteSliceToString(utsname.Version[:]),
		machine:  unix.ByteSliceToString(utsname.Machine[:]),
		hostname: unix.ByteSliceToString(utsname.Nodename[:]),
	}
}
