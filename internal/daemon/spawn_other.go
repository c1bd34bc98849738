// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build !unix

package daemon

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
