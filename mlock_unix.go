// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || openbsd || netbsd

package tlsconn

import "golang.org/x/sys/unix"

// mlockBestEffort locks mem against paging. Failure (e.g. RLIMIT_MEMLOCK
// exhausted, unprivileged process) is reported but not fatal: key-material
// hygiene is best-effort, not a correctness requirement.
func mlockBestEffort(mem []byte) bool {
	if len(mem) == 0 {
		return false
	}
	return unix.Mlock(mem) == nil
}

func munlockBestEffort(mem []byte) {
	if len(mem) == 0 {
		return
	}
	_ = unix.Munlock(mem)
}
