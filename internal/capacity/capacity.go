// Package capacity gates uploads on available disk space on the volume
// backing a route's upload_dir. No library in the retrieval pack exposes
// cross-platform free-space statistics (the one candidate,
// github.com/lufia/iostat, is a Darwin/Windows-only disk-throughput
// sampler with no Linux build tag and no free-space API, so it cannot
// serve this component — dropped from go.mod and recorded in DESIGN.md);
// syscall.Statfs is the standard, portable way every net/http-adjacent Go
// server gates on disk space, so it is used directly here.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package capacity

import (
	"syscall"

	"github.com/nvaistore/webs3rv/internal/cos"
)

// FreeBytes reports the free space available to an unprivileged writer on
// the filesystem backing path.
func FreeBytes(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, cos.Wrapf(err, "capacity: statfs %s", path)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// HasHeadroom reports whether at least minFree bytes remain available on
// the filesystem backing uploadDir, consulted before accepting a body that
// would otherwise be written to disk regardless of free space.
func HasHeadroom(uploadDir string, minFree uint64) bool {
	free, err := FreeBytes(uploadDir)
	if err != nil {
		return true // fail open: a stat failure shouldn't block uploads outright
	}
	return free >= minFree
}
