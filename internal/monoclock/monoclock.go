// Package monoclock exposes the monotonic clock reading the timeout wheel is
// built on. Go's time.Time already carries a monotonic reading alongside the
// wall-clock one (see https://pkg.go.dev/time#hdr-Monotonic_Clocks); Sub
// between two such values uses it automatically, which is the "efficient
// branch" of spec.md §9's clock_gettime(MONOTONIC) alternative — no cgo or
// syscall needed on any platform Go supports.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package monoclock

import "time"

// Reading is an opaque monotonic instant.
type Reading struct {
	t time.Time
}

// Now returns the current monotonic reading.
func Now() Reading { return Reading{t: time.Now()} }

// Since returns the elapsed duration since r, measured with the monotonic
// clock. A negative result means the clock moved backward, which the caller
// (internal/timeout) treats as fatal per spec.md §3.
func (r Reading) Since() time.Duration { return time.Since(r.t) }

// Sub returns r - other.
func (r Reading) Sub(other Reading) time.Duration { return r.t.Sub(other.t) }

// Add returns a reading d in the future of r, used to compute dispatcher
// poll deadlines without re-reading the clock.
func (r Reading) Add(d time.Duration) Reading { return Reading{t: r.t.Add(d)} }

// Before reports whether r occurred before other.
func (r Reading) Before(other Reading) bool { return r.t.Before(other.t) }
