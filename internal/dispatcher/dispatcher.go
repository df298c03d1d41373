// Package dispatcher implements spec.md §4.1: a single-threaded,
// readiness-based I/O multiplexer built directly on epoll via
// golang.org/x/sys/unix, matching the "efficient branch" spec.md §9 calls
// out (as opposed to a select(2)-based fallback). This is the one place the
// module deliberately departs from idiomatic per-connection-goroutine Go:
// spec.md §5 mandates a single-threaded cooperative scheduler with no
// shared mutable state across threads, so the dispatcher itself is the
// entire scheduler, in the spirit of transport/base.go's CAS-guarded
// inactive/active state machine but collapsed onto one goroutine.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package dispatcher

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/cos"
	"github.com/nvaistore/webs3rv/internal/monoclock"
	"github.com/nvaistore/webs3rv/internal/nlog"
	"github.com/nvaistore/webs3rv/internal/timeout"
)

// EventMask mirrors the EPOLLIN/EPOLLOUT/EPOLLHUP bits spec.md §4.1 and
// §4.6 reference directly.
type EventMask uint32

const (
	Readable EventMask = unix.EPOLLIN
	Writable EventMask = unix.EPOLLOUT
	HangUp   EventMask = unix.EPOLLHUP | unix.EPOLLERR
)

// Sink is anything that owns fds and/or a timeout and reacts to dispatcher
// callbacks. HandleException must never panic back into the dispatcher; if
// it does, Run recovers it, marks the entry dead, and force-unsubscribes the
// fd whose event was being handled (spec.md §4.1's exception-safety
// contract).
type Sink interface {
	HandleEvents(ready EventMask)
	HandleException(message string)
}

type entry struct {
	fd   int
	mask EventMask
	sink Sink
	dead bool
}

// Dispatcher is the event loop described in spec.md §4.1. It is not safe
// for concurrent use from multiple goroutines — by design, only the
// goroutine running Run ever touches it, which is the point.
type Dispatcher struct {
	epfd    int
	entries map[int]*entry
	wheel   *timeout.Wheel

	quit     bool
	shutdown []func() // subscribers notified once on shutdown, in subscribe order
}

func New() (*Dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, cos.Wrap(err, "dispatcher: epoll_create1")
	}
	return &Dispatcher{
		epfd:    epfd,
		entries: make(map[int]*entry),
		wheel:   timeout.NewWheel(),
	}, nil
}

func (d *Dispatcher) Close() error {
	return unix.Close(d.epfd)
}

// Subscribe registers interest in fd's readiness. A second call on the same
// fd replaces the mask and sink.
func (d *Dispatcher) Subscribe(fd int, mask EventMask, sink Sink) error {
	op := unix.EPOLL_CTL_ADD
	if _, exists := d.entries[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	ev := unix.EpollEvent{Events: uint32(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, op, fd, &ev); err != nil {
		return cos.Wrapf(err, "dispatcher: epoll_ctl fd=%d", fd)
	}
	d.entries[fd] = &entry{fd: fd, mask: mask, sink: sink}
	return nil
}

// Unsubscribe removes fd. Idempotent — calling it on an fd that isn't
// registered (e.g. during sink destruction after an earlier forced removal)
// is a no-op, per spec.md §4.1.
func (d *Dispatcher) Unsubscribe(fd int) {
	if _, exists := d.entries[fd]; !exists {
		return
	}
	_ = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(d.entries, fd)
}

// Arm attaches a deadline to sink. Disarm via the returned *timeout.Timeout.
func (d *Dispatcher) Arm(duration time.Duration, sink timeout.Sink) *timeout.Timeout {
	return d.wheel.Arm(duration, sink)
}

func (d *Dispatcher) Disarm(t *timeout.Timeout) {
	d.wheel.Disarm(t)
}

func (d *Dispatcher) Reset(t *timeout.Timeout) {
	d.wheel.Reset(t)
}

// OnShutdown registers a callback that Run calls, in registration order,
// after its loop has observed Quit and just before it returns.
func (d *Dispatcher) OnShutdown(fn func()) {
	d.shutdown = append(d.shutdown, fn)
}

// Quit requests the loop stop accepting new readiness waits after the
// current iteration drains. Safe to call from within a sink callback.
func (d *Dispatcher) Quit() { d.quit = true }

const maxEpollEvents = 256

// Run blocks until Quit is observed, dispatching readiness and timeout
// events per spec.md §4.1's per-iteration contract: (a) compute next
// deadline, (b) wait, (c) process ready fds in FIFO (kernel-reported) order,
// (d) process expired timeouts.
func (d *Dispatcher) Run() {
	events := make([]unix.EpollEvent, maxEpollEvents)

	for !d.quit {
		waitMs := d.pollTimeoutMs()
		n, err := unix.EpollWait(d.epfd, events, waitMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			nlog.Errorln("dispatcher: epoll_wait:", err)
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ent, ok := d.entries[fd]
			if !ok || ent.dead {
				// Unsubscribed mid-batch by an earlier callback this same
				// iteration; spec.md §4.1 requires tolerating this.
				continue
			}
			d.dispatchOne(ent, EventMask(events[i].Events))
		}

		d.wheel.FireExpired()
	}

	for _, fn := range d.shutdown {
		fn()
	}
}

func (d *Dispatcher) dispatchOne(ent *entry, ready EventMask) {
	defer func() {
		if r := recover(); r != nil {
			d.safeException(ent, panicMessage(r))
		}
	}()
	ent.sink.HandleEvents(ready)
}

func (d *Dispatcher) safeException(ent *entry, message string) {
	defer func() {
		if r := recover(); r != nil {
			// handleException itself misbehaved: the sink is beyond saving.
			nlog.Errorln("dispatcher: sink handleException panicked, force-killing:", panicMessage(r))
			ent.dead = true
			d.Unsubscribe(ent.fd)
		}
	}()
	ent.sink.HandleException(message)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic: non-error value recovered"
}

// pollTimeoutMs computes epoll_wait's timeout argument from the wheel's
// earliest deadline, or -1 (block indefinitely) if nothing is armed.
func (d *Dispatcher) pollTimeoutMs() int {
	deadline, ok := d.wheel.NextDeadline()
	if !ok {
		return -1
	}
	remaining := deadline.Sub(monoclock.Now())
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	if ms > int64(int(^uint(0)>>1)) {
		return int(^uint(0) >> 1)
	}
	return int(ms)
}
