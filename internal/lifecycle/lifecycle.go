// Package lifecycle folds SIGINT/SIGTERM into the dispatcher's own
// readiness loop via the classic self-pipe trick (SPEC_FULL.md domain
// stack item 7), so the shutdown itself runs on the dispatcher loop —
// consistent with spec.md §5's single-thread invariant. The only other
// goroutine involved is a relay that turns each signal into a pipe byte.
// Grounded on
// golang.org/x/sys/unix (teacher dep) for the non-blocking pipe and
// Go's signal.Notify for the actual OS hookup, since signalfd itself isn't
// portably exposed by the standard library.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package lifecycle

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/cos"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/nlog"
)

// Watcher subscribes a self-pipe's read end to the dispatcher and calls
// Quit() the first time a byte arrives, written by a relay goroutine that
// reads a signal.Notify channel (os/signal requires a channel receiver; the
// relay does no application work, it only writes a wakeup byte).
type Watcher struct {
	disp    *dispatcher.Dispatcher
	readFd  int
	writeFd int
	sigCh   chan os.Signal
}

// Install registers SIGINT/SIGTERM handling and subscribes the read end of
// the self-pipe to disp. Graceful shutdown fires through disp.Quit() the
// same way any other dispatcher-driven shutdown would.
func Install(disp *dispatcher.Dispatcher) (*Watcher, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, cos.Wrap(err, "lifecycle: create self-pipe")
	}
	w := &Watcher{disp: disp, readFd: fds[0], writeFd: fds[1], sigCh: make(chan os.Signal, 2)}

	signal.Notify(w.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go w.relay()

	if err := disp.Subscribe(w.readFd, dispatcher.Readable, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watcher) relay() {
	for range w.sigCh {
		unix.Write(w.writeFd, []byte{1})
	}
}

// HandleEvents implements dispatcher.Sink.
func (w *Watcher) HandleEvents(dispatcher.EventMask) {
	nlog.Infoln("lifecycle: shutdown signal received")
	w.disp.Quit()
}

// HandleException implements dispatcher.Sink.
func (w *Watcher) HandleException(message string) {
	nlog.Errorln("lifecycle: self-pipe exception:", message)
}
