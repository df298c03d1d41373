// Package cos ("common small") holds the error-classification helpers the
// dispatcher and sessions use to tell a benign short-write/EAGAIN apart from
// a real I/O failure. Grounded on cmn/cos/err.go in the teacher, trimmed to
// the syscalls this server's pipes and sockets actually raise.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// IsErrWouldBlock reports whether err is EAGAIN/EWOULDBLOCK, the expected
// outcome of a non-blocking read/write that has no data/room right now.
func IsErrWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, os.ErrDeadlineExceeded)
}

// IsErrBrokenPipe reports a SIGPIPE-class write failure (the child closed
// its end of a pipe the session was still writing to).
func IsErrBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

// IsErrConnectionReset reports a TCP RST or broken pipe on a client socket.
func IsErrConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || IsErrBrokenPipe(err)
}

// Wrap attaches a subsystem-boundary message to err using pkg/errors, the way
// the teacher wraps backend errors before they cross into its own
// cmn.NewErr* constructors (cmn/api.go, ais/backend/azure.go).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// ErrSignal models a process killed by a signal, mirroring
// cmn/cos/err.go's ErrSignal / NewSignalError / ExitCode. No package in this
// module constructs one; the CGI session reports a killed child only
// through its FAILURE/TIMEOUT state.
type ErrSignal struct {
	Signal syscall.Signal
}

func NewSignalError(s syscall.Signal) *ErrSignal { return &ErrSignal{Signal: s} }

func (e *ErrSignal) Error() string { return fmt.Sprintf("terminated by signal %d", e.Signal) }

// ExitCode mirrors the POSIX convention (128 + signal number), see
// https://tldp.org/LDP/abs/html/exitcodes.html.
func (e *ErrSignal) ExitCode() int { return 128 + int(e.Signal) }
