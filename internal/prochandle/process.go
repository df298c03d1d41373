// Package prochandle implements spec.md §4.3: fork/exec a child with
// redirected, non-blocking, close-on-exec stdin/stdout pipes, and reap it
// with a non-blocking wait. Grounded on the syscall-level error
// classification style of cmn/cos/err.go and on the pipe-plumbing idiom of
// the standard library's net/http/cgi host (see other_examples), adapted to
// expose raw non-blocking fds instead of *os.File so the caller's own
// epoll-based dispatcher (internal/dispatcher) can subscribe to them
// directly — os.Pipe's blocking fds would otherwise be silently registered
// with the Go runtime's netpoller the first time they're used through
// *os.File, which would fight our own epoll loop for readiness events.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package prochandle

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/cos"
)

type Status int

const (
	Running Status = iota
	ExitSuccess
	ExitFailure
)

// Handle owns one child process and the parent-side ends of its stdin/stdout
// pipes. It cannot be copied (mirrors the C++ Process class's nonlinear
// ownership of fds and a *os.Process).
type Handle struct {
	cmd *exec.Cmd

	inputFd  int // parent's write end of child's stdin; -1 once closed
	outputFd int // parent's read end of child's stdout; -1 once closed

	mu     sync.Mutex
	status Status
	waited bool
}

// Spawn forks and execs argv[0] with the given argv/envp and working
// directory. stderr is inherited by the child, per spec.md §4.3.
func Spawn(argv, envp []string, dir string) (*Handle, error) {
	stdinR, stdinW, err := pipe2NonblockCloexec()
	if err != nil {
		return nil, cos.Wrap(err, "prochandle: create stdin pipe")
	}
	stdoutR, stdoutW, err := pipe2NonblockCloexec()
	if err != nil {
		unix.Close(stdinR)
		unix.Close(stdinW)
		return nil, cos.Wrap(err, "prochandle: create stdout pipe")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = envp
	cmd.Stdin = os.NewFile(uintptr(stdinR), "cgi-stdin-r")
	cmd.Stdout = os.NewFile(uintptr(stdoutW), "cgi-stdout-w")
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		unix.Close(stdinR)
		unix.Close(stdinW)
		unix.Close(stdoutR)
		unix.Close(stdoutW)
		return nil, cos.Wrap(err, "prochandle: spawn child")
	}

	// The child inherited its own copies of stdinR/stdoutW across fork; the
	// parent only needs the other ends now.
	cmd.Stdin.(*os.File).Close()
	cmd.Stdout.(*os.File).Close()

	return &Handle{
		cmd:      cmd,
		inputFd:  stdinW,
		outputFd: stdoutR,
		status:   Running,
	}, nil
}

func pipe2NonblockCloexec() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// InputFd is the non-blocking, writable fd feeding the child's stdin. -1
// once CloseInput has been called.
func (h *Handle) InputFd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inputFd
}

// OutputFd is the non-blocking, readable fd draining the child's stdout. -1
// once the child has exited and pipes were closed.
func (h *Handle) OutputFd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputFd
}

// CloseInput closes the write end of the child's stdin, signalling EOF.
func (h *Handle) CloseInput() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inputFd >= 0 {
		unix.Close(h.inputFd)
		h.inputFd = -1
	}
}

// Status returns RUNNING | EXIT_SUCCESS | EXIT_FAILURE. Every call attempts
// a non-blocking wait if the child hasn't already been observed exited;
// exactly one such call ever sees the real termination (the kernel reports a
// child's exit to a single wait4), after which both pipes are closed.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waited {
		return h.status
	}

	var ws unix.WaitStatus
	pid, err := unix.Wait4(h.cmd.Process.Pid, &ws, unix.WNOHANG, nil)
	if err != nil || pid == 0 {
		return Running
	}

	h.waited = true
	if ws.Exited() && ws.ExitStatus() == 0 {
		h.status = ExitSuccess
	} else {
		h.status = ExitFailure
	}
	h.closePipesLocked()
	return h.status
}

func (h *Handle) closePipesLocked() {
	if h.inputFd >= 0 {
		unix.Close(h.inputFd)
		h.inputFd = -1
	}
	if h.outputFd >= 0 {
		unix.Close(h.outputFd)
		h.outputFd = -1
	}
}

// Kill sends SIGKILL immediately. Used by the CGI session's timeout path
// (spec.md §4.6: "A TIMEOUT must terminate the child (SIGKILL ... )").
func (h *Handle) Kill() error {
	return h.cmd.Process.Signal(syscall.SIGKILL)
}

// Reap blocks until the child has been waited on, used after Kill to
// guarantee no zombie survives the Handle's destruction (spec.md §4.3
// invariant: "exactly one wait call sees the child's termination").
func (h *Handle) Reap() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waited {
		return
	}
	var ws unix.WaitStatus
	_, _ = unix.Wait4(h.cmd.Process.Pid, &ws, 0, nil)
	h.waited = true
	if ws.Exited() && ws.ExitStatus() == 0 {
		h.status = ExitSuccess
	} else {
		h.status = ExitFailure
	}
	h.closePipesLocked()
}
