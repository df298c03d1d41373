// Package cgisession implements spec.md §4.6: the CGI process sub-state
// machine owned by an HTTP client session. Grounded on prochandle's
// non-blocking pipe fds and the dispatcher's Sink contract; the
// RUNNING/SUCCESS/FAILURE/TIMEOUT state names and the stdin-write-then-
// stdout-read handoff come straight from spec.md §4.6's event-handling
// prose. original_source/source/cgi_process.cpp resolves two Ambiguities
// flagged in spec.md §9: the constructor takes a RoutingInfo (not the
// unused RouteResult declaration), and handleException only acts while the
// session is still RUNNING (the source's inverted `!=` guard is a bug).
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package cgisession

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/cos"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/httpparse"
	"github.com/nvaistore/webs3rv/internal/nlog"
	"github.com/nvaistore/webs3rv/internal/prochandle"
	"github.com/nvaistore/webs3rv/internal/timeout"
)

type State int

const (
	Running State = iota
	Success
	Failure
	Timeout
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// maxResponse is the 2 GiB cap spec.md §4.6 mandates on the buffered CGI
// response body.
const maxResponse = 2 << 30

const readChunk = 8 * 1024

type phase int

const (
	phaseWriteStdin phase = iota
	phaseReadStdout
)

// DoneFunc is invoked exactly once, when the session reaches a terminal
// state, with the raw bytes the child wrote to stdout (nil on FAILURE or
// TIMEOUT). Per spec.md §4.6's invariant, it fires only after the child has
// been reaped and both pipes unsubscribed.
type DoneFunc func(state State, rawOutput []byte)

// Session is a dispatcher.Sink and a timeout.Sink for exactly one CGI
// child. It owns the child's stdin/stdout fds for its entire lifetime.
type Session struct {
	disp *dispatcher.Dispatcher
	proc *prochandle.Handle

	phase   phase
	pending []byte
	written int
	resp    bytes.Buffer

	timeoutHandle *timeout.Timeout
	done          bool
	state         State
	onDone        DoneFunc
	loghdr        string
}

// Spawn forks the interpreter against scriptPath and begins streaming req's
// body to its stdin. interp and scriptPath are assumed already resolved by
// the router; req and server supply the CGI/1.1 environment.
func Spawn(
	disp *dispatcher.Dispatcher,
	interp, scriptPath string,
	req *httpparse.Request,
	server *config.Server,
	protected bool,
	cgiTimeout time.Duration,
	onDone DoneFunc,
) (*Session, error) {
	argv := buildArgv(interp, scriptPath, req)
	env := buildEnv(scriptPath, req, server, protected)
	dir := filepath.Dir(scriptPath)

	proc, err := prochandle.Spawn(argv, env, dir)
	if err != nil {
		return nil, cos.Wrapf(err, "cgisession: spawn %s", scriptPath)
	}

	s := &Session{
		disp:    disp,
		proc:    proc,
		pending: req.Body,
		state:   Running,
		onDone:  onDone,
		loghdr:  fmt.Sprintf("cgi[%s pid=?]", filepath.Base(scriptPath)),
	}
	s.timeoutHandle = disp.Arm(cgiTimeout, s)

	nlog.Infoln(s.loghdr, "spawned, argv =", argv)

	if len(s.pending) == 0 {
		s.proc.CloseInput()
		s.phase = phaseReadStdout
		if err := disp.Subscribe(s.proc.OutputFd(), dispatcher.Readable|dispatcher.HangUp, s); err != nil {
			s.terminateChild()
			return nil, err
		}
		return s, nil
	}

	s.phase = phaseWriteStdin
	if err := disp.Subscribe(s.proc.InputFd(), dispatcher.Writable, s); err != nil {
		s.terminateChild()
		return nil, err
	}
	return s, nil
}

// State reports the session's current state.
func (s *Session) State() State { return s.state }

// HandleEvents implements dispatcher.Sink. Only one fd is ever subscribed
// at a time (stdin while writing, stdout while reading), so the ready mask
// unambiguously describes that fd's readiness.
func (s *Session) HandleEvents(ready dispatcher.EventMask) {
	if s.state != Running {
		return
	}
	switch s.phase {
	case phaseWriteStdin:
		s.handleWritable()
	case phaseReadStdout:
		s.handleReadable(ready)
	}
}

func (s *Session) handleWritable() {
	n, err := unix.Write(s.proc.InputFd(), s.pending[s.written:])
	if err != nil {
		if cos.IsErrWouldBlock(err) {
			return
		}
		s.fail("write to CGI stdin: " + err.Error())
		return
	}
	s.written += n
	s.disp.Reset(s.timeoutHandle)
	if s.written < len(s.pending) {
		return
	}

	s.disp.Unsubscribe(s.proc.InputFd())
	s.proc.CloseInput()
	s.phase = phaseReadStdout
	if err := s.disp.Subscribe(s.proc.OutputFd(), dispatcher.Readable|dispatcher.HangUp, s); err != nil {
		s.fail("subscribe CGI stdout: " + err.Error())
	}
}

func (s *Session) handleReadable(ready dispatcher.EventMask) {
	buf := make([]byte, readChunk)
	n, err := unix.Read(s.proc.OutputFd(), buf)
	switch {
	case err != nil:
		if cos.IsErrWouldBlock(err) {
			if ready&dispatcher.HangUp != 0 {
				s.onStdoutClosed()
			}
			return
		}
		s.fail("read from CGI stdout: " + err.Error())
	case n == 0:
		// A zero-length read: per spec.md §9's design note this "can never
		// happen" comment in the source is defensive, not a guarantee; treat
		// it exactly like hang-up.
		s.onStdoutClosed()
	default:
		s.resp.Write(buf[:n])
		s.disp.Reset(s.timeoutHandle)
		if s.resp.Len() > maxResponse {
			s.fail("CGI response exceeded 2GiB cap")
		}
	}
}

// onStdoutClosed runs spec.md §4.6's "on hang-up / EOF" branch: poll
// status() once, succeed or fail accordingly.
func (s *Session) onStdoutClosed() {
	s.disp.Unsubscribe(s.proc.OutputFd())
	switch s.proc.Status() {
	case prochandle.ExitSuccess:
		s.finish(Success, s.resp.Bytes())
	case prochandle.Running:
		// Defensive: stdout closed but the child hasn't been observed
		// exited yet. Reap synchronously — the child has already let go of
		// its own end of the pipe, so this does not block meaningfully.
		s.proc.Reap()
		s.finish(Failure, nil)
	default:
		s.finish(Failure, nil)
	}
}

// HandleTimeout implements timeout.Sink.
func (s *Session) HandleTimeout() {
	if s.state != Running {
		return
	}
	nlog.Warningln(s.loghdr, "CGI timeout, killing child")
	s.terminateChild()
	s.finish(Timeout, nil)
}

// HandleException implements dispatcher.Sink.
func (s *Session) HandleException(message string) {
	if s.state != Running {
		return
	}
	nlog.Errorln(s.loghdr, "dispatcher exception:", message)
	s.terminateChild()
	s.finish(Failure, nil)
}

func (s *Session) fail(message string) {
	nlog.Warningln(s.loghdr, "failure:", message)
	s.terminateChild()
	s.finish(Failure, nil)
}

func (s *Session) terminateChild() {
	s.disp.Unsubscribe(s.proc.InputFd())
	s.disp.Unsubscribe(s.proc.OutputFd())
	_ = s.proc.Kill()
	s.proc.Reap()
}

func (s *Session) finish(state State, body []byte) {
	if s.done {
		return
	}
	s.done = true
	s.state = state
	s.disp.Disarm(s.timeoutHandle)
	cb := s.onDone
	s.onDone = nil
	nlog.Infoln(s.loghdr, "terminal state", state)
	if cb != nil {
		cb(state, body)
	}
}

func buildArgv(interp, scriptPath string, req *httpparse.Request) []string {
	argv := []string{interp, scriptPath}
	if req.Method == "GET" && req.RawQuery != "" {
		argv = append(argv, "?"+req.RawQuery)
	}
	return argv
}

func buildEnv(scriptPath string, req *httpparse.Request, server *config.Server, protected bool) []string {
	remoteAddr := fmt.Sprintf("%d.%d.%d.%d", req.ClientIPv4[0], req.ClientIPv4[1], req.ClientIPv4[2], req.ClientIPv4[3])
	host, _ := req.HeaderValue("Host")
	contentLength, _ := req.HeaderValue("Content-Length")
	contentType, _ := req.HeaderValue("Content-Type")
	authType := ""
	if protected {
		authType = "Basic"
	}

	env := []string{
		"AUTH_TYPE=" + authType,
		"CONTENT_LENGTH=" + contentLength,
		"CONTENT_TYPE=" + contentType,
		"GATEWAY_INTERFACE=CGI/1.1",
		"PATH_INFO=",
		"PATH_TRANSLATED=" + scriptPath,
		"QUERY_STRING=" + req.RawQuery,
		"REMOTE_ADDR=" + remoteAddr,
		"REMOTE_HOST=" + remoteAddr,
		"REQUEST_METHOD=" + req.Method,
		"SCRIPT_NAME=" + req.QueryPath,
		"SCRIPT_FILENAME=" + scriptPath,
		"HTTP_HOST=" + host,
		"SERVER_NAME=" + host,
		"SERVER_PORT=" + strconv.Itoa(int(server.ListenPort)),
		"SERVER_PROTOCOL=HTTP/1.1",
		"SERVER_SOFTWARE=webs3rv",
		"REDIRECT_STATUS=200",
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Content-Length") || strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		env = append(env, "HTTP_"+headerEnvName(h.Name)+"="+h.Value)
	}
	return env
}

func headerEnvName(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-':
			b[i] = '_'
		case c >= 'a' && c <= 'z':
			b[i] = c - ('a' - 'A')
		default:
			b[i] = c
		}
	}
	return string(b)
}
