// Package session implements spec.md §4.5: the per-connection HTTP client
// state machine. Grounded on the CGI sub-state handoff the teacher's own
// transport/base.go uses for its in{Hdr,PDU,Data,EOB} send loop (accumulate
// into a buffer, drain on writability, reset or close on completion), and
// on router/httpparse/cgisession for the branches spec.md §4.5 enumerates.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nvaistore/webs3rv/internal/accesslog"
	"github.com/nvaistore/webs3rv/internal/auth"
	"github.com/nvaistore/webs3rv/internal/capacity"
	"github.com/nvaistore/webs3rv/internal/cgisession"
	"github.com/nvaistore/webs3rv/internal/cksum"
	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/cos"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/httpparse"
	"github.com/nvaistore/webs3rv/internal/nlog"
	"github.com/nvaistore/webs3rv/internal/respio"
	"github.com/nvaistore/webs3rv/internal/router"
	"github.com/nvaistore/webs3rv/internal/static"
	"github.com/nvaistore/webs3rv/internal/statsx"
	"github.com/nvaistore/webs3rv/internal/timeout"
	"github.com/nvaistore/webs3rv/internal/uploadlog"
)

type state int

const (
	stReading state = iota
	stCGI
	stWriting
	stClosing
)

const (
	readChunk       = 16 * 1024
	sessionTimeout  = 30 * time.Second
	cgiTimeout      = 10 * time.Second
	uploadTicketTTL = 5 * time.Minute
)

// AccessLogger and UploadLedger are the narrow interfaces session needs
// from internal/accesslog and internal/uploadlog, kept here so session
// doesn't force every caller to wire an upload ledger to get a working
// server (both are optional; nil is a valid, silently-skipped value).
type AccessLogger interface {
	Log(accesslog.Entry) error
}

type UploadLedger interface {
	Record(rec uploadlog.Record) error
}

// Session is one client connection: a dispatcher.Sink and a timeout.Sink.
type Session struct {
	disp    *dispatcher.Dispatcher
	fd      int
	servers []*config.Server
	rtr     *router.Router

	parser *httpparse.Parser
	state  state

	writeBuf      []byte
	writeOff      int
	closeAfter    bool
	timeoutHandle *timeout.Timeout

	cgi *cgisession.Session

	alog       AccessLogger
	ledger     UploadLedger
	metrics    *statsx.Metrics
	authSecret []byte
	reqStart   time.Time
	loghdr     string
}

// New wraps an already-accepted, non-blocking client fd. servers lists the
// candidate virtual hosts sharing this listener; the first whose
// server_name matches the request's Host header is used, falling back to
// servers[0]. metrics is optional; a nil value silently disables counters.
func New(disp *dispatcher.Dispatcher, fd int, servers []*config.Server, rtr *router.Router, alog AccessLogger, ledger UploadLedger, metrics *statsx.Metrics, authSecret []byte) (*Session, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("session: at least one server required")
	}
	s := &Session{
		disp:       disp,
		fd:         fd,
		servers:    servers,
		rtr:        rtr,
		parser:     httpparse.New(servers[0].MaxBodySize, clientIPv4(fd)),
		state:      stReading,
		alog:       alog,
		ledger:     ledger,
		metrics:    metrics,
		authSecret: authSecret,
		loghdr:     fmt.Sprintf("session[fd=%d]", fd),
	}
	s.timeoutHandle = disp.Arm(sessionTimeout, s)
	if err := disp.Subscribe(fd, dispatcher.Readable|dispatcher.HangUp, s); err != nil {
		return nil, err
	}
	if metrics != nil {
		metrics.OpenDispatchFds.Inc()
	}
	nlog.Infoln(s.loghdr, "accepted")
	return s, nil
}

func clientIPv4(fd int) [4]byte {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return [4]byte{}
	}
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return [4]byte{sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3]}
	}
	return [4]byte{}
}

// HandleEvents implements dispatcher.Sink.
func (s *Session) HandleEvents(ready dispatcher.EventMask) {
	switch s.state {
	case stReading:
		s.handleReadable(ready)
	case stWriting:
		s.handleWritable()
	case stCGI:
		// The CGI session owns its own fds and is subscribed independently;
		// this branch only fires if the client socket itself became ready
		// (e.g. the peer closed early) while we're mid-CGI.
		if ready&dispatcher.HangUp != 0 {
			s.abortCGI()
		}
	}
}

func (s *Session) handleReadable(ready dispatcher.EventMask) {
	buf := make([]byte, readChunk)
	n, err := unix.Read(s.fd, buf)
	switch {
	case err != nil:
		if cos.IsErrWouldBlock(err) {
			return
		}
		s.closeNow("read error: " + err.Error())
		return
	case n == 0:
		s.closeNow("peer closed")
		return
	}

	s.disp.Reset(s.timeoutHandle)
	result, req := s.parser.Commit(buf[:n])
	switch result {
	case httpparse.NeedMore:
		return
	case httpparse.Malformed:
		s.reqStart = time.Now()
		s.sendError(req, 400, nil)
	case httpparse.Complete:
		s.reqStart = time.Now()
		s.route(req)
	}
}

func (s *Session) handleWritable() {
	n, err := unix.Write(s.fd, s.writeBuf[s.writeOff:])
	if err != nil {
		if cos.IsErrWouldBlock(err) {
			return
		}
		s.closeNow("write error: " + err.Error())
		return
	}
	s.writeOff += n
	s.disp.Reset(s.timeoutHandle)
	if s.writeOff < len(s.writeBuf) {
		return
	}

	if s.closeAfter {
		s.closeNow("response complete, close requested")
		return
	}

	s.writeBuf = nil
	s.writeOff = 0
	s.parser.Reset()
	s.state = stReading
	if err := s.disp.Subscribe(s.fd, dispatcher.Readable|dispatcher.HangUp, s); err != nil {
		s.closeNow("resubscribe failed: " + err.Error())
	}
}

// HandleTimeout implements timeout.Sink. Expiration while reading or
// writing is fatal to the connection per spec.md §4.5.
func (s *Session) HandleTimeout() {
	if s.state == stCGI {
		// The CGI session has its own timeout; a session-level timeout
		// during CGI means the overall request (including the time spent
		// waiting for the child) ran too long.
		s.abortCGI()
		return
	}
	s.closeNow("session timeout")
}

// HandleException implements dispatcher.Sink.
func (s *Session) HandleException(message string) {
	nlog.Errorln(s.loghdr, "exception:", message)
	s.closeNow("exception: " + message)
}

func (s *Session) abortCGI() {
	if s.cgi != nil {
		s.cgi = nil
	}
	s.closeNow("aborted during CGI")
}

func (s *Session) closeNow(reason string) {
	if s.state == stClosing {
		return
	}
	nlog.Infoln(s.loghdr, "closing:", reason)
	s.state = stClosing
	s.disp.Unsubscribe(s.fd)
	s.disp.Disarm(s.timeoutHandle)
	unix.Close(s.fd)
	if s.metrics != nil {
		s.metrics.OpenDispatchFds.Dec()
	}
}

// route implements spec.md §4.5's ROUTING state.
func (s *Session) route(req *httpparse.Request) {
	server := s.resolveServer(req)
	info := s.rtr.FindRoute(server, req.QueryPath)

	switch info.Status {
	case router.NotFound:
		s.routeUnmatched(server, req)
		return
	case router.NoAccess:
		s.sendError(req, 403, nil)
		return
	case router.FoundRedirect:
		s.sendRedirect(req, info.RedirectRoute)
		return
	case router.FoundLocal:
		s.routeFoundLocal(server, info, req)
		return
	}
}

// routeUnmatched handles the case FindRoute reports NOT_FOUND: either this
// really is a 404, or it's a write to a not-yet-existing upload/delete
// target under a configured route.
func (s *Session) routeUnmatched(server *config.Server, req *httpparse.Request) {
	lr := s.rtr.MatchPrefix(server, req.QueryPath)
	if lr == nil {
		s.sendError(req, 404, server)
		return
	}
	if req.Method == "POST" && lr.AllowUpload && lr.AllowsMethod("POST") {
		s.handleUpload(server, lr, req)
		return
	}
	s.sendError(req, 404, server)
}

func (s *Session) routeFoundLocal(server *config.Server, info router.Info, req *httpparse.Request) {
	if info.LocalRoute.Protected && !s.authorized(info.LocalRoute, req) {
		s.sendUnauthorized(req)
		return
	}
	if !info.LocalRoute.AllowsMethod(req.Method) {
		s.sendError(req, 403, server)
		return
	}

	if info.CGIInterp != "" {
		s.startCGI(server, info, req)
		return
	}

	switch {
	case req.Method == "DELETE":
		s.handleDelete(req, info)
	case info.NodeType == router.NodeDirectory:
		s.handleDirectory(server, req, info)
	default:
		s.serveStaticFile(req, server, info.NodePath)
	}
}

func (s *Session) authorized(route *config.LocalRoute, req *httpparse.Request) bool {
	if hv, ok := req.HeaderValue("X-Upload-Ticket"); ok && len(s.authSecret) > 0 {
		if scopedRoute, ok := auth.VerifyUploadTicket(s.authSecret, hv); ok && scopedRoute == route.Path {
			return true
		}
	}
	hv, ok := req.HeaderValue("Authorization")
	if !ok {
		return false
	}
	return auth.CheckBasic(hv, s.currentUsers())
}

func (s *Session) currentUsers() map[string]string {
	if len(s.servers) == 0 {
		return nil
	}
	return s.servers[0].BasicAuthUsers
}

func (s *Session) resolveServer(req *httpparse.Request) *config.Server {
	host, _ := req.HeaderValue("Host")
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	for _, srv := range s.servers {
		if srv.MatchesHost(host) {
			return srv
		}
	}
	return s.servers[0]
}

func (s *Session) handleDirectory(server *config.Server, req *httpparse.Request, info router.Info) {
	if !info.LocalRoute.Autoindex {
		s.sendError(req, 403, server)
		return
	}
	entries, err := static.ListDir(info.NodePath)
	if err != nil {
		s.sendError(req, 403, server)
		return
	}
	body := static.RenderHTML(req.QueryPath, entries)
	s.writeGeneratedBody(req, 200, "text/html; charset=utf-8", body, "static")
}

func (s *Session) serveStaticFile(req *httpparse.Request, server *config.Server, path string) {
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			s.sendError(req, 403, server)
		} else {
			s.sendError(req, 404, server)
		}
		return
	}
	headers := map[string]string{
		"Content-Type":       contentTypeFor(path),
		"X-Content-XXHash":   cksum.Sum64Hex(body),
	}
	s.writeResponse(req, 200, headers, body, "static")
}

func (s *Session) handleDelete(req *httpparse.Request, info router.Info) {
	if err := os.Remove(info.NodePath); err != nil {
		s.sendError(req, 403, nil)
		return
	}
	s.writeResponse(req, 204, nil, nil, "static")
}

func (s *Session) handleUpload(server *config.Server, lr *config.LocalRoute, req *httpparse.Request) {
	name := strings.TrimPrefix(req.QueryPath, lr.Path)
	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "..") {
		s.sendError(req, 400, server)
		return
	}
	const minFreeBytes = 10 << 20 // 10 MiB headroom kept on the upload volume
	if !capacity.HasHeadroom(lr.UploadDir, minFreeBytes) {
		s.writeResponseRaw(req, 507, nil, []byte("507 Insufficient Storage\n"), "error", true)
		return
	}

	finalPath := lr.UploadDir + "/" + name
	if err := os.WriteFile(finalPath, req.Body, 0o644); err != nil {
		s.sendError(req, 403, server)
		return
	}
	sum := cksum.Sum64Hex(req.Body)
	if s.metrics != nil {
		s.metrics.BytesUploaded.Add(float64(len(req.Body)))
	}
	if s.ledger != nil {
		rec := uploadlog.Record{FinalPath: finalPath, Size: int64(len(req.Body)), Checksum: sum, When: time.Now()}
		if err := s.ledger.Record(rec); err != nil {
			nlog.Warningln(s.loghdr, "upload ledger record failed:", err)
		}
	}
	headers := map[string]string{"X-Content-XXHash": sum}
	if len(s.authSecret) > 0 {
		if ticket, err := auth.IssueUploadTicket(s.authSecret, lr.Path, uploadTicketTTL); err == nil {
			headers["X-Upload-Ticket"] = ticket
		}
	}
	s.writeResponse(req, 201, headers, []byte("created"), "static")
}

func (s *Session) startCGI(server *config.Server, info router.Info, req *httpparse.Request) {
	s.state = stCGI
	// Only hang-up interest stays on the client fd while the child runs.
	_ = s.disp.Subscribe(s.fd, dispatcher.HangUp, s)
	cgi, err := cgisession.Spawn(s.disp, info.CGIInterp, info.NodePath, req, server, info.LocalRoute.Protected, cgiTimeout, func(result cgisession.State, body []byte) {
		s.onCGIDone(req, result, body)
	})
	if err != nil {
		s.state = stReading
		_ = s.disp.Subscribe(s.fd, dispatcher.Readable|dispatcher.HangUp, s)
		s.sendError(req, 502, server)
		return
	}
	s.cgi = cgi
	if s.metrics != nil {
		s.metrics.CGIInvocations.Inc()
	}
}

func (s *Session) onCGIDone(req *httpparse.Request, result cgisession.State, body []byte) {
	s.cgi = nil
	if s.state == stClosing {
		return
	}
	switch result {
	case cgisession.Success:
		status, headers, respBody := parseCGIOutput(body)
		s.reenterForWrite()
		s.writeResponse(req, status, headers, respBody, "cgi")
	case cgisession.Timeout:
		if s.metrics != nil {
			s.metrics.CGITimeouts.Inc()
		}
		s.reenterForWrite()
		s.sendError(req, 504, nil)
	default:
		s.reenterForWrite()
		s.sendError(req, 502, nil)
	}
}

func (s *Session) reenterForWrite() {
	s.state = stWriting // sendError/writeResponse will overwrite writeBuf/state correctly
}

// parseCGIOutput splits a CGI/1.1 child's raw stdout into a status code, a
// header set, and the body, per the CGI/1.1 convention of a header block
// (optionally containing "Status: NNN Reason") followed by a blank line.
func parseCGIOutput(raw []byte) (int, map[string]string, []byte) {
	headerEnd := indexOfBlankLine(raw)
	if headerEnd < 0 {
		return 200, nil, raw
	}
	headerBlock := string(raw[:headerEnd])
	body := raw[headerEnd:]
	body = trimLeadingCRLF(body)

	status := 200
	headers := map[string]string{}
	for _, line := range strings.Split(headerBlock, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if strings.EqualFold(name, "Status") {
			if n, err := strconv.Atoi(strings.Fields(value)[0]); err == nil {
				status = n
			}
			continue
		}
		headers[name] = value
	}
	return status, headers, body
}

func indexOfBlankLine(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\n' && (b[i+1] == '\n') {
			return i + 1
		}
		if i+3 < len(b) && b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i + 3
		}
	}
	return -1
}

func trimLeadingCRLF(b []byte) []byte {
	for len(b) > 0 && (b[0] == '\r' || b[0] == '\n') {
		b = b[1:]
	}
	return b
}

func (s *Session) sendRedirect(req *httpparse.Request, rr *config.RedirectRoute) {
	headers := map[string]string{"Location": rr.Target}
	s.writeResponse(req, 301, headers, nil, "redirect")
}

func (s *Session) sendUnauthorized(req *httpparse.Request) {
	headers := map[string]string{"WWW-Authenticate": `Basic realm="webs3rv"`}
	s.writeResponseRaw(req, 401, headers, []byte("401 Unauthorized\n"), "error", true)
}

func (s *Session) sendError(req *httpparse.Request, status int, server *config.Server) {
	var body []byte
	if server != nil {
		if path, ok := server.ErrorPages[status]; ok {
			if b, err := os.ReadFile(path); err == nil {
				body = b
			}
		}
	}
	var headers map[string]string
	if body == nil {
		body = []byte(fmt.Sprintf("%d %s\n", status, config.StatusText(status)))
		if req != nil {
			if ae, ok := req.HeaderValue("Accept-Encoding"); ok && respio.NegotiateLZ4(ae) {
				if compressed, err := respio.CompressLZ4(body); err == nil {
					headers = map[string]string{"Content-Encoding": "lz4"}
					body = compressed
				}
			}
		}
	}
	closeConn := status == 400 || status == 413
	s.writeResponseRaw(req, status, headers, body, "error", closeConn)
}

func (s *Session) writeGeneratedBody(req *httpparse.Request, status int, contentType string, body []byte, route string) {
	headers := map[string]string{"Content-Type": contentType}
	if req != nil {
		if ae, ok := req.HeaderValue("Accept-Encoding"); ok && respio.NegotiateLZ4(ae) {
			if compressed, err := respio.CompressLZ4(body); err == nil {
				headers["Content-Encoding"] = "lz4"
				body = compressed
			}
		}
	}
	s.writeResponse(req, status, headers, body, route)
}

func (s *Session) writeResponse(req *httpparse.Request, status int, headers map[string]string, body []byte, route string) {
	s.writeResponseRaw(req, status, headers, body, route, false)
}

func (s *Session) writeResponseRaw(req *httpparse.Request, status int, headers map[string]string, body []byte, route string, forceClose bool) {
	closeConn := forceClose
	if req != nil && (req.IsLegacy || req.CloseWanted) {
		closeConn = true
	}
	if hv, ok := headerLookup(headers, "Connection"); ok && strings.EqualFold(hv, "close") {
		closeConn = true
	}

	s.writeBuf = buildResponse(status, headers, body, closeConn)
	s.writeOff = 0
	s.closeAfter = closeConn
	s.state = stWriting

	if err := s.disp.Subscribe(s.fd, dispatcher.Writable|dispatcher.HangUp, s); err != nil {
		s.closeNow("subscribe for write failed: " + err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.RequestsServed.WithLabelValues(statsx.StatusClass(status)).Inc()
	}
	if s.alog != nil {
		method := ""
		path := ""
		if req != nil {
			method, path = req.Method, req.QueryPath
		}
		_ = s.alog.Log(accesslog.Entry{
			Time:     time.Now(),
			Method:   method,
			Path:     path,
			Status:   status,
			Bytes:    len(body),
			Duration: time.Since(s.reqStart).String(),
			Route:    route,
		})
	}
}

func headerLookup(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func buildResponse(status int, headers map[string]string, body []byte, closeConn bool) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, config.StatusText(status))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	if closeConn {
		b.WriteString("Connection: close\r\n")
	} else {
		b.WriteString("Connection: keep-alive\r\n")
	}
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Connection") {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	out := make([]byte, 0, b.Len()+len(body))
	out = append(out, b.String()...)
	out = append(out, body...)
	return out
}

func contentTypeFor(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(path[dot+1:]) {
	case "html", "htm":
		return "text/html; charset=utf-8"
	case "css":
		return "text/css; charset=utf-8"
	case "js":
		return "application/javascript; charset=utf-8"
	case "json":
		return "application/json; charset=utf-8"
	case "txt":
		return "text/plain; charset=utf-8"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
