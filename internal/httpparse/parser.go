// Package httpparse implements spec.md §4.7: an incremental HTTP/1.x
// request-line + headers + body parser with chunked transfer support. The
// source repo this module generalizes from stubs its parser entirely (the
// C++ `commit()` always returns false per spec.md §9), so this is a
// from-scratch implementation against the prose contract only, written in
// the teacher's "accumulate into a reusable buffer, report a small enum"
// style seen in transport/base.go's in-send state machine (inHdr/inPDU/
// inData/inEOB).
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package httpparse

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/nvaistore/webs3rv/internal/config"
)

type Result int

const (
	NeedMore Result = iota
	Complete
	Malformed
)

const (
	maxRequestLine = 8 * 1024
	maxHeaderLine  = 8 * 1024
	maxHeaderTotal = 32 * 1024
)

// Header is one (name, value) pair, name preserved as received.
type Header struct {
	Name  string
	Value string
}

// Request is the parsed value spec.md §3 describes.
type Request struct {
	Method      string
	RawQuery    string // raw query string (no leading '?')
	QueryPath   string // percent-decoded path, without the query string
	Headers     []Header
	Body        []byte
	ClientIPv4  [4]byte
	IsLegacy    bool // HTTP/1.0
	CloseWanted bool
}

// HeaderValue returns the first header matching name case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

type phase int

const (
	phaseRequestLine phase = iota
	phaseHeaders
	phaseBodyFixed
	phaseBodyChunkedSize
	phaseBodyChunkedData
	phaseBodyChunkedCRLF
	phaseBodyChunkedTrailer
	phaseDone
)

// Parser accumulates bytes across calls to Commit until a full request (or a
// terminal parse error) is recognized. One Parser is reused across requests
// on a keep-alive connection via Reset.
type Parser struct {
	maxBody int64

	buf   []byte
	phase phase

	req Request

	contentLength  int64
	haveLength     bool
	chunked        bool
	chunkRemaining int64
	bodyBuf        bytes.Buffer

	clientIPv4 [4]byte
}

func New(maxBody int64, clientIPv4 [4]byte) *Parser {
	return &Parser{maxBody: maxBody, clientIPv4: clientIPv4}
}

// Reset prepares the parser for the next request on the same connection.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.phase = phaseRequestLine
	p.req = Request{}
	p.contentLength = 0
	p.haveLength = false
	p.chunked = false
	p.chunkRemaining = 0
	p.bodyBuf.Reset()
}

// Commit feeds newly-read bytes in. On Complete, *out is populated and the
// parser is left ready for Reset (the caller decides whether to keep
// reading on the same connection). On Malformed, the caller must send an
// error response and close.
func (p *Parser) Commit(data []byte) (Result, *Request) {
	p.buf = append(p.buf, data...)

	for {
		switch p.phase {
		case phaseRequestLine:
			line, rest, ok := popLine(p.buf)
			if !ok {
				if len(p.buf) > maxRequestLine {
					return Malformed, nil
				}
				return NeedMore, nil
			}
			if len(line) > maxRequestLine {
				return Malformed, nil
			}
			if !p.parseRequestLine(string(line)) {
				return Malformed, nil
			}
			p.buf = rest
			p.phase = phaseHeaders

		case phaseHeaders:
			line, rest, ok := popLine(p.buf)
			if !ok {
				if len(p.buf) > maxHeaderTotal {
					return Malformed, nil
				}
				return NeedMore, nil
			}
			if len(line) > maxHeaderLine {
				return Malformed, nil
			}
			p.buf = rest
			if len(line) == 0 {
				// CRLF-CRLF: headers complete.
				if !p.finishHeaders() {
					return Malformed, nil
				}
				continue
			}
			h, ok := parseHeaderLine(string(line))
			if !ok {
				return Malformed, nil
			}
			p.req.Headers = append(p.req.Headers, h)
			headerBytes := 0
			for _, hh := range p.req.Headers {
				headerBytes += len(hh.Name) + len(hh.Value)
			}
			if headerBytes > maxHeaderTotal {
				return Malformed, nil
			}

		case phaseBodyFixed:
			need := p.contentLength - int64(p.bodyBuf.Len())
			if need <= 0 {
				p.req.Body = p.bodyBuf.Bytes()
				p.phase = phaseDone
				continue
			}
			take := int64(len(p.buf))
			if take > need {
				take = need
			}
			p.bodyBuf.Write(p.buf[:take])
			p.buf = p.buf[take:]
			if int64(p.bodyBuf.Len()) < p.contentLength {
				return NeedMore, nil
			}
			p.req.Body = p.bodyBuf.Bytes()
			p.phase = phaseDone

		case phaseBodyChunkedSize:
			line, rest, ok := popLine(p.buf)
			if !ok {
				return NeedMore, nil
			}
			p.buf = rest
			sizeStr := string(line)
			if i := strings.IndexByte(sizeStr, ';'); i >= 0 {
				sizeStr = sizeStr[:i] // drop chunk extensions
			}
			size, err := config.ParseSizeHex(strings.TrimSpace(sizeStr))
			if err != nil {
				return Malformed, nil
			}
			if size == 0 {
				p.phase = phaseBodyChunkedTrailer
				continue
			}
			if int64(p.bodyBuf.Len())+size > p.maxBody {
				return Malformed, nil
			}
			p.chunkRemaining = size
			p.phase = phaseBodyChunkedData

		case phaseBodyChunkedData:
			take := int64(len(p.buf))
			if take > p.chunkRemaining {
				take = p.chunkRemaining
			}
			p.bodyBuf.Write(p.buf[:take])
			p.buf = p.buf[take:]
			p.chunkRemaining -= take
			if p.chunkRemaining > 0 {
				return NeedMore, nil
			}
			p.phase = phaseBodyChunkedCRLF

		case phaseBodyChunkedCRLF:
			line, rest, ok := popLine(p.buf)
			if !ok {
				return NeedMore, nil
			}
			if len(line) != 0 {
				return Malformed, nil
			}
			p.buf = rest
			p.phase = phaseBodyChunkedSize

		case phaseBodyChunkedTrailer:
			// Trailer headers (possibly zero) followed by a final blank line.
			line, rest, ok := popLine(p.buf)
			if !ok {
				return NeedMore, nil
			}
			p.buf = rest
			if len(line) == 0 {
				p.req.Body = p.bodyBuf.Bytes()
				p.phase = phaseDone
				continue
			}
			// trailer headers are accepted but not surfaced, matching a
			// minimal CGI/1.1 gateway that never forwards them.

		case phaseDone:
			p.req.ClientIPv4 = p.clientIPv4
			out := p.req
			return Complete, &out
		}
	}
}

func popLine(buf []byte) (line, rest []byte, ok bool) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return nil, buf, false
	}
	return buf[:idx], buf[idx+2:], true
}

func (p *Parser) parseRequestLine(line string) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return false
	}
	method, target, version := parts[0], parts[1], parts[2]
	if !validMethod(method) {
		return false
	}
	p.req.Method = method

	switch version {
	case "HTTP/1.1":
		p.req.IsLegacy = false
	case "HTTP/1.0":
		p.req.IsLegacy = true
	default:
		return false
	}

	rawPath := target
	rawQuery := ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		rawPath, rawQuery = target[:i], target[i+1:]
	}
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return false
	}
	p.req.QueryPath = decoded
	p.req.RawQuery = rawQuery
	return true
}

func validMethod(m string) bool {
	switch m {
	case "GET", "POST", "DELETE", "HEAD", "PUT", "OPTIONS":
		return true
	default:
		return false
	}
}

func parseHeaderLine(line string) (Header, bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return Header{}, false
	}
	name := line[:idx]
	if strings.ContainsAny(name, "\r\n: ") {
		return Header{}, false
	}
	value := strings.TrimSpace(line[idx+1:])
	return Header{Name: name, Value: value}, true
}

func (p *Parser) finishHeaders() bool {
	if c, ok := p.req.HeaderValue("Connection"); ok && strings.EqualFold(strings.TrimSpace(c), "close") {
		p.req.CloseWanted = true
	}
	if te, ok := p.req.HeaderValue("Transfer-Encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		p.chunked = true
		p.phase = phaseBodyChunkedSize
		return true
	}
	if cl, ok := p.req.HeaderValue("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return false
		}
		if n > p.maxBody {
			return false
		}
		p.contentLength = n
		p.haveLength = true
		p.phase = phaseBodyFixed
		return true
	}
	// No body declared.
	p.phase = phaseDone
	return true
}
