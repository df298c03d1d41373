// Package config holds the in-memory server/route trees spec.md §3 and §6
// describe. The tokenizer/parser that builds these trees from a config file
// is out of scope per spec.md §1; this package only defines the shape and
// validates the invariants the router and sessions depend on, the way
// cmn/api.go defines Bprops/ExtraProps and leaves loading to its caller.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package config

import (
	"fmt"
	"net/http"
	"strings"
)

// Method is one of the HTTP verbs this server understands (spec.md §3).
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	DELETE Method = "DELETE"
)

// LocalRoute is spec.md §3's "Local route".
type LocalRoute struct {
	Path         string            // must begin with "/"
	RootDir      string            // non-empty
	UploadDir    string            // only meaningful when AllowUpload
	Autoindex    bool              // allow-listing flag
	AllowUpload  bool              // allow-upload flag
	AllowMethods map[Method]bool   // set of allowed HTTP methods
	CGITypes     map[string]string // extension (no leading dot) -> interpreter path
	Protected    bool              // ADDED: gate behind HTTP Basic auth (internal/auth)
}

// RedirectRoute is spec.md §3's "Redirect route".
type RedirectRoute struct {
	Path         string
	AllowMethods map[Method]bool
	Target       string
}

// Server is spec.md §3's "Server configuration" entry (one `server {}`
// block).
type Server struct {
	ListenHost      [4]byte // IPv4 octets
	ListenPort      uint16
	ServerNames     []string
	MaxBodySize     int64
	ErrorPages      map[int]string // HTTP status -> custom error page file
	LocalRoutes     []LocalRoute
	RedirectRoutes  []RedirectRoute

	// BasicAuthUsers maps username -> bcrypt hash, consulted by
	// internal/auth for routes with Protected set. ADDED: spec.md has no
	// authentication concept; this exists only to give a configured
	// LocalRoute.Protected flag something to check against.
	BasicAuthUsers map[string]string
}

// Config is the complete set of servers loaded from one configuration file.
type Config struct {
	Servers []Server

	// Generation is an opaque ID minted for this load (internal/cfgid),
	// reported by the debug inspector and logged at startup.
	Generation string
}

// Validate enforces spec.md §3's invariants. It does not attempt to
// re-implement the parser's syntax checking — only the structural
// invariants the router and session code rely on to avoid panicking on a
// malformed in-memory tree.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one server is required")
	}
	for i := range c.Servers {
		if err := c.Servers[i].Validate(); err != nil {
			return fmt.Errorf("config: server[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *Server) Validate() error {
	if len(s.LocalRoutes) == 0 && len(s.RedirectRoutes) == 0 {
		return fmt.Errorf("server %s: at least one route is required", s.Addr())
	}
	for i := range s.LocalRoutes {
		if err := s.LocalRoutes[i].Validate(); err != nil {
			return fmt.Errorf("local route[%d]: %w", i, err)
		}
	}
	for i := range s.RedirectRoutes {
		if err := s.RedirectRoutes[i].Validate(); err != nil {
			return fmt.Errorf("redirect route[%d]: %w", i, err)
		}
	}
	return nil
}

func (l *LocalRoute) Validate() error {
	if !strings.HasPrefix(l.Path, "/") {
		return fmt.Errorf("location path %q must begin with '/'", l.Path)
	}
	if l.RootDir == "" {
		return fmt.Errorf("location %q: root directory must be non-empty", l.Path)
	}
	if l.AllowUpload && l.UploadDir == "" {
		return fmt.Errorf("location %q: allow_upload set without upload_dir", l.Path)
	}
	return nil
}

func (r *RedirectRoute) Validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("redirect path %q must begin with '/'", r.Path)
	}
	if r.Target == "" {
		return fmt.Errorf("redirect %q: target must be non-empty", r.Path)
	}
	return nil
}

// Addr renders "host:port" for log prefixes and error messages. The CGI
// HTTP_HOST/SERVER_NAME variables come from the request's Host header, not
// from Addr.
func (s *Server) Addr() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", s.ListenHost[0], s.ListenHost[1], s.ListenHost[2], s.ListenHost[3], s.ListenPort)
}

// MatchesHost reports whether host (from the request's Host header, port
// stripped) is one of this server's virtual-host names, or there are none
// configured (meaning "match anything on this listener").
func (s *Server) MatchesHost(host string) bool {
	if len(s.ServerNames) == 0 {
		return true
	}
	for _, n := range s.ServerNames {
		if strings.EqualFold(n, host) {
			return true
		}
	}
	return false
}

// AllowsMethod reports whether m is permitted for this route, translating
// Go's net/http method constants into the config.Method space used at the
// router boundary.
func (l *LocalRoute) AllowsMethod(m string) bool {
	return l.AllowMethods[Method(strings.ToUpper(m))]
}

func (r *RedirectRoute) AllowsMethod(m string) bool {
	return r.AllowMethods[Method(strings.ToUpper(m))]
}

// ParseSize parses a byte count with an optional K/M/G suffix (spec.md §6
// "client_max_body_size"), rejecting empty input, non-digits, and overflow
// per spec.md §8.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("parseSize: empty input")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	if s == "" {
		return 0, fmt.Errorf("parseSize: empty numeric part")
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("parseSize: non-digit byte %q in %q", c, s)
		}
		digit := int64(c - '0')
		if n > (1<<63-1-digit)/10 {
			return 0, fmt.Errorf("parseSize: overflow in %q", s)
		}
		n = n*10 + digit
	}
	if n > (1<<63-1)/mult {
		return 0, fmt.Errorf("parseSize: overflow applying suffix to %q", s)
	}
	return n * mult, nil
}

// ParseSizeHex is the hex-integer counterpart used by the chunked-transfer
// decoder (internal/httpparse) to parse chunk-size lines, rejecting empty
// input, non-hex-digits, and overflow per spec.md §8.
func ParseSizeHex(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("parseSizeHex: empty input")
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		var digit int64
		switch {
		case c >= '0' && c <= '9':
			digit = int64(c - '0')
		case c >= 'a' && c <= 'f':
			digit = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			digit = int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("parseSizeHex: non-hex byte %q in %q", c, s)
		}
		if n > (1<<63-1-digit)/16 {
			return 0, fmt.Errorf("parseSizeHex: overflow in %q", s)
		}
		n = n*16 + digit
	}
	return n, nil
}

// StatusText is re-exported for the session's error-page rendering so
// callers don't need to import net/http directly for this one lookup.
func StatusText(code int) string { return http.StatusText(code) }
