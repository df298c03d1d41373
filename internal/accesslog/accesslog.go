// Package accesslog implements SPEC_FULL.md domain stack item 8: one JSON
// line per completed HTTP response, the structured-log counterpart to the
// teacher's stats dashboards. Encoded with github.com/json-iterator/go
// (teacher dep, also used for the config-dump debug command) instead of
// encoding/json for parity with the rest of the module's JSON paths and
// its lower allocation count on the hot per-request path.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package accesslog

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nvaistore/webs3rv/internal/cos"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one logged request/response pair.
type Entry struct {
	Time     time.Time `json:"time"`
	Method   string    `json:"method"`
	Path     string    `json:"path"`
	Status   int       `json:"status"`
	Bytes    int       `json:"bytes"`
	Duration string    `json:"duration"`
	Route    string    `json:"route"` // "static" | "cgi" | "redirect" | "error"
}

// Logger writes one JSON object per line to an underlying writer (normally
// an append-mode *os.File opened by the caller).
type Logger struct {
	w io.Writer
}

func New(w io.Writer) *Logger { return &Logger{w: w} }

func (l *Logger) Log(e Entry) error {
	b, err := jsonAPI.Marshal(e)
	if err != nil {
		return cos.Wrap(err, "accesslog: marshal")
	}
	b = append(b, '\n')
	_, err = l.w.Write(b)
	return err
}
