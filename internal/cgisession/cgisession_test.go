package cgisession

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/httpparse"
)

func newEchoScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSpawnEchoesStdinToStdoutAsSuccess(t *testing.T) {
	d, err := dispatcher.New()
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}
	defer d.Close()

	script := newEchoScript(t)
	req := &httpparse.Request{
		Method:  "POST",
		Headers: []httpparse.Header{{Name: "Host", Value: "x"}},
		Body:    []byte("hello"),
	}
	server := &config.Server{ListenPort: 8080}

	var gotState State
	var gotBody []byte
	_, err = Spawn(d, "/bin/sh", script, req, server, false, 2*time.Second, func(state State, body []byte) {
		gotState = state
		gotBody = body
		d.Quit()
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	d.Run()

	if gotState != Success {
		t.Fatalf("state = %v, want Success", gotState)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("body = %q, want %q", gotBody, "hello")
	}
}

func TestSpawnTimesOutLongRunningChild(t *testing.T) {
	d, err := dispatcher.New()
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}
	defer d.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	req := &httpparse.Request{Method: "GET", Headers: []httpparse.Header{{Name: "Host", Value: "x"}}}
	server := &config.Server{ListenPort: 8080}

	var gotState State
	_, err = Spawn(d, "/bin/sh", script, req, server, false, 50*time.Millisecond, func(state State, body []byte) {
		gotState = state
		d.Quit()
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	d.Run()

	if gotState != Timeout {
		t.Fatalf("state = %v, want Timeout", gotState)
	}
}
