package accesslog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLogWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	e := Entry{
		Time:     time.Unix(1700000000, 0).UTC(),
		Method:   "GET",
		Path:     "/index.html",
		Status:   200,
		Bytes:    1024,
		Duration: "1.2ms",
		Route:    "static",
	}
	if err := l.Log(e); err != nil {
		t.Fatalf("Log: %v", err)
	}

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one newline-terminated line, got %q", out)
	}

	var decoded Entry
	if err := json.Unmarshal([]byte(strings.TrimRight(out, "\n")), &decoded); err != nil {
		t.Fatalf("unmarshal logged line: %v", err)
	}
	if decoded.Method != "GET" || decoded.Status != 200 || decoded.Route != "static" {
		t.Fatalf("round-tripped entry mismatch: %+v", decoded)
	}
}

func TestLogAppendsMultipleLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	for i := 0; i < 3; i++ {
		if err := l.Log(Entry{Method: "GET", Status: 200}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Fatalf("expected 3 lines, got %d", got)
	}
}
