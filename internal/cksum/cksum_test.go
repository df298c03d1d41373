package cksum

import "testing"

func TestSum64HexIsDeterministic(t *testing.T) {
	body := []byte("hello, webs3rv")
	a := Sum64Hex(body)
	b := Sum64Hex(body)
	if a != b {
		t.Fatalf("expected deterministic digest, got %q then %q", a, b)
	}
}

func TestSum64HexDiffersOnDifferentInput(t *testing.T) {
	a := Sum64Hex([]byte("one"))
	b := Sum64Hex([]byte("two"))
	if a == b {
		t.Fatalf("expected different digests for different bodies, both %q", a)
	}
}

func TestSum64HexEmptyBody(t *testing.T) {
	if Sum64Hex(nil) == "" {
		t.Fatal("expected a non-empty digest even for an empty body")
	}
}
