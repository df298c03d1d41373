package cfgid

import "testing"

func TestNewReturnsNonEmptyID(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty generation id")
	}
}

func TestNewReturnsDistinctIDs(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a == b {
		t.Fatalf("expected two calls to New to produce distinct ids, both %q", a)
	}
}
