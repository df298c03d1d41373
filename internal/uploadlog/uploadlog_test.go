package uploadlog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordThenLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	rec := Record{
		FinalPath: "/uploads/report.pdf",
		Size:      4096,
		Checksum:  "deadbeef",
		When:      time.Unix(1700000000, 0),
	}
	if err := l.Record(rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	_, found, err := l.Lookup(rec.FinalPath)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected a ledger entry for the recorded path")
	}
}

func TestLookupMissingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	_, found, err := l.Lookup("/uploads/nope.bin")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Fatal("expected no entry for a never-recorded path")
	}
}

func TestRecordOverwritesPriorEntryForSamePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.Record(Record{FinalPath: "/x", Size: 1, Checksum: "a", When: time.Unix(1, 0)}); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := l.Record(Record{FinalPath: "/x", Size: 2, Checksum: "b", When: time.Unix(2, 0)}); err != nil {
		t.Fatalf("second Record: %v", err)
	}
	value, found, err := l.Lookup("/x")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected entry after two writes")
	}
	if value == "" {
		t.Fatal("expected a non-empty value")
	}
}
