package respio

import (
	"bytes"
	"testing"

	"github.com/pierrec/lz4/v3"
)

func TestNegotiateLZ4(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"lz4", true},
		{"gzip, lz4", true},
		{"gzip, lz4;q=0.5", true},
		{"gzip, br", false},
		{"", false},
	}
	for _, c := range cases {
		if got := NegotiateLZ4(c.header); got != c.want {
			t.Errorf("NegotiateLZ4(%q) = %v, want %v", c.header, got, c.want)
		}
	}
}

func TestCompressLZ4RoundTrips(t *testing.T) {
	body := []byte("the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog")
	compressed, err := CompressLZ4(body)
	if err != nil {
		t.Fatalf("CompressLZ4: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("expected non-empty compressed output")
	}

	r := lz4.NewReader(bytes.NewReader(compressed))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out.Bytes(), body) {
		t.Fatalf("round-trip mismatch: got %q, want %q", out.Bytes(), body)
	}
}
