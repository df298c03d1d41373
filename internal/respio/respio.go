// Package respio implements SPEC_FULL.md domain stack item 4: optional
// lz4 compression for generated bodies (directory listings, default error
// pages) that this module synthesizes itself, never for static files or
// CGI output, which spec.md requires to pass through byte-for-byte.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package respio

import (
	"bytes"
	"strings"

	"github.com/pierrec/lz4/v3"
)

// NegotiateLZ4 reports whether acceptEncoding (the raw Accept-Encoding
// header value) permits lz4 framing. This server never advertises gzip or
// br since it only ever produces lz4-compressed bodies.
func NegotiateLZ4(acceptEncoding string) bool {
	for _, tok := range strings.Split(acceptEncoding, ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(tok, ";", 2)[0]), "lz4") {
			return true
		}
	}
	return false
}

// CompressLZ4 frames body as an lz4 stream. Only called on generated
// bodies, which are small enough that buffering the whole frame is fine.
func CompressLZ4(body []byte) ([]byte, error) {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
