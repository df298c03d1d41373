// Package cksum computes the weak streaming checksum advertised on
// responses via the X-Content-XXHash header (SPEC_FULL.md domain stack
// item 3), grounded on the teacher's own use of xxhash for object
// checksums (cmn/cos checksum helpers). It hashes the body's []byte
// directly.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package cksum

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// Sum64Hex hashes body and renders the digest the way a response header
// value is expected to look: a bare lowercase hex string.
func Sum64Hex(body []byte) string {
	h := xxhash.Checksum64(body)
	return strconv.FormatUint(h, 16)
}
