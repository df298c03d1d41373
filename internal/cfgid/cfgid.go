// Package cfgid mints an opaque short ID for each loaded configuration
// generation (SPEC_FULL.md domain stack item 5), the single-process
// counterpart to aistore's cluster-wide config generation IDs, using
// github.com/teris-io/shortid (teacher dep).
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package cfgid

import (
	"github.com/teris-io/shortid"

	"github.com/nvaistore/webs3rv/internal/cos"
)

// New mints a fresh generation ID, safe to call once per config load
// (shortid's default generator is not goroutine-safe across concurrent
// callers, which is fine: this server only ever reloads config from the
// single dispatcher-owning goroutine).
func New() (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", cos.Wrap(err, "cfgid: generate")
	}
	return id, nil
}
