// The configuration-file tokenizer/parser is explicitly out of scope per
// spec.md §1 ("external collaborators, specified only by the interfaces
// the core consumes"); this file supplies the minimal concrete loader a
// runnable binary needs to reach that interface, reading the same
// in-memory shape as JSON via github.com/json-iterator/go rather than
// inventing a bespoke `server { … }` tokenizer the spec deliberately
// leaves unspecified.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/nvaistore/webs3rv/internal/cos"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadFile reads and validates a configuration file. On success, Generation
// is left unset — callers mint it via internal/cfgid.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cos.Wrapf(err, "config: read %s", path)
	}
	var c Config
	if err := jsonAPI.Unmarshal(data, &c); err != nil {
		return nil, cos.Wrapf(err, "config: parse %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DumpJSON renders c for the debug inspector (cmd/webs3rvctl), supplementing
// spec.md's explicitly out-of-scope "debug pretty-printing" collaborator
// with a minimal machine-readable stand-in.
func DumpJSON(c *Config) ([]byte, error) {
	b, err := jsonAPI.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, cos.Wrap(err, "config: marshal")
	}
	return b, nil
}
