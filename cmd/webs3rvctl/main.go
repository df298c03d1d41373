// Command webs3rvctl validates and dumps a configuration file without
// starting the server, the minimal JSON stand-in SPEC_FULL.md's module
// layout describes for spec.md's explicitly out-of-scope "debug
// pretty-printing" collaborator (original_source/source/debug_utility.cpp
// renders a human-readable tree; this renders JSON instead).
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nvaistore/webs3rv/internal/cfgid"
	"github.com/nvaistore/webs3rv/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s dump <config-file>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 2 || flag.Arg(0) != "dump" {
		flag.Usage()
		return 1
	}

	cfg, err := config.LoadFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	gen, err := cfgid.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	cfg.Generation = gen

	out, err := config.DumpJSON(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dump error:", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
