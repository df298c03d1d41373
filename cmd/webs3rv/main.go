// Command webs3rv is the server binary described in spec.md §6: one
// positional argument naming a configuration file, exit code 0 on clean
// shutdown, 1 on configuration error, 2 on fatal runtime error. Grounded
// on the teacher's own cmd/cli entry-point shape (flag parsing, a single
// top-level error path that maps to a process exit code) but trimmed to
// the standard `flag` package per SPEC_FULL.md's domain-stack note: no
// third-party CLI framework survived the trim from the teacher's go.mod.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/nvaistore/webs3rv/internal/accesslog"
	"github.com/nvaistore/webs3rv/internal/cfgid"
	"github.com/nvaistore/webs3rv/internal/config"
	"github.com/nvaistore/webs3rv/internal/dispatcher"
	"github.com/nvaistore/webs3rv/internal/lifecycle"
	"github.com/nvaistore/webs3rv/internal/nlog"
	"github.com/nvaistore/webs3rv/internal/router"
	"github.com/nvaistore/webs3rv/internal/session"
	"github.com/nvaistore/webs3rv/internal/statsx"
	"github.com/nvaistore/webs3rv/internal/uploadlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}

	cfg, err := config.LoadFile(flag.Arg(0))
	if err != nil {
		nlog.Errorln("config error:", err)
		return 1
	}
	gen, err := cfgid.New()
	if err != nil {
		nlog.Errorln("config error:", err)
		return 1
	}
	cfg.Generation = gen
	nlog.Infoln("loaded configuration, generation =", gen)

	disp, err := dispatcher.New()
	if err != nil {
		nlog.Errorln("fatal:", err)
		return 2
	}
	defer disp.Close()

	if _, err := lifecycle.Install(disp); err != nil {
		nlog.Errorln("fatal:", err)
		return 2
	}

	metrics := statsx.New()
	go serveMetrics(metrics)

	var alog *accesslog.Logger
	if f, err := os.OpenFile("access.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		alog = accesslog.New(f)
	} else {
		nlog.Warningln("access log disabled:", err)
	}

	var ledger *uploadlog.Ledger
	if l, err := uploadlog.Open("uploads.db"); err == nil {
		ledger = l
		defer ledger.Close()
	} else {
		nlog.Warningln("upload ledger disabled:", err)
	}

	rtr := router.New()
	listeners, err := bindListeners(disp, cfg, rtr, alog, ledger, metrics)
	if err != nil {
		nlog.Errorln("fatal:", err)
		return 2
	}
	defer func() {
		for _, l := range listeners {
			l.close()
		}
	}()

	nlog.Infoln("webs3rv serving", len(listeners), "listener(s)")
	disp.Run()
	nlog.Infoln("shutdown complete")
	return 0
}

// serveMetrics runs the admin /metrics surface on its own goroutine and
// net/http server, loopback-only and entirely separate from the
// dispatcher's client/CGI readiness loop (SPEC_FULL.md domain stack item
// 1: "not part of the routed virtual-host surface").
func serveMetrics(m *statsx.Metrics) {
	addr := "127.0.0.1:9090"
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	nlog.Infoln("metrics endpoint on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		nlog.Warningln("metrics endpoint stopped:", err)
	}
}
