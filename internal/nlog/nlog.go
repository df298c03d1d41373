// Package nlog is the server's logging facade. The teacher (aistore) drives
// every subsystem through a small `cmn/nlog` package exposing level-named
// functions built by joining the call's arguments (nlog.Infoln(s.String(),
// "inactive => active") in transport/base.go); that package itself wasn't
// retrieved into the pack, so this is a from-scratch equivalent with the same
// call shape, backed by github.com/rs/zerolog instead of a hand-rolled
// ring buffer writer.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
	With().Timestamp().Logger()

// SetOutput redirects subsequent log lines to w.
func SetOutput(w *os.File) {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
}

func join(args []any) string {
	return fmt.Sprintln(args...)
}

func Infoln(args ...any)    { logger.Info().Msg(join(args)) }
func Warningln(args ...any) { logger.Warn().Msg(join(args)) }
func Errorln(args ...any)   { logger.Error().Msg(join(args)) }

// Fatalln logs at fatal and exits the process. Its one caller is
// internal/timeout, on a monotonic clock regression; startup failures are
// logged with Errorln and returned as exit codes by cmd/webs3rv instead.
func Fatalln(args ...any) {
	logger.Fatal().Msg(join(args))
}

func Infof(format string, args ...any)  { logger.Info().Msgf(format, args...) }
func Errorf(format string, args ...any) { logger.Error().Msgf(format, args...) }
