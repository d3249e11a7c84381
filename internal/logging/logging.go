/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stderr, false)
}

// SetupWithWriter configures zerolog writing to w. JSON output is used when
// jsonOutput is set (e.g. when piping CLI output), console output otherwise.
func SetupWithWriter(environment string, w io.Writer, jsonOutput bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := levelFor(environment)

	writer := w
	if !jsonOutput {
		writer = zerolog.ConsoleWriter{Out: w}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// SetupWithCapture configures console logging to stderr and additionally
// feeds the raw JSON events to capture.
func SetupWithCapture(environment string, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := levelFor(environment)

	writer := zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr}, capture)
	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

func levelFor(environment string) zerolog.Level {
	if environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
