// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global zerolog logger: console output always, plus a
// rotating file sink when logDir is set.
func Setup(logDir, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	writers := []io.Writer{console}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Logger = log.Output(console)
			log.Warn().Err(err).Str("logDir", logDir).Msg("could not create log directory, file logging disabled")
			return
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "qbload.log"),
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}
