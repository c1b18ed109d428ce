package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedYasen/download-manager/internal/config"
)

// newLogger builds the process logger. Each -v lowers the level by one
// step from the configured one.
func newLogger(w io.Writer, cfg config.LogConfig, verbosity int) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	for i := 0; i < verbosity && level > zerolog.TraceLevel; i++ {
		level--
	}

	if strings.EqualFold(cfg.Format, "json") {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
