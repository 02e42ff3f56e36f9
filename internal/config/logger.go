package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger builds the process logger: console output (pretty unless
// LOG_FORMAT=json) plus a rotated JSON file when LOG_FILE is set. It also
// replaces the zerolog global logger.
func SetupLogger(cfg Config) zerolog.Logger {
	var console io.Writer = os.Stdout
	if cfg.LogFormat != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	if cfg.LogFile != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DurationFieldUnit = time.Millisecond

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("service", "drug-matcher").
		Logger()
	log.Logger = logger
	return logger
}
