// Package logging provides the package-level diagnostic logger used
// throughout scanhead-go. It defaults to log.Printf but may be redirected
// (tests) or muted, and can optionally be backed by a rotating log file.
package logging

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. Tests or callers can redirect
// or mute it via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf is gated by a package-level flag, the way l2frames.debugf gates its
// frame-completion traces. Off by default.
var debugEnabled bool

// SetDebug enables or disables debug-level tracing.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Debugf logs only when debug tracing is enabled.
func Debugf(format string, v ...interface{}) {
	if debugEnabled {
		Logf(format, v...)
	}
}

// RotatingFileConfig configures a lumberjack-backed rotating log sink.
type RotatingFileConfig struct {
	// Filename is the log file path. Required.
	Filename string
	// MaxSizeMB is the maximum size in megabytes before rotation. Defaults
	// to 100 if zero.
	MaxSizeMB int
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int
	// MaxAgeDays is the maximum number of days to retain old log files.
	MaxAgeDays int
	// Compress controls whether rotated files are gzip compressed.
	Compress bool
}

// UseRotatingFile points the package logger at a rotating file sink and
// returns the underlying io.WriteCloser so callers can Close it on shutdown.
// cfg.Filename is not validated here; it is passed to lumberjack as given.
func UseRotatingFile(cfg RotatingFileConfig) io.WriteCloser {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	logger := log.New(lj, "", log.LstdFlags|log.Lmicroseconds)
	SetLogger(logger.Printf)
	return lj
}
