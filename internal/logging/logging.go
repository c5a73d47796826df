// Package logging provides the process-wide leveled logging backend
// shared by every package in alphaminer.
package logging

import (
	"fmt"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter duplicates backend output to stdout and, once
// InitLogRotator has run, to the rotating log file. The indirection
// lets packages grab their logger at init time, before flags are
// parsed.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	logRotator *rotator.Rotator

	// backend is the shared slog backend every subsystem logger is
	// pulled from.
	backend = slog.NewBackend(logWriter{})

	// loggers holds every subsystem logger handed out so SetLevels can
	// adjust them all after the fact (flags are parsed after packages
	// have already grabbed their logger).
	loggers = make(map[string]slog.Logger)

	// level is applied to every logger, including ones created after
	// SetLevels runs (the orchestrator pulls several during Run).
	level = slog.LevelInfo
)

// SubLogger returns the named subsystem's logger, creating it against
// the shared backend on first use.
func SubLogger(tag string) slog.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	l := backend.Logger(tag)
	l.SetLevel(level)
	loggers[tag] = l
	return l
}

// SetLevels applies lvl to every logger handed out so far and to any
// created afterwards. Called once CLI flags are parsed.
func SetLevels(lvl slog.Level) {
	level = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// ParseLevel maps a CLI-provided level name to a slog.Level, the same
// vocabulary (trace/debug/info/warn/error/critical/off) used across
// the pack's decred-lineage daemons.
func ParseLevel(name string) (slog.Level, error) {
	lvl, ok := slog.LevelFromString(name)
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// InitLogRotator starts mirroring all backend output to a rotating log
// file at path, in addition to stdout. The returned Close must run at
// process exit to flush the rotator.
func InitLogRotator(path string) (func() error, error) {
	r, err := rotator.New(path, 10*1024, false, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to create log rotator: %w", err)
	}
	logRotator = r
	return r.Close, nil
}
