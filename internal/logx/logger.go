// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logx is the pipeline's structured-logging layer: slog tagged
// with a service attribute, fanned out to stderr, an optional JSON log
// file under the cache directory, and an optional extra slog.Handler —
// the seam internal/obsv uses to count log records alongside its other
// collectors. Callers must not log secrets; log presence
// ("api_key_present", true), never values.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level is slog's own level type; the pipeline adds no severities of
// its own.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config configures a Logger. The zero value logs Info+ to stderr as
// text.
type Config struct {
	// Level is the minimum level that reaches any destination.
	Level Level

	// Service is attached to every record as "service".
	Service string

	// JSON switches stderr output to JSON. File output is always JSON.
	JSON bool

	// Quiet drops the stderr destination.
	Quiet bool

	// LogDir, when set, adds a "{service}_{YYYY-MM-DD}.log" JSON file
	// destination in this directory ("~" expands to the home dir).
	LogDir string

	// Sink, when set, receives every record at or above Level —
	// typically obsv.Metrics.LogSink().
	Sink slog.Handler
}

// Logger is a thin wrapper owning the fan-out handler and the optional
// log file. Safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger from cfg. Close releases the log file when
// LogDir was set.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	logger := &Logger{}

	var dests tee
	if !cfg.Quiet {
		if cfg.JSON {
			dests = append(dests, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			dests = append(dests, slog.NewTextHandler(os.Stderr, opts))
		}
	}
	if cfg.LogDir != "" {
		if file := openLogFile(cfg.LogDir, cfg.Service); file != nil {
			logger.file = file
			dests = append(dests, slog.NewJSONHandler(file, opts))
		}
	}
	if cfg.Sink != nil {
		dests = append(dests, &leveled{min: cfg.Level, next: cfg.Sink})
	}

	var handler slog.Handler
	switch len(dests) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = dests[0]
	default:
		handler = dests
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level, stderr-only, text-format logger.
func Default() *Logger {
	return New(Config{Service: "skillsfabric"})
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying additional attributes on every
// record. The child shares the parent's destinations; only the parent
// should Close.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// Slog exposes the underlying slog.Logger for APIs this wrapper
// doesn't cover.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// openLogFile opens (creating if needed) the dated service log file
// under dir. Any failure silently drops the file destination — logging
// must not take the pipeline down.
func openLogFile(dir, service string) *os.File {
	if service == "" {
		service = "skillsfabric"
	}
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil
	}
	return file
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// tee fans one record out to every destination that wants it.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// leveled imposes the logger's minimum level on a sink that does its
// own Enabled bookkeeping (or none).
type leveled struct {
	min  Level
	next slog.Handler
}

func (l *leveled) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= l.min && l.next.Enabled(ctx, level)
}

func (l *leveled) Handle(ctx context.Context, r slog.Record) error {
	return l.next.Handle(ctx, r)
}

func (l *leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveled{min: l.min, next: l.next.WithAttrs(attrs)}
}

func (l *leveled) WithGroup(name string) slog.Handler {
	return &leveled{min: l.min, next: l.next.WithGroup(name)}
}
