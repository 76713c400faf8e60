// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the tsqllint
// language server and CLI.
//
// The server speaks its protocol over stdout, so stdout is never a
// log destination: logs go to stderr by default, optionally mirrored
// to a dated file. A server whose stdout gets a stray log line has a
// corrupted protocol stream, which is why this package exists instead
// of ad hoc slog setup at each call site.
//
// # Basic Usage
//
//	closeLogs, err := logging.Setup(logging.Config{
//	    Level:     logging.LevelInfo,
//	    Component: "server",
//	})
//	if err != nil { ... }
//	defer closeLogs()
//
// Setup installs the configured handler as the process-wide slog
// default, so packages log through the plain slog.Info/Warn/Error
// functions without carrying a logger around.
//
// # Log Levels
//
// Four levels are supported, matching slog conventions:
//
//   - Debug: development troubleshooting, verbose output
//   - Info: normal operations (validations, downloads, lifecycle)
//   - Warn: recoverable issues (rejected edits, stderr noise)
//   - Error: operation failures (the server continues)
//
// # Thread Safety
//
// The installed handler is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// LOG LEVELS
// =============================================================================

// Level represents log severity. Debug < Info < Warn < Error; setting
// a minimum level filters out everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations.
	LevelWarn

	// LevelError is for operation failures.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string to a Level. Unknown
// strings map to Info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// toSlogLevel bridges Level to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config configures the process-wide logger. The zero value writes
// Info+ messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// LogDir enables file logging to the specified directory. The
	// file is named "{Component}_{YYYY-MM-DD}.log" and always uses
	// JSON format. Supports ~ expansion. Default: disabled.
	LogDir string

	// Component identifies the process in every log entry, e.g.
	// "server" or "cli". Default: no component attribute.
	Component string

	// JSON switches stderr output to JSON format. File output is
	// always JSON regardless. Default: text.
	JSON bool

	// Quiet disables stderr output, leaving only the file (if
	// configured). Default: stderr enabled.
	Quiet bool
}

// =============================================================================
// SETUP
// =============================================================================

// Setup builds the configured handler and installs it as the slog
// default.
//
// Description:
//
//	Stderr and file destinations are fanned out through one handler
//	so a record is filtered once and written everywhere. The log
//	directory is created if missing.
//
// Inputs:
//
//	cfg - Logger configuration
//
// Outputs:
//
//	func() error - Closer that syncs and closes the log file; always
//	safe to call
//	error - Non-nil if the log directory or file could not be opened
func Setup(cfg Config) (func() error, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.Level.toSlogLevel(),
	}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	var file *os.File
	if cfg.LogDir != "" {
		logDir := expandPath(cfg.LogDir)
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		component := cfg.Component
		if component == "" {
			component = "tsqllint"
		}
		filename := fmt.Sprintf("%s_%s.log", component, time.Now().Format("2006-01-02"))

		var err error
		file, err = os.OpenFile(filepath.Join(logDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs a sink for error records.
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	slog.SetDefault(slog.New(handler))

	closer := func() error {
		if file == nil {
			return nil
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync log file: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		return nil
	}
	return closer, nil
}

// =============================================================================
// MULTI-HANDLER
// =============================================================================

// multiHandler fans out log records to multiple slog handlers,
// enabling simultaneous stderr and file output with different
// formats.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled returns true if any handler is enabled for the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to all enabled handlers.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs returns a new handler with additional attributes.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup returns a new handler with a group name.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
