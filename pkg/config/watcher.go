// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadHandler is called with the freshly loaded configuration after
// the config file changes on disk.
type ReloadHandler func(cfg Config)

// defaultDebounce batches editor write bursts into one reload.
const defaultDebounce = 250 * time.Millisecond

// Watch reloads the configuration whenever the file at path changes.
//
// Description:
//
//	Watches the file's parent directory rather than the file itself,
//	so editors that replace the file on save (write to temp, rename
//	over) keep triggering reloads. Events are debounced; a reload
//	that fails to parse or validate is logged and skipped, keeping
//	the last good configuration in effect.
//
// Inputs:
//
//	ctx - Cancelling this stops the watcher
//	path - Config file to watch
//	handler - Receives each successfully reloaded Config
//
// Outputs:
//
//	error - Non-nil if the watcher could not be started
//
// Thread Safety: The handler is called from a single goroutine.
func Watch(ctx context.Context, path string, handler ReloadHandler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			slog.Warn("failed to close config watcher", slog.Any("error", closeErr))
		}
		return err
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				slog.Warn("failed to close config watcher", slog.Any("error", err))
			}
		}()

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(defaultDebounce)
					timerC = timer.C
				} else {
					timer.Reset(defaultDebounce)
				}

			case <-timerC:
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed, keeping previous",
						slog.String("path", path),
						slog.Any("error", err),
					)
					continue
				}
				slog.Info("config reloaded", slog.String("path", path))
				handler(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}
