// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/skillsfabric/core/internal/errs"
	"github.com/skillsfabric/core/internal/logx"
)

// Watch reloads Config whenever SKILLS_FABRIC_CONFIG_FILE changes on
// disk and invokes onReload with the freshly-loaded value, so a rotated
// GLM_THINKING_BUDGET or cache-dir override is picked up without a
// restart. The CLI's loadApp starts it in the background for every
// subcommand when that variable is set; Load is still the one-shot
// path spec §7 documents as fatal-at-startup.
//
// Watch watches the file itself and blocks until ctx is cancelled or
// the watcher's event or error channel closes (with the variable unset
// it just waits for ctx); reload errors are logged and otherwise ignored
// so a transient bad edit doesn't kill an in-flight run.
func Watch(ctx context.Context, onReload func(*Config)) error {
	path := os.Getenv("SKILLS_FABRIC_CONFIG_FILE")
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &errs.ConfigError{Key: "SKILLS_FABRIC_CONFIG_FILE watcher", Reason: err.Error()}
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return &errs.ConfigError{Key: "SKILLS_FABRIC_CONFIG_FILE watcher", Reason: err.Error()}
	}

	logger := logx.Default()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				logger.Warn("config reload failed, keeping previous configuration", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onReload(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
