// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skillsfabric/core/internal/config"
	"github.com/skillsfabric/core/internal/hallm"
	"github.com/skillsfabric/core/internal/logx"
	"github.com/skillsfabric/core/internal/obsv"
	"github.com/skillsfabric/core/internal/storage"
	"github.com/skillsfabric/core/pkg/ux"
)

// exit codes, spec §6: 0 success, 1 any error (including a --strict
// verify run whose Hall_m crossed the threshold).
const (
	exitOK    = 0
	exitError = 1
)

// app bundles the shared runtime every subcommand needs. Each
// subcommand's run function builds its own through loadApp.
type app struct {
	cfg      *config.Config
	logger   *logx.Logger
	metrics  *obsv.Metrics
	hallM    *hallm.HallMetric
	sessions *storage.SessionStore
}

var theApp *app

func loadApp(service string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	metrics := obsv.New(service)

	level := logx.LevelInfo
	if verbose {
		level = logx.LevelDebug
	}
	logger := logx.New(logx.Config{
		Level:   level,
		Service: service,
		JSON:    jsonOutput,
		Quiet:   quiet,
		Sink:    metrics.LogSink(),
	})

	sessions, err := storage.NewSessionStore(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	hallM := hallm.NewWithThreshold(cfg.HallMThreshold)
	if cfg.Influx.Enabled() {
		influx := obsv.NewInfluxExporter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		hallM.SetObserver(obsv.NewMultiObserver(metrics, influx))
	} else {
		hallM.SetObserver(metrics)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		hallM:    hallM,
		sessions: sessions,
	}

	if os.Getenv("SKILLS_FABRIC_CONFIG_FILE") != "" {
		go func() {
			if err := config.Watch(context.Background(), func(reloaded *config.Config) {
				a.cfg = reloaded
			}); err != nil {
				logger.Warn("config watcher exited", "error", err)
			}
		}()
	}

	return a, nil
}

// fail prints err the right way for the active output mode and
// returns the process exit code the caller should use.
func fail(err error) int {
	if ux.EmitJSONError(err.Error()) {
		return exitError
	}
	ux.Error(err.Error())
	return exitError
}

// outputMode derives a ux.Mode from the three global flags, -j taking
// priority over -q since JSON callers still want the {"error": ...}
// envelope rather than silence.
func outputMode() ux.Mode {
	switch {
	case jsonOutput:
		return ux.ModeJSON
	case quiet:
		return ux.ModeQuiet
	default:
		return ux.ModeRich
	}
}

func exitWith(code int) {
	os.Exit(code)
}
