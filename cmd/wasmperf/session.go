// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/egemengol/wasmperf/cmd/wasmperf/config"
	"github.com/egemengol/wasmperf/pkg/logging"
)

// labSession is the per-invocation state shared by all lab commands.
type labSession struct {
	cfg    config.LabConfig
	logger *logging.Logger
	runID  string

	shutdownTracing func(context.Context) error
}

// Slog returns the session logger for library packages.
func (s *labSession) Slog() *slog.Logger {
	return s.logger.Slog()
}

var session *labSession

// openSession loads the config, builds the logger and starts tracing.
func openSession(cmd *cobra.Command, args []string) error {
	s, err := newSession(configPath, sessionOverrides{
		LogLevel:  logLevel,
		JSON:      jsonLogs,
		TraceFile: traceFile,
	})
	if err != nil {
		return err
	}
	session = s
	return nil
}

// closeSession flushes spans and closes the log file after every command.
func closeSession() {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "wasmperf:", err)
	}
	session = nil
}

// sessionOverrides are command-line values that beat the config file.
type sessionOverrides struct {
	LogLevel  string
	JSON      bool
	TraceFile string
}

func newSession(path string, o sessionOverrides) (*labSession, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	levelName := cfg.Logging.Level
	if o.LogLevel != "" {
		levelName = o.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()[:12]
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "wasmperf",
		JSON:    cfg.Logging.JSON || o.JSON,
	}).With("run_id", runID)

	shutdown, err := initTracing(o.TraceFile, runID)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &labSession{cfg: cfg, logger: logger, runID: runID, shutdownTracing: shutdown}, nil
}

// Close flushes spans and closes the log file.
func (s *labSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := s.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	if err := s.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
