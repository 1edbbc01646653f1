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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	jsonLogs   bool
	traceFile  string

	algorithms    []string
	appendLogs    bool
	parallelSpecs int
	buildJobs     int
	keepGoing     bool
	followLogs    bool
	logsAlgorithm string
	cleanOut      bool
	cleanLogs     bool

	rootCmd = &cobra.Command{
		Use:   "wasmperf",
		Short: "Benchmark C++ algorithms natively and as WebAssembly in browsers",
		Long: `wasmperf expands an experiment matrix into build targets, compiles them
with clang++ and emcc, runs every repetition and collects one sample per
line into per-experiment log files.`,
		SilenceUsage:      true,
		PersistentPreRunE: openSession,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default wasmperf.yaml",
		Args:  cobra.NoArgs,
		// init runs before a config exists, so it skips the session.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE:              runInit, // Defined in cmd_lab.go
	}

	// --- Lab Phases ---
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Expand the matrix and write the Makefile",
		Args:  cobra.NoArgs,
		RunE:  runPlan, // Defined in cmd_lab.go
	}
	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Run make on the written Makefile",
		Args:  cobra.NoArgs,
		RunE:  runBuild, // Defined in cmd_lab.go
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute built experiments and append samples to the logs",
		Args:  cobra.NoArgs,
		RunE:  runRun, // Defined in cmd_lab.go
	}
	pipelineCmd = &cobra.Command{
		Use:   "pipeline",
		Short: "Clear logs, plan, prepare, build and run in one go",
		Args:  cobra.NoArgs,
		RunE:  runPipeline, // Defined in cmd_lab.go
	}

	// --- Results ---
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "List decoded sample logs grouped by workload",
		Args:  cobra.NoArgs,
		RunE:  runLogs, // Defined in cmd_logs.go
	}

	// --- Housekeeping ---
	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove build output and/or logs",
		Args:  cobra.NoArgs,
		RunE:  runClean, // Defined in cmd_clean.go
	}
)

func init() {
	// Finalizers run even when RunE fails.
	cobra.OnFinalize(closeSession)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "wasmperf.yaml", "Lab config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace-file", "", "Write OpenTelemetry spans to this file")

	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringSliceVar(&algorithms, "alg", nil, "Only these algorithms (repeatable)")

	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Parallel make jobs (default from config)")
	buildCmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Keep building other targets after a failure")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&algorithms, "alg", nil, "Only these algorithms (repeatable)")
	runCmd.Flags().IntVar(&parallelSpecs, "parallel", 0, "Experiments run at once (default from config)")
	runCmd.Flags().BoolVar(&appendLogs, "append", false, "Append to existing logs instead of truncating")

	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().StringSliceVar(&algorithms, "alg", nil, "Only these algorithms (repeatable)")
	pipelineCmd.Flags().IntVar(&parallelSpecs, "parallel", 0, "Experiments run at once (default from config)")
	pipelineCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Parallel make jobs (default from config)")
	pipelineCmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "Keep building other targets after a failure")
	pipelineCmd.Flags().BoolVar(&appendLogs, "append", false, "Keep existing logs and append to them")

	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsAlgorithm, "alg", "", "Only this algorithm")
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Print samples as runs write them")

	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanOut, "out", false, "Remove the build output directory")
	cleanCmd.Flags().BoolVar(&cleanLogs, "logs", false, "Remove the log directory")
}
