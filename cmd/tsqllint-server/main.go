// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tsqllint-server hosts the tsqllint validation pipeline.
//
// The default mode (serve) speaks the Language Server Protocol over
// stdio. One-shot modes (lint, fix) run the same pipeline against
// files on disk without a client, install warms the runtime cache,
// and version prints build information.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/masmgr/tsqllint-vscode-extension/pkg/config"
	"github.com/masmgr/tsqllint-vscode-extension/pkg/logging"
)

var (
	configPath string
	logLevel   string
	logDir     string
	logJSON    bool

	rootCmd = &cobra.Command{
		Use:   "tsqllint-server",
		Short: "Language server and CLI front end for tsqllint",
		Long: `tsqllint-server downloads the tsqllint console tool on first use
and exposes it two ways: as a stdio language server publishing
diagnostics and code actions to an editor, and as a one-shot
command line linter.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		// No subcommand means an editor launched us as a language
		// server; behave like "serve".
		RunE: runServe,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to server.yaml (default ~/.tsqllint/server.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write JSON logs to this directory")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs on stderr")

	rootCmd.AddCommand(serveCmd, lintCmd, fixCmd, installCmd, versionCmd)
}

// loadConfig resolves the config file, applies flag overrides, and
// returns the effective configuration plus the path it came from.
func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, "", fmt.Errorf("resolve config path: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logDir != "" {
		cfg.Log.Dir = logDir
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	return cfg, path, nil
}

// setupLogging installs the process logger. quiet suppresses the
// stderr handler; serve keeps stderr because stdout carries the
// protocol, while one-shot modes stay quiet so findings are the only
// output.
func setupLogging(cfg config.Config, quiet bool) (func() error, error) {
	return logging.Setup(logging.Config{
		Level:     logging.ParseLevel(cfg.Log.Level),
		LogDir:    cfg.Log.Dir,
		Component: "tsqllint-server",
		JSON:      cfg.Log.JSON,
		Quiet:     quiet,
	})
}
