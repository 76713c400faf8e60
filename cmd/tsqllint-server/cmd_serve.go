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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masmgr/tsqllint-vscode-extension/pkg/config"
	"github.com/masmgr/tsqllint-vscode-extension/pkg/telemetry"
	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
	"github.com/masmgr/tsqllint-vscode-extension/services/server"
)

var (
	// Editors conventionally pass --stdio when launching a language
	// server. Stdio is the only transport, so the flag is accepted
	// and otherwise ignored.
	stdioFlag bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the stdio language server (default)",
		Long: `Reads LSP messages from stdin and writes responses and
diagnostics to stdout. All logging goes to stderr or the configured
log directory; stdout belongs to the protocol.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	// Persistent because editors pass --stdio to the bare binary,
	// without the serve subcommand.
	rootCmd.PersistentFlags().BoolVar(&stdioFlag, "stdio", false, "communicate over stdio (the only supported transport)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	closeLogs, err := setupLogging(cfg, false)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() {
		if cerr := closeLogs(); cerr != nil {
			fmt.Fprintln(os.Stderr, "close logs:", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if terr := shutdownTelemetry(context.Background()); terr != nil {
			slog.Warn("telemetry shutdown failed", slog.String("error", terr.Error()))
		}
	}()
	if metricsSrv := telemetry.ServeMetrics(cfg.Telemetry); metricsSrv != nil {
		defer metricsSrv.Close()
	}

	stack := buildLintStack(cfg)
	conn := server.NewConn(os.Stdin, os.Stdout)
	srv := server.NewServer(conn, stack.registry)
	srv.SetAutoFixOnSave(cfg.Lint.AutoFixOnSave)

	pipeline := lint.NewPipeline(stack.acquirer, stack.executor, stack.registry, srv)
	srv.UseValidator(pipeline)

	// SIGINT/SIGTERM end the session even if the client never sends
	// shutdown/exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		select {
		case sig := <-quit:
			slog.Info("received signal, shutting down", slog.String("signal", sig.String()))
			cancel()
			// The read loop only notices cancellation between
			// messages; closing the connection and then stdin
			// unblocks a read parked on an idle client.
			conn.Close()
			os.Stdin.Close()
		case <-ctx.Done():
		}
	}()

	// Only auto_fix_on_save takes effect live; everything else needs
	// a restart.
	go watchConfig(ctx, cfgPath, srv)

	slog.Info("language server starting",
		slog.String("version", server.Version),
		slog.String("tool_version", cfg.Lint.ToolVersion),
		slog.String("config", cfgPath),
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	slog.Info("language server stopped")
	return nil
}

func watchConfig(ctx context.Context, cfgPath string, srv *server.Server) {
	err := config.Watch(ctx, cfgPath, func(cfg config.Config) {
		srv.SetAutoFixOnSave(cfg.Lint.AutoFixOnSave)
		slog.Info("configuration reloaded",
			slog.Bool("auto_fix_on_save", cfg.Lint.AutoFixOnSave))
	})
	if err != nil {
		slog.Warn("config watch unavailable", slog.String("error", err.Error()))
	}
}
