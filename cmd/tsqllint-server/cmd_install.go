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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the tsqllint runtime ahead of first use",
	Long: `Resolves the platform, downloads the configured tsqllint release,
and unpacks it into the install directory. A no-op when the version
is already installed. Running this once keeps the first lint from
paying the download cost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		closeLogs, err := setupLogging(cfg, true)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		defer func() {
			if cerr := closeLogs(); cerr != nil {
				fmt.Fprintln(os.Stderr, "close logs:", cerr)
			}
		}()

		stack := buildLintStack(cfg)
		dir, err := stack.acquirer.EnsureRuntime(cmd.Context())
		if err != nil {
			return fmt.Errorf("install tsqllint %s: %w", cfg.Lint.ToolVersion, err)
		}

		fmt.Printf("tsqllint %s installed at %s\n", cfg.Lint.ToolVersion, dir)
		return nil
	},
}
