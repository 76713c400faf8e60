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
	"os"

	"github.com/spf13/cobra"

	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// errProblemsFound signals that linting itself worked but the files
// have error-severity findings. Mirrors the console tool's non-zero
// exit in that case.
var errProblemsFound = errors.New("lint reported errors")

var (
	lintCmd = &cobra.Command{
		Use:   "lint [files]",
		Short: "Lint SQL files and print findings",
		Long: `Runs the tsqllint console tool against each file and prints its
findings. Downloads the tool first if it is not installed yet.
Exits non-zero when any error-severity finding is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args, false)
		},
	}

	fixCmd = &cobra.Command{
		Use:   "fix [files]",
		Short: "Apply tsqllint's automatic fixes to SQL files in place",
		Long: `Runs the tsqllint console tool with fixing enabled and writes the
corrected content back to each file. Findings the tool could not
fix are printed the same way lint prints them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args, true)
		},
	}
)

// discardPublisher satisfies the pipeline's publisher in one-shot
// mode, where findings go to stdout instead of an editor.
type discardPublisher struct{}

func (discardPublisher) Publish(string, []lint.Finding) {}

func runOnce(ctx context.Context, paths []string, fix bool) error {
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
	pipeline := lint.NewPipeline(stack.acquirer, stack.executor, stack.registry, discardPublisher{})

	errorCount := 0
	total := 0
	for _, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc := lint.Document{URI: path, Text: string(text)}
		findings, fixedText, err := pipeline.Validate(ctx, doc, fix)
		if err != nil {
			return fmt.Errorf("lint %s: %w", path, err)
		}

		if fix && fixedText != "" && fixedText != doc.Text {
			if err := os.WriteFile(path, []byte(fixedText), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Printf("%s: fixed\n", path)
		}

		for _, f := range findings {
			printFinding(path, f)
			total++
			if f.Severity == lint.SeverityError {
				errorCount++
			}
		}
	}

	if total > 0 {
		fmt.Printf("\n%d problem(s) in %d file(s)\n", total, len(paths))
	}
	if errorCount > 0 {
		return errProblemsFound
	}
	return nil
}

// printFinding renders one finding the way the console tool does,
// with 1-based line and column.
func printFinding(path string, f lint.Finding) {
	fmt.Printf("%s(%d,%d): %s %s: %s\n",
		path,
		f.Range.Start.Line+1,
		f.Range.Start.Character+1,
		f.Severity,
		f.Rule,
		f.Message,
	)
}
