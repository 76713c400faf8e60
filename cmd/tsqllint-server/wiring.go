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
	"time"

	"github.com/masmgr/tsqllint-vscode-extension/pkg/config"
	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// lintStack bundles the pieces every mode shares: where the tool
// comes from, how it is run, and where its suppression actions live.
type lintStack struct {
	acquirer *lint.RuntimeAcquirer
	executor *lint.Executor
	registry *lint.CommandRegistry
}

func buildLintStack(cfg config.Config) *lintStack {
	acquirer := lint.NewRuntimeAcquirer(
		cfg.ExpandInstallDir(),
		lint.WithToolVersion(cfg.Lint.ToolVersion),
	)

	executor := lint.NewExecutor()
	executor.Timeout = time.Duration(cfg.Lint.TimeoutSeconds) * time.Second

	return &lintStack{
		acquirer: acquirer,
		executor: executor,
		registry: lint.NewCommandRegistry(),
	}
}
