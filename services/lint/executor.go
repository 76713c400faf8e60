// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultExecuteTimeout bounds a single binary invocation.
const DefaultExecuteTimeout = 30 * time.Second

// =============================================================================
// BINARY EXECUTOR
// =============================================================================

// Executor runs the tsqllint binary as a subprocess with a bounded
// lifetime and structures its output.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	// Timeout bounds each invocation. Zero means DefaultExecuteTimeout.
	Timeout time.Duration
}

// NewExecutor creates an executor with the default timeout.
func NewExecutor() *Executor {
	return &Executor{Timeout: DefaultExecuteTimeout}
}

// Execute runs the binary and returns its result lines.
//
// Description:
//
//	Spawns binaryPath with args and collects stdout. Standard error
//	is logged at warn level and never fails the call. If the process
//	has not exited by the timeout it is killed and the call fails
//	with ErrExecutionTimeout; the kill happens exactly once and
//	nothing fires after the call has settled (exec.CommandContext
//	owns the process lifetime).
//
//	The binary exits non-zero when it reports findings, so a non-zero
//	exit with output is a success path, not a failure.
//
// Inputs:
//
//	ctx - Context for cancellation; the timeout is layered on top
//	binaryPath - Absolute path to the tsqllint executable
//	args - Arguments, typically [scratchPath] or [scratchPath, "-x"]
//
// Outputs:
//
//	[]string - Result lines in original order (see resultLines)
//	error - Non-nil on spawn failure or timeout
//
// Errors:
//
//	ErrSpawnFailed - Binary missing or not executable; immediate,
//	no timeout wait
//	ErrExecutionTimeout - Deadline hit, process killed
//
// Thread Safety: Safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, binaryPath string, args []string) ([]string, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExecuteTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if stderr.Len() > 0 {
		slog.Warn("tsqllint wrote to stderr",
			slog.String("binary", binaryPath),
			slog.String("stderr", strings.TrimSpace(stderr.String())),
		)
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		// Non-zero exit: tsqllint signals findings this way.
	}

	return resultLines(stdout.String()), nil
}

// resultLines filters raw stdout into the tool's per-finding lines.
//
// A result line contains an open parenthesis at a non-zero index (the
// position marker after the echoed file path). The line is kept from
// that parenthesis onward, minus the stray trailing character the
// tool appends to every line.
func resultLines(output string) []string {
	var results []string
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "(")
		if idx <= 0 {
			continue
		}
		results = append(results, line[idx:len(line)-1])
	}
	return results
}
