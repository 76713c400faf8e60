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
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeScript creates an executable shell script standing in for the
// lint binary. Tests that use it skip on Windows.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-tsqllint")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecutor_Execute_CollectsResultLines(t *testing.T) {
	bin := writeScript(t, `printf 'scratch.sql(1,1): error semi-colon: Expected semi-colon.\n'
printf 'scratch.sql(3,5): warning select-star: Avoid SELECT *.\n'
exit 1
`)

	executor := NewExecutor()
	lines, err := executor.Execute(context.Background(), bin, []string{"scratch.sql"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{
		"(1,1): error semi-colon: Expected semi-colon",
		"(3,5): warning select-star: Avoid SELECT *",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestExecutor_Execute_NonZeroExitIsNotFailure(t *testing.T) {
	bin := writeScript(t, "exit 1\n")

	executor := NewExecutor()
	lines, err := executor.Execute(context.Background(), bin, nil)
	if err != nil {
		t.Fatalf("non-zero exit should not fail: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no result lines, got %v", lines)
	}
}

func TestExecutor_Execute_StderrTolerated(t *testing.T) {
	bin := writeScript(t, `printf 'loading config\n' >&2
printf 'scratch.sql(1,1): error semi-colon: Expected semi-colon.\n'
exit 1
`)

	executor := NewExecutor()
	lines, err := executor.Execute(context.Background(), bin, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("stderr noise must not affect results, got %v", lines)
	}
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	bin := writeScript(t, "sleep 5\n")

	executor := &Executor{Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := executor.Execute(context.Background(), bin, nil)

	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("process not killed promptly, took %s", elapsed)
	}
}

func TestExecutor_Execute_SpawnFailure(t *testing.T) {
	executor := NewExecutor()
	_, err := executor.Execute(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)

	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
}

func TestExecutor_Execute_NilContext(t *testing.T) {
	executor := NewExecutor()
	_, err := executor.Execute(nil, "/bin/true", nil) //nolint:staticcheck
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExecutor_Execute_CanceledContext(t *testing.T) {
	bin := writeScript(t, "sleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	executor := NewExecutor()
	_, err := executor.Execute(ctx, bin, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResultLines(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{
			name:   "single finding",
			output: "path/to/file.sql(1,2): error rule: message.\n",
			want:   []string{"(1,2): error rule: message"},
		},
		{
			name:   "no parenthesis skipped",
			output: "Linted 1 files\n",
			want:   nil,
		},
		{
			name:   "parenthesis at start skipped",
			output: "(orphan line)\n",
			want:   nil,
		},
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
		{
			name:   "mixed lines",
			output: "Linting...\nfile.sql(2,1): warning rule: msg.\ndone\n",
			want:   []string{"(2,1): warning rule: msg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resultLines(tt.output)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
