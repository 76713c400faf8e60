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
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeRuntime struct {
	dir string
	err error
}

func (f *fakeRuntime) EnsureRuntime(ctx context.Context) (string, error) {
	return f.dir, f.err
}

// fakeRunner records the invocation and optionally rewrites the
// scratch file, standing in for the tool's auto-fix.
type fakeRunner struct {
	lines       []string
	err         error
	fixedOutput string
	deleteFile  bool

	binaryPath  string
	args        []string
	scratchText string
}

func (f *fakeRunner) Execute(ctx context.Context, binaryPath string, args []string) ([]string, error) {
	f.binaryPath = binaryPath
	f.args = args

	if len(args) > 0 {
		if content, err := os.ReadFile(args[0]); err == nil {
			f.scratchText = string(content)
		}
		if f.fixedOutput != "" {
			if err := os.WriteFile(args[0], []byte(f.fixedOutput), 0o600); err != nil {
				return nil, err
			}
		}
		if f.deleteFile {
			if err := os.Remove(args[0]); err != nil {
				return nil, err
			}
		}
	}
	return f.lines, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads map[string][][]Finding
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{payloads: make(map[string][][]Finding)}
}

func (f *fakePublisher) Publish(fileID string, findings []Finding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[fileID] = append(f.payloads[fileID], findings)
}

func (f *fakePublisher) last(fileID string) ([]Finding, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.payloads[fileID]
	if len(history) == 0 {
		return nil, false
	}
	return history[len(history)-1], true
}

func testPipeline(t *testing.T, provider RuntimeProvider, runner CommandRunner) (*Pipeline, *CommandRegistry, *fakePublisher) {
	t.Helper()
	registry := NewCommandRegistry()
	publisher := newFakePublisher()
	pipeline := NewPipeline(provider, runner, registry, publisher,
		WithScratchDir(t.TempDir()),
	)
	return pipeline, registry, publisher
}

var testDoc = Document{
	URI:     "file:///queries/report.sql",
	Version: 3,
	Text:    "SELECT * FROM foo\nGO",
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestPipeline_Validate_PublishesAndRegisters(t *testing.T) {
	runner := &fakeRunner{lines: []string{"(1,1): warning select-star: Avoid SELECT *"}}
	pipeline, registry, publisher := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	findings, fixed, err := pipeline.Validate(context.Background(), testDoc, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if fixed != "" {
		t.Errorf("fixedText should be empty without fix, got %q", fixed)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].Rule != "select-star" {
		t.Errorf("Rule = %q", findings[0].Rule)
	}
	if findings[0].Severity != SeverityWarning {
		t.Errorf("Severity = %v", findings[0].Severity)
	}

	published, ok := publisher.last(testDoc.URI)
	if !ok {
		t.Fatal("nothing published")
	}
	if len(published) != 1 {
		t.Fatalf("published %d findings, want 1", len(published))
	}

	actions := registry.Actions(testDoc.URI, findings[0].Range, testDoc.Text)
	if len(actions) != 2 {
		t.Errorf("expected 2 registered actions, got %d", len(actions))
	}
}

func TestPipeline_Validate_ScratchFileRoundTrip(t *testing.T) {
	runner := &fakeRunner{}
	pipeline, _, _ := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	if _, _, err := pipeline.Validate(context.Background(), testDoc, false); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if runner.scratchText != testDoc.Text {
		t.Errorf("scratch content = %q, want document text", runner.scratchText)
	}
	if len(runner.args) != 1 {
		t.Fatalf("args = %v, want single scratch path", runner.args)
	}
	if filepath.Ext(runner.args[0]) != ".sql" {
		t.Errorf("scratch extension = %q, want .sql", filepath.Ext(runner.args[0]))
	}
	if _, err := os.Stat(runner.args[0]); !os.IsNotExist(err) {
		t.Error("scratch file not removed after validation")
	}

	wantBinary := filepath.Join("/opt/tsqllint", consoleBinaryName(runtime.GOOS))
	if runner.binaryPath != wantBinary {
		t.Errorf("binaryPath = %q, want %q", runner.binaryPath, wantBinary)
	}
}

func TestPipeline_Validate_FixReturnsCorrectedText(t *testing.T) {
	runner := &fakeRunner{fixedOutput: "SELECT id FROM foo;\nGO"}
	pipeline, _, _ := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	_, fixed, err := pipeline.Validate(context.Background(), testDoc, true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if fixed != "SELECT id FROM foo;\nGO" {
		t.Errorf("fixedText = %q", fixed)
	}
	if len(runner.args) != 2 || runner.args[1] != "-x" {
		t.Errorf("args = %v, want scratch path followed by -x", runner.args)
	}
}

func TestPipeline_Validate_RuntimeFailureClearsState(t *testing.T) {
	runner := &fakeRunner{lines: []string{"(1,1): warning select-star: Avoid SELECT *"}}
	provider := &fakeRuntime{dir: "/opt/tsqllint"}
	pipeline, registry, publisher := testPipeline(t, provider, runner)

	// A successful run first, so there is state to clear.
	if _, _, err := pipeline.Validate(context.Background(), testDoc, false); err != nil {
		t.Fatalf("seed Validate: %v", err)
	}

	provider.err = ErrDownloadFailed
	_, _, err := pipeline.Validate(context.Background(), testDoc, false)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}

	published, ok := publisher.last(testDoc.URI)
	if !ok || len(published) != 0 {
		t.Errorf("failure must publish empty diagnostics, got %v", published)
	}
	actions := registry.Actions(testDoc.URI, span(0, 0, 99, 0), testDoc.Text)
	if len(actions) != 0 {
		t.Errorf("failure must clear registered actions, got %d", len(actions))
	}
}

func TestPipeline_Validate_RunnerFailureCleansScratch(t *testing.T) {
	runner := &fakeRunner{err: ErrExecutionTimeout}
	pipeline, _, publisher := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	_, _, err := pipeline.Validate(context.Background(), testDoc, false)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}

	if _, statErr := os.Stat(runner.args[0]); !os.IsNotExist(statErr) {
		t.Error("scratch file not removed after runner failure")
	}
	if published, ok := publisher.last(testDoc.URI); !ok || len(published) != 0 {
		t.Errorf("failure must publish empty diagnostics, got %v", published)
	}
}

func TestPipeline_Validate_FixReadbackFailure(t *testing.T) {
	runner := &fakeRunner{deleteFile: true}
	pipeline, _, _ := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	_, _, err := pipeline.Validate(context.Background(), testDoc, true)
	if err == nil {
		t.Fatal("expected readback failure when scratch file vanished")
	}
	if !strings.Contains(err.Error(), "scratch") {
		t.Errorf("error should mention the scratch file: %v", err)
	}
}

func TestPipeline_Validate_NilContext(t *testing.T) {
	pipeline, _, _ := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, &fakeRunner{})

	_, _, err := pipeline.Validate(nil, testDoc, false) //nolint:staticcheck
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipeline_Forget(t *testing.T) {
	runner := &fakeRunner{lines: []string{"(1,1): warning select-star: Avoid SELECT *"}}
	pipeline, registry, publisher := testPipeline(t, &fakeRuntime{dir: "/opt/tsqllint"}, runner)

	if _, _, err := pipeline.Validate(context.Background(), testDoc, false); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	pipeline.Forget(testDoc.URI)

	if published, ok := publisher.last(testDoc.URI); !ok || len(published) != 0 {
		t.Errorf("Forget must publish empty diagnostics, got %v", published)
	}
	actions := registry.Actions(testDoc.URI, span(0, 0, 99, 0), testDoc.Text)
	if len(actions) != 0 {
		t.Errorf("Forget must drop registered actions, got %d", len(actions))
	}
}

func TestScratchExtension(t *testing.T) {
	tests := []struct {
		fileID string
		want   string
	}{
		{"file:///queries/report.sql", ".sql"},
		{"file:///queries/report.tsql", ".tsql"},
		{"file:///queries/report", ".sql"},
		{"untitled:Untitled-1", ".sql"},
	}

	for _, tt := range tests {
		t.Run(tt.fileID, func(t *testing.T) {
			if got := scratchExtension(tt.fileID); got != tt.want {
				t.Errorf("scratchExtension(%q) = %q, want %q", tt.fileID, got, tt.want)
			}
		})
	}
}
