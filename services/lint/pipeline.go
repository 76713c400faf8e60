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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RuntimeProvider yields the installation directory of the lint tool.
type RuntimeProvider interface {
	EnsureRuntime(ctx context.Context) (string, error)
}

// CommandRunner executes the lint tool and returns its result lines.
type CommandRunner interface {
	Execute(ctx context.Context, binaryPath string, args []string) ([]string, error)
}

// DiagnosticsPublisher receives the findings of a completed
// validation. Implementations forward them to the editor client.
type DiagnosticsPublisher interface {
	Publish(fileID string, findings []Finding)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline validates document content by round-tripping it through
// the tsqllint binary.
//
// Description:
//
//	Validate snapshots the document text into a scratch file, runs
//	the tool against it, parses the output back into findings
//	positioned against the original text, registers them for code
//	action queries, and publishes them. Fix mode additionally runs
//	the tool's auto-fix and returns the corrected text.
//
//	A failed validation is not silent: the registry entry and the
//	published diagnostics for the file are cleared before the error
//	is returned, so the editor never shows findings from a run that
//	no longer reflects reality.
//
// Thread Safety: Safe for concurrent use provided the collaborators
// are; concurrent validations of the same file race benignly, with
// the last completed run winning.
type Pipeline struct {
	runtime    RuntimeProvider
	runner     CommandRunner
	registry   *CommandRegistry
	publisher  DiagnosticsPublisher
	scratchDir string
}

// PipelineOption configures the Pipeline.
type PipelineOption func(*Pipeline)

// WithScratchDir overrides the directory used for scratch files.
func WithScratchDir(dir string) PipelineOption {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// NewPipeline creates a validation pipeline.
//
// Inputs:
//
//	provider - Source of the tool installation directory
//	runner - Tool process executor
//	registry - Per-file finding registry for code actions
//	publisher - Diagnostics sink
//	opts - Optional configuration options
//
// Outputs:
//
//	*Pipeline - The configured pipeline
func NewPipeline(provider RuntimeProvider, runner CommandRunner, registry *CommandRegistry, publisher DiagnosticsPublisher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runtime:    provider,
		runner:     runner,
		registry:   registry,
		publisher:  publisher,
		scratchDir: os.TempDir(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Validate lints doc and publishes the resulting findings.
//
// Description:
//
//	The document text is written to a uniquely named scratch file so
//	that unsaved editor content is validated, not the on-disk copy.
//	When fix is true the tool runs with its auto-fix flag and the
//	corrected scratch content is returned as fixedText; otherwise
//	fixedText is empty.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	doc - Document snapshot to validate
//	fix - Whether to apply the tool's automatic fixes
//
// Outputs:
//
//	[]Finding - Parsed findings, possibly empty
//	string - Fixed document text when fix is true
//	error - Non-nil if acquisition, execution, or fix readback failed
//
// Thread Safety: Safe for concurrent use.
func (p *Pipeline) Validate(ctx context.Context, doc Document, fix bool) ([]Finding, string, error) {
	if ctx == nil {
		return nil, "", fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}

	ctx, span := startValidateSpan(ctx, doc.URI, fix)
	defer span.End()
	start := time.Now()

	findings, fixedText, err := p.validate(ctx, doc, fix)
	if err != nil {
		// Stale diagnostics are worse than none.
		p.registry.Register(doc.URI, nil)
		p.publisher.Publish(doc.URI, nil)
		recordValidateMetrics(ctx, time.Since(start), 0, false)
		span.RecordError(err)
		return nil, "", err
	}

	p.registry.Register(doc.URI, findings)
	p.publisher.Publish(doc.URI, findings)

	setValidateSpanResult(span, len(findings))
	recordValidateMetrics(ctx, time.Since(start), len(findings), true)
	return findings, fixedText, nil
}

// validate performs the scratch-file round trip.
func (p *Pipeline) validate(ctx context.Context, doc Document, fix bool) ([]Finding, string, error) {
	scratchPath := filepath.Join(p.scratchDir, uuid.New().String()+scratchExtension(doc.URI))
	if err := os.WriteFile(scratchPath, []byte(doc.Text), 0o600); err != nil {
		return nil, "", fmt.Errorf("write scratch file: %w", err)
	}
	defer func() {
		if err := os.Remove(scratchPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove scratch file",
				slog.String("path", scratchPath),
				slog.Any("error", err),
			)
		}
	}()

	installDir, err := p.runtime.EnsureRuntime(ctx)
	if err != nil {
		return nil, "", err
	}
	binaryPath := filepath.Join(installDir, consoleBinaryName(runtime.GOOS))

	args := []string{scratchPath}
	if fix {
		args = append(args, "-x")
	}

	rawLines, err := p.runner.Execute(ctx, binaryPath, args)
	if err != nil {
		return nil, "", err
	}

	findings := ParseFindings(doc.Text, rawLines)

	var fixedText string
	if fix {
		fixed, err := os.ReadFile(scratchPath)
		if err != nil {
			return nil, "", fmt.Errorf("read fixed scratch file: %w", err)
		}
		fixedText = string(fixed)
	}

	slog.Debug("validation complete",
		slog.String("file_id", doc.URI),
		slog.Int("finding_count", len(findings)),
		slog.Bool("fix", fix),
	)
	return findings, fixedText, nil
}

// Forget drops a file's registry entry and clears its published
// diagnostics. Called when the editor closes a document.
func (p *Pipeline) Forget(fileID string) {
	p.registry.Drop(fileID)
	p.publisher.Publish(fileID, nil)
}

// scratchExtension picks the scratch file extension from the source
// document's URI so the tool sees a familiar suffix.
func scratchExtension(fileID string) string {
	if ext := filepath.Ext(strings.TrimSuffix(fileID, "/")); ext != "" {
		return ext
	}
	return ".sql"
}
