// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// Version is the server version reported during initialize.
const Version = "1.15.0"

// Validator runs the lint pipeline for one document snapshot.
type Validator interface {
	Validate(ctx context.Context, doc lint.Document, fix bool) ([]lint.Finding, string, error)
	Forget(fileID string)
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the LSP-facing surface of the linter.
//
// Description:
//
//	Owns the connection to a single editor client. Document
//	synchronization events trigger background validations whose
//	diagnostics flow back over the same connection. Validations of
//	the same file may overlap; the pipeline's last completed run
//	wins, which is acceptable because each run reflects a newer
//	snapshot.
//
// Thread Safety: Safe for concurrent use; handlers run on the read
// loop goroutine and fan validation work out to background
// goroutines.
type Server struct {
	conn      *Conn
	registry  *lint.CommandRegistry
	store     *documentStore
	validator Validator

	autoFixOnSave atomic.Bool
	shuttingDown  atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server over conn.
//
// Description:
//
//	The validator is attached separately with UseValidator because
//	the pipeline publishing diagnostics needs the server first.
//
// Inputs:
//
//	conn - The client connection
//	registry - Registry shared with the lint pipeline
//
// Outputs:
//
//	*Server - The server, not yet running
func NewServer(conn *Conn, registry *lint.CommandRegistry) *Server {
	return &Server{
		conn:     conn,
		registry: registry,
		store:    newDocumentStore(),
	}
}

// UseValidator attaches the validation pipeline. Must be called
// before Run.
func (s *Server) UseValidator(v Validator) {
	s.validator = v
}

// SetAutoFixOnSave seeds the save-time fix behavior. The client's
// didChangeConfiguration notifications override it afterwards.
func (s *Server) SetAutoFixOnSave(enabled bool) {
	s.autoFixOnSave.Store(enabled)
}

// Publish implements lint.DiagnosticsPublisher by forwarding findings
// to the client as a publishDiagnostics notification.
//
// Thread Safety: Safe for concurrent use.
func (s *Server) Publish(fileID string, findings []lint.Finding) {
	params := PublishDiagnosticsParams{
		URI:         fileID,
		Diagnostics: toDiagnostics(findings),
	}
	if err := s.conn.Notify(MethodPublishDiagnostics, params); err != nil {
		slog.Warn("failed to publish diagnostics",
			slog.String("file_id", fileID),
			slog.Any("error", err),
		)
	}
}

// Run serves the connection until the client disconnects, sends exit,
// or ctx is cancelled.
//
// Inputs:
//
//	ctx - Context bounding the server lifetime
//
// Outputs:
//
//	error - Non-nil on abnormal termination; nil on clean exit
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	err := s.conn.ReadLoop(runCtx, func(msg *Message) {
		s.dispatch(runCtx, msg)
	})

	s.conn.Close()
	s.wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, ErrClientGone) && s.shuttingDown.Load() {
		return nil
	}
	return err
}

// validateAsync lints doc on a background goroutine. Errors are
// logged, not surfaced; the pipeline has already cleared the file's
// diagnostics by the time it reports one.
func (s *Server) validateAsync(ctx context.Context, doc lint.Document) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, _, err := s.validator.Validate(ctx, doc, false); err != nil {
			slog.Error("validation failed",
				slog.String("file_id", doc.URI),
				slog.Int("version", doc.Version),
				slog.Any("error", err),
			)
		}
	}()
}
