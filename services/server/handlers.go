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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// dispatch routes one incoming message to its handler.
func (s *Server) dispatch(ctx context.Context, msg *Message) {
	switch msg.Method {
	case MethodInitialize:
		s.handleInitialize(msg)
	case MethodInitialized:
		slog.Debug("client initialized")
	case MethodShutdown:
		s.handleShutdown(msg)
	case MethodExit:
		s.handleExit()
	case MethodDidOpen:
		s.handleDidOpen(ctx, msg)
	case MethodDidChange:
		s.handleDidChange(ctx, msg)
	case MethodDidSave:
		s.handleDidSave(ctx, msg)
	case MethodDidClose:
		s.handleDidClose(msg)
	case MethodWillSaveWaitUntil:
		s.handleWillSaveWaitUntil(ctx, msg)
	case MethodCodeAction:
		s.handleCodeAction(msg)
	case MethodExecuteCommand:
		s.handleExecuteCommand(ctx, msg)
	case MethodDidChangeConfiguration:
		s.handleDidChangeConfiguration(msg)
	case MethodFix:
		s.handleFix(ctx, msg)
	default:
		if msg.IsRequest() {
			s.replyError(msg, CodeMethodNotFound, fmt.Sprintf("unsupported method %q", msg.Method))
		}
		// Unknown notifications are ignored per the protocol.
	}
}

// decodeParams unmarshals msg.Params, replying InvalidParams on a
// request when decoding fails.
func (s *Server) decodeParams(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Params, v); err != nil {
		slog.Warn("malformed params",
			slog.String("method", msg.Method),
			slog.Any("error", err),
		)
		if msg.IsRequest() {
			s.replyError(msg, CodeInvalidParams, err.Error())
		}
		return false
	}
	return true
}

func (s *Server) reply(msg *Message, result any) {
	if err := s.conn.Reply(msg.ID, result); err != nil {
		slog.Warn("failed to send response",
			slog.String("method", msg.Method),
			slog.Any("error", err),
		)
	}
}

func (s *Server) replyError(msg *Message, code int, message string) {
	if err := s.conn.ReplyError(msg.ID, code, message); err != nil {
		slog.Warn("failed to send error response",
			slog.String("method", msg.Method),
			slog.Any("error", err),
		)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func (s *Server) handleInitialize(msg *Message) {
	var params InitializeParams
	if !s.decodeParams(msg, &params) {
		return
	}

	if params.ClientInfo != nil {
		slog.Info("client connected",
			slog.String("client", params.ClientInfo.Name),
			slog.String("client_version", params.ClientInfo.Version),
		)
	}

	s.reply(msg, InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose:         true,
				Change:            SyncFull,
				Save:              true,
				WillSaveWaitUntil: true,
			},
			CodeActionProvider: true,
			ExecuteCommandProvider: ExecuteCommandOptions{
				Commands: []string{
					lint.CommandDisableLine,
					lint.CommandDisableFile,
				},
			},
		},
		ServerInfo: ServerInfo{
			Name:    "tsqllint-server",
			Version: Version,
		},
	})
}

func (s *Server) handleShutdown(msg *Message) {
	s.shuttingDown.Store(true)
	s.reply(msg, nil)
}

func (s *Server) handleExit() {
	slog.Info("client requested exit")
	s.conn.Close()
	if s.cancel != nil {
		s.cancel()
	}
}

// =============================================================================
// DOCUMENT SYNCHRONIZATION
// =============================================================================

func (s *Server) handleDidOpen(ctx context.Context, msg *Message) {
	var params DidOpenTextDocumentParams
	if !s.decodeParams(msg, &params) {
		return
	}

	doc := lint.Document{
		URI:     params.TextDocument.URI,
		Version: params.TextDocument.Version,
		Text:    params.TextDocument.Text,
	}
	s.store.put(doc)
	s.validateAsync(ctx, doc)
}

func (s *Server) handleDidChange(ctx context.Context, msg *Message) {
	var params DidChangeTextDocumentParams
	if !s.decodeParams(msg, &params) {
		return
	}
	if len(params.ContentChanges) == 0 {
		return
	}

	// Full sync: the last change carries the complete text.
	doc := lint.Document{
		URI:     params.TextDocument.URI,
		Version: params.TextDocument.Version,
		Text:    params.ContentChanges[len(params.ContentChanges)-1].Text,
	}
	s.store.put(doc)
	s.validateAsync(ctx, doc)
}

func (s *Server) handleDidSave(ctx context.Context, msg *Message) {
	var params DidSaveTextDocumentParams
	if !s.decodeParams(msg, &params) {
		return
	}

	doc, ok := s.store.get(params.TextDocument.URI)
	if !ok {
		slog.Warn("save for unknown document",
			slog.String("file_id", params.TextDocument.URI),
		)
		return
	}
	if params.Text != "" {
		doc.Text = params.Text
		s.store.put(doc)
	}
	s.validateAsync(ctx, doc)
}

func (s *Server) handleDidClose(msg *Message) {
	var params DidCloseTextDocumentParams
	if !s.decodeParams(msg, &params) {
		return
	}

	uri := params.TextDocument.URI
	s.store.remove(uri)
	s.validator.Forget(uri)
	slog.Debug("document closed",
		slog.String("file_id", uri),
		slog.Int("open_documents", s.store.len()),
	)
}

// =============================================================================
// SAVE-TIME FIXES
// =============================================================================

// handleWillSaveWaitUntil answers with whole-document edits when
// auto-fix on save is enabled. The client blocks on this response, so
// the fix runs inline rather than on a background goroutine.
func (s *Server) handleWillSaveWaitUntil(ctx context.Context, msg *Message) {
	var params WillSaveTextDocumentParams
	if !s.decodeParams(msg, &params) {
		return
	}

	if !s.autoFixOnSave.Load() {
		s.reply(msg, []TextEdit{})
		return
	}

	doc, ok := s.store.get(params.TextDocument.URI)
	if !ok {
		s.reply(msg, []TextEdit{})
		return
	}

	_, fixed, err := s.validator.Validate(ctx, doc, true)
	if err != nil {
		slog.Error("auto-fix on save failed",
			slog.String("file_id", doc.URI),
			slog.Any("error", err),
		)
		s.reply(msg, []TextEdit{})
		return
	}

	if fixed == doc.Text {
		s.reply(msg, []TextEdit{})
		return
	}

	s.reply(msg, []TextEdit{wholeDocumentEdit(doc.Text, fixed)})
}

// handleFix services the custom tsqllint/fix notification by running
// an auto-fix pass and pushing the result back via workspace/applyEdit.
func (s *Server) handleFix(ctx context.Context, msg *Message) {
	var params FixParams
	if !s.decodeParams(msg, &params) {
		return
	}

	doc, ok := s.store.get(params.TextDocument.URI)
	if !ok {
		slog.Warn("fix requested for unknown document",
			slog.String("file_id", params.TextDocument.URI),
		)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		_, fixed, err := s.validator.Validate(ctx, doc, true)
		if err != nil {
			slog.Error("fix failed",
				slog.String("file_id", doc.URI),
				slog.Any("error", err),
			)
			return
		}
		if fixed == doc.Text {
			return
		}

		// The document may have moved on while the tool ran. A
		// whole-document edit computed against the old snapshot
		// would clobber the newer text, so drop it.
		if current, ok := s.store.get(doc.URI); !ok || current.Version != doc.Version {
			slog.Warn("dropping fix for stale document version",
				slog.String("file_id", doc.URI),
				slog.Int("fixed_version", doc.Version),
			)
			return
		}

		s.applyEdit(ctx, "Fix tsqllint violations", doc.URI, wholeDocumentEdit(doc.Text, fixed))
	}()
}

// =============================================================================
// CODE ACTIONS
// =============================================================================

func (s *Server) handleCodeAction(msg *Message) {
	var params CodeActionParams
	if !s.decodeParams(msg, &params) {
		return
	}

	doc, ok := s.store.get(params.TextDocument.URI)
	if !ok {
		s.reply(msg, []Command{})
		return
	}

	actions := s.registry.Actions(doc.URI, params.Range, doc.Text)
	commands := make([]Command, 0, len(actions))
	for _, action := range actions {
		commands = append(commands, Command{
			Title:     action.Title,
			Command:   action.Command,
			Arguments: action.Arguments,
		})
	}
	s.reply(msg, commands)
}

func (s *Server) handleExecuteCommand(ctx context.Context, msg *Message) {
	var params ExecuteCommandParams
	if !s.decodeParams(msg, &params) {
		return
	}

	uri, line, newText, err := suppressionArguments(params.Arguments)
	if err != nil {
		s.replyError(msg, CodeInvalidParams, err.Error())
		return
	}

	switch params.Command {
	case lint.CommandDisableLine, lint.CommandDisableFile:
	default:
		s.replyError(msg, CodeInvalidParams, fmt.Sprintf("unknown command %q", params.Command))
		return
	}

	s.reply(msg, nil)

	edit := suppressionEdit(line, newText)
	label := fmt.Sprintf("Apply %s", params.Command)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.applyEdit(ctx, label, uri, edit)
	}()
}

// applyEdit pushes a single-document edit to the client and logs a
// rejection. A rejected edit usually means the document changed under
// us; the next validation pass supersedes the stale suppression.
func (s *Server) applyEdit(ctx context.Context, label, uri string, edit TextEdit) {
	params := ApplyWorkspaceEditParams{
		Label: label,
		Edit: WorkspaceEdit{
			Changes: map[string][]TextEdit{
				uri: {edit},
			},
		},
	}

	raw, err := s.conn.Call(ctx, MethodApplyEdit, params)
	if err != nil {
		slog.Error("applyEdit request failed",
			slog.String("file_id", uri),
			slog.Any("error", err),
		)
		return
	}

	var result ApplyWorkspaceEditResult
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Warn("malformed applyEdit response",
			slog.String("file_id", uri),
			slog.Any("error", err),
		)
		return
	}
	if !result.Applied {
		slog.Warn("client rejected edit",
			slog.String("file_id", uri),
			slog.String("reason", result.FailureReason),
		)
	}
}

// suppressionArguments validates the [uri, line, newText] argument
// array carried by suppression commands.
func suppressionArguments(args []any) (string, int, string, error) {
	if len(args) != 3 {
		return "", 0, "", fmt.Errorf("expected 3 arguments, got %d", len(args))
	}

	uri, ok := args[0].(string)
	if !ok || uri == "" {
		return "", 0, "", fmt.Errorf("first argument must be a document URI")
	}

	var line int
	switch v := args[1].(type) {
	case int:
		line = v
	case float64:
		// JSON numbers decode as float64.
		line = int(v)
	default:
		return "", 0, "", fmt.Errorf("second argument must be a line number")
	}

	newText, ok := args[2].(string)
	if !ok {
		return "", 0, "", fmt.Errorf("third argument must be the replacement text")
	}

	return uri, line, newText, nil
}

// suppressionEdit builds the text edit for a suppression command.
// Line-scoped edits replace the whole line including its newline;
// file-scoped edits insert at the top of the document.
func suppressionEdit(line int, newText string) TextEdit {
	if line == lint.FileScopeMarker {
		return TextEdit{
			Range: lint.Range{
				Start: lint.Position{Line: 0, Character: 0},
				End:   lint.Position{Line: 0, Character: 0},
			},
			NewText: newText,
		}
	}
	return TextEdit{
		Range: lint.Range{
			Start: lint.Position{Line: line, Character: 0},
			End:   lint.Position{Line: line + 1, Character: 0},
		},
		NewText: newText,
	}
}

// wholeDocumentEdit replaces the entire document text.
func wholeDocumentEdit(oldText, newText string) TextEdit {
	lines := strings.Split(oldText, "\n")
	last := len(lines) - 1
	return TextEdit{
		Range: lint.Range{
			Start: lint.Position{Line: 0, Character: 0},
			End:   lint.Position{Line: last, Character: len(lines[last])},
		},
		NewText: newText,
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (s *Server) handleDidChangeConfiguration(msg *Message) {
	var params DidChangeConfigurationParams
	if !s.decodeParams(msg, &params) {
		return
	}

	s.autoFixOnSave.Store(params.Settings.TSQLLint.AutoFixOnSave)
	slog.Info("configuration updated",
		slog.Bool("auto_fix_on_save", params.Settings.TSQLLint.AutoFixOnSave),
	)
}
