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
	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// LSP method names the server handles or emits.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "initialized"
	MethodShutdown               = "shutdown"
	MethodExit                   = "exit"
	MethodDidOpen                = "textDocument/didOpen"
	MethodDidChange              = "textDocument/didChange"
	MethodDidSave                = "textDocument/didSave"
	MethodDidClose               = "textDocument/didClose"
	MethodWillSaveWaitUntil      = "textDocument/willSaveWaitUntil"
	MethodCodeAction             = "textDocument/codeAction"
	MethodExecuteCommand         = "workspace/executeCommand"
	MethodDidChangeConfiguration = "workspace/didChangeConfiguration"
	MethodPublishDiagnostics     = "textDocument/publishDiagnostics"
	MethodApplyEdit              = "workspace/applyEdit"

	// MethodFix is a custom notification requesting an explicit
	// auto-fix pass on a document.
	MethodFix = "tsqllint/fix"
)

// DiagnosticSource tags every published diagnostic.
const DiagnosticSource = "tsqllint"

// Diagnostic severity levels on the wire.
const (
	DiagnosticError       = 1
	DiagnosticWarning     = 2
	DiagnosticInformation = 3
)

// =============================================================================
// LIFECYCLE
// =============================================================================

// InitializeParams is the client's initialize request payload. Only
// the fields the server consumes are modeled.
type InitializeParams struct {
	ProcessID  *int   `json:"processId"`
	RootURI    string `json:"rootUri,omitempty"`
	ClientInfo *struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"clientInfo,omitempty"`
}

// InitializeResult is the server's initialize response.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

// ServerInfo identifies the server to the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities advertises what the server can do.
type ServerCapabilities struct {
	TextDocumentSync       TextDocumentSyncOptions `json:"textDocumentSync"`
	CodeActionProvider     bool                    `json:"codeActionProvider"`
	ExecuteCommandProvider ExecuteCommandOptions   `json:"executeCommandProvider"`
}

// TextDocumentSyncOptions configures document synchronization.
type TextDocumentSyncOptions struct {
	OpenClose         bool `json:"openClose"`
	Change            int  `json:"change"`
	Save              bool `json:"save"`
	WillSaveWaitUntil bool `json:"willSaveWaitUntil"`
}

// SyncFull requests full document text on every change.
const SyncFull = 1

// ExecuteCommandOptions lists the commands the server executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// =============================================================================
// DOCUMENT SYNCHRONIZATION
// =============================================================================

// TextDocumentItem is a full document as transferred on open.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentIdentifier refers to an open document.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier refers to a specific version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

// DidOpenTextDocumentParams accompanies textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// TextDocumentContentChangeEvent is one change in a didChange batch.
// With full sync only Text is populated.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidChangeTextDocumentParams accompanies textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidSaveTextDocumentParams accompanies textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         string                 `json:"text,omitempty"`
}

// DidCloseTextDocumentParams accompanies textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// WillSaveTextDocumentParams accompanies willSaveWaitUntil.
type WillSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Reason       int                    `json:"reason"`
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Diagnostic is one published finding on the wire.
type Diagnostic struct {
	Range    lint.Range `json:"range"`
	Severity int        `json:"severity"`
	Source   string     `json:"source"`
	Message  string     `json:"message"`
}

// PublishDiagnosticsParams accompanies publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// =============================================================================
// CODE ACTIONS AND COMMANDS
// =============================================================================

// CodeActionParams accompanies textDocument/codeAction.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        lint.Range             `json:"range"`
}

// Command is the wire form of an executable action.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// ExecuteCommandParams accompanies workspace/executeCommand.
type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// TextEdit is the wire form of a single text change.
type TextEdit struct {
	Range   lint.Range `json:"range"`
	NewText string     `json:"newText"`
}

// WorkspaceEdit groups edits by document URI.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}

// ApplyWorkspaceEditParams accompanies workspace/applyEdit.
type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

// ApplyWorkspaceEditResult is the client's applyEdit answer.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// DidChangeConfigurationParams accompanies didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings struct {
		TSQLLint struct {
			AutoFixOnSave bool `json:"autoFixOnSave"`
		} `json:"tsqllint"`
	} `json:"settings"`
}

// FixParams accompanies the custom tsqllint/fix notification.
type FixParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// wireSeverity maps a finding severity to its LSP diagnostic code.
func wireSeverity(s lint.Severity) int {
	switch s {
	case lint.SeverityWarning:
		return DiagnosticWarning
	case lint.SeverityInformation:
		return DiagnosticInformation
	default:
		return DiagnosticError
	}
}

// toDiagnostics converts findings to their wire form. Always returns
// a non-nil slice so empty publishes serialize as [] rather than null.
func toDiagnostics(findings []lint.Finding) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(findings))
	for _, f := range findings {
		message := f.Message
		if f.Rule != "" {
			message = f.Rule + ": " + f.Message
		}
		diagnostics = append(diagnostics, Diagnostic{
			Range:    f.Range,
			Severity: wireSeverity(f.Severity),
			Source:   DiagnosticSource,
			Message:  message,
		})
	}
	return diagnostics
}
