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
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// CommandRegistry tracks the findings of the most recent validation
// per file, so that code action queries can offer suppression
// commands for the findings overlapping a requested range.
//
// Description:
//
//	Each validation replaces a file's entry wholesale. The registry
//	therefore always reflects the latest completed validation, never
//	a merge of runs. A validation failure registers an empty slice,
//	clearing prior actions for that file.
//
// Thread Safety: Safe for concurrent use.
type CommandRegistry struct {
	mu       sync.RWMutex
	findings map[string][]Finding
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		findings: make(map[string][]Finding),
	}
}

// Register replaces the recorded findings for fileID.
//
// Inputs:
//
//	fileID - Document identifier (URI)
//	findings - Findings from the latest validation; may be empty
func (r *CommandRegistry) Register(fileID string, findings []Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings[fileID] = findings
}

// Drop removes all recorded findings for fileID.
func (r *CommandRegistry) Drop(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.findings, fileID)
}

// Actions returns suppression code actions for every recorded finding
// of fileID whose range overlaps query.
//
// Description:
//
//	Each overlapping finding yields two actions: disable the rule for
//	its line, and disable the rule for the whole file. Overlap is
//	boundary-inclusive, so a cursor touching a finding's edge still
//	surfaces its actions. documentText supplies the source line needed
//	to build the line-level suppression edit.
//
// Inputs:
//
//	fileID - Document identifier (URI)
//	query - Range the client is asking about
//	documentText - Current full text of the document
//
// Outputs:
//
//	[]CodeAction - Zero or more actions, in finding order
func (r *CommandRegistry) Actions(fileID string, query Range, documentText string) []CodeAction {
	r.mu.RLock()
	recorded := r.findings[fileID]
	r.mu.RUnlock()

	lines := strings.Split(documentText, "\n")

	var actions []CodeAction
	for _, finding := range recorded {
		if !finding.Range.Overlaps(query) {
			continue
		}

		line := finding.Range.Start.Line
		if line >= 0 && line < len(lines) {
			actions = append(actions, CodeAction{
				Title:   fmt.Sprintf("Disable: %s for this line", finding.Rule),
				Command: CommandDisableLine,
				Arguments: []any{
					fileID,
					line,
					disableLineEdit(finding.Rule, lines[line]),
				},
			})
		}

		actions = append(actions, CodeAction{
			Title:   fmt.Sprintf("Disable: %s for this file", finding.Rule),
			Command: CommandDisableFile,
			Arguments: []any{
				fileID,
				FileScopeMarker,
				fmt.Sprintf("/* tsqllint-disable %s */\n", finding.Rule),
			},
		})
	}
	return actions
}

// disableLineEdit wraps a source line in disable and enable comments
// for a single rule, preserving the line's leading whitespace.
func disableLineEdit(rule, sourceLine string) string {
	indent := sourceLine[:len(sourceLine)-len(strings.TrimLeft(sourceLine, " \t"))]
	return fmt.Sprintf("%s/* tsqllint-disable %s */\n%s\n%s/* tsqllint-enable %s */\n",
		indent, rule, sourceLine, indent, rule)
}
