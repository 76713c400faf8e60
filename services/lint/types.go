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

// =============================================================================
// SEVERITY
// =============================================================================

// Severity represents the severity level of a finding.
type Severity int

const (
	// SeverityError represents rule violations reported as errors.
	SeverityError Severity = iota

	// SeverityWarning represents rule violations reported as warnings.
	SeverityWarning

	// SeverityInformation represents informational findings.
	SeverityInformation
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	default:
		return "unknown"
	}
}

// =============================================================================
// POSITIONS AND RANGES
// =============================================================================

// Position is a zero-based line/character location in a document.
type Position struct {
	// Line is the zero-based line index.
	Line int `json:"line"`

	// Character is the zero-based character offset within the line.
	Character int `json:"character"`
}

// before reports whether p is strictly before q in document order.
func (p Position) before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Range is a start/end position pair. The end is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Overlaps reports whether r and other share at least one position.
// Touching boundaries count as overlapping.
func (r Range) Overlaps(other Range) bool {
	return !(r.End.before(other.Start) || other.End.before(r.Start))
}

// =============================================================================
// FINDING
// =============================================================================

// Finding is one violation reported by the tsqllint binary.
//
// Findings are created fresh on every validation pass and are never
// mutated; a new pass for the same file supersedes them wholesale.
//
// Thread Safety: Immutable after creation.
type Finding struct {
	// Rule is the rule identifier that triggered (e.g., "semi-colon").
	// Empty only on parse failure.
	Rule string `json:"rule"`

	// Message is the human-readable description of the violation.
	Message string `json:"message"`

	// Severity is the severity level of the finding.
	Severity Severity `json:"severity"`

	// Range is the document span the finding applies to. The span
	// always covers a single source line, from its first
	// non-whitespace character to its full length; the upstream tool
	// does not report usable end columns.
	Range Range `json:"range"`
}

// Valid reports whether the finding carries a usable position.
// Fallback findings produced from unparsable lines are invalid and
// are discarded before publication.
func (f Finding) Valid() bool {
	return f.Range.Start.Line >= 0
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a snapshot of one open editor document.
//
// Thread Safety: Treat as immutable.
type Document struct {
	// URI is the stable file identity distinguishing open documents.
	URI string `json:"uri"`

	// Version is the editor's monotonically increasing document version.
	Version int `json:"version"`

	// Text is the full document content at snapshot time.
	Text string `json:"text"`
}

// =============================================================================
// TEXT EDIT
// =============================================================================

// TextEdit represents one text change produced for a quick fix.
//
// Thread Safety: Immutable after creation.
type TextEdit struct {
	// Range is the span to replace. A zero-width range inserts.
	Range Range `json:"range"`

	// NewText is the replacement text.
	NewText string `json:"newText"`
}

// =============================================================================
// CODE ACTION
// =============================================================================

// Command identifiers for the quick-fix actions the registry produces.
const (
	// CommandDisableLine wraps a finding's source line in
	// disable/enable comments for its rule.
	CommandDisableLine = "tsqllint.disableRuleForLine"

	// CommandDisableFile inserts a file-wide disable comment for the
	// finding's rule at the top of the document.
	CommandDisableFile = "tsqllint.disableRuleForFile"
)

// FileScopeMarker is the line-number marker used in action arguments
// for file-scoped edits that have no single source line.
const FileScopeMarker = -1

// CodeAction is an editor command descriptor synthesized from a
// stored finding.
//
// Arguments always hold [uri, lineNumber or FileScopeMarker, edits].
//
// Thread Safety: Immutable after creation.
type CodeAction struct {
	// Title is the human-readable action label.
	Title string `json:"title"`

	// Command is one of the Command* identifiers above.
	Command string `json:"command"`

	// Arguments is the opaque argument array forwarded back on
	// execution.
	Arguments []any `json:"arguments"`
}
