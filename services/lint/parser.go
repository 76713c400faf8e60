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
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// ERROR-LINE PARSER
// =============================================================================

// The tsqllint console reports one finding per line in two forms:
//
//	(<line>,<col>): <rule>: <message>
//	(<line>,<col>): <severity> <rule>: <message>
//
// where <severity> is "error" or "warning", case-insensitive. This
// grammar is the tool's documented output contract and must be
// reproduced exactly, including the single-line-span policy below.

var parenStripper = strings.NewReplacer("(", "", ")", "")

// ParseFindings converts raw tool output lines into findings.
//
// Description:
//
//	Parses each line independently and tolerantly: a malformed line
//	degrades to a fallback finding with an invalid position instead
//	of aborting the batch, and invalid findings are filtered from the
//	returned slice. ParseFindings never fails.
//
//	Ranges are computed against documentText (the live editor buffer),
//	not whatever file the tool actually read: each finding spans its
//	source line from the first non-whitespace character to the full
//	line length. The reported column is parsed but not used because
//	the upstream tool does not reliably report end columns.
//
// Inputs:
//
//	documentText - The document content the ranges anchor to
//	rawLines - Result lines as returned by Executor.Execute
//
// Outputs:
//
//	[]Finding - Valid findings in input order (possibly empty)
//
// Thread Safety: Safe for concurrent use.
func ParseFindings(documentText string, rawLines []string) []Finding {
	docLines := strings.Split(documentText, "\n")

	findings := make([]Finding, 0, len(rawLines))
	for _, raw := range rawLines {
		f := parseLine(docLines, raw)
		if f.Valid() {
			findings = append(findings, f)
		}
	}
	return findings
}

// parseLine parses a single result line, falling back to an invalid
// finding on any malformation.
func parseLine(docLines []string, raw string) Finding {
	segments := strings.Split(raw, ":")
	if len(segments) < 2 {
		return fallbackFinding(raw)
	}

	position := strings.Split(parenStripper.Replace(segments[0]), ",")
	line, err := strconv.Atoi(strings.TrimSpace(position[0]))
	if err != nil {
		return fallbackFinding(raw)
	}
	// 1-based in tool output, 0-based here. Anything unparsable or
	// negative becomes the invalid sentinel and is filtered out.
	line--
	if line < 0 {
		line = -1
	}

	start, end := 0, 0
	if line >= 0 && line < len(docLines) {
		src := docLines[line]
		start = firstNonSpace(src)
		end = len(src)
	}

	severity := SeverityError
	rule := strings.TrimSpace(segments[1])
	if tokens := strings.Fields(rule); len(tokens) > 0 {
		switch strings.ToLower(tokens[0]) {
		case "error":
			severity = SeverityError
			rule = strings.Join(tokens[1:], " ")
		case "warning":
			severity = SeverityWarning
			rule = strings.Join(tokens[1:], " ")
		}
	}

	rest := segments[2:]
	if n := len(rest); n > 0 && rest[n-1] == "" {
		rest = rest[:n-1]
	}
	message := strings.TrimSpace(strings.Join(rest, ":"))

	return Finding{
		Rule:     rule,
		Message:  message,
		Severity: severity,
		Range: Range{
			Start: Position{Line: line, Character: start},
			End:   Position{Line: line, Character: end},
		},
	}
}

// fallbackFinding preserves an unparsable line as an invalid finding
// so callers can log it; the validity filter drops it from results.
func fallbackFinding(raw string) Finding {
	return Finding{
		Message:  raw,
		Severity: SeverityError,
		Range: Range{
			Start: Position{Line: -1},
			End:   Position{Line: -1},
		},
	}
}

// firstNonSpace returns the index of the first non-whitespace rune,
// or 0 when the line is empty or entirely whitespace.
func firstNonSpace(s string) int {
	for i, r := range s {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return 0
}
