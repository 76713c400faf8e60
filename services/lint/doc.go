// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lint integrates the external tsqllint binary as a validation
// backend for T-SQL documents.
//
// The package does not understand SQL itself. It treats the tool's
// output as opaque positioned text and provides:
//
//   - Platform resolution for the four supported binary variants
//   - One-time acquisition (download + unpack) of the versioned runtime
//   - Subprocess execution with a bounded lifetime
//   - Tolerant parsing of the tool's error lines into findings
//   - A validation pipeline that turns a document snapshot into
//     published diagnostics and optional auto-fix content
//   - A per-file command registry backing quick-fix requests
//
// # Architecture
//
// The pipeline orchestrates the leaf components:
//
//	Document → Scratch File → Runtime Acquirer → Executor → Parser
//	                          (memoized)          → Registry + Diagnostics
//
// A fix pass re-enters the same pipeline with the tool's -x flag and
// reads the rewritten scratch file back as a whole-document
// replacement.
//
// # Known Limitations
//
// The resolved runtime location is memoized for the process lifetime
// and never revalidated; deleting the installation externally requires
// a restart. Downloaded archives are not checksummed. Overlapping
// validations for the same file race; the last one to complete wins.
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package lint
