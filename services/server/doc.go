// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server implements the language server protocol surface for
// the tsqllint integration.
//
// # Architecture
//
//	editor client
//	     |  stdin/stdout, Content-Length framing
//	   Conn  (protocol.go)
//	     |  requests / notifications
//	  Server (server.go, handlers.go)
//	     |  document snapshots
//	  lint.Pipeline
//
// The server speaks JSON-RPC 2.0 over a byte stream, usually the
// process's stdin and stdout. Document synchronization uses full text
// sync: every change carries the complete document, which matches how
// the lint pipeline consumes snapshots.
//
// Diagnostics flow the other way: the server implements
// lint.DiagnosticsPublisher, so completed validations turn directly
// into textDocument/publishDiagnostics notifications.
//
// # Known Limitations
//
//   - One client per server process. A second connection needs a
//     second process, which is how editors launch language servers
//     anyway.
//   - Incremental sync is not implemented; the server advertises full
//     sync only.
//
// # Thread Safety
//
// Conn and Server are safe for concurrent use. Handlers run on the
// read loop goroutine; validations and client-bound edits run on
// background goroutines that Run waits for on shutdown.
package server
