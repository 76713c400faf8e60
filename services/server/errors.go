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
	"errors"
	"fmt"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeConnectionClosed is sent to pending callers when the
	// connection shuts down.
	CodeConnectionClosed = -32099
)

// Sentinel errors for the server package.
var (
	// ErrConnectionClosed indicates the client connection is no longer
	// usable for sends.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrClientGone indicates the client ended the stream.
	ErrClientGone = errors.New("client disconnected")

	// ErrRequestCancelled indicates a server-to-client request was
	// abandoned before a response arrived.
	ErrRequestCancelled = errors.New("request cancelled")
)

// RPCError is a JSON-RPC error returned by the client for a
// server-initiated request.
//
// Thread Safety: Immutable after creation.
type RPCError struct {
	// Code is the JSON-RPC error code.
	Code int

	// Message is a short description of the error.
	Message string

	// Data contains additional error information.
	Data any
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
