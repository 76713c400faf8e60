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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Message is an incoming JSON-RPC message before dispatch. A request
// has both ID and Method; a notification has Method only; a response
// to a server-initiated request has ID only.
type Message struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the raw request identifier. Clients may use numbers or
	// strings, so it is kept opaque and echoed back verbatim.
	ID json.RawMessage `json:"id,omitempty"`

	// Method is the method to invoke. Empty for responses.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params json.RawMessage `json:"params,omitempty"`

	// Result contains a response result.
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains response error information.
	Error *ResponseError `json:"error,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsResponse reports whether the message answers a server request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// Response represents an outgoing JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID echoes the request identifier verbatim.
	ID json.RawMessage `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result any `json:"result"`

	// Error contains error information (mutually exclusive with Result).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data any `json:"data,omitempty"`
}

// Request represents an outgoing server-to-client request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier.
	ID int64 `json:"id"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params any `json:"params,omitempty"`
}

// Notification represents an outgoing notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params any `json:"params,omitempty"`
}

// =============================================================================
// CONNECTION
// =============================================================================

// MessageHandler consumes one incoming request or notification.
// Implementations reply to requests through Conn.Reply.
type MessageHandler func(msg *Message)

// Conn handles JSON-RPC communication with an editor client over a
// byte stream, typically stdin/stdout.
//
// Description:
//
//	Implements the LSP base protocol with Content-Length framing.
//	Incoming requests and notifications are handed to a
//	MessageHandler; responses to server-initiated requests are
//	correlated with their pending callers.
//
// Thread Safety: Safe for concurrent use. Multiple goroutines can
// send concurrently; ReadLoop must run on a single goroutine.
type Conn struct {
	reader    *bufio.Reader
	writer    io.Writer
	writeMu   sync.Mutex
	nextID    int64
	pending   map[int64]chan *Message
	pendingMu sync.Mutex
	closed    int32 // atomic: 1 if closed
}

// NewConn creates a connection over the given reader and writer.
//
// Inputs:
//
//	r - Reader for client messages (e.g., stdin)
//	w - Writer for server messages (e.g., stdout)
//
// Outputs:
//
//	*Conn - The connection
func NewConn(r io.Reader, w io.Writer) *Conn {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Conn{
		reader:  reader,
		writer:  w,
		pending: make(map[int64]chan *Message),
	}
}

// ReadLoop reads client messages and dispatches them until the stream
// ends or ctx is cancelled.
//
// Description:
//
//	Requests and notifications go to handler. Responses to
//	server-initiated requests wake their pending callers. A message
//	that is neither is dropped with an InvalidRequest reply when it
//	carries an ID.
//
//	Cancellation is checked between messages only. A read parked on
//	the input stream is not interruptible, so after ctx is cancelled
//	the loop still exits only when the client closes the stream or
//	the next message arrives. Callers needing a hard stop must close
//	the underlying reader.
//
// Inputs:
//
//	ctx - Context for cancellation
//	handler - Consumer for requests and notifications
//
// Outputs:
//
//	error - ErrClientGone on EOF, nil after Close, the read error
//	otherwise
//
// Thread Safety: Must be called from a single goroutine.
func (c *Conn) ReadLoop(ctx context.Context, handler MessageHandler) error {
	if c.reader == nil {
		return fmt.Errorf("no reader configured")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, err := c.readMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 {
				return nil
			}
			if err == io.EOF {
				return ErrClientGone
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			// Can't correlate a reply without an ID; drop it.
			continue
		}

		if msg.IsResponse() {
			c.deliverResponse(&msg)
			continue
		}
		if msg.Method == "" {
			if len(msg.ID) > 0 {
				c.ReplyError(msg.ID, CodeInvalidRequest, "message has no method")
			}
			continue
		}
		handler(&msg)
	}
}

// readMessage reads one Content-Length framed body.
func (c *Conn) readMessage() ([]byte, error) {
	var contentLength int

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers.
		if line == "" {
			break
		}

		if strings.HasPrefix(line, "Content-Length:") {
			lenStr := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLength, err = strconv.Atoi(lenStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length value %q: %w", lenStr, err)
			}
			if contentLength < 0 {
				return nil, fmt.Errorf("negative Content-Length: %d", contentLength)
			}
		}
		// Ignore other headers (Content-Type, etc.)
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing or zero Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// deliverResponse routes a client response to its pending caller.
func (c *Conn) deliverResponse(msg *Message) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		// Server-initiated requests always use numeric IDs.
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Reply sends a successful response for the given request ID.
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Reply(id json.RawMessage, result any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnectionClosed
	}
	return c.writeMessage(Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	})
}

// ReplyError sends an error response for the given request ID.
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) ReplyError(id json.RawMessage, code int, message string) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnectionClosed
	}
	return c.writeMessage(Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	})
}

// Notify sends a notification to the client.
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Notify(method string, params any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnectionClosed
	}
	return c.writeMessage(Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

// Call sends a server-to-client request and waits for the response.
//
// Description:
//
//	Blocks until the client answers or ctx is cancelled. Used for
//	client-side operations such as workspace/applyEdit.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	method - The method to invoke
//	params - Method parameters (JSON-marshaled)
//
// Outputs:
//
//	json.RawMessage - The client's result payload
//	error - *RPCError if the client errored, ErrRequestCancelled on
//	ctx expiry, ErrConnectionClosed after Close
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrConnectionClosed
	}

	id := atomic.AddInt64(&c.nextID, 1)

	respCh := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.writeMessage(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRequestCancelled, ctx.Err())
	case resp := <-respCh:
		if resp == nil {
			return nil, ErrConnectionClosed
		}
		if resp.Error != nil {
			return nil, &RPCError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return resp.Result, nil
	}
}

// writeMessage marshals and writes a message with Content-Length header.
func (c *Conn) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := c.writer.Write([]byte(header)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Close marks the connection as closed.
//
// Description:
//
//	Prevents further sends and wakes all pending Call goroutines
//	with an error response. Does not close the underlying streams.
//
// Thread Safety: Safe for concurrent use.
func (c *Conn) Close() {
	atomic.StoreInt32(&c.closed, 1)

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		select {
		case ch <- &Message{
			JSONRPC: JSONRPCVersion,
			Error: &ResponseError{
				Code:    CodeConnectionClosed,
				Message: "connection closed",
			},
		}:
		default:
		}
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}
