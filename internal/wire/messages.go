// Copyright 2025 Joseph Cumines
//
// Message types exchanged between the browser extension, the native host
// relay, and the tool-serving process

// Package wire defines the bridge protocol: a closed set of JSON messages and
// the length-prefixed framing used to carry them on the extension's byte
// stream. The same Message values travel both hops; only the outer encoding
// differs (frames on stdio, one JSON document per line on the loopback socket).
package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the bridge protocol messages.
type MessageType string

// The complete set of message types. The dispatchers in link and relay switch
// exhaustively over these; adding a type here requires updating them.
const (
	// TypePing is a liveness probe from the extension.
	TypePing MessageType = "ping"
	// TypePong answers a ping.
	TypePong MessageType = "pong"
	// TypeGetStatus asks for the host's connection state; the first one also
	// completes the handshake.
	TypeGetStatus MessageType = "get_status"
	// TypeStatusResponse answers get_status.
	TypeStatusResponse MessageType = "status_response"
	// TypeMCPConnected signals that the serving side accepts tool calls.
	TypeMCPConnected MessageType = "mcp_connected"
	// TypeSetSkipPermissions propagates the permission-bypass flag negotiated
	// at startup.
	TypeSetSkipPermissions MessageType = "set_skip_permissions"
	// TypeToolRequest invokes a named tool in the extension.
	TypeToolRequest MessageType = "tool_request"
	// TypeToolResponse reports the outcome of a tool request.
	TypeToolResponse MessageType = "tool_response"
)

// ExecuteToolMethod is the method carried by every tool_request.
const ExecuteToolMethod = "execute_tool"

// Message is the tagged union over all bridge protocol messages. Only the
// fields belonging to Type are populated; everything else stays nil and is
// omitted from the encoded JSON.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Message struct {
	Type MessageType `json:"type"`

	// status_response fields. Pointers so that explicit false survives
	// serialization.
	NativeHostInstalled *bool `json:"nativeHostInstalled,omitempty"`
	MCPConnected        *bool `json:"mcpConnected,omitempty"`

	// set_skip_permissions field.
	Value *bool `json:"value,omitempty"`

	// tool_request fields.
	Method string      `json:"method,omitempty"`
	Params *ToolParams `json:"params,omitempty"`

	// tool_response fields. ClientID mirrors the request's correlation token
	// so responses can be matched in a map; extensions that omit it are still
	// handled for single-flight callers.
	ClientID string       `json:"client_id,omitempty"`
	Result   *ToolOutcome `json:"result,omitempty"`
	Error    *ToolOutcome `json:"error,omitempty"`
}

// ToolParams carries the tool invocation inside a tool_request.
type ToolParams struct {
	Tool     string          `json:"tool"`
	Args     json.RawMessage `json:"args,omitempty"`
	ClientID string          `json:"client_id"`
}

// ToolOutcome is the result or error body of a tool_response. Content is
// opaque to the bridge; the extension decides its shape.
type ToolOutcome struct {
	Content json.RawMessage `json:"content,omitempty"`
}

// NewPing returns a ping message.
func NewPing() *Message { return &Message{Type: TypePing} }

// NewPong returns a pong message.
func NewPong() *Message { return &Message{Type: TypePong} }

// NewGetStatus returns a get_status message.
func NewGetStatus() *Message { return &Message{Type: TypeGetStatus} }

// NewStatusResponse returns a status_response message.
func NewStatusResponse(nativeHostInstalled, mcpConnected bool) *Message {
	return &Message{
		Type:                TypeStatusResponse,
		NativeHostInstalled: &nativeHostInstalled,
		MCPConnected:        &mcpConnected,
	}
}

// NewMCPConnected returns an mcp_connected message.
func NewMCPConnected() *Message { return &Message{Type: TypeMCPConnected} }

// NewSetSkipPermissions returns a set_skip_permissions message.
func NewSetSkipPermissions(value bool) *Message {
	return &Message{Type: TypeSetSkipPermissions, Value: &value}
}

// NewToolRequest returns a tool_request carrying the correlation token
// clientID.
func NewToolRequest(tool string, args json.RawMessage, clientID string) *Message {
	return &Message{
		Type:   TypeToolRequest,
		Method: ExecuteToolMethod,
		Params: &ToolParams{Tool: tool, Args: args, ClientID: clientID},
	}
}

// NewToolResult returns a successful tool_response mirroring clientID.
func NewToolResult(clientID string, content json.RawMessage) *Message {
	return &Message{
		Type:     TypeToolResponse,
		ClientID: clientID,
		Result:   &ToolOutcome{Content: content},
	}
}

// NewToolError returns a failed tool_response mirroring clientID.
func NewToolError(clientID string, content json.RawMessage) *Message {
	return &Message{
		Type:     TypeToolResponse,
		ClientID: clientID,
		Error:    &ToolOutcome{Content: content},
	}
}

// Marshal serializes the message as a single JSON document.
func (m *Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s message: %w", m.Type, err)
	}
	return data, nil
}

// Unmarshal parses a single JSON document into a Message. Unknown type
// discriminators are not an error here; dispatchers log and ignore them to
// preserve liveness.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("wire: unmarshal message: %w", err)
	}
	return &msg, nil
}
