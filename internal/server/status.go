// Copyright 2025 Joseph Cumines
//
// Connection status tool handler

package server

// handleConnectionStatus handles the connection_status tool. It is answered
// locally from bridge state; nothing is forwarded to the extension.
func (s *MCPServer) handleConnectionStatus(call *ToolCall) (*ToolResult, error) {
	if s.execer.Connected() {
		return textResult("Browser extension: connected"), nil
	}
	return textResult("Browser extension: not connected\nOpen the browser with the extension installed to establish the link."), nil
}
