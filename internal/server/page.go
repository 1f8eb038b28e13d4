// Copyright 2025 Joseph Cumines
//
// Page inspection tool handlers

package server

import (
	"fmt"
)

// handleReadPage handles the read_page tool
func (s *MCPServer) handleReadPage(call *ToolCall) (*ToolResult, error) {
	var params struct {
		TabID  int    `json:"tab_id"`
		Filter string `json:"filter"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if params.Filter != "" && params.Filter != "interactive" && params.Filter != "all" {
		return errorResultf("filter must be one of [interactive, all], got %q", params.Filter), nil
	}

	return s.forward(call)
}

// handleGetPageText handles the get_page_text tool
func (s *MCPServer) handleGetPageText(call *ToolCall) (*ToolResult, error) {
	var params struct {
		TabID int `json:"tab_id"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return s.forward(call)
}

// handleListTabs handles the list_tabs tool
func (s *MCPServer) handleListTabs(call *ToolCall) (*ToolResult, error) {
	return s.forward(call)
}
