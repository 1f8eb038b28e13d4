// Copyright 2025 Joseph Cumines
//
// Capture tool handlers

package server

import (
	"fmt"
)

// handleScreenshot handles the screenshot tool
func (s *MCPServer) handleScreenshot(call *ToolCall) (*ToolResult, error) {
	var params struct {
		TabID    int  `json:"tab_id"`
		FullPage bool `json:"full_page"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return s.forward(call)
}

// handleRecordGIF handles the record_gif tool
func (s *MCPServer) handleRecordGIF(call *ToolCall) (*ToolResult, error) {
	var params struct {
		Action string `json:"action"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if params.Action != "start" && params.Action != "stop" {
		return errorResultf("action must be one of [start, stop], got %q", params.Action), nil
	}

	return s.forward(call)
}
