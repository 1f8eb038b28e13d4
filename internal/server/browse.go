// Copyright 2025 Joseph Cumines
//
// Navigation and interaction tool handlers

package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// handleNavigate handles the navigate tool
func (s *MCPServer) handleNavigate(call *ToolCall) (*ToolResult, error) {
	var params struct {
		URL   string `json:"url"`
		TabID int    `json:"tab_id"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if params.URL == "" {
		return errorResult("url is required"), nil
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return errorResultf("url must be http(s), got %q", truncateText(params.URL)), nil
	}

	return s.forward(call)
}

// handleClick handles the click tool
func (s *MCPServer) handleClick(call *ToolCall) (*ToolResult, error) {
	var params struct {
		Selector     string `json:"selector"`
		ElementIndex *int   `json:"element_index"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if params.Selector == "" && params.ElementIndex == nil {
		return errorResult("either selector or element_index is required"), nil
	}

	return s.forward(call)
}

// handleTypeText handles the type_text tool
func (s *MCPServer) handleTypeText(call *ToolCall) (*ToolResult, error) {
	var params struct {
		Selector string  `json:"selector"`
		Text     *string `json:"text"`
		Clear    bool    `json:"clear"`
	}
	if err := parseArguments(call.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	// Empty text is a valid way to clear a field, but the key must be present.
	if params.Text == nil {
		return errorResult("text is required"), nil
	}

	return s.forward(call)
}

// parseArguments unmarshals tool arguments, treating absent arguments as an
// empty object.
func parseArguments(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}
