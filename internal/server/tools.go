// Copyright 2025 Joseph Cumines
//
// Tool registry

package server

// registerTools registers all available tools
func (s *MCPServer) registerTools() {
	s.tools = map[string]*Tool{
		"navigate": {
			Name:        "navigate",
			Description: "Navigate the active browser tab to a URL",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "Absolute URL to load",
					},
					"tab_id": map[string]interface{}{
						"type":        "integer",
						"description": "Target tab ID; defaults to the active tab",
					},
				},
				"required": []string{"url"},
			},
			Handler: s.handleNavigate,
		},
		"click": {
			Name:        "click",
			Description: "Click an element in the page",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"selector": map[string]interface{}{
						"type":        "string",
						"description": "CSS selector of the element to click",
					},
					"element_index": map[string]interface{}{
						"type":        "integer",
						"description": "Index from the most recent read_page, alternative to selector",
					},
				},
			},
			Handler: s.handleClick,
		},
		"type_text": {
			Name:        "type_text",
			Description: "Type text into an input element",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"selector": map[string]interface{}{
						"type":        "string",
						"description": "CSS selector of the target input",
					},
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Text to type",
					},
					"clear": map[string]interface{}{
						"type":        "boolean",
						"description": "Clear the input before typing",
					},
				},
				"required": []string{"text"},
			},
			Handler: s.handleTypeText,
		},
		"read_page": {
			Name:        "read_page",
			Description: "Read the accessibility tree of the current page",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tab_id": map[string]interface{}{
						"type":        "integer",
						"description": "Target tab ID; defaults to the active tab",
					},
					"filter": map[string]interface{}{
						"type":        "string",
						"description": "Optional filter",
						"enum":        []string{"interactive", "all"},
					},
				},
			},
			Handler: s.handleReadPage,
		},
		"get_page_text": {
			Name:        "get_page_text",
			Description: "Get the visible text content of the current page",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tab_id": map[string]interface{}{
						"type":        "integer",
						"description": "Target tab ID; defaults to the active tab",
					},
				},
			},
			Handler: s.handleGetPageText,
		},
		"list_tabs": {
			Name:        "list_tabs",
			Description: "List all open browser tabs",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: s.handleListTabs,
		},
		"screenshot": {
			Name:        "screenshot",
			Description: "Capture a screenshot of the current tab",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tab_id": map[string]interface{}{
						"type":        "integer",
						"description": "Target tab ID; defaults to the active tab",
					},
					"full_page": map[string]interface{}{
						"type":        "boolean",
						"description": "Capture the full scrollable page instead of the viewport",
					},
				},
			},
			Handler: s.handleScreenshot,
		},
		"record_gif": {
			Name:        "record_gif",
			Description: "Record a GIF of browser activity",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"description": "Recording control",
						"enum":        []string{"start", "stop"},
					},
				},
				"required": []string{"action"},
			},
			Handler: s.handleRecordGIF,
		},
		"connection_status": {
			Name:        "connection_status",
			Description: "Report whether the browser extension is connected",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: s.handleConnectionStatus,
		},
	}
}
