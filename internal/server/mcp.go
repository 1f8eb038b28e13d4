// Copyright 2025 Joseph Cumines
//
// MCP server implementation

// Package server exposes the browser tool surface over MCP (JSON-RPC 2.0 on
// stdio). Tool handlers validate their arguments locally and forward the call
// through the bridge to the extension; the server itself never interprets tool
// output beyond wrapping it as text content.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/config"
	"github.com/joeycumines/BrowserUseSDK/internal/transport"
)

// Execer is the bridge contract the tool handlers depend on.
type Execer interface {
	// Exec forwards one tool call to the extension and returns its content.
	Exec(ctx context.Context, tool string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	// Connected reports whether a handshaken extension link exists.
	Connected() bool
}

// MCPServer represents an MCP server
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type MCPServer struct {
	execer Execer
	audit  *AuditLogger
	ctx    context.Context
	cfg    *config.Config
	tools  map[string]*Tool
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// Tool represents an MCP tool
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Tool struct {
	Handler     func(*ToolCall) (*ToolResult, error)
	InputSchema map[string]interface{}
	Name        string
	Description string
}

// ToolCall represents a tool call request
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents a tool call result
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents a content item in a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewMCPServer creates a new MCP server forwarding tool calls through execer.
func NewMCPServer(cfg *config.Config, execer Execer, audit *AuditLogger) *MCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &MCPServer{
		cfg:    cfg,
		execer: execer,
		audit:  audit,
		ctx:    ctx,
		cancel: cancel,
		tools:  make(map[string]*Tool),
	}

	s.registerTools()

	return s
}

// Shutdown gracefully shuts down the server
func (s *MCPServer) Shutdown() {
	s.cancel()
	log.Println("Shutting down MCP server...")
}

// Serve starts serving MCP requests
func (s *MCPServer) Serve(tr *transport.StdioTransport) error {
	log.Println("MCP server starting...")

	for {
		select {
		case <-s.ctx.Done():
			log.Println("MCP server stopping (context cancelled)")
			return nil
		default:
			msg, err := tr.ReadMessage()
			if err != nil {
				if strings.Contains(err.Error(), "stdin closed") {
					log.Println("MCP server stopping (EOF)")
					return nil
				}
				log.Printf("Error reading message: %v", err)
				continue
			}

			go s.handleMessage(tr, msg)
		}
	}
}

// handleMessage handles a single MCP message
func (s *MCPServer) handleMessage(tr *transport.StdioTransport, msg *transport.Message) {
	// Handle initialize request
	if msg.Method == "initialize" {
		response := &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  []byte(`{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"browser-use-sdk","version":"0.1.0"}}`),
		}
		if err := tr.WriteMessage(response); err != nil {
			log.Printf("Error writing response: %v", err)
		}
		return
	}

	// Handle list_tools request
	if msg.Method == "tools/list" {
		s.mu.RLock()
		tools := make([]map[string]interface{}, 0, len(s.tools))
		for _, tool := range s.tools {
			tools = append(tools, map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"inputSchema": tool.InputSchema,
			})
		}
		s.mu.RUnlock()

		result, _ := json.Marshal(map[string]interface{}{"tools": tools})
		response := &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  result,
		}
		if err := tr.WriteMessage(response); err != nil {
			log.Printf("Error writing response: %v", err)
		}
		return
	}

	// Handle tool call request
	if msg.Method == "tools/call" {
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			response := &transport.Message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error: &transport.ErrorObj{
					Code:    transport.ErrCodeInvalidRequest,
					Message: fmt.Sprintf("Invalid request: %v", err),
				},
			}
			tr.WriteMessage(response)
			return
		}

		s.mu.RLock()
		tool, exists := s.tools[params.Name]
		s.mu.RUnlock()

		if !exists {
			response := &transport.Message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error: &transport.ErrorObj{
					Code:    transport.ErrCodeMethodNotFound,
					Message: fmt.Sprintf("Tool not found: %s", params.Name),
				},
			}
			tr.WriteMessage(response)
			return
		}

		// Validate arguments against the tool's schema before dispatch.
		if len(params.Arguments) > 0 {
			var args map[string]any
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				response := invalidParamsError(fmt.Sprintf("arguments must be an object: %v", err))
				response.ID = msg.ID
				tr.WriteMessage(response)
				return
			}
			s.mu.RLock()
			validationErr := validateToolInput(params.Name, args, s.tools)
			s.mu.RUnlock()
			if validationErr != nil {
				validationErr.ID = msg.ID
				tr.WriteMessage(validationErr)
				return
			}
		}

		// Call the tool handler
		result, err := tool.Handler(&ToolCall{
			Name:      params.Name,
			Arguments: params.Arguments,
		})

		if err != nil {
			response := &transport.Message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error: &transport.ErrorObj{
					Code:    transport.ErrCodeInternalError,
					Message: err.Error(),
				},
			}
			tr.WriteMessage(response)
			return
		}

		// Format the result as content array
		resultMap := map[string]interface{}{
			"content": result.Content,
		}
		if result.IsError {
			resultMap["isError"] = true
		}

		resultBytes, _ := json.Marshal(resultMap)
		response := &transport.Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  resultBytes,
		}
		if err := tr.WriteMessage(response); err != nil {
			log.Printf("Error writing response: %v", err)
		}
		return
	}

	// Handle unknown method
	response := &transport.Message{
		JSONRPC: "2.0",
		ID:      msg.ID,
		Error: &transport.ErrorObj{
			Code:    transport.ErrCodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", msg.Method),
		},
	}
	tr.WriteMessage(response)
}
