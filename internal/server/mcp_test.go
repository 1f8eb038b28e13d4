// Copyright 2025 Joseph Cumines
//
// MCP server unit tests

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/config"
	"github.com/joeycumines/BrowserUseSDK/internal/link"
	"github.com/joeycumines/BrowserUseSDK/internal/transport"
)

// stubExecer records forwarded calls and plays back a canned response.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type stubExecer struct {
	connected bool
	content   json.RawMessage
	err       error

	calls []stubCall
}

type stubCall struct {
	tool string
	args json.RawMessage
}

func (s *stubExecer) Exec(ctx context.Context, tool string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	s.calls = append(s.calls, stubCall{tool: tool, args: args})
	if s.err != nil {
		return nil, s.err
	}
	return s.content, nil
}

func (s *stubExecer) Connected() bool { return s.connected }

func testConfig() *config.Config {
	return &config.Config{
		PortFilePath:     "/tmp/unused",
		RequestTimeout:   5 * time.Second,
		ReconnectBackoff: 500 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, execer *stubExecer) *MCPServer {
	t.Helper()
	audit, err := NewAuditLogger("")
	if err != nil {
		t.Fatal(err)
	}
	s := NewMCPServer(testConfig(), execer, audit)
	t.Cleanup(s.Shutdown)
	return s
}

// rpc serves one request through a full Serve loop and returns the decoded
// response.
func rpc(t *testing.T, s *MCPServer, request string) *transport.Message {
	t.Helper()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tr := transport.NewStdioTransport(stdinR, stdoutW)

	serveDone := make(chan error, 1)
	go func() { serveDone <- s.Serve(tr) }()

	go func() {
		stdinW.Write([]byte(request + "\n"))
	}()

	type res struct {
		msg *transport.Message
		err error
	}
	ch := make(chan res, 1)
	go func() {
		line, err := bufio.NewReader(stdoutR).ReadString('\n')
		if err != nil {
			ch <- res{nil, err}
			return
		}
		var msg transport.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			ch <- res{nil, err}
			return
		}
		ch <- res{&msg, nil}
	}()

	var response *transport.Message
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read response: %v", r.err)
		}
		response = r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	stdinW.Close()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not exit after stdin close")
	}
	stdoutR.Close()

	return response
}

// callResult decodes a tools/call response into its ToolResult.
func callResult(t *testing.T, msg *transport.Message) *ToolResult {
	t.Helper()
	if msg.Error != nil {
		t.Fatalf("got JSON-RPC error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	var result ToolResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	return &result
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t, &stubExecer{})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if resp.Error != nil {
		t.Fatalf("initialize error: %v", resp.Error)
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "browser-use-sdk" {
		t.Errorf("serverInfo.name = %q, want browser-use-sdk", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, &stubExecer{})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("tools/list error: %v", resp.Error)
	}

	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	names := make(map[string]bool, len(result.Tools))
	for _, tool := range result.Tools {
		names[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
		if tool.InputSchema == nil {
			t.Errorf("tool %s has no input schema", tool.Name)
		}
	}
	for _, want := range []string{
		"navigate", "click", "type_text", "read_page", "get_page_text",
		"list_tabs", "screenshot", "record_gif", "connection_status",
	} {
		if !names[want] {
			t.Errorf("tools/list missing %s", want)
		}
	}
}

func TestToolsCall_ForwardsToExtension(t *testing.T) {
	execer := &stubExecer{connected: true, content: json.RawMessage(`"navigated to https://example.com"`)}
	s := newTestServer(t, execer)

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"navigate","arguments":{"url":"https://example.com"}}}`)
	result := callResult(t, resp)

	if result.IsError {
		t.Fatalf("unexpected IsError result: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "navigated to https://example.com" {
		t.Errorf("content = %+v", result.Content)
	}

	if len(execer.calls) != 1 {
		t.Fatalf("execer calls = %d, want 1", len(execer.calls))
	}
	if execer.calls[0].tool != "navigate" {
		t.Errorf("forwarded tool = %q, want navigate", execer.calls[0].tool)
	}
	if !strings.Contains(string(execer.calls[0].args), "example.com") {
		t.Errorf("forwarded args = %s", execer.calls[0].args)
	}
}

func TestToolsCall_NotConnected(t *testing.T) {
	execer := &stubExecer{connected: false}
	s := newTestServer(t, execer)

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"list_tabs","arguments":{}}}`)
	result := callResult(t, resp)

	if !result.IsError {
		t.Fatal("expected IsError result against a disconnected bridge")
	}
	if !strings.Contains(result.Content[0].Text, "not connected") {
		t.Errorf("content = %q, want mention of not connected", result.Content[0].Text)
	}
	if len(execer.calls) != 0 {
		t.Errorf("nothing should be forwarded while disconnected, got %d calls", len(execer.calls))
	}
}

func TestToolsCall_ExtensionError(t *testing.T) {
	execer := &stubExecer{connected: true, err: &link.ToolError{Content: "element not found"}}
	s := newTestServer(t, execer)

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"click","arguments":{"selector":"#missing"}}}`)
	result := callResult(t, resp)

	if !result.IsError {
		t.Fatal("expected IsError result for extension error")
	}
	if result.Content[0].Text != "element not found" {
		t.Errorf("content = %q", result.Content[0].Text)
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, &stubExecer{connected: true})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"no_such_tool"}}`)
	if resp.Error == nil {
		t.Fatal("expected JSON-RPC error for unknown tool")
	}
	if resp.Error.Code != transport.ErrCodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, transport.ErrCodeMethodNotFound)
	}
}

func TestToolsCall_MissingRequiredField(t *testing.T) {
	execer := &stubExecer{connected: true}
	s := newTestServer(t, execer)

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"navigate","arguments":{"tab_id":3}}}`)
	if resp.Error == nil {
		t.Fatal("expected invalid params error when url is missing")
	}
	if resp.Error.Code != transport.ErrCodeInvalidParams {
		t.Errorf("code = %d, want %d", resp.Error.Code, transport.ErrCodeInvalidParams)
	}
	if len(execer.calls) != 0 {
		t.Error("invalid call must not be forwarded")
	}
}

func TestToolsCall_WrongFieldType(t *testing.T) {
	s := newTestServer(t, &stubExecer{connected: true})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"navigate","arguments":{"url":42}}}`)
	if resp.Error == nil {
		t.Fatal("expected invalid params error for non-string url")
	}
	if resp.Error.Code != transport.ErrCodeInvalidParams {
		t.Errorf("code = %d, want %d", resp.Error.Code, transport.ErrCodeInvalidParams)
	}
}

func TestToolsCall_EnumViolation(t *testing.T) {
	s := newTestServer(t, &stubExecer{connected: true})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"record_gif","arguments":{"action":"pause"}}}`)
	if resp.Error == nil {
		t.Fatal("expected invalid params error for enum violation")
	}
	if resp.Error.Code != transport.ErrCodeInvalidParams {
		t.Errorf("code = %d, want %d", resp.Error.Code, transport.ErrCodeInvalidParams)
	}
}

func TestToolsCall_ConnectionStatusIsLocal(t *testing.T) {
	execer := &stubExecer{connected: true}
	s := newTestServer(t, execer)

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"connection_status"}}`)
	result := callResult(t, resp)

	if result.IsError {
		t.Fatalf("unexpected IsError: %+v", result)
	}
	if !strings.Contains(result.Content[0].Text, "connected") {
		t.Errorf("content = %q", result.Content[0].Text)
	}
	if len(execer.calls) != 0 {
		t.Error("connection_status must not be forwarded to the extension")
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t, &stubExecer{})

	resp := rpc(t, s, `{"jsonrpc":"2.0","id":11,"method":"resources/list"}`)
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != transport.ErrCodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, transport.ErrCodeMethodNotFound)
	}
}

func TestHandlerValidation(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr string
	}{
		{"navigate bad scheme", "navigate", `{"url":"ftp://example.com"}`, "http(s)"},
		{"navigate empty url", "navigate", `{"url":""}`, "url is required"},
		{"click no target", "click", `{}`, "selector or element_index"},
		{"type_text missing text", "type_text", `{"selector":"#input"}`, "text is required"},
		{"read_page bad filter", "read_page", `{"filter":"everything"}`, "filter must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execer := &stubExecer{connected: true, content: json.RawMessage(`"ok"`)}
			s := newTestServer(t, execer)

			call := &ToolCall{Name: tt.tool, Arguments: json.RawMessage(tt.args)}
			result, err := s.tools[tt.tool].Handler(call)
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected IsError result, got %+v", result)
			}
			if !strings.Contains(result.Content[0].Text, tt.wantErr) {
				t.Errorf("content = %q, want mention of %q", result.Content[0].Text, tt.wantErr)
			}
			if len(execer.calls) != 0 {
				t.Error("invalid call must not be forwarded")
			}
		})
	}
}

func TestHandlerValidation_EmptyTextAllowed(t *testing.T) {
	execer := &stubExecer{connected: true, content: json.RawMessage(`"typed"`)}
	s := newTestServer(t, execer)

	call := &ToolCall{Name: "type_text", Arguments: json.RawMessage(`{"selector":"#input","text":""}`)}
	result, err := s.tools["type_text"].Handler(call)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("empty text should be allowed, got %+v", result)
	}
	if len(execer.calls) != 1 {
		t.Fatalf("call should be forwarded, got %d", len(execer.calls))
	}
}

func TestForward_Timeout(t *testing.T) {
	execer := &stubExecer{connected: true, err: link.ErrTimeout}
	s := newTestServer(t, execer)

	call := &ToolCall{Name: "screenshot", Arguments: json.RawMessage(`{}`)}
	result, err := s.tools["screenshot"].Handler(call)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError result for timeout")
	}
	if !strings.Contains(result.Content[0].Text, "timed out") {
		t.Errorf("content = %q", result.Content[0].Text)
	}
}
