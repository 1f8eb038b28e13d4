// Copyright 2025 Joseph Cumines

package relay

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
	"github.com/joeycumines/BrowserUseSDK/internal/wire"
)

// harness wires a relay to in-memory pipes standing in for the extension's
// byte stream and, optionally, the tool-serving socket.
type harness struct {
	relay *Relay

	// extension-side byte stream
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader

	runErr chan error
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	h := &harness{
		relay:   New(cfg, stdinR, stdoutW),
		stdinW:  stdinW,
		stdoutR: stdoutR,
		runErr:  make(chan error, 1),
	}
	go func() { h.runErr <- h.relay.Run() }()
	t.Cleanup(func() {
		h.relay.Close()
		stdinW.Close()
		stdoutR.Close()
	})
	return h
}

// sendFrame writes one framed message on the extension side.
func (h *harness) sendFrame(t *testing.T, msg *wire.Message) {
	t.Helper()
	if err := wire.WriteMessage(h.stdinW, msg); err != nil {
		t.Fatalf("write frame to relay: %v", err)
	}
}

// readFrame reads one framed message the relay wrote for the extension.
func (h *harness) readFrame(t *testing.T) *wire.Message {
	t.Helper()
	type res struct {
		msg *wire.Message
		err error
	}
	ch := make(chan res, 1)
	go func() {
		msg, err := wire.ReadMessage(h.stdoutR)
		ch <- res{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read frame from relay: %v", r.err)
		}
		return r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame from relay")
		return nil
	}
}

func (h *harness) waitExit(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit")
		return nil
	}
}

func missingPortFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "port")
}

func TestDirectModePong(t *testing.T) {
	h := newHarness(t, Config{PortFilePath: missingPortFile(t)})

	h.sendFrame(t, wire.NewPing())
	if msg := h.readFrame(t); msg.Type != wire.TypePong {
		t.Fatalf("got %s, want pong", msg.Type)
	}
}

func TestDirectModeHandshake(t *testing.T) {
	h := newHarness(t, Config{PortFilePath: missingPortFile(t)})

	h.sendFrame(t, wire.NewGetStatus())
	msg := h.readFrame(t)
	if msg.Type != wire.TypeStatusResponse {
		t.Fatalf("got %s, want status_response", msg.Type)
	}
	if msg.NativeHostInstalled == nil || !*msg.NativeHostInstalled {
		t.Errorf("nativeHostInstalled = %v, want true", msg.NativeHostInstalled)
	}
	if msg.MCPConnected == nil || *msg.MCPConnected {
		t.Errorf("mcpConnected = %v, want false", msg.MCPConnected)
	}

	// No mcp_connected may follow; the next frame on the stream must be the
	// pong for a subsequent ping.
	h.sendFrame(t, wire.NewPing())
	if msg := h.readFrame(t); msg.Type != wire.TypePong {
		t.Fatalf("got %s after degraded handshake, want pong", msg.Type)
	}
}

func TestDirectModeExitsOnStdinClose(t *testing.T) {
	h := newHarness(t, Config{PortFilePath: missingPortFile(t)})

	h.stdinW.Close()
	if err := h.waitExit(t); err != nil {
		t.Fatalf("Run = %v, want nil on stdin EOF", err)
	}
}

// socketServer hands the relay's dialer one end of a net.Pipe per accepted
// "connection" and exposes the server end to the test.
type socketServer struct {
	conns chan net.Conn
	// failures counts dial attempts to reject before succeeding.
	failures atomic.Int32
}

func newSocketServer(failures int) *socketServer {
	s := &socketServer{conns: make(chan net.Conn, 4)}
	s.failures.Store(int32(failures))
	return s
}

func (s *socketServer) dial(string) (net.Conn, error) {
	if s.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	server, client := net.Pipe()
	s.conns <- server
	return client, nil
}

func (s *socketServer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("relay never connected")
		return nil
	}
}

func writtenPortFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "port")
	if err := portfile.Write(path, 50555); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLine(t *testing.T, r *bufio.Reader) *wire.Message {
	t.Helper()
	type res struct {
		msg *wire.Message
		err error
	}
	ch := make(chan res, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		if err != nil {
			ch <- res{nil, err}
			return
		}
		msg, err := wire.Unmarshal(line)
		ch <- res{msg, err}
	}()
	select {
	case got := <-ch:
		if got.err != nil {
			t.Fatalf("read socket line: %v", got.err)
		}
		return got.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for socket line")
		return nil
	}
}

func TestBufferedMessagesFlushInOrder(t *testing.T) {
	srv := newSocketServer(2) // force two failed attempts first
	cfg := Config{
		PortFilePath: writtenPortFile(t),
		Backoff:      10 * time.Millisecond,
		dialFunc:     srv.dial,
	}
	h := newHarness(t, cfg)

	// Both arrive while the socket is still failing to open.
	h.sendFrame(t, wire.NewGetStatus())
	h.sendFrame(t, wire.NewToolResult("tok-1", json.RawMessage(`"ok"`)))

	conn := srv.accept(t)
	defer conn.Close()
	r := bufio.NewReader(conn)

	if msg := readLine(t, r); msg.Type != wire.TypeGetStatus {
		t.Fatalf("first flushed message = %s, want get_status", msg.Type)
	}
	msg := readLine(t, r)
	if msg.Type != wire.TypeToolResponse || msg.ClientID != "tok-1" {
		t.Fatalf("second flushed message = %+v, want tool_response tok-1", msg)
	}
}

func TestFlushFailureTriggersReconnect(t *testing.T) {
	srv := newSocketServer(0)
	buffered := make(chan struct{})
	var firstDial atomic.Bool
	cfg := Config{
		PortFilePath: writtenPortFile(t),
		Backoff:      10 * time.Millisecond,
		dialFunc: func(addr string) (net.Conn, error) {
			if firstDial.CompareAndSwap(false, true) {
				// Hold the first attempt until a message is queued, then hand
				// back a conn that is already dead so the backlog flush fails.
				<-buffered
				server, client := net.Pipe()
				server.Close()
				return client, nil
			}
			return srv.dial(addr)
		},
	}
	h := newHarness(t, cfg)

	h.sendFrame(t, wire.NewGetStatus())
	waitForQueued(t, h.relay, 1)
	close(buffered)

	// The failed flush must send the relay back to backoff with the backlog
	// intact, and the reconnect must deliver it.
	conn := srv.accept(t)
	defer conn.Close()
	if msg := readLine(t, bufio.NewReader(conn)); msg.Type != wire.TypeGetStatus {
		t.Fatalf("after flush failure got %s, want buffered get_status", msg.Type)
	}
}

// waitForQueued polls until at least n messages sit in the relay's backlog.
func waitForQueued(t *testing.T, r *Relay, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		queued := len(r.queue)
		r.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("message never buffered")
}

func TestSocketToByteStream(t *testing.T) {
	srv := newSocketServer(0)
	cfg := Config{
		PortFilePath: writtenPortFile(t),
		Backoff:      10 * time.Millisecond,
		dialFunc:     srv.dial,
	}
	h := newHarness(t, cfg)

	conn := srv.accept(t)
	defer conn.Close()

	req := wire.NewToolRequest("click", json.RawMessage(`{"x":1}`), "tok-2")
	if err := wire.WriteJSONLine(conn, req); err != nil {
		t.Fatalf("write socket line: %v", err)
	}

	msg := h.readFrame(t)
	if msg.Type != wire.TypeToolRequest {
		t.Fatalf("got %s, want tool_request", msg.Type)
	}
	if msg.Params == nil || msg.Params.ClientID != "tok-2" {
		t.Fatalf("params = %+v, want client_id tok-2", msg.Params)
	}
}

func TestReconnectAfterSocketDrop(t *testing.T) {
	srv := newSocketServer(0)
	cfg := Config{
		PortFilePath: writtenPortFile(t),
		Backoff:      10 * time.Millisecond,
		dialFunc:     srv.dial,
	}
	h := newHarness(t, cfg)

	first := srv.accept(t)
	first.Close() // drop the socket; the relay must retry

	// A message sent during the gap must survive it.
	h.sendFrame(t, wire.NewPing())

	second := srv.accept(t)
	defer second.Close()
	if msg := readLine(t, bufio.NewReader(second)); msg.Type != wire.TypePing {
		t.Fatalf("after reconnect got %s, want ping", msg.Type)
	}
}

func TestStdinCloseClosesSocketAndExits(t *testing.T) {
	srv := newSocketServer(0)
	cfg := Config{
		PortFilePath: writtenPortFile(t),
		Backoff:      10 * time.Millisecond,
		dialFunc:     srv.dial,
	}
	h := newHarness(t, cfg)

	conn := srv.accept(t)
	defer conn.Close()

	h.stdinW.Close()

	if err := h.waitExit(t); err != nil {
		t.Fatalf("Run = %v, want nil on stdin EOF", err)
	}
	// The socket side must observe the teardown.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("socket still open after byte stream closed")
	}
}

func TestOversizedFrameIsFatal(t *testing.T) {
	h := newHarness(t, Config{PortFilePath: missingPortFile(t)})

	// A length header above the ceiling, never followed by a payload.
	h.stdinW.Write([]byte{0xff, 0xff, 0xff, 0x7f})

	err := h.waitExit(t)
	if !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("Run = %v, want ErrFrameTooLarge", err)
	}
}
