// Copyright 2025 Joseph Cumines
//
// Per-connection state machine and request/response correlator

// Package link implements one logical connection to a browser extension: the
// connection handshake, and the correlator that matches tool responses back to
// their callers. A Link is constructed per transport connection and discarded
// when it closes; there are no process-wide singletons.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeycumines/BrowserUseSDK/internal/wire"
)

// DefaultExecTimeout bounds a tool call when the caller does not supply a
// timeout of its own.
const DefaultExecTimeout = 30 * time.Second

// State is the link lifecycle state.
type State int

const (
	// StateDisconnected means the transport is gone and the link is dead.
	StateDisconnected State = iota
	// StateAwaitingHandshake means the transport is open but the extension has
	// not yet sent its first get_status.
	StateAwaitingHandshake
	// StateConnected means the handshake completed and tool calls may flow.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateConnected:
		return "connected"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Config carries the per-link settings fixed at construction.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	// Send transmits one message to the extension side of this link. Required.
	Send func(*wire.Message) error

	// SkipPermissions, when set, is propagated to the extension during the
	// handshake via set_skip_permissions.
	SkipPermissions bool

	// Degraded marks a link with no tool-serving process behind it. get_status
	// is answered with mcpConnected=false and the handshake never completes, so
	// the extension can probe installation state without being offered tool
	// calls.
	Degraded bool

	// ExecTimeout is the default tool-call budget. Zero means
	// DefaultExecTimeout.
	ExecTimeout time.Duration

	// OnConnected fires once per link, after the handshake completes.
	OnConnected func()

	// OnDisconnected fires once per link, after Close tears it down.
	OnDisconnected func()
}

// Link owns the handshake state, the pending-request map, and nothing else.
// All mutation happens under one mutex; Send is always invoked outside it.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Link struct {
	cfg     Config
	mu      sync.Mutex
	state   State
	pending map[string]chan execResult
}

type execResult struct {
	content json.RawMessage
	err     error
}

// New creates a Link for a freshly opened transport. The link starts in
// awaiting_handshake; the extension's first get_status completes it.
func New(cfg Config) *Link {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	return &Link{
		cfg:     cfg,
		state:   StateAwaitingHandshake,
		pending: make(map[string]chan execResult),
	}
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HandleMessage dispatches one inbound message. Unknown or out-of-place
// message types are logged and ignored so a confused peer cannot kill the
// connection.
func (l *Link) HandleMessage(msg *wire.Message) {
	switch msg.Type {
	case wire.TypePing:
		// Liveness probe; answered in every state.
		if err := l.cfg.Send(wire.NewPong()); err != nil {
			log.Printf("link: send pong: %v", err)
		}
	case wire.TypeGetStatus:
		l.handleGetStatus()
	case wire.TypeToolResponse:
		l.handleToolResponse(msg)
	case wire.TypePong, wire.TypeStatusResponse, wire.TypeMCPConnected,
		wire.TypeSetSkipPermissions, wire.TypeToolRequest:
		// Host-originated types have no business arriving here.
		log.Printf("link: ignoring unexpected %s message", msg.Type)
	default:
		log.Printf("link: ignoring unknown message type %q", msg.Type)
	}
}

// handleGetStatus answers a status query and, on the first one, completes the
// handshake. Repeat queries are idempotent: status_response only, no second
// mcp_connected.
func (l *Link) handleGetStatus() {
	l.mu.Lock()
	if l.state == StateDisconnected {
		l.mu.Unlock()
		return
	}
	if l.cfg.Degraded {
		l.mu.Unlock()
		if err := l.cfg.Send(wire.NewStatusResponse(true, false)); err != nil {
			log.Printf("link: send status_response: %v", err)
		}
		return
	}
	completing := l.state == StateAwaitingHandshake
	if completing {
		l.state = StateConnected
	}
	l.mu.Unlock()

	if err := l.cfg.Send(wire.NewStatusResponse(true, true)); err != nil {
		log.Printf("link: send status_response: %v", err)
		return
	}
	if !completing {
		return
	}
	if l.cfg.SkipPermissions {
		if err := l.cfg.Send(wire.NewSetSkipPermissions(true)); err != nil {
			log.Printf("link: send set_skip_permissions: %v", err)
		}
	}
	if err := l.cfg.Send(wire.NewMCPConnected()); err != nil {
		log.Printf("link: send mcp_connected: %v", err)
	}
	if l.cfg.OnConnected != nil {
		l.cfg.OnConnected()
	}
}

// handleToolResponse resolves the matching pending request. Matching is by
// correlation token; a response without a token falls back to the single
// outstanding request when exactly one is pending, which keeps legacy
// single-flight extensions working. Anything unmatched (late, duplicate,
// unknown token) is discarded without effect.
func (l *Link) handleToolResponse(msg *wire.Message) {
	l.mu.Lock()
	var ch chan execResult
	switch {
	case msg.ClientID != "":
		if c, ok := l.pending[msg.ClientID]; ok {
			ch = c
			delete(l.pending, msg.ClientID)
		}
	case len(l.pending) == 1:
		for id, c := range l.pending {
			ch = c
			delete(l.pending, id)
		}
	}
	l.mu.Unlock()

	if ch == nil {
		log.Printf("link: discarding unmatched tool response (client_id=%q)", msg.ClientID)
		return
	}

	if msg.Error != nil {
		ch <- execResult{err: &ToolError{Content: contentString(msg.Error.Content)}}
		return
	}
	content := json.RawMessage("null")
	if msg.Result != nil && len(msg.Result.Content) > 0 {
		content = msg.Result.Content
	}
	ch <- execResult{content: content}
}

// Exec invokes a named tool in the extension and blocks until its response,
// its timeout, or link teardown. The returned error is ErrNotConnected,
// ErrTimeout, ErrClosed, a *ToolError, or a send failure; a caller always gets
// exactly one resolution and never hangs past the timeout.
func (l *Link) Exec(ctx context.Context, tool string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = l.cfg.ExecTimeout
	}

	l.mu.Lock()
	if l.state != StateConnected {
		l.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan execResult, 1)
	l.pending[id] = ch
	l.mu.Unlock()

	if err := l.cfg.Send(wire.NewToolRequest(tool, args, id)); err != nil {
		l.abandon(id)
		return nil, fmt.Errorf("link: send tool request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.content, res.err
	case <-timer.C:
		l.abandon(id)
		// A response may have been delivered between the timer firing and the
		// entry being removed; prefer it over the timeout.
		select {
		case res := <-ch:
			return res.content, res.err
		default:
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, tool, timeout)
	case <-ctx.Done():
		l.abandon(id)
		select {
		case res := <-ch:
			return res.content, res.err
		default:
		}
		return nil, ctx.Err()
	}
}

// abandon removes a pending entry so a late response is unmatched rather than
// dangling.
func (l *Link) abandon(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// Close tears the link down: state goes to disconnected, every pending request
// is rejected with ErrClosed, and OnDisconnected fires. Idempotent. There is
// no way back; a new handshake requires a new transport and a new Link.
func (l *Link) Close(reason error) {
	l.mu.Lock()
	if l.state == StateDisconnected {
		l.mu.Unlock()
		return
	}
	l.state = StateDisconnected
	rejected := l.pending
	l.pending = make(map[string]chan execResult)
	l.mu.Unlock()

	err := ErrClosed
	if reason != nil {
		err = fmt.Errorf("%w: %v", ErrClosed, reason)
	}
	for _, ch := range rejected {
		ch <- execResult{err: err}
	}
	if l.cfg.OnDisconnected != nil {
		l.cfg.OnDisconnected()
	}
}

// contentString renders a tool error body as a human-readable string: JSON
// strings are unquoted, anything else is passed through as compact JSON.
func contentString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "tool error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
