// Copyright 2025 Joseph Cumines
//
// Loopback endpoint of the tool-serving process

// Package bridge implements the tool-serving side of the extension link: a
// loopback TCP listener whose address is published through the port file, one
// Link per relay connection, and the Exec contract the MCP tool surface calls
// into. A connection becomes the current link only once its handshake
// completes; a newly handshaken connection supersedes the previous one, while
// connections that never handshake (bare dials, ping-only diagnostics) leave
// the current link undisturbed.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/link"
	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
	"github.com/joeycumines/BrowserUseSDK/internal/wire"
)

// Config carries the bridge's settings.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	// PortFilePath is where the listener's port is published. Required.
	PortFilePath string

	// SkipPermissions is propagated to the extension during each handshake.
	SkipPermissions bool

	// ExecTimeout is the default tool-call budget.
	ExecTimeout time.Duration
}

// Bridge accepts relay connections and exposes the exec contract.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Bridge struct {
	cfg     Config
	metrics *Metrics

	mu        sync.Mutex
	ln        net.Listener
	port      int
	lk        *link.Link
	conn      net.Conn
	connected chan struct{} // closed while a handshaken link exists
	closed    bool
}

// New creates a bridge. Call Listen before Serve.
func New(cfg Config) *Bridge {
	return &Bridge{
		cfg:       cfg,
		metrics:   NewMetrics(),
		connected: make(chan struct{}),
	}
}

// Listen binds an OS-assigned loopback port and publishes it in the port
// file.
func (b *Bridge) Listen() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bridge: listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := portfile.Write(b.cfg.PortFilePath, port); err != nil {
		ln.Close()
		return err
	}

	b.mu.Lock()
	b.ln = ln
	b.port = port
	b.mu.Unlock()

	log.Printf("bridge: listening on 127.0.0.1:%d (port file %s)", port, b.cfg.PortFilePath)
	return nil
}

// Port returns the bound port. Valid after Listen.
func (b *Bridge) Port() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port
}

// Metrics returns the bridge's metrics registry.
func (b *Bridge) Metrics() *Metrics { return b.metrics }

// Serve accepts relay connections until the listener closes. Each connection
// gets its own Link; transport failures tear down that Link only, never the
// process.
func (b *Bridge) Serve() error {
	b.mu.Lock()
	ln := b.ln
	b.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("bridge: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("bridge: accept: %w", err)
		}
		go b.handleConn(conn)
	}
}

// handleConn owns one relay connection for its lifetime.
func (b *Bridge) handleConn(conn net.Conn) {
	log.Printf("bridge: relay connected from %s", conn.RemoteAddr())

	var writeMu sync.Mutex
	var lk *link.Link
	lk = link.New(link.Config{
		Send: func(msg *wire.Message) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			b.metrics.CountMessage(string(msg.Type), "out")
			return wire.WriteJSONLine(conn, msg)
		},
		SkipPermissions: b.cfg.SkipPermissions,
		ExecTimeout:     b.cfg.ExecTimeout,
		// Only a completed handshake promotes this connection to current
		// link, so probes that never handshake cannot sever a live one.
		OnConnected: func() { b.install(lk, conn) },
	})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), wire.MaxMessageSize+1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := wire.Unmarshal(line)
		if err != nil {
			log.Printf("bridge: dropping malformed message: %v", err)
			continue
		}
		b.metrics.CountMessage(string(msg.Type), "in")
		lk.HandleMessage(msg)
	}
	err := scanner.Err()
	if err != nil {
		log.Printf("bridge: relay connection error: %v", err)
	} else {
		log.Println("bridge: relay disconnected")
	}

	lk.Close(err)
	conn.Close()

	b.mu.Lock()
	wasCurrent := b.lk == lk
	if wasCurrent {
		b.lk, b.conn = nil, nil
		b.resetConnectedLocked()
	}
	b.mu.Unlock()
	if wasCurrent {
		b.metrics.SetLinksConnected(0)
	}
}

// install makes a freshly handshaken link the current one, superseding any
// previous connection.
func (b *Bridge) install(lk *link.Link, conn net.Conn) {
	b.mu.Lock()
	prevLk, prevConn := b.lk, b.conn
	b.lk, b.conn = lk, conn
	select {
	case <-b.connected:
		// already signalled
	default:
		close(b.connected)
	}
	b.mu.Unlock()

	if prevLk != nil {
		log.Println("bridge: superseding previous relay connection")
		prevLk.Close(fmt.Errorf("superseded by new relay connection"))
		prevConn.Close()
	}
	b.metrics.SetLinksConnected(1)
}

// resetConnectedLocked re-arms the WaitConnected channel. Caller holds mu.
func (b *Bridge) resetConnectedLocked() {
	select {
	case <-b.connected:
		b.connected = make(chan struct{})
	default:
	}
}

// Connected reports whether a handshaken extension link exists right now.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	lk := b.lk
	b.mu.Unlock()
	return lk != nil && lk.State() == link.StateConnected
}

// WaitConnected blocks until an extension link completes its handshake or ctx
// expires.
func (b *Bridge) WaitConnected(ctx context.Context) error {
	b.mu.Lock()
	ch := b.connected
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exec forwards one tool call over the current link. Fails immediately with
// link.ErrNotConnected when no handshaken link exists.
func (b *Bridge) Exec(ctx context.Context, tool string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	b.mu.Lock()
	lk := b.lk
	b.mu.Unlock()
	if lk == nil {
		return nil, link.ErrNotConnected
	}

	start := time.Now()
	content, err := lk.Exec(ctx, tool, args, timeout)
	b.metrics.ObserveToolRequest(execStatus(err), time.Since(start))
	return content, err
}

func execStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	default:
		return "error"
	}
}

// Close stops the listener, tears down the current link, and removes the port
// file. Safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ln := b.ln
	lk, conn := b.lk, b.conn
	b.lk, b.conn = nil, nil
	b.resetConnectedLocked()
	b.mu.Unlock()

	if lk != nil {
		lk.Close(fmt.Errorf("bridge shutting down"))
	}
	if conn != nil {
		conn.Close()
	}
	var err error
	if ln != nil {
		err = ln.Close()
	}
	if rmErr := portfile.Remove(b.cfg.PortFilePath); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
