// Copyright 2025 Joseph Cumines
//
// Socket-side diagnostic client. It only ever sends ping, never get_status:
// completing a handshake would make this connection the bridge's current
// link and sever a live extension session.

package main

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/wire"
)

// bridgeClient speaks to the tool-serving process over the loopback socket,
// taking the role the relay (and, transitively, the extension) normally plays.
type bridgeClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// dialBridge connects to the port published in the coordination file.
func dialBridge(port int, timeout time.Duration) (*bridgeClient, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &bridgeClient{conn: conn, r: bufio.NewReaderSize(conn, wire.MaxMessageSize+1024)}, nil
}

func (c *bridgeClient) close() { c.conn.Close() }

// send writes one message as a JSON line.
func (c *bridgeClient) send(msg *wire.Message) error {
	return wire.WriteJSONLine(c.conn, msg)
}

// recv reads the next message, bounded by deadline.
func (c *bridgeClient) recv(timeout time.Duration) (*wire.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read from bridge: %w", err)
	}
	msg, err := wire.Unmarshal(line)
	if err != nil {
		return nil, fmt.Errorf("malformed message from bridge: %w", err)
	}
	return msg, nil
}

// ping measures one ping/pong round trip.
func (c *bridgeClient) ping(timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	if err := c.send(wire.NewPing()); err != nil {
		return 0, err
	}
	for {
		msg, err := c.recv(timeout)
		if err != nil {
			return 0, err
		}
		if msg.Type == wire.TypePong {
			return time.Since(start), nil
		}
	}
}
