// Copyright 2025 Joseph Cumines
//
// Native host relay: bridges the extension's framed byte stream to the
// tool-serving process's loopback socket

// Package relay implements the short-lived process the browser launches for
// each extension connection. It decodes length-prefixed frames arriving on
// stdin, forwards the messages as newline-delimited JSON to the tool-serving
// process's loopback socket, and frames socket messages back onto stdout.
//
// The socket side reconnects with a fixed backoff while the byte stream is
// alive; messages arriving before the socket opens are buffered in arrival
// order and flushed on connect. When no port file exists the relay runs in a
// degraded direct mode, answering the extension's handshake locally so the
// extension can at least tell that the native host is installed.
package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/BrowserUseSDK/internal/link"
	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
	"github.com/joeycumines/BrowserUseSDK/internal/wire"
)

const (
	// DefaultBackoff is the fixed delay between socket connection attempts.
	DefaultBackoff = 500 * time.Millisecond
	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 2 * time.Second
)

// Config carries the relay's settings.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	// PortFilePath locates the coordination file written by the tool-serving
	// process. Required.
	PortFilePath string

	// Backoff between socket connection attempts. Zero means DefaultBackoff.
	Backoff time.Duration

	// DialTimeout for a single connection attempt. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// SkipPermissions is forwarded to the direct-mode handshake.
	SkipPermissions bool

	// dialFunc overrides socket dialing in tests.
	dialFunc func(addr string) (net.Conn, error)
}

// socketState drives the reconnect loop. The explicit state machine replaces
// retry-by-recursion: the backoff is a timer transition, not a new call stack.
type socketState int

const (
	stateConnecting socketState = iota
	stateOpen
	stateBackoff
)

// Relay bridges one extension connection. Construct with New, drive with Run;
// a Relay is single-use.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Relay struct {
	cfg    Config
	stdin  io.Reader
	stdout io.Writer

	// outMu serializes stdout frames.
	outMu sync.Mutex

	// mu guards conn, queue and direct.
	mu     sync.Mutex
	conn   net.Conn
	queue  []*wire.Message
	direct *link.Link

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a relay over the given byte-stream endpoints (os.Stdin and
// os.Stdout in production).
func New(cfg Config, stdin io.Reader, stdout io.Writer) *Relay {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Relay{
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan struct{}),
	}
}

// Run blocks until the byte stream closes, a fatal framing error occurs, or
// Close is called. It returns nil on a clean shutdown (stdin EOF).
func (r *Relay) Run() error {
	port, err := portfile.Read(r.cfg.PortFilePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		// No tool-serving process advertised. Serve the handshake locally so
		// the extension can probe installation state.
		log.Printf("relay: no port file at %s, answering handshake locally", r.cfg.PortFilePath)
		r.mu.Lock()
		r.direct = link.New(link.Config{
			Send:            r.writeFrame,
			SkipPermissions: r.cfg.SkipPermissions,
			Degraded:        true,
		})
		r.mu.Unlock()
		return r.pumpStdin()
	}

	var g errgroup.Group
	g.Go(func() error {
		return r.runSocket(port)
	})
	g.Go(func() error {
		// Stdin closing means the extension terminated the connection; tear
		// down the socket side so the other goroutine exits too.
		defer r.Close()
		return r.pumpStdin()
	})
	return g.Wait()
}

// Close tears down both sides of the relay. Idempotent and safe from any
// goroutine.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		conn := r.conn
		r.conn = nil
		r.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		if c, ok := r.stdin.(io.Closer); ok {
			c.Close()
		}
	})
}

func (r *Relay) closing() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// pumpStdin decodes frames from the byte stream until EOF. Malformed payloads
// in well-formed frames are dropped; a violated length field is fatal because
// the stream can no longer be resynchronized.
func (r *Relay) pumpStdin() error {
	var dec wire.Decoder
	buf := make([]byte, 32*1024)
	for {
		n, err := r.stdin.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				msg, derr := dec.Next()
				if derr != nil {
					if errors.Is(derr, wire.ErrFrameTooLarge) {
						return fmt.Errorf("relay: fatal framing error: %w", derr)
					}
					log.Printf("relay: dropping malformed frame: %v", derr)
					continue
				}
				if msg == nil {
					break
				}
				r.forward(msg)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || r.closing() {
				log.Println("relay: byte stream closed")
				return nil
			}
			return fmt.Errorf("relay: read byte stream: %w", err)
		}
	}
}

// forward hands one decoded message to the socket side, buffering in FIFO
// order while the socket is not open. Called only from the stdin pump, so
// ordering is inherent.
func (r *Relay) forward(msg *wire.Message) {
	r.mu.Lock()
	if r.direct != nil {
		lk := r.direct
		r.mu.Unlock()
		lk.HandleMessage(msg)
		return
	}
	conn := r.conn
	if conn == nil {
		r.queue = append(r.queue, msg)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := wire.WriteJSONLine(conn, msg); err != nil {
		// The reconnect loop will notice the broken socket; keep the message
		// so the FIFO survives the gap.
		log.Printf("relay: socket write failed, buffering message: %v", err)
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.queue = append(r.queue, msg)
		r.mu.Unlock()
		conn.Close()
	}
}

// runSocket owns the message-oriented side: connecting -> open -> backoff ->
// connecting, until the relay closes.
func (r *Relay) runSocket(port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	state := stateConnecting
	var conn net.Conn
	for {
		if r.closing() {
			return nil
		}
		switch state {
		case stateConnecting:
			c, err := r.dial(addr)
			if err != nil {
				log.Printf("relay: connect %s: %v", addr, err)
				state = stateBackoff
				continue
			}
			if err := r.attach(c); err != nil {
				// The conn failed before it carried anything; the backlog is
				// intact, so retry as if the dial had failed.
				log.Printf("relay: %v", err)
				c.Close()
				state = stateBackoff
				continue
			}
			log.Printf("relay: connected to %s", addr)
			conn = c
			state = stateOpen
		case stateOpen:
			err := r.pumpSocket(conn)
			r.detach(conn)
			conn.Close()
			conn = nil
			if r.closing() {
				return nil
			}
			log.Printf("relay: socket closed (%v), reconnecting", err)
			state = stateBackoff
		case stateBackoff:
			select {
			case <-time.After(r.cfg.Backoff):
				state = stateConnecting
			case <-r.done:
				return nil
			}
		}
	}
}

func (r *Relay) dial(addr string) (net.Conn, error) {
	if r.cfg.dialFunc != nil {
		return r.cfg.dialFunc(addr)
	}
	return net.DialTimeout("tcp", addr, r.cfg.DialTimeout)
}

// attach flushes the buffered backlog in arrival order and installs the open
// socket. A flush failure leaves the conn uninstalled and the remaining
// backlog queued, and the caller must discard the conn. Holding mu across the
// flush keeps newly decoded messages behind the backlog.
func (r *Relay) attach(conn net.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) > 0 {
		if err := wire.WriteJSONLine(conn, r.queue[0]); err != nil {
			return fmt.Errorf("flush buffered message: %w", err)
		}
		r.queue = r.queue[1:]
	}
	r.conn = conn
	return nil
}

func (r *Relay) detach(conn net.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
}

// pumpSocket reads newline-delimited messages from the socket and frames them
// onto the byte stream immediately. Returns when the socket closes or errors.
func (r *Relay) pumpSocket(conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), wire.MaxMessageSize+1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msg, err := wire.Unmarshal(line)
		if err != nil {
			log.Printf("relay: dropping malformed socket message: %v", err)
			continue
		}
		if err := r.writeFrame(msg); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// writeFrame frames one message onto the byte-stream output.
func (r *Relay) writeFrame(msg *wire.Message) error {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	return wire.WriteMessage(r.stdout, msg)
}
