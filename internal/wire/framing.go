// Copyright 2025 Joseph Cumines
//
// Length-prefixed framing for the extension byte stream

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the ceiling on a single frame's JSON payload (1 MiB, per
// the Chrome native messaging protocol). A declared length above this is a
// protocol violation and fails the connection.
const MaxMessageSize = 1 << 20

// headerSize is the fixed little-endian uint32 length prefix.
const headerSize = 4

// ErrFrameTooLarge is returned when a frame's declared or actual payload
// length exceeds MaxMessageSize. It is fatal to the transport: the length
// field can no longer be trusted, so resynchronization is impossible.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum message size")

// EncodeFrame serializes msg and prepends the 4-byte little-endian length of
// the UTF-8 JSON payload.
func EncodeFrame(msg *Message) ([]byte, error) {
	payload, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// Decoder accumulates raw bytes from the stream and yields complete messages.
// It retains partial frames across Feed calls; a short read is backpressure,
// not an error.
//
// Decoder is not safe for concurrent use; it is owned by a single read loop.
type Decoder struct {
	buf []byte
}

// Feed appends newly arrived bytes to the accumulation buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports how many unconsumed bytes are retained.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next returns the next complete message, or (nil, nil) when fewer bytes than
// a full frame are buffered. ErrFrameTooLarge is fatal; a well-framed payload
// that fails to parse as JSON is consumed and reported, leaving the stream
// usable.
func (d *Decoder) Next() (*Message, error) {
	if len(d.buf) < headerSize {
		return nil, nil
	}
	length := binary.LittleEndian.Uint32(d.buf[:headerSize])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}
	total := headerSize + int(length)
	if len(d.buf) < total {
		return nil, nil
	}
	payload := d.buf[headerSize:total]
	msg, err := Unmarshal(payload)
	d.consume(total)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *Decoder) consume(n int) {
	if n >= len(d.buf) {
		d.buf = nil
		return
	}
	// Copy the tail down so consumed frames do not pin the backing array.
	remaining := len(d.buf) - n
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}

// ReadMessage blocks until one complete frame is read from r. Returns io.EOF
// when the stream ends cleanly at a frame boundary and io.ErrUnexpectedEOF
// when it ends mid-frame.
func ReadMessage(r io.Reader) (*Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: read frame header: %w", err)
	}
	length := binary.LittleEndian.Uint32(hdr[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return Unmarshal(payload)
}

// WriteMessage frames msg and writes it to w in a single Write call, so
// concurrent writers interleave at frame granularity at worst.
func WriteMessage(w io.Writer, msg *Message) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}
