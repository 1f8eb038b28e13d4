// Copyright 2025 Joseph Cumines
//
// Typed errors for the exec contract

package link

import "errors"

var (
	// ErrNotConnected is returned by Exec when the link has not completed the
	// handshake. Callers must not queue work against a disconnected link.
	ErrNotConnected = errors.New("link: not connected")

	// ErrTimeout is returned by Exec when no matching response arrives within
	// the request's timeout budget.
	ErrTimeout = errors.New("link: tool request timed out")

	// ErrClosed rejects pending requests when the link's transport closes or
	// errors before their responses arrive.
	ErrClosed = errors.New("link: closed")
)

// ToolError carries a failure reported by the extension itself. The bridge
// does not interpret or retry it; the content is surfaced verbatim.
type ToolError struct {
	Content string
}

func (e *ToolError) Error() string { return e.Content }
