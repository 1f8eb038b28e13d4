// Copyright 2025 Joseph Cumines
//
// Newline-delimited encoding for the message-oriented loopback hop

package wire

import (
	"fmt"
	"io"
)

// WriteJSONLine writes msg as one JSON document terminated by a newline, the
// unit of the loopback socket hop. The document and delimiter go out in a
// single Write call.
func WriteJSONLine(w io.Writer, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wire: write message line: %w", err)
	}
	return nil
}
