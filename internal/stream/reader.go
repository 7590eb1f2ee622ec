// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// SSE READER
// =============================================================================

// maxLineSize bounds a single frame line.
const maxLineSize = 1 << 20

// Reader parses Server-Sent Events from a stream.
type Reader struct {
	reader *bufio.Reader
}

// NewReader creates a new SSE reader from an io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		reader: bufio.NewReaderSize(r, 32*1024),
	}
}

// ReadEvent reads the next event from the stream and returns its data lines
// joined by newlines. Fields other than data (event:, id:, retry:) and
// comment lines starting with ':' are ignored.
// Returns io.EOF when the stream ends.
func (s *Reader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.readLine()
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		// Empty line terminates an event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := line[len("data:"):]
			// A single leading space belongs to the field separator.
			data = bytes.TrimPrefix(data, []byte(" "))
			dataLines = append(dataLines, data)
		}
	}
}

// readLine returns the next line without its terminator.
func (s *Reader) readLine() ([]byte, error) {
	var buf []byte
	for {
		part, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(buf)+len(part) > maxLineSize {
			return nil, ErrLineTooLong
		}
		buf = append(buf, part...)
		if !isPrefix {
			return buf, nil
		}
	}
}
