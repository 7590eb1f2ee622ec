// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush()
}

// Writer writes event-stream frames, flushing after each one when the
// underlying writer supports it (http.ResponseWriter does).
type Writer struct {
	w io.Writer
	f flusher
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(flusher)
	return &Writer{w: w, f: f}
}

// WriteChunk writes a single data frame for chunk.
func (sw *Writer) WriteChunk(chunk Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return sw.writeFrame(data)
}

// WriteDone writes the terminal sentinel frame.
func (sw *Writer) WriteDone() error {
	return sw.writeFrame([]byte(DoneSentinel))
}

func (sw *Writer) writeFrame(payload []byte) error {
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// Flush flushes buffered frames to the client.
func (sw *Writer) Flush() {
	if sw.f != nil {
		sw.f.Flush()
	}
}
