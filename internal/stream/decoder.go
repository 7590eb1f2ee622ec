// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrLineTooLong is returned when a single frame line exceeds the reader limit.
var ErrLineTooLong = errors.New("stream: frame line too long")

// DecodeError describes a frame whose payload could not be decoded.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: malformed frame %q: %v", preview(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns an event stream into content deltas.
type Decoder struct {
	reader *Reader
	done   bool

	// OnMalformed is called for every frame that is not valid chunk JSON.
	// Such frames are skipped and decoding continues.
	OnMalformed func(*DecodeError)
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: NewReader(r)}
}

// Next returns the next non-empty content delta in wire order.
//
// It returns io.EOF after the [DONE] sentinel or when the stream closes, and
// ctx.Err() when ctx is cancelled. Cancellation is checked between frames.
func (d *Decoder) Next(ctx context.Context) (string, error) {
	for {
		if d.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		data, err := d.reader.ReadEvent()
		if err != nil {
			// A cancelled request surfaces as a read error on the body
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}

		if bytes.Equal(bytes.TrimSpace(data), []byte(DoneSentinel)) {
			d.done = true
			return "", io.EOF
		}

		var frame deltaFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if d.OnMalformed != nil {
				d.OnMalformed(&DecodeError{Data: data, Err: err})
			}
			continue
		}

		if content := frame.content(); content != "" {
			return content, nil
		}
	}
}

// deltaFrame is the part of a chunk the decoder reads. Envelope fields such
// as id and created are not decoded, so their wire types do not matter.
type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (f *deltaFrame) content() string {
	if len(f.Choices) == 0 {
		return ""
	}
	return f.Choices[0].Delta.Content
}

// SawDone reports whether the terminal sentinel was received.
func (d *Decoder) SawDone() bool {
	return d.done
}

func preview(b []byte) string {
	const limit = 80
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
