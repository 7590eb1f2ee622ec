// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/jeranaias/fimum/internal/model"
	"github.com/jeranaias/fimum/internal/stream"
)

// maxErrorBody bounds how much of a failed gateway response is kept.
const maxErrorBody = 4 << 10

// SendMessage appends content as a user message to the current conversation
// (creating one if needed), streams the assistant reply into it and
// persists the result.
//
// Blank content is ignored. While another send is in flight it returns
// ErrBusy and does nothing. Gateway and stream failures end the turn with an
// ErrorReply assistant message and are also returned. Cancelling ctx keeps
// whatever text already arrived and returns ctx.Err().
func (s *State) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.loading = true
	s.lastTurnEmpty = false

	conv := s.current
	if conv == nil {
		conv = model.NewConversation(s.mode)
		s.current = conv
	}
	mode := s.mode
	conv.Mode = mode
	conv.AddUserMessage(content, mode)
	s.inflight = conv

	req := Request{Messages: conv.History(), Mode: mode}
	s.commit()

	t := &turn{state: s, conv: conv, mode: mode}
	defer t.finish()

	log.Printf("SEND_START | conversation=%s mode=%s messages=%d", conv.ID, mode, len(req.Messages))

	resp, err := s.gateway.Post(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			t.cancelled()
			return ctx.Err()
		}
		t.fail(err)
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Status: resp.StatusCode, Body: string(body)}
		t.fail(serr)
		return fmt.Errorf("send: %w", serr)
	}

	dec := stream.NewDecoder(resp.Body)
	dec.OnMalformed = func(e *stream.DecodeError) {
		log.Printf("FRAME_MALFORMED | conversation=%s err=%v", conv.ID, e)
	}

	for {
		delta, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			t.complete()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				t.cancelled()
				return ctx.Err()
			}
			t.fail(err)
			return fmt.Errorf("send: reading stream: %w", err)
		}
		t.apply(delta)
	}
}

// =============================================================================
// TURN
// =============================================================================

// turn tracks one in-flight send. Every mutation happens under state.mu.
type turn struct {
	state     *State
	conv      *model.Conversation
	mode      model.Mode
	assistant *model.Message
	deltas    int
}

// apply appends delta to the assistant message, creating it on the first one.
func (t *turn) apply(delta string) {
	s := t.state
	s.mu.Lock()
	if t.assistant == nil {
		t.assistant = t.conv.AddAssistantMessage("", t.mode)
	}
	t.assistant.AppendDelta(delta)
	t.conv.Touch()
	t.deltas++
	s.commit()
}

// complete handles a stream that ended normally.
func (t *turn) complete() {
	s := t.state
	s.mu.Lock()
	if t.assistant == nil {
		s.lastTurnEmpty = true
		log.Printf("SEND_EMPTY | conversation=%s mode=%s", t.conv.ID, t.mode)
	} else {
		log.Printf("SEND_DONE | conversation=%s deltas=%d chars=%d", t.conv.ID, t.deltas, len(t.assistant.Content))
	}
	t.settleLocked()
}

// fail replaces any partial answer with ErrorReply.
func (t *turn) fail(err error) {
	s := t.state
	s.mu.Lock()
	log.Printf("SEND_FAILED | conversation=%s partial=%t err=%v", t.conv.ID, t.assistant != nil, err)
	if t.assistant != nil {
		t.conv.RemoveMessage(t.assistant.ID)
		t.assistant = nil
	}
	t.conv.AddAssistantMessage(ErrorReply, t.mode)
	t.settleLocked()
}

// cancelled keeps the partial answer as is.
func (t *turn) cancelled() {
	s := t.state
	s.mu.Lock()
	log.Printf("SEND_CANCELLED | conversation=%s deltas=%d", t.conv.ID, t.deltas)
	t.settleLocked()
}

// settleLocked persists the conversation and moves it to the front of the
// list, unless it was deleted mid-flight. Releases mu.
func (t *turn) settleLocked() {
	s := t.state
	if s.inflight != t.conv {
		s.mu.Unlock()
		return
	}
	t.conv.Touch()
	s.moveToFrontLocked(t.conv)
	saved := t.conv.Clone()
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	s.mu.Unlock()

	s.persist(saved)
}

// finish clears the loading flag and publishes. It runs on every path.
func (t *turn) finish() {
	s := t.state
	s.mu.Lock()
	s.loading = false
	if s.inflight == t.conv {
		s.inflight = nil
	}
	s.commit()
}
