// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"golang.org/x/text/unicode/norm"
)

// DefaultTitle is the placeholder title of a conversation with no messages.
const DefaultTitle = "New Chat"

// TitleMaxRunes is the number of characters kept when deriving a title.
const TitleMaxRunes = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation represents a chat transcript.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Mode      Mode       `json:"mode"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// NewConversation creates an empty conversation in the given mode.
func NewConversation(mode Mode) *Conversation {
	now := NowMillis()
	return &Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []*Message{},
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message and bumps UpdatedAt.
// The first message of a conversation sets its title; later messages never do.
func (c *Conversation) AddMessage(msg *Message) {
	if len(c.Messages) == 0 && msg.Role == RoleUser {
		c.Title = TitleFrom(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.Touch()
}

// AddUserMessage appends a user message and returns it.
func (c *Conversation) AddUserMessage(content string, mode Mode) *Message {
	msg := NewMessage(RoleUser, content, mode)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage appends an assistant message and returns it.
func (c *Conversation) AddAssistantMessage(content string, mode Mode) *Message {
	msg := NewMessage(RoleAssistant, content, mode)
	c.AddMessage(msg)
	return msg
}

// AppendToLast appends a delta to the last message if it is from the assistant.
// Returns false when there is no assistant message to extend.
func (c *Conversation) AppendToLast(delta string) bool {
	last := c.LastMessage()
	if last == nil || last.Role != RoleAssistant {
		return false
	}
	last.AppendDelta(delta)
	c.Touch()
	return true
}

// RemoveMessage removes a message by ID.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.Touch()
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or nil.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// History returns the role+content projection of every message, in order.
func (c *Conversation) History() []Wire {
	out := make([]Wire, 0, len(c.Messages))
	for _, msg := range c.Messages {
		out = append(out, Wire{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// Touch advances UpdatedAt. UpdatedAt strictly increases even when two
// mutations land in the same millisecond.
func (c *Conversation) Touch() {
	now := NowMillis()
	if now <= c.UpdatedAt {
		now = c.UpdatedAt + 1
	}
	c.UpdatedAt = now
}

// Preview returns a short description for conversation lists.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(60)
		}
	}
	return "(empty)"
}

// Clone returns a deep copy. Snapshots handed to subscribers are clones so
// readers never observe a message mid-append.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		m := *msg
		clone.Messages[i] = &m
	}
	return &clone
}

// =============================================================================
// TITLES
// =============================================================================

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(content string) string {
	return Truncate(content, TitleMaxRunes)
}

// Truncate keeps the first maxRunes characters of s (after NFC normalization)
// and appends "..." when anything was cut.
func Truncate(s string, maxRunes int) string {
	s = norm.NFC.String(s)
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
