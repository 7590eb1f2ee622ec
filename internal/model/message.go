// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// A message is immutable once appended, except for the in-progress assistant
// message which grows through AppendDelta while a response streams in.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Mode      Mode   `json:"mode,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string, mode Mode) *Message {
	return &Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: NowMillis(),
		Mode:      mode,
	}
}

// AppendDelta appends a streamed fragment to the message content.
func (m *Message) AppendDelta(delta string) {
	m.Content += delta
}

// Time returns the message timestamp as a time.Time.
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Preview returns a truncated preview of the message content.
func (m *Message) Preview(maxLen int) string {
	return Truncate(m.Content, maxLen)
}

// Wire is the role+content projection sent to the gateway and upstream.
type Wire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// HELPERS
// =============================================================================

// NewID returns a fresh random identifier for messages and conversations.
func NewID() string {
	return uuid.NewString()
}

// NowMillis returns the current time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
