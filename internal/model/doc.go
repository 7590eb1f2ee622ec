// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and chat modes.
//
// # Key Types
//
//   - Conversation: an ordered transcript with title, mode, and timestamps
//   - Message: a single message with role, content, timestamp, and mode
//   - Mode: the chat persona that selects one or more upstream models
//   - Registry: the immutable mode -> models lookup
//
// Timestamps are stored as Unix milliseconds so that persisted records keep
// the same layout as the browser client's local storage.
//
// # Usage
//
//	conv := model.NewConversation(model.ModeNormal)
//	conv.AddUserMessage("Hello!", model.ModeNormal)
//
//	res := model.DefaultRegistry().Resolve("thinking")
//	if res.MultiModel() {
//	    // fan out over res.Models in order
//	}
package model
