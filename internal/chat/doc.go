// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the client-side conversation state.
//
// A State owns the conversation list, the current conversation, the selected
// mode and the loading flag. SendMessage posts the transcript to the gateway,
// decodes the event stream it returns and applies each delta to the current
// conversation in wire order, publishing a Snapshot after every change.
//
// # Usage
//
//	st := chat.New(store, chat.NewHTTPGateway(url))
//	if err := st.Load(); err != nil { ... }
//	cancel := st.Subscribe(func(s chat.Snapshot) { render(s) })
//	defer cancel()
//	err := st.SendMessage(ctx, "hello")
//
// Only one send runs at a time. A second SendMessage while one is in flight
// returns ErrBusy without touching the network.
package chat
