// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the full-screen terminal client for fimum.
//
// The Model is a bubbletea program driven by chat.State snapshots. A
// subscription pushes every snapshot onto a one-slot feed that the program
// drains, so publishing never blocks on the render loop.
//
// Keys:
//
//	enter    send the input (or run a /command)
//	ctrl+n   new conversation
//	tab      cycle the mode
//	ctrl+l   conversation list
//	esc      cancel the in-flight reply, close the list
//	ctrl+c   quit
package ui
