// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/fimum/internal/chat"
)

// =============================================================================
// MESSAGES
// =============================================================================

// snapshotMsg carries a published chat.State snapshot.
type snapshotMsg struct {
	snap chat.Snapshot
}

// sendDoneMsg is returned when a SendMessage call returns.
type sendDoneMsg struct {
	err error
}

// storeChangedMsg is sent when the conversation store changes on disk.
type storeChangedMsg struct{}

// =============================================================================
// SNAPSHOT FEED
// =============================================================================

// feed hands snapshots from State subscribers to the program. It holds only
// the newest snapshot; an unread one is replaced, never queued.
type feed struct {
	ch   chan chat.Snapshot
	done chan struct{}
	once sync.Once
}

func newFeed() *feed {
	return &feed{
		ch:   make(chan chat.Snapshot, 1),
		done: make(chan struct{}),
	}
}

// push never blocks. Subscribers call it under the State's publish lock.
func (f *feed) push(snap chat.Snapshot) {
	for {
		select {
		case f.ch <- snap:
			return
		case <-f.done:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// wait returns a command that blocks until the next snapshot.
func (f *feed) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-f.ch:
			return snapshotMsg{snap: snap}
		case <-f.done:
			return nil
		}
	}
}

func (f *feed) stop() {
	f.once.Do(func() { close(f.done) })
}
