// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/fimum/internal/chat"
	"github.com/jeranaias/fimum/internal/model"
)

// WatchFunc starts watching the conversation store and calls onChange for
// every outside write until ctx ends.
type WatchFunc func(ctx context.Context, onChange func()) error

// Run shows the chat screen until the user quits. A non-nil watch keeps the
// conversation list in step with other fimum processes.
func Run(ctx context.Context, st *chat.State, reg *model.Registry, watch WatchFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(st, reg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := st.Subscribe(m.feed.push)
	defer unsubscribe()
	defer m.feed.stop()

	if watch != nil {
		if err := watch(ctx, func() { p.Send(storeChangedMsg{}) }); err != nil {
			log.Printf("TUI_WATCH_FAILED | err=%v", err)
		}
	}

	final, err := p.Run()
	if fm, ok := final.(Model); ok && fm.cancelTurn != nil {
		fm.cancelTurn()
	}
	// A cancelled turn still saves its partial reply; let it finish before
	// the caller closes the store.
	m.turns.Wait()
	return err
}
