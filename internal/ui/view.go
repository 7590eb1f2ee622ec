// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/fimum/internal/model"
)

const keyHints = "tab mode · ctrl+n new · ctrl+l list · esc cancel · ctrl+c quit"

// View renders the screen: header, transcript, input and status line.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.showList {
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, m.renderList())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		inputStyle.Width(m.width).Render(m.input.View()),
		m.renderStatus(),
	)
}

func (m Model) renderHeader() string {
	title := "New conversation"
	if m.snap.Current != nil {
		title = m.snap.Current.Title
	}

	badge := string(m.snap.Mode)
	if cfg, ok := m.registry.Lookup(m.snap.Mode); ok {
		badge = cfg.Icon + " " + cfg.Label
	}
	badge = modeBadgeStyle.Render(badge)

	avail := m.width - lipgloss.Width(badge) - 2
	left := headerStyle.Render(model.Truncate("fimum · "+title, max(avail-2, 1)))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + badge
}

func (m Model) renderStatus() string {
	var text string
	switch {
	case m.err != nil:
		text = errorStyle.Render(m.err.Error())
	case m.notice != "":
		text = m.notice
	case m.snap.Loading:
		text = m.spinner.View() + " waiting for reply · esc cancel"
	default:
		text = keyHints
	}
	return statusStyle.Width(m.width).Render(text)
}

// transcript renders the current conversation for the viewport.
func (m Model) transcript() string {
	conv := m.snap.Current
	if conv == nil || conv.IsEmpty() {
		return m.renderWelcome()
	}

	width := m.width - 2
	if width < 10 {
		width = 10
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	last := len(conv.Messages) - 1
	for i, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(userLabelStyle.Render(msg.Role.DisplayName()))
			b.WriteString(" " + mutedStyle.Render(msg.Time().Format("15:04")) + "\n")
			b.WriteString(wrap.Render(msg.Content))
		default:
			label := msg.Role.DisplayName()
			if msg.Mode != "" {
				label += " (" + string(msg.Mode) + ")"
			}
			b.WriteString(assistantLabelStyle.Render(label) + "\n")
			streaming := m.snap.Loading && i == last
			b.WriteString(m.renderReply(msg, streaming, wrap))
		}
		b.WriteString("\n\n")
	}

	if m.snap.Loading && conv.Messages[last].Role == model.RoleUser {
		b.WriteString(m.spinner.View() + mutedStyle.Render(" thinking..."))
	}
	return b.String()
}

// renderReply formats an assistant message. Settled replies go through
// glamour once and are cached; a reply still streaming is shown as plain
// wrapped text.
func (m Model) renderReply(msg *model.Message, streaming bool, wrap lipgloss.Style) string {
	if streaming || m.renderer == nil {
		return wrap.Render(msg.Content)
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return wrap.Render(msg.Content)
	}
	out = strings.Trim(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

func (m Model) renderWelcome() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Welcome to fimum") + "\n\n")
	if cfg, ok := m.registry.Lookup(m.snap.Mode); ok {
		b.WriteString(fmt.Sprintf("%s %s\n", cfg.Icon, cfg.Label))
		b.WriteString(mutedStyle.Render(cfg.Description) + "\n")
		b.WriteString(mutedStyle.Render("Models: "+strings.Join(cfg.Models, ", ")) + "\n\n")
	}
	b.WriteString(mutedStyle.Render("Type a message and press enter. " + keyHints))
	return b.String()
}

func (m Model) renderList() string {
	convs := m.snap.Conversations
	if len(convs) == 0 {
		return listStyle.Render(mutedStyle.Render("No conversations yet. esc to close"))
	}

	width := m.width / 2
	if width < 30 {
		width = 30
	}

	// Keep the cursor inside a window of rows that fits the viewport.
	rows := m.viewport.Height - 4
	if rows < 1 {
		rows = 1
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(convs))

	var b strings.Builder
	b.WriteString(headerStyle.Render("Conversations") + "\n")
	for i := start; i < end; i++ {
		c := convs[i]
		line := fmt.Sprintf("%-9s %s", c.Mode, model.Truncate(c.Title, width-12))
		if i == m.cursor {
			b.WriteString(listSelectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("enter open · d delete · esc close"))
	return listStyle.Render(b.String())
}
