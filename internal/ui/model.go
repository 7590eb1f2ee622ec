// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/fimum/internal/chat"
	"github.com/jeranaias/fimum/internal/model"
)

// Layout rows outside the viewport: header, input border, input, status.
const chromeHeight = 4

// Model is the bubbletea model for the chat screen.
type Model struct {
	state    *chat.State
	registry *model.Registry
	feed     *feed
	turns    *sync.WaitGroup

	snap     chat.Snapshot
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	renderer *glamour.TermRenderer
	rendered map[string]string // settled assistant message ID -> glamour output

	cancelTurn context.CancelFunc

	width    int
	height   int
	showList bool
	cursor   int
	notice   string
	err      error
}

// New creates the model over st. The State should already be loaded.
func New(st *chat.State, reg *model.Registry) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, /help for commands"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	return Model{
		state:    st,
		registry: reg,
		feed:     newFeed(),
		turns:    &sync.WaitGroup{},
		snap:     st.Snapshot(),
		input:    ti,
		viewport: vp,
		spinner:  sp,
		rendered: make(map[string]string),
	}
}

// Init starts the cursor blink and the snapshot feed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.feed.wait())
}

// Update handles a message and returns the next model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case snapshotMsg:
		wasLoading := m.snap.Loading
		m.snap = msg.snap
		if m.snap.LastTurnEmpty {
			m.notice = "No model produced a reply."
		}
		m.refresh()
		cmds := []tea.Cmd{m.feed.wait()}
		if m.snap.Loading && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case sendDoneMsg:
		m.cancelTurn = nil
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, context.Canceled):
			m.notice = "Cancelled."
		case errors.Is(msg.err, chat.ErrBusy):
			m.notice = "Still waiting for the last reply."
		default:
			m.err = msg.err
		}
		return m, nil

	case storeChangedMsg:
		if !m.snap.Loading {
			if err := m.state.Reload(); err != nil {
				m.err = err
			}
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snap.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		return m, tea.Quit
	}

	if m.showList {
		return m.handleListKey(msg)
	}

	switch msg.String() {
	case "esc":
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		return m, nil

	case "ctrl+n":
		m.state.NewConversation("")
		m.clearStatus()
		return m, nil

	case "tab":
		next := m.registry.Next(m.state.Mode())
		m.state.SetMode(next)
		m.notice = "Mode: " + m.modeLabel(next)
		return m, nil

	case "ctrl+l":
		m.openList()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.clearStatus()
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.send(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.snap.Conversations
	switch msg.String() {
	case "esc", "ctrl+l", "q":
		m.showList = false
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(convs) {
			if err := m.state.LoadConversation(convs[m.cursor].ID); err != nil {
				m.err = err
			}
		}
		m.showList = false
	case "d", "delete":
		if m.cursor < len(convs) {
			if err := m.state.DeleteConversation(convs[m.cursor].ID); err != nil {
				m.err = err
			}
			if m.cursor > 0 && m.cursor >= len(convs)-1 {
				m.cursor--
			}
		}
	}
	return m, nil
}

func (m *Model) openList() {
	m.showList = true
	m.cursor = 0
	if m.snap.Current == nil {
		return
	}
	for i, c := range m.snap.Conversations {
		if c.ID == m.snap.Current.ID {
			m.cursor = i
			return
		}
	}
}

// send starts a turn. The call runs as a command so the program keeps
// drawing snapshots while the reply streams in.
func (m Model) send(text string) (tea.Model, tea.Cmd) {
	if m.snap.Loading {
		m.notice = "Still waiting for the last reply."
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTurn = cancel

	st := m.state
	m.turns.Add(1)
	return m, func() tea.Msg {
		defer m.turns.Done()
		defer cancel()
		err := st.SendMessage(ctx, text)
		return sendDoneMsg{err: err}
	}
}

// runCommand handles a /command typed into the input.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		return m, tea.Quit

	case "/new":
		var mode model.Mode
		if len(args) > 0 {
			parsed, err := model.ParseMode(args[0])
			if err != nil {
				m.err = err
				return m, nil
			}
			mode = parsed
		}
		m.state.NewConversation(mode)

	case "/mode":
		if len(args) == 0 {
			m.notice = "Modes: " + strings.Join(m.registry.Names(), ", ")
			return m, nil
		}
		mode, err := model.ParseMode(args[0])
		if err != nil {
			m.err = err
			return m, nil
		}
		m.state.SetMode(mode)
		m.notice = "Mode: " + m.modeLabel(mode)

	case "/list":
		m.openList()

	case "/delete":
		if m.snap.Current == nil {
			m.notice = "No conversation to delete."
			return m, nil
		}
		if err := m.state.DeleteConversation(m.snap.Current.ID); err != nil {
			m.err = err
		}

	case "/clear":
		if err := m.state.ClearAll(); err != nil {
			m.err = err
		}

	case "/help":
		m.notice = "/new [mode]  /mode <name>  /list  /delete  /clear  /quit"

	default:
		m.err = fmt.Errorf("unknown command %s", name)
	}
	return m, nil
}

func (m *Model) clearStatus() {
	m.notice = ""
	m.err = nil
}

func (m Model) modeLabel(mode model.Mode) string {
	if cfg, ok := m.registry.Lookup(mode); ok {
		return cfg.Label
	}
	return string(mode)
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = height - chromeHeight
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	m.input.Width = width - len(m.input.Prompt) - 1

	style := "dark"
	if !lipgloss.HasDarkBackground() {
		style = "light"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		log.Printf("TUI_RENDERER_FAILED | err=%v", err)
		tr = nil
	}
	m.renderer = tr
	m.rendered = make(map[string]string)
	m.refresh()
}

// refresh rebuilds the viewport content, following the bottom when the
// reader was already there.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.transcript())
	if atBottom || m.snap.Loading {
		m.viewport.GotoBottom()
	}
}
