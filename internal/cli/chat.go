// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Examples:
//   fimum chat                       Resume the most recent conversation
//   fimum chat --mode thinking       Start in thinking mode
//   fimum chat --gateway URL         Talk to a remote gateway
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /mode [name]        Show or switch mode
//   /new                Start a new conversation
//   /list               List conversations
//   /load <n|id>        Switch to a conversation
//   /delete <n|id>      Delete a conversation
//   /clear              Delete every conversation
//   /export [format]    Export the current conversation
//   /history            Reprint the current conversation
//   /quit               Exit chat
//   Ctrl+C              Cancel the reply in progress
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/chat"
	"github.com/jeranaias/fimum/internal/config"
	"github.com/jeranaias/fimum/internal/export"
	"github.com/jeranaias/fimum/internal/model"
)

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

func newChatCmd(a *app) *cobra.Command {
	var opts struct {
		Mode    string
		Gateway string
	}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseModeFlag(opts.Mode)
			if err != nil {
				return err
			}
			st, err := a.newState(opts.Gateway, mode)
			if err != nil {
				return err
			}

			input := newLineInput()
			defer input.Close()

			r := &repl{
				state:    st,
				registry: a.registry,
				input:    input,
				out:      a.out,
			}
			if IsStdoutTTY() {
				r.render = NewRenderer(GetTerminalWidth() - 4)
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "mode for new messages")
	cmd.Flags().StringVar(&opts.Gateway, "gateway", "", "gateway URL (overrides client.gateway_url)")
	return cmd
}

// =============================================================================
// INPUT
// =============================================================================

// lineReader is the subset of liner the REPL needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// lineInput wraps liner with a persisted history file.
type lineInput struct {
	*liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &lineInput{State: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(in.historyFile); err == nil {
		in.ReadHistory(f)
		f.Close()
	}
	return in
}

// Close saves history with 0600 permissions and restores the terminal.
func (in *lineInput) Close() {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.WriteHistory(f)
			f.Close()
		}
	}
	in.State.Close()
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	state    *chat.State
	registry *model.Registry
	input    lineReader
	out      io.Writer
	render   *Renderer

	// exportDir is where /export writes. Empty means the working directory.
	exportDir string
}

func (r *repl) run(ctx context.Context) error {
	r.printWelcome()

	for {
		prompt := PromptStyle.Render(fmt.Sprintf("%s> ", r.state.Mode()))
		line, err := r.input.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			// Ctrl+D or closed input.
			fmt.Fprintln(r.out)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.input.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			if err := r.command(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintln(r.out, ErrorStyle.Render("[Error] ")+err.Error())
			}
			continue
		}

		if err := r.send(ctx, line); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("fimum chat"))
	snap := r.state.Snapshot()
	if snap.Current != nil {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Resuming %q (%d messages). /new starts fresh, /help lists commands.",
			snap.Current.Title, len(snap.Current.Messages))))
	} else {
		fmt.Fprintln(r.out, DimStyle.Render("Type a message, or /help for commands."))
	}
}

// send runs one turn. Ctrl+C during the turn cancels it without leaving
// the REPL. Plain output streams as it arrives; rendered output is printed
// once the reply is complete.
func (r *repl) send(parent context.Context, content string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	go func() {
		select {
		case <-sigc:
			cancel()
		case <-ctx.Done():
		}
	}()

	before := r.state.Snapshot()
	seen := make(map[string]bool)
	if before.Current != nil {
		for _, m := range before.Current.Messages {
			seen[m.ID] = true
		}
	}

	var sp *streamPrinter
	if r.render == nil {
		sp = &streamPrinter{out: r.out, seen: seen}
		unsubscribe := r.state.Subscribe(sp.update)
		defer unsubscribe()
	} else {
		fmt.Fprintln(r.out, DimStyle.Render("..."))
	}

	err := r.state.SendMessage(ctx, content)
	if errors.Is(err, chat.ErrBusy) {
		fmt.Fprintln(r.out, WarningStyle.Render("A reply is still in progress."))
		return err
	}

	snap := r.state.Snapshot()
	if sp != nil {
		sp.finish()
	} else if reply := newAssistantReply(snap.Current, seen); reply != nil {
		r.printReply(reply)
	}

	switch {
	case ctx.Err() != nil && parent.Err() == nil:
		fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
	case snap.LastTurnEmpty:
		fmt.Fprintln(r.out, WarningStyle.Render("No model returned a response. Try again or switch modes."))
	}
	return err
}

func (r *repl) printReply(msg *model.Message) {
	if msg.Content == chat.ErrorReply {
		fmt.Fprintln(r.out, ErrorStyle.Render(msg.Content))
		return
	}
	fmt.Fprintln(r.out, r.render.Render(msg.Content))
}

// newAssistantReply returns the last assistant message not in seen.
func newAssistantReply(conv *model.Conversation, seen map[string]bool) *model.Message {
	if conv == nil {
		return nil
	}
	last := conv.LastMessage()
	if last == nil || last.Role != model.RoleAssistant || seen[last.ID] {
		return nil
	}
	return last
}

// streamPrinter writes the growing assistant reply as snapshots arrive.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	seen    map[string]bool
	id      string
	printed int
}

func (p *streamPrinter) update(s chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := newAssistantReply(s.Current, p.seen)
	if msg == nil {
		return
	}
	if msg.ID != p.id {
		// A mid-stream failure swaps the partial reply for the error message.
		if p.id != "" {
			fmt.Fprintln(p.out)
		}
		p.id, p.printed = msg.ID, 0
	}
	if len(msg.Content) > p.printed {
		fmt.Fprint(p.out, msg.Content[p.printed:])
		p.printed = len(msg.Content)
	}
}

func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id != "" {
		fmt.Fprintln(p.out)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (r *repl) command(line string) error {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/help", "/h":
		r.printHelp()
	case "/quit", "/q", "/exit":
		return errQuit
	case "/mode", "/m":
		return r.cmdMode(args)
	case "/new", "/n":
		conv := r.state.NewConversation("")
		fmt.Fprintln(r.out, SuccessStyle.Render("Started a new conversation ")+DimStyle.Render(shortID(conv.ID)))
	case "/list", "/ls":
		snap := r.state.Snapshot()
		printConversationList(r.out, snap.Conversations, currentID(snap))
	case "/load":
		return r.cmdLoad(args)
	case "/delete", "/rm":
		return r.cmdDelete(args)
	case "/clear":
		if err := r.state.ClearAll(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("All conversations deleted."))
	case "/export":
		return r.cmdExport(args)
	case "/history":
		snap := r.state.Snapshot()
		if snap.Current == nil {
			fmt.Fprintln(r.out, DimStyle.Render("No conversation yet."))
			return nil
		}
		printTranscript(r.out, snap.Current, r.render)
	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

func (r *repl) printHelp() {
	rows := [][2]string{
		{"/mode [name]", "show or switch mode"},
		{"/new", "start a new conversation"},
		{"/list", "list conversations"},
		{"/load <n|id>", "switch to a conversation"},
		{"/delete <n|id>", "delete a conversation"},
		{"/clear", "delete every conversation"},
		{"/export [format]", "export the current conversation (" + strings.Join(export.Formats(), ", ") + ")"},
		{"/history", "reprint the current conversation"},
		{"/quit", "exit"},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %s %s\n", CommandStyle.Render(PadWidth(row[0], 18)), DimStyle.Render(row[1]))
	}
}

func (r *repl) cmdMode(args []string) error {
	if len(args) == 0 {
		printModes(r.out, r.registry, r.state.Mode())
		return nil
	}
	mode, err := model.ParseMode(args[0])
	if err != nil {
		return err
	}
	r.state.SetMode(mode)
	cfg, _ := r.registry.Lookup(mode)
	fmt.Fprintln(r.out, "Mode: "+ModeStyle.Render(cfg.Label))
	return nil
}

func (r *repl) cmdLoad(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /load <n|id>")
	}
	conv, err := resolveConversation(r.state.Snapshot().Conversations, args[0])
	if err != nil {
		return err
	}
	if err := r.state.LoadConversation(conv.ID); err != nil {
		return err
	}
	snap := r.state.Snapshot()
	fmt.Fprintln(r.out, SuccessStyle.Render("Loaded ")+snap.Current.Title+" "+ModeStyle.Render("["+string(snap.Mode)+"]"))
	printTranscript(r.out, snap.Current, r.render)
	return nil
}

func (r *repl) cmdDelete(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /delete <n|id>")
	}
	conv, err := resolveConversation(r.state.Snapshot().Conversations, args[0])
	if err != nil {
		return err
	}
	if err := r.state.DeleteConversation(conv.ID); err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Deleted ")+conv.Title)
	return nil
}

func (r *repl) cmdExport(args []string) error {
	snap := r.state.Snapshot()
	if snap.Current == nil || snap.Current.IsEmpty() {
		return errors.New("nothing to export yet")
	}
	format := export.FormatMarkdown
	if len(args) > 0 {
		format = args[0]
	}
	opts := export.DefaultOptions()
	if r.exportDir != "" {
		opts.OutputDir = r.exportDir
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(snap.Current, exp, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("Exported to ")+path)
	return nil
}

func currentID(s chat.Snapshot) string {
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}
