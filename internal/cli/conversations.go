// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Inspect and manage stored conversations.
//
// Examples:
//   fimum conversations list
//   fimum conversations show 1
//   fimum conversations delete 3f2a
//   fimum conversations clear --yes

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/model"
)

func newConversationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs", "history"},
		Short:   "Manage stored conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.conversations()
			if err != nil {
				return err
			}
			convs, err := store.List()
			if err != nil {
				return err
			}
			printConversationList(a.out, convs, "")
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <n|id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.findConversation(args[0])
			if err != nil {
				return err
			}
			var r *Renderer
			if IsStdoutTTY() {
				r = NewRenderer(GetTerminalWidth() - 4)
			}
			printTranscript(a.out, conv, r)
			return nil
		},
	}

	del := &cobra.Command{
		Use:     "delete <n|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.findConversation(args[0])
			if err != nil {
				return err
			}
			if err := a.store.Delete(conv.ID); err != nil {
				return err
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Deleted ")+conv.Title)
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete every conversation without --yes")
			}
			store, err := a.conversations()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("All conversations deleted."))
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")

	cmd.AddCommand(list, show, del, clearCmd)
	return cmd
}

// findConversation resolves ref against the store.
func (a *app) findConversation(ref string) (*model.Conversation, error) {
	store, err := a.conversations()
	if err != nil {
		return nil, err
	}
	convs, err := store.List()
	if err != nil {
		return nil, err
	}
	return resolveConversation(convs, ref)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// resolveConversation accepts a 1-based list position, a full ID or a
// unique ID prefix.
func resolveConversation(convs []*model.Conversation, ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil && len(ref) < 4 {
		if n < 1 || n > len(convs) {
			return nil, fmt.Errorf("no conversation #%d (have %d)", n, len(convs))
		}
		return convs[n-1], nil
	}

	var match *model.Conversation
	for _, c := range convs {
		if c.ID == ref {
			return c, nil
		}
		if strings.HasPrefix(c.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("%q matches more than one conversation", ref)
			}
			match = c
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no conversation matches %q", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printConversationList writes one row per conversation. The row for
// current is marked.
func printConversationList(w io.Writer, convs []*model.Conversation, current string) {
	if len(convs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations yet."))
		return
	}

	titleWidth := GetTerminalWidth() - 40
	if titleWidth < 20 {
		titleWidth = 20
	}
	for i, c := range convs {
		marker := " "
		if c.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %3d  %s  %s  %s  %s\n",
			marker,
			i+1,
			DimStyle.Render(shortID(c.ID)),
			PadWidth(c.Title, titleWidth),
			ModeStyle.Render(PadWidth(string(c.Mode), 9)),
			DimStyle.Render(fmt.Sprintf("%d msgs, %s", len(c.Messages), relativeTime(c.UpdatedAt))),
		)
	}
}

// printTranscript writes every message of conv.
func printTranscript(w io.Writer, conv *model.Conversation, r *Renderer) {
	fmt.Fprintln(w, TitleStyle.Render(conv.Title))
	for _, msg := range conv.Messages {
		label := msg.Role.DisplayName()
		if msg.Role == model.RoleAssistant && msg.Mode != "" {
			label += " (" + string(msg.Mode) + ")"
		}
		fmt.Fprintln(w, PromptStyle.Render(label)+" "+DimStyle.Render(msg.Time().Format("15:04")))
		if msg.Role == model.RoleAssistant {
			fmt.Fprintln(w, r.Render(msg.Content))
		} else {
			fmt.Fprintln(w, msg.Content)
		}
		fmt.Fprintln(w)
	}
}

// printModes lists every mode, marking active.
func printModes(w io.Writer, reg *model.Registry, active model.Mode) {
	for _, m := range reg.Modes() {
		marker := " "
		if m.Mode == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s %s  %s\n",
			marker,
			ModeStyle.Render(PadWidth(string(m.Mode), 9)),
			PadWidth(m.Label, 16),
			DimStyle.Render(strings.Join(m.Models, " -> ")),
		)
	}
}

func relativeTime(ms int64) string {
	d := time.Since(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return time.UnixMilli(ms).Format("2006-01-02")
	}
}
