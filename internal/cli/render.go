// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Renderer turns assistant Markdown into terminal output. Without a
// terminal (or with colors off) it passes text through unchanged.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer builds a renderer for the given wrap width.
func NewRenderer(width int) *Renderer {
	if !ColorsEnabled() {
		return &Renderer{}
	}

	style := "dark"
	if !termenv.HasDarkBackground() {
		style = "light"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{tr: tr}
}

// Render returns content formatted for the terminal.
func (r *Renderer) Render(content string) string {
	if r == nil || r.tr == nil {
		return content
	}
	out, err := r.tr.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
