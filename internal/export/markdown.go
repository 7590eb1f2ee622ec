// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/fimum/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown with YAML frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontmatter is marshalled by yaml.v3 so titles never need hand escaping.
type frontmatter struct {
	Title     string `yaml:"title"`
	Mode      string `yaml:"mode"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, errNilConversation
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontmatter{
			Title:     conv.Title,
			Mode:      string(conv.Mode),
			Date:      time.UnixMilli(conv.CreatedAt).Format(time.RFC3339),
			Updated:   time.UnixMilli(conv.UpdatedAt).Format(time.RFC3339),
			Messages:  len(conv.Messages),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "fimum",
		})
		if err != nil {
			return nil, fmt.Errorf("marshal frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "- **Mode**: %s\n", conv.Mode)
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(conv.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(conv.Messages))
		sb.WriteString("\n---\n\n")
	}

	for i, msg := range conv.Messages {
		label := roleLabel(msg.Role)
		if msg.Role == model.RoleAssistant && msg.Mode != "" {
			label = fmt.Sprintf("%s (%s)", label, msg.Mode)
		}
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		// Content is already Markdown.
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from fimum on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func roleLabel(role model.Role) string {
	if role == "" {
		return "Unknown"
	}
	return role.DisplayName()
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"\n", " ",
	)
	return r.Replace(s)
}
