// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/fimum/internal/model"
)

// YAMLExporter writes a readable YAML document with RFC 3339 times.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

type yamlConversation struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Mode      string        `yaml:"mode"`
	CreatedAt time.Time     `yaml:"created_at"`
	UpdatedAt time.Time     `yaml:"updated_at"`
	Messages  []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	ID        string    `yaml:"id"`
	Role      string    `yaml:"role"`
	Mode      string    `yaml:"mode,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
	Content   string    `yaml:"content"`
}

// Export converts a conversation to YAML.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, errNilConversation
	}

	doc := yamlConversation{
		ID:        conv.ID,
		Title:     conv.Title,
		Mode:      string(conv.Mode),
		CreatedAt: time.UnixMilli(conv.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(conv.UpdatedAt).UTC(),
		Messages:  make([]yamlMessage, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		doc.Messages = append(doc.Messages, yamlMessage{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Mode:      string(msg.Mode),
			Timestamp: time.UnixMilli(msg.Timestamp).UTC(),
			Content:   msg.Content,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
