// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// ObjectChunk is the object tag of a streaming completion chunk.
const ObjectChunk = "chat.completion.chunk"

// DoneSentinel is the payload of the terminal frame.
const DoneSentinel = "[DONE]"

// Chunk is a chat-completion streaming chunk.
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is a single choice within a chunk.
type Choice struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`
	// FinishReason is encoded as null while the choice is still open.
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental part of a choice.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewContentChunk builds a single-choice chunk carrying content as its delta.
func NewContentChunk(id string, created int64, model, content string) Chunk {
	return Chunk{
		ID:      id,
		Object:  ObjectChunk,
		Created: created,
		Model:   model,
		Choices: []Choice{{
			Index: 0,
			Delta: Delta{Content: content},
		}},
	}
}

// Content returns the delta text of the first choice.
func (c *Chunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}
