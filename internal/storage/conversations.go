// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/jeranaias/fimum/internal/model"
)

// ConversationsKey is the single key holding every conversation.
const ConversationsKey = "fimum_conversations"

// ErrConversationNotFound is returned when a conversation ID doesn't exist.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationError wraps a failure on a specific conversation.
type ConversationError struct {
	ID  string
	Op  string
	Err error
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("%s conversation %s: %v", e.Op, e.ID, e.Err)
}

func (e *ConversationError) Unwrap() error {
	return e.Err
}

// ConversationStore keeps the full conversation list as one JSON array.
type ConversationStore struct {
	kv KV
	mu sync.Mutex
}

// NewConversationStore wraps kv.
func NewConversationStore(kv KV) *ConversationStore {
	return &ConversationStore{kv: kv}
}

// KV returns the underlying key/value store.
func (s *ConversationStore) KV() KV {
	return s.kv
}

// List returns every stored conversation in stored order. A missing key is
// an empty list. So is a blob that fails to parse; that case is logged and
// the blob is left untouched until the next Save overwrites it.
func (s *ConversationStore) List() ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ConversationStore) load() ([]*model.Conversation, error) {
	data, err := s.kv.Get(ConversationsKey)
	if errors.Is(err, ErrNotFound) {
		return []*model.Conversation{}, nil
	}
	if err != nil {
		return nil, err
	}

	var convs []*model.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		log.Printf("STORE_CORRUPT | key=%s bytes=%d err=%v", ConversationsKey, len(data), err)
		return []*model.Conversation{}, nil
	}

	out := convs[:0]
	for _, c := range convs {
		if c == nil || c.ID == "" {
			continue
		}
		if c.Messages == nil {
			c.Messages = []*model.Message{}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *ConversationStore) store(convs []*model.Conversation) error {
	if convs == nil {
		convs = []*model.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return errors.Wrap(err, "encoding conversations")
	}
	return s.kv.Put(ConversationsKey, data)
}

// Save replaces the stored conversation with the same ID in place, or
// prepends conv when it is new.
func (s *ConversationStore) Save(conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return &ConversationError{Op: "save", Err: errors.New("missing id")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.load()
	if err != nil {
		return &ConversationError{ID: conv.ID, Op: "save", Err: err}
	}

	replaced := false
	for i, c := range convs {
		if c.ID == conv.ID {
			convs[i] = conv
			replaced = true
			break
		}
	}
	if !replaced {
		convs = append([]*model.Conversation{conv}, convs...)
	}

	if err := s.store(convs); err != nil {
		return &ConversationError{ID: conv.ID, Op: "save", Err: err}
	}
	return nil
}

// Get returns the conversation with id.
func (s *ConversationStore) Get(id string) (*model.Conversation, error) {
	convs, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, &ConversationError{ID: id, Op: "get", Err: ErrConversationNotFound}
}

// Delete removes the conversation with id. Unknown IDs are ignored.
func (s *ConversationStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := s.load()
	if err != nil {
		return &ConversationError{ID: id, Op: "delete", Err: err}
	}

	kept := make([]*model.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(convs) {
		return nil
	}
	if err := s.store(kept); err != nil {
		return &ConversationError{ID: id, Op: "delete", Err: err}
	}
	return nil
}

// Clear removes every conversation.
func (s *ConversationStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ConversationsKey)
}
