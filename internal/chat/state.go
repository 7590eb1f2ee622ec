// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/jeranaias/fimum/internal/model"
)

// ErrorReply is the assistant message shown in place of a failed answer.
const ErrorReply = "Sorry, I encountered an error. Please try again."

var (
	// ErrBusy is returned by SendMessage while another send is in flight.
	ErrBusy = errors.New("a message is already being sent")

	// ErrConversationNotFound is returned when an ID is not in the list.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store persists conversations. *storage.ConversationStore satisfies it.
type Store interface {
	List() ([]*model.Conversation, error)
	Save(conv *model.Conversation) error
	Delete(id string) error
	Clear() error
}

// Snapshot is an immutable copy of the state at one instant.
type Snapshot struct {
	Conversations []*model.Conversation
	Current       *model.Conversation
	Loading       bool
	Mode          model.Mode

	// LastTurnEmpty is set when the last send completed without producing
	// any assistant text, e.g. every model of a multi-model mode failed.
	LastTurnEmpty bool

	seq uint64
}

// Option configures a State.
type Option func(*State)

// WithMode sets the initial mode.
func WithMode(mode model.Mode) Option {
	return func(s *State) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// State is the conversation reducer. All fields are guarded by mu.
type State struct {
	mu      sync.Mutex
	store   Store
	gateway Gateway

	conversations []*model.Conversation
	current       *model.Conversation
	loading       bool
	mode          model.Mode
	lastTurnEmpty bool

	// inflight is the conversation the running send writes to. Deleting or
	// clearing it detaches the send so its result is dropped.
	inflight *model.Conversation

	// storeMu orders store writes. It is taken while mu is held, so a save
	// that passed the inflight check finishes before a later delete runs.
	storeMu sync.Mutex

	seq     uint64
	pubMu   sync.Mutex
	lastPub uint64
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates an empty State. Call Load to hydrate it from the store.
func New(store Store, gateway Gateway, opts ...Option) *State {
	s := &State{
		store:         store,
		gateway:       gateway,
		conversations: []*model.Conversation{},
		mode:          model.DefaultMode,
		subs:          make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for every published snapshot. Snapshots arrive in
// order; a stale one is never delivered after a newer one. fn must not block
// for long since sends wait on it. The returned func unsubscribes.
func (s *State) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.pubMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.pubMu.Unlock()

	return func() {
		s.pubMu.Lock()
		delete(s.subs, id)
		s.pubMu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked deep-copies the state. Caller holds mu.
func (s *State) snapshotLocked() Snapshot {
	s.seq++
	snap := Snapshot{
		Conversations: make([]*model.Conversation, len(s.conversations)),
		Current:       s.current.Clone(),
		Loading:       s.loading,
		Mode:          s.mode,
		LastTurnEmpty: s.lastTurnEmpty,
		seq:           s.seq,
	}
	for i, c := range s.conversations {
		snap.Conversations[i] = c.Clone()
	}
	return snap
}

// publish delivers snap to subscribers outside mu so they may call back
// into the State.
func (s *State) publish(snap Snapshot) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.seq <= s.lastPub {
		return
	}
	s.lastPub = snap.seq
	for _, fn := range s.subs {
		fn(snap)
	}
}

// commit snapshots under mu, releases it and publishes.
func (s *State) commit() {
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// Load replaces the in-memory list with the stored one. The first stored
// conversation becomes current and its mode is adopted.
func (s *State) Load() error {
	convs, err := s.store.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conversations = convs
	s.current = nil
	if len(convs) > 0 {
		s.current = convs[0]
		s.adoptModeLocked(convs[0])
	}
	s.commit()
	return nil
}

// Reload re-reads the stored list after an outside change, most recently
// updated first. The current conversation is kept when it is still stored,
// or when it is a new empty one that was never saved. Reload does nothing
// while a send is in flight.
func (s *State) Reload() error {
	convs, err := s.store.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt > convs[j].UpdatedAt
	})
	var cur *model.Conversation
	if s.current != nil {
		for _, c := range convs {
			if c.ID == s.current.ID {
				cur = c
				break
			}
		}
		if cur == nil && s.current.IsEmpty() {
			cur = s.current
			convs = append([]*model.Conversation{cur}, convs...)
		}
	}
	if cur == nil && len(convs) > 0 {
		cur = convs[0]
		s.adoptModeLocked(cur)
	}
	s.conversations = convs
	s.current = cur
	s.commit()
	return nil
}

// NewConversation starts an empty conversation, puts it at the front of the
// list and makes it current. A non-empty mode also becomes the active mode.
func (s *State) NewConversation(mode model.Mode) *model.Conversation {
	s.mu.Lock()
	if mode != "" {
		s.mode = mode
	}
	conv := model.NewConversation(s.mode)
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.current = conv
	s.lastTurnEmpty = false
	clone := conv.Clone()
	s.commit()
	return clone
}

// LoadConversation makes the listed conversation id current and adopts its mode.
func (s *State) LoadConversation(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	s.current = s.conversations[idx]
	s.adoptModeLocked(s.current)
	s.lastTurnEmpty = false
	s.commit()
	return nil
}

// DeleteConversation removes id from the list and the store. When id was
// current, the first remaining conversation (if any) becomes current. A send
// still writing to id is detached first, so its result is never saved.
func (s *State) DeleteConversation(id string) error {
	s.mu.Lock()
	wasCurrent := s.current != nil && s.current.ID == id
	kept := make([]*model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
	if s.inflight != nil && s.inflight.ID == id {
		s.inflight = nil
	}
	if wasCurrent {
		s.current = nil
		if len(kept) > 0 {
			s.current = kept[0]
			s.adoptModeLocked(kept[0])
		}
	}
	snap := s.snapshotLocked()
	s.storeMu.Lock()
	s.mu.Unlock()
	err := s.store.Delete(id)
	s.storeMu.Unlock()

	s.publish(snap)
	return err
}

// ClearAll drops every conversation from memory and the store.
func (s *State) ClearAll() error {
	s.mu.Lock()
	s.conversations = []*model.Conversation{}
	s.current = nil
	s.inflight = nil
	s.lastTurnEmpty = false
	snap := s.snapshotLocked()
	s.storeMu.Lock()
	s.mu.Unlock()
	err := s.store.Clear()
	s.storeMu.Unlock()

	s.publish(snap)
	return err
}

// SetMode changes the mode used by later sends.
func (s *State) SetMode(mode model.Mode) {
	s.mu.Lock()
	s.mode = mode
	s.commit()
}

// Mode returns the active mode.
func (s *State) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Loading reports whether a send is in flight.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *State) indexLocked(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) adoptModeLocked(c *model.Conversation) {
	if c.Mode != "" {
		s.mode = c.Mode
	}
}

// moveToFrontLocked puts conv first in the list, inserting it if absent.
func (s *State) moveToFrontLocked(conv *model.Conversation) {
	list := make([]*model.Conversation, 0, len(s.conversations)+1)
	list = append(list, conv)
	for _, c := range s.conversations {
		if c.ID != conv.ID {
			list = append(list, c)
		}
	}
	s.conversations = list
}

// persist saves conv, logging failures. The in-memory state stays
// authoritative for this session either way.
func (s *State) persist(conv *model.Conversation) error {
	if err := s.store.Save(conv); err != nil {
		log.Printf("STORE_SAVE_FAILED | conversation=%s err=%v", conv.ID, err)
		return err
	}
	return nil
}
