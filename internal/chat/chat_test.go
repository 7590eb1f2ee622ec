// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/fimum/internal/model"
	"github.com/jeranaias/fimum/internal/storage"
	"github.com/jeranaias/fimum/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

// gatewayFunc adapts a function to Gateway.
type gatewayFunc func(ctx context.Context, req Request) (*http.Response, error)

func (f gatewayFunc) Post(ctx context.Context, req Request) (*http.Response, error) {
	return f(ctx, req)
}

// frames renders deltas as an event stream ending in [DONE].
func frames(deltas ...string) string {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	for _, d := range deltas {
		_ = w.WriteChunk(stream.NewContentChunk("chatcmpl-test", 1700000000, "test/model", d))
	}
	_ = w.WriteDone()
	return buf.String()
}

func okResponse(body io.Reader) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(body),
	}
}

// staticGateway answers every request with body and counts calls.
func staticGateway(body string, calls *int32) Gateway {
	return gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return okResponse(strings.NewReader(body)), nil
	})
}

func newStore(t *testing.T) *storage.ConversationStore {
	t.Helper()
	kv, err := storage.NewFileKV(t.TempDir())
	require.NoError(t, err)
	return storage.NewConversationStore(kv)
}

// failingReader yields data once, then err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// recorder collects published snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// =============================================================================
// SEND MESSAGE
// =============================================================================

func TestSendMessage_AppliesDeltasInOrder(t *testing.T) {
	store := newStore(t)
	st := New(store, staticGateway(frames("Hel", "lo"), nil))

	require.NoError(t, st.SendMessage(context.Background(), "hi there"))

	snap := st.Snapshot()
	require.False(t, snap.Loading)
	require.False(t, snap.LastTurnEmpty)
	require.NotNil(t, snap.Current)
	require.Len(t, snap.Current.Messages, 2)
	require.Equal(t, model.RoleUser, snap.Current.Messages[0].Role)
	require.Equal(t, "hi there", snap.Current.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, snap.Current.Messages[1].Role)
	require.Equal(t, "Hello", snap.Current.Messages[1].Content)
	require.Equal(t, "hi there", snap.Current.Title)

	// Listed and persisted.
	require.Len(t, snap.Conversations, 1)
	require.Equal(t, snap.Current.ID, snap.Conversations[0].ID)

	stored, err := store.Get(snap.Current.ID)
	require.NoError(t, err)
	require.Equal(t, snap.Current.Messages[1].Content, stored.Messages[1].Content)
	require.Equal(t, snap.Current.UpdatedAt, stored.UpdatedAt)
}

func TestSendMessage_PostsHistoryAndMode(t *testing.T) {
	var got []Request
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		got = append(got, req)
		return okResponse(strings.NewReader(frames("ok"))), nil
	})
	st := New(newStore(t), gw, WithMode(model.ModeCoding))

	require.NoError(t, st.SendMessage(context.Background(), "first"))
	require.NoError(t, st.SendMessage(context.Background(), "second"))

	require.Len(t, got, 2)
	require.Equal(t, model.ModeCoding, got[1].Mode)
	require.Equal(t, []model.Wire{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "second"},
	}, got[1].Messages)
}

func TestSendMessage_BlankIsNoop(t *testing.T) {
	var calls int32
	st := New(newStore(t), staticGateway(frames("x"), &calls))

	for _, in := range []string{"", "   ", "\n\t"} {
		require.NoError(t, st.SendMessage(context.Background(), in))
	}
	require.Zero(t, atomic.LoadInt32(&calls))
	require.Nil(t, st.Snapshot().Current)
}

func TestSendMessage_ConcurrentSendIsRejected(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		close(entered)
		<-release
		return okResponse(strings.NewReader(frames("done"))), nil
	})
	st := New(newStore(t), gw)

	errc := make(chan error, 1)
	go func() { errc <- st.SendMessage(context.Background(), "one") }()
	<-entered

	require.True(t, st.Loading())
	require.ErrorIs(t, st.SendMessage(context.Background(), "two"), ErrBusy)

	close(release)
	require.NoError(t, <-errc)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	snap := st.Snapshot()
	require.Len(t, snap.Current.Messages, 2)
	require.Equal(t, "one", snap.Current.Messages[0].Content)
}

func TestSendMessage_LoadingPublishedBeforeRequest(t *testing.T) {
	rec := &recorder{}
	var sawLoading bool
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		snaps := rec.all()
		last := snaps[len(snaps)-1]
		sawLoading = last.Loading && last.Current != nil && len(last.Current.Messages) == 1
		return okResponse(strings.NewReader(frames("Hel", "lo"))), nil
	})
	st := New(newStore(t), gw)
	cancel := st.Subscribe(rec.record)
	defer cancel()

	require.NoError(t, st.SendMessage(context.Background(), "hi"))
	require.True(t, sawLoading)

	// The reply grows one delta per snapshot.
	var contents []string
	for _, s := range rec.all() {
		if s.Current != nil && len(s.Current.Messages) == 2 {
			c := s.Current.Messages[1].Content
			if len(contents) == 0 || contents[len(contents)-1] != c {
				contents = append(contents, c)
			}
		}
	}
	require.Equal(t, []string{"Hel", "Hello"}, contents)

	snaps := rec.all()
	require.False(t, snaps[len(snaps)-1].Loading)
}

func TestSendMessage_ErrorStatusAddsErrorReply(t *testing.T) {
	store := newStore(t)
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Body:       io.NopCloser(strings.NewReader(`{"error":"Rate limited"}`)),
		}, nil
	})
	st := New(store, gw)

	err := st.SendMessage(context.Background(), "hello")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusTooManyRequests, serr.Status)

	snap := st.Snapshot()
	require.False(t, snap.Loading)
	require.Len(t, snap.Current.Messages, 2)
	require.Equal(t, ErrorReply, snap.Current.Messages[1].Content)
	require.Equal(t, model.RoleAssistant, snap.Current.Messages[1].Role)

	stored, err := store.Get(snap.Current.ID)
	require.NoError(t, err)
	require.Equal(t, ErrorReply, stored.Messages[1].Content)
}

func TestSendMessage_TransportErrorAddsErrorReply(t *testing.T) {
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	st := New(newStore(t), gw)

	require.Error(t, st.SendMessage(context.Background(), "hello"))
	snap := st.Snapshot()
	require.False(t, snap.Loading)
	require.Equal(t, ErrorReply, snap.Current.Messages[1].Content)
}

func TestSendMessage_MidStreamFailureReplacesPartial(t *testing.T) {
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		partial := frames("Half an ans")
		partial = strings.TrimSuffix(partial, "data: [DONE]\n\n")
		return okResponse(&failingReader{data: []byte(partial), err: errors.New("connection reset")}), nil
	})
	st := New(newStore(t), gw)

	require.Error(t, st.SendMessage(context.Background(), "hello"))
	snap := st.Snapshot()
	require.Len(t, snap.Current.Messages, 2)
	require.Equal(t, ErrorReply, snap.Current.Messages[1].Content)
}

func TestSendMessage_AllModelsFailedLeavesNoBubble(t *testing.T) {
	store := newStore(t)
	st := New(store, staticGateway(frames(), nil), WithMode(model.ModeThinking))

	require.NoError(t, st.SendMessage(context.Background(), "think hard"))

	snap := st.Snapshot()
	require.True(t, snap.LastTurnEmpty)
	require.Len(t, snap.Current.Messages, 1)
	require.Equal(t, model.RoleUser, snap.Current.Messages[0].Role)

	stored, err := store.Get(snap.Current.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)

	// The flag resets on the next turn.
	st.gateway = staticGateway(frames("answer"), nil)
	require.NoError(t, st.SendMessage(context.Background(), "again"))
	require.False(t, st.Snapshot().LastTurnEmpty)
}

func TestSendMessage_MalformedFramesSkipped(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {not json}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"
	st := New(newStore(t), staticGateway(body, nil))

	require.NoError(t, st.SendMessage(context.Background(), "hi"))
	require.Equal(t, "Hello", st.Snapshot().Current.Messages[1].Content)
}

func TestSendMessage_ConnectionCloseWithoutDone(t *testing.T) {
	body := strings.TrimSuffix(frames("Hel", "lo"), "data: [DONE]\n\n")
	st := New(newStore(t), staticGateway(body, nil))

	require.NoError(t, st.SendMessage(context.Background(), "hi"))
	require.Equal(t, "Hello", st.Snapshot().Current.Messages[1].Content)
}

func TestSendMessage_CancelKeepsPartial(t *testing.T) {
	store := newStore(t)
	firstDelta := make(chan struct{})
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			_, _ = io.WriteString(pw, strings.TrimSuffix(frames("Hel"), "data: [DONE]\n\n"))
			close(firstDelta)
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return okResponse(pr), nil
	})
	st := New(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- st.SendMessage(ctx, "hi") }()

	<-firstDelta
	require.Eventually(t, func() bool {
		c := st.Snapshot().Current
		return c != nil && len(c.Messages) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	snap := st.Snapshot()
	require.False(t, snap.Loading)
	require.Len(t, snap.Current.Messages, 2)
	require.Equal(t, "Hel", snap.Current.Messages[1].Content)

	stored, err := store.Get(snap.Current.ID)
	require.NoError(t, err)
	require.Equal(t, "Hel", stored.Messages[1].Content)
}

func TestSendMessage_TitleSetOnce(t *testing.T) {
	st := New(newStore(t), staticGateway(frames("ok"), nil))
	long := strings.Repeat("a", 60)

	require.NoError(t, st.SendMessage(context.Background(), long))
	require.NoError(t, st.SendMessage(context.Background(), "something else"))

	title := st.Snapshot().Current.Title
	require.Equal(t, strings.Repeat("a", 50)+"...", title)
}

func TestSendMessage_MovesConversationToFront(t *testing.T) {
	st := New(newStore(t), staticGateway(frames("ok"), nil))

	require.NoError(t, st.SendMessage(context.Background(), "first"))
	first := st.Snapshot().Current.ID
	st.NewConversation("")
	require.NoError(t, st.SendMessage(context.Background(), "second"))
	second := st.Snapshot().Current.ID

	require.NoError(t, st.LoadConversation(first))
	require.NoError(t, st.SendMessage(context.Background(), "again"))

	snap := st.Snapshot()
	require.Equal(t, []string{first, second}, convIDs(snap.Conversations))
}

func TestSendMessage_DeletedMidFlightIsDropped(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		close(entered)
		<-release
		return okResponse(strings.NewReader(frames("late"))), nil
	})
	st := New(store, gw)
	conv := st.NewConversation("")

	errc := make(chan error, 1)
	go func() { errc <- st.SendMessage(context.Background(), "hi") }()
	<-entered
	require.NoError(t, st.DeleteConversation(conv.ID))
	close(release)
	require.NoError(t, <-errc)

	snap := st.Snapshot()
	require.Empty(t, snap.Conversations)
	require.False(t, snap.Loading)
	convs, err := store.List()
	require.NoError(t, err)
	require.Empty(t, convs)
}

// pausingStore signals after each Delete or Clear reaches the store and
// then waits for resume before returning.
type pausingStore struct {
	*storage.ConversationStore
	reached chan struct{}
	resume  chan struct{}
}

func (p *pausingStore) Delete(id string) error {
	err := p.ConversationStore.Delete(id)
	p.reached <- struct{}{}
	<-p.resume
	return err
}

func (p *pausingStore) Clear() error {
	err := p.ConversationStore.Clear()
	p.reached <- struct{}{}
	<-p.resume
	return err
}

func TestSendMessage_SettleDuringStoreDelete(t *testing.T) {
	tests := []struct {
		name   string
		remove func(st *State, id string) error
	}{
		{"delete", func(st *State, id string) error { return st.DeleteConversation(id) }},
		{"clear", func(st *State, id string) error { return st.ClearAll() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := newStore(t)
			store := &pausingStore{
				ConversationStore: inner,
				reached:           make(chan struct{}),
				resume:            make(chan struct{}),
			}
			release := make(chan struct{})
			entered := make(chan struct{})
			gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
				close(entered)
				<-release
				return okResponse(strings.NewReader(frames("late"))), nil
			})
			st := New(store, gw)
			conv := st.NewConversation("")

			sendErr := make(chan error, 1)
			go func() { sendErr <- st.SendMessage(context.Background(), "hi") }()
			<-entered

			removeErr := make(chan error, 1)
			go func() { removeErr <- tt.remove(st, conv.ID) }()
			<-store.reached

			// The turn settles while the store call is still running.
			close(release)
			select {
			case err := <-sendErr:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("send blocked on the pending store call")
			}
			close(store.resume)
			require.NoError(t, <-removeErr)

			snap := st.Snapshot()
			require.Empty(t, snap.Conversations)
			require.False(t, snap.Loading)
			convs, err := inner.List()
			require.NoError(t, err)
			require.Empty(t, convs)
		})
	}
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

func seed(t *testing.T, store *storage.ConversationStore, modes ...model.Mode) []*model.Conversation {
	t.Helper()
	var out []*model.Conversation
	for _, m := range modes {
		c := model.NewConversation(m)
		c.AddUserMessage("msg in "+string(m), m)
		require.NoError(t, store.Save(c))
		out = append([]*model.Conversation{c}, out...)
	}
	return out
}

func TestLoad_FirstStoredBecomesCurrent(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeStudy, model.ModeCoding)

	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	snap := st.Snapshot()
	require.Equal(t, convIDs(convs), convIDs(snap.Conversations))
	require.Equal(t, convs[0].ID, snap.Current.ID)
	require.Equal(t, model.ModeCoding, snap.Mode)
}

func TestLoad_EmptyStore(t *testing.T) {
	st := New(newStore(t), staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	snap := st.Snapshot()
	require.Nil(t, snap.Current)
	require.Empty(t, snap.Conversations)
	require.Equal(t, model.DefaultMode, snap.Mode)
}

func TestNewConversation(t *testing.T) {
	store := newStore(t)
	seed(t, store, model.ModeNormal)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	conv := st.NewConversation(model.ModeResearch)
	require.Equal(t, model.DefaultTitle, conv.Title)
	require.Equal(t, model.ModeResearch, conv.Mode)

	snap := st.Snapshot()
	require.Equal(t, conv.ID, snap.Current.ID)
	require.Equal(t, conv.ID, snap.Conversations[0].ID)
	require.Len(t, snap.Conversations, 2)
	require.Equal(t, model.ModeResearch, snap.Mode)

	// No mode keeps the active one.
	conv = st.NewConversation("")
	require.Equal(t, model.ModeResearch, conv.Mode)
}

func TestLoadConversation(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeStudy, model.ModeCoding)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	require.NoError(t, st.LoadConversation(convs[1].ID))
	snap := st.Snapshot()
	require.Equal(t, convs[1].ID, snap.Current.ID)
	require.Equal(t, model.ModeStudy, snap.Mode)

	require.ErrorIs(t, st.LoadConversation("missing"), ErrConversationNotFound)
}

func TestDeleteConversation_CurrentFallsToNext(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeStudy, model.ModeCoding)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	require.NoError(t, st.DeleteConversation(convs[0].ID))
	snap := st.Snapshot()
	require.Equal(t, convs[1].ID, snap.Current.ID)
	require.Equal(t, model.ModeStudy, snap.Mode)
	require.Len(t, snap.Conversations, 1)

	require.NoError(t, st.DeleteConversation(convs[1].ID))
	snap = st.Snapshot()
	require.Nil(t, snap.Current)
	require.Empty(t, snap.Conversations)

	stored, err := store.List()
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestDeleteConversation_OtherKeepsCurrent(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeStudy, model.ModeCoding)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	require.NoError(t, st.DeleteConversation(convs[1].ID))
	require.Equal(t, convs[0].ID, st.Snapshot().Current.ID)
}

func TestClearAll(t *testing.T) {
	store := newStore(t)
	seed(t, store, model.ModeStudy, model.ModeCoding)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	require.NoError(t, st.ClearAll())
	snap := st.Snapshot()
	require.Nil(t, snap.Current)
	require.Empty(t, snap.Conversations)

	_, err := store.KV().Get(storage.ConversationsKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetMode_AppliesToNextSend(t *testing.T) {
	var modes []model.Mode
	gw := gatewayFunc(func(ctx context.Context, req Request) (*http.Response, error) {
		modes = append(modes, req.Mode)
		return okResponse(strings.NewReader(frames("ok"))), nil
	})
	st := New(newStore(t), gw)

	require.NoError(t, st.SendMessage(context.Background(), "a"))
	st.SetMode(model.ModeStudy)
	require.NoError(t, st.SendMessage(context.Background(), "b"))

	require.Equal(t, []model.Mode{model.ModeNormal, model.ModeStudy}, modes)
	snap := st.Snapshot()
	require.Equal(t, model.ModeStudy, snap.Current.Messages[2].Mode)
	require.Equal(t, model.ModeStudy, snap.Current.Mode)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	st := New(newStore(t), staticGateway(frames(), nil))
	var n int32
	cancel := st.Subscribe(func(Snapshot) { atomic.AddInt32(&n, 1) })

	st.SetMode(model.ModeCoding)
	require.EqualValues(t, 1, atomic.LoadInt32(&n))

	cancel()
	st.SetMode(model.ModeStudy)
	require.EqualValues(t, 1, atomic.LoadInt32(&n))
}

func TestSnapshot_IsIsolated(t *testing.T) {
	st := New(newStore(t), staticGateway(frames("ok"), nil))
	require.NoError(t, st.SendMessage(context.Background(), "hi"))

	snap := st.Snapshot()
	snap.Current.Messages[1].Content = "tampered"
	snap.Conversations[0].Title = "tampered"

	again := st.Snapshot()
	require.Equal(t, "ok", again.Current.Messages[1].Content)
	require.Equal(t, "hi", again.Conversations[0].Title)
}

// =============================================================================
// HTTP GATEWAY
// =============================================================================

func TestHTTPGateway_Post(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		sw := stream.NewWriter(w)
		_ = sw.WriteChunk(stream.NewContentChunk("id", 1, "m", "Hel"))
		_ = sw.WriteChunk(stream.NewContentChunk("id", 1, "m", "lo"))
		_ = sw.WriteDone()
	}))
	defer srv.Close()

	st := New(newStore(t), NewHTTPGateway(srv.URL), WithMode(model.ModeStudy))
	require.NoError(t, st.SendMessage(context.Background(), "hi"))

	require.Equal(t, model.ModeStudy, got.Mode)
	require.Equal(t, []model.Wire{{Role: "user", Content: "hi"}}, got.Messages)
	require.Equal(t, "Hello", st.Snapshot().Current.Messages[1].Content)
}

func TestHTTPGateway_DefaultURL(t *testing.T) {
	require.Equal(t, DefaultGatewayURL, NewHTTPGateway("").URL)
}

func convIDs(convs []*model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestReload_PicksUpOutsideWrites(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeNormal, model.ModeStudy)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())
	require.NoError(t, st.LoadConversation(convs[1].ID))

	// Another process adds a conversation.
	other := model.NewConversation(model.ModeCoding)
	other.AddUserMessage("from elsewhere", model.ModeCoding)
	require.NoError(t, store.Save(other))

	require.NoError(t, st.Reload())
	snap := st.Snapshot()
	require.Len(t, snap.Conversations, 3)
	require.Equal(t, other.ID, snap.Conversations[0].ID)
	require.Equal(t, convs[1].ID, snap.Current.ID)
}

func TestReload_KeepsUnsavedNewConversation(t *testing.T) {
	store := newStore(t)
	seed(t, store, model.ModeNormal)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())
	fresh := st.NewConversation("")

	require.NoError(t, st.Reload())
	snap := st.Snapshot()
	require.Equal(t, fresh.ID, snap.Current.ID)
	require.Equal(t, fresh.ID, snap.Conversations[0].ID)
	require.Len(t, snap.Conversations, 2)
}

func TestReload_CurrentDeletedElsewhere(t *testing.T) {
	store := newStore(t)
	convs := seed(t, store, model.ModeNormal, model.ModeStudy)
	st := New(store, staticGateway(frames(), nil))
	require.NoError(t, st.Load())

	require.NoError(t, store.Delete(convs[0].ID))
	require.NoError(t, st.Reload())

	snap := st.Snapshot()
	require.Len(t, snap.Conversations, 1)
	require.Equal(t, convs[1].ID, snap.Current.ID)
	require.Equal(t, model.ModeNormal, snap.Mode)
}
