// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/fimum/internal/model"
)

// backends returns a fresh store of every kind.
func backends(t *testing.T) map[string]KV {
	t.Helper()
	dir := t.TempDir()

	fkv, err := NewFileKV(filepath.Join(dir, "files"))
	require.NoError(t, err)
	skv, err := NewSQLiteKV(filepath.Join(dir, "db", "fimum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { skv.Close() })

	return map[string]KV{BackendFile: fkv, BackendSQLite: skv}
}

func TestKV_Roundtrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get("missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put("k", []byte("one")))
			got, err := kv.Get("k")
			require.NoError(t, err)
			require.Equal(t, "one", string(got))

			require.NoError(t, kv.Put("k", []byte("two")))
			got, err = kv.Get("k")
			require.NoError(t, err)
			require.Equal(t, "two", string(got))

			require.NoError(t, kv.Delete("k"))
			_, err = kv.Get("k")
			require.ErrorIs(t, err, ErrNotFound)

			// Deleting again is fine.
			require.NoError(t, kv.Delete("k"))
		})
	}
}

func TestFileKV_PermissionsAndNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	require.NoError(t, kv.Put(ConversationsKey, []byte("[]")))

	info, err := os.Stat(filepath.Join(dir, ConversationsKey))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileKV_RejectsPathKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "a/b", ".hidden", ".."} {
		require.Error(t, kv.Put(key, []byte("x")), "key %q", key)
	}
}

func TestFileKV_ReadErrorKeepsCause(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, ConversationsKey), 0o700))

	_, err = kv.Get(ConversationsKey)
	require.ErrorContains(t, err, "reading key "+ConversationsKey)
	require.NotErrorIs(t, err, ErrNotFound)
	var pathErr *os.PathError
	require.ErrorAs(t, errors.Cause(err), &pathErr)

	_, err = NewConversationStore(kv).List()
	require.ErrorAs(t, err, &pathErr)

	_, err = kv.Get("missing")
	require.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestFileKV_WatchSeesExternalWrite(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	require.NoError(t, kv.Watch(ctx, ConversationsKey, func() { hits.Add(1) }))

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConversationsKey), []byte("[]"), 0600))

	require.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	kv, err := Open("", dir)
	require.NoError(t, err)
	require.IsType(t, &FileKV{}, kv)

	kv, err = Open("sqlite", dir)
	require.NoError(t, err)
	require.IsType(t, &SQLiteKV{}, kv)
	require.NoError(t, kv.Close())
	require.FileExists(t, filepath.Join(dir, "fimum.db"))

	_, err = Open("redis", dir)
	require.Error(t, err)
}

func newConv(title string) *model.Conversation {
	c := model.NewConversation(model.ModeNormal)
	c.Title = title
	return c
}

func TestConversationStore_EmptyList(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			convs, err := NewConversationStore(kv).List()
			require.NoError(t, err)
			require.NotNil(t, convs)
			require.Empty(t, convs)
		})
	}
}

func TestConversationStore_SavePrependsAndReplacesInPlace(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewConversationStore(kv)
			a, b, c := newConv("a"), newConv("b"), newConv("c")
			for _, conv := range []*model.Conversation{a, b, c} {
				require.NoError(t, store.Save(conv))
			}

			convs, err := store.List()
			require.NoError(t, err)
			require.Equal(t, []string{c.ID, b.ID, a.ID}, ids(convs))

			// Updating b keeps its position.
			b.AddUserMessage("hello", model.ModeNormal)
			require.NoError(t, store.Save(b))

			convs, err = store.List()
			require.NoError(t, err)
			require.Equal(t, []string{c.ID, b.ID, a.ID}, ids(convs))
			require.Len(t, convs[1].Messages, 1)
			require.Equal(t, "hello", convs[1].Messages[0].Content)
		})
	}
}

func TestConversationStore_GetDeleteClear(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewConversationStore(kv)
			a, b := newConv("a"), newConv("b")
			require.NoError(t, store.Save(a))
			require.NoError(t, store.Save(b))

			got, err := store.Get(a.ID)
			require.NoError(t, err)
			require.Equal(t, "a", got.Title)

			_, err = store.Get("nope")
			require.ErrorIs(t, err, ErrConversationNotFound)

			require.NoError(t, store.Delete(a.ID))
			require.NoError(t, store.Delete("nope"))
			convs, err := store.List()
			require.NoError(t, err)
			require.Equal(t, []string{b.ID}, ids(convs))

			require.NoError(t, store.Clear())
			_, err = kv.Get(ConversationsKey)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestConversationStore_CorruptBlobReadsEmpty(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Put(ConversationsKey, []byte("{not json")))
			store := NewConversationStore(kv)

			convs, err := store.List()
			require.NoError(t, err)
			require.Empty(t, convs)

			// The next save overwrites the corrupt blob.
			conv := newConv("fresh")
			require.NoError(t, store.Save(conv))
			convs, err = store.List()
			require.NoError(t, err)
			require.Equal(t, []string{conv.ID}, ids(convs))
		})
	}
}

func TestConversationStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	conv := newConv("kept")
	conv.Mode = model.ModeCoding
	conv.AddUserMessage("question", model.ModeCoding)
	conv.AddAssistantMessage("answer", model.ModeCoding)
	require.NoError(t, NewConversationStore(kv).Save(conv))

	kv2, err := NewFileKV(dir)
	require.NoError(t, err)
	got, err := NewConversationStore(kv2).Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, model.ModeCoding, got.Mode)
	require.Len(t, got.Messages, 2)
	require.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	require.Equal(t, conv.UpdatedAt, got.UpdatedAt)
}

func TestConversationStore_SaveRejectsMissingID(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	require.Error(t, NewConversationStore(kv).Save(&model.Conversation{}))
	require.Error(t, NewConversationStore(kv).Save(nil))
}

func ids(convs []*model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
