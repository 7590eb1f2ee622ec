// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations for the fimum client.
//
// All conversations live under a single key, "fimum_conversations", as one
// JSON array ordered most recently active first. The array sits on top of a
// small key/value abstraction with two backends:
//
//   - FileKV: one file per key in a directory, written atomically (default)
//   - SQLiteKV: a single kv table in a SQLite database
//
// # Usage
//
//	kv, err := storage.NewFileKV(dir)
//	store := storage.NewConversationStore(kv)
//	convs, err := store.List()
//	err = store.Save(conv)
//
// Writes are last-writer-wins. There is no schema versioning.
package storage
