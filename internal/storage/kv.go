// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by KV.Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is a minimal string-keyed blob store.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the backend named by kind rooted at path. For the file
// backend path is a directory; for sqlite it is the database file.
func Open(kind, path string) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BackendFile:
		return NewFileKV(path)
	case BackendSQLite:
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "fimum.db")
		}
		return NewSQLiteKV(path)
	default:
		return nil, errors.Errorf("unknown store backend %q", kind)
	}
}

// validKey rejects keys that could escape a directory or collide with temp files.
func validKey(key string) error {
	if key == "" {
		return errors.New("storage: empty key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.HasPrefix(key, ".") {
		return errors.Errorf("storage: invalid key %q", key)
	}
	return nil
}
