// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const (
	filePerm = 0600
	dirPerm  = 0700
)

// FileKV stores each key as a file in a single directory.
type FileKV struct {
	dir string
	mu  sync.RWMutex
}

// NewFileKV creates the directory if needed and returns a store rooted there.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, errors.New("storage: empty directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving store directory")
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, errors.Wrap(err, "creating store directory")
	}
	return &FileKV{dir: abs}, nil
}

// Dir returns the backing directory.
func (s *FileKV) Dir() string {
	return s.dir
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, key)
}

// Get reads the value stored under key.
func (s *FileKV) Get(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "reading key %s", key)
	}
	return data, nil
}

// Put replaces the value under key. A crash leaves either the old or the
// new value on disk, never a partial write.
func (s *FileKV) Put(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path(key), value, filePerm)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileKV) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting key %s", key)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileKV) Close() error {
	return nil
}

// Watch calls fn whenever the file behind key is created, rewritten or
// removed, including by another process. It returns once the watch is
// installed; delivery stops when ctx is cancelled.
func (s *FileKV) Watch(ctx context.Context, key string, fn func()) error {
	if err := validKey(key); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	// Renames replace the inode, so the directory is watched, not the file.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watching %s", s.dir)
	}

	target := s.path(key)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					fn()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("STORE_WATCH_ERROR | key=%s err=%v", key, err)
			}
		}
	}()
	return nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmp := f.Name()

	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "writing temp file")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "syncing temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return errors.Wrap(err, "setting file permissions")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	ok = true
	return nil
}
