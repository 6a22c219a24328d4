// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/buildcache/lib/codec"
)

// FilesystemStore keeps each target's metadata in its own CBOR file:
//
//	<root>/<escaped target>.cbor
//
// Writes to one target are serialized by a per-target lock; different
// targets never share a lock or a file.
type FilesystemStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type targetRecord struct {
	Target   string            `cbor:"target"`
	Metadata map[string]string `cbor:"metadata"`
}

// OpenFilesystemStore returns a store rooted at root, creating it.
func OpenFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating build info directory %s: %w", root, err)
	}
	return &FilesystemStore{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FilesystemStore) ReadMetadata(ctx context.Context, target, key string) (string, bool, error) {
	metadata, err := s.ReadAllMetadata(ctx, target)
	if err != nil {
		return "", false, err
	}
	value, ok := metadata[key]
	return value, ok, nil
}

func (s *FilesystemStore) ReadAllMetadata(_ context.Context, target string) (map[string]string, error) {
	record, err := s.read(target)
	if err != nil {
		return nil, err
	}
	return record.Metadata, nil
}

func (s *FilesystemStore) UpdateMetadata(_ context.Context, target string, metadata map[string]string) error {
	unlock := s.lock(target)
	defer unlock()

	record, err := s.read(target)
	if err != nil {
		return err
	}
	maps.Copy(record.Metadata, metadata)
	if err := codec.WriteFile(s.path(target), record); err != nil {
		return fmt.Errorf("updating metadata of %s: %w", target, err)
	}
	return nil
}

func (s *FilesystemStore) DeleteMetadata(_ context.Context, target string) error {
	unlock := s.lock(target)
	defer unlock()

	if err := os.Remove(s.path(target)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting metadata of %s: %w", target, err)
	}
	return nil
}

// Targets returns every target with stored metadata, sorted.
func (s *FilesystemStore) Targets(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, entry := range entries {
		escaped, ok := strings.CutSuffix(entry.Name(), ".cbor")
		if !ok || strings.HasPrefix(escaped, ".") {
			continue
		}
		target, err := url.PathUnescape(escaped)
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}
	slices.Sort(targets)
	return targets, nil
}

func (s *FilesystemStore) Close() error { return nil }

func (s *FilesystemStore) read(target string) (targetRecord, error) {
	record := targetRecord{Target: target}
	err := codec.ReadFile(s.path(target), &record)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		return targetRecord{}, fmt.Errorf("reading metadata of %s: %w", target, err)
	}
	if record.Metadata == nil {
		record.Metadata = make(map[string]string)
	}
	return record, nil
}

func (s *FilesystemStore) path(target string) string {
	return filepath.Join(s.root, url.PathEscape(target)+".cbor")
}

func (s *FilesystemStore) lock(target string) func() {
	s.mu.Lock()
	lock, ok := s.locks[target]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[target] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
