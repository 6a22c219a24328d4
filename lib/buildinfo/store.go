// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store is the durable per-target metadata store of one workspace.
// Implementations are safe for concurrent use; updates to different
// targets do not contend on anything but the backing storage.
type Store interface {
	// ReadMetadata returns one value for target.
	ReadMetadata(ctx context.Context, target, key string) (string, bool, error)

	// ReadAllMetadata returns every value for target. An unknown
	// target has no metadata and returns an empty map.
	ReadAllMetadata(ctx context.Context, target string) (map[string]string, error)

	// UpdateMetadata merges metadata into target's existing values:
	// given keys are replaced, other keys are kept.
	UpdateMetadata(ctx context.Context, target string, metadata map[string]string) error

	// DeleteMetadata removes every value for target.
	DeleteMetadata(ctx context.Context, target string) error

	Close() error
}

// Backend selects the Store implementation a StoreManager opens.
type Backend string

const (
	BackendSQLite     Backend = "sqlite"
	BackendFilesystem Backend = "filesystem"
)

// ParseBackend validates a backend name. The empty name selects
// SQLite.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendSQLite, "":
		return BackendSQLite, nil
	case BackendFilesystem:
		return BackendFilesystem, nil
	default:
		return "", fmt.Errorf("unknown build info store %q (want sqlite or filesystem)", name)
	}
}

// StoreDirectory is where a workspace keeps its store, relative to
// the workspace root.
const StoreDirectory = ".buildcache/buildinfo"

// StoreManager opens one Store per workspace on first use and hands
// the same Store to every later caller.
type StoreManager struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]Store
}

// NewStoreManager returns a manager that opens stores of the given
// backend. A nil logger discards messages.
func NewStoreManager(backend Backend, logger *slog.Logger) *StoreManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StoreManager{backend: backend, logger: logger, stores: make(map[string]Store)}
}

// Get returns the store for workspace, opening it if needed.
func (m *StoreManager) Get(workspace string) (Store, error) {
	absolute, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if store, ok := m.stores[absolute]; ok {
		return store, nil
	}

	directory := filepath.Join(absolute, StoreDirectory)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating build info directory: %w", err)
	}
	var store Store
	switch m.backend {
	case BackendFilesystem:
		store, err = OpenFilesystemStore(directory)
	default:
		store, err = OpenSQLiteStore(filepath.Join(directory, "metadata.db"), m.logger)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Debug("opened build info store",
		"workspace", absolute,
		"backend", string(m.backend),
	)
	m.stores[absolute] = store
	return store, nil
}

// Close closes every store the manager opened.
func (m *StoreManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for workspace, store := range m.stores {
		if err := store.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing build info store for %s: %w", workspace, err)
		}
		delete(m.stores, workspace)
	}
	return first
}
